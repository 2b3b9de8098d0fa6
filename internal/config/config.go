package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"aaronromeo.com/mailtally/pkg/base"
	"gopkg.in/yaml.v3"
)

const (
	envAccount         = "MAILTALLY_ACCOUNT"
	envAccountFallback = "GMAIL_ADDRESS"
	envSecret          = "MAILTALLY_SECRET"
	envSecretFallback  = "GMAIL_APP_PASSWORD"
	envIMAPAddr        = "MAILTALLY_IMAP_ADDR"
	envMailbox         = "MAILTALLY_MAILBOX"
	envS3Bucket        = "MAILTALLY_S3_BUCKET"
	envS3Prefix        = "MAILTALLY_S3_PREFIX"
	envS3Region        = "MAILTALLY_S3_REGION"
	envS3Endpoint      = "MAILTALLY_S3_ENDPOINT"
	envWebhookURL      = "MAILTALLY_WEBHOOK_URL"
)

// Config holds non-secret configuration loaded from YAML.
type Config struct {
	IMAP       IMAPOptions `yaml:"imap"`
	Tally      Tally       `yaml:"tally"`
	Domains    []string    `yaml:"domains"`
	Addresses  []string    `yaml:"addresses"`
	Output     Output      `yaml:"output"`
	S3         S3          `yaml:"s3"`
	WebhookURL string      `yaml:"webhook_url"`
}

type IMAPOptions struct {
	Addr    string `yaml:"addr"`
	Mailbox string `yaml:"mailbox"`
	Auth    string `yaml:"auth"`
}

type Tally struct {
	BatchSize   int `yaml:"batch_size"`
	MaxMessages int `yaml:"max_messages"`
}

type Output struct {
	Path string `yaml:"path"`
}

// S3 is optional; an empty bucket disables the upload.
type S3 struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

func (s S3) Enabled() bool {
	return strings.TrimSpace(s.Bucket) != ""
}

// IMAPConfig is everything needed to open a session.
type IMAPConfig struct {
	Addr    string
	Account string
	Secret  string
	Mailbox string
	Auth    string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		IMAP: IMAPOptions{
			Addr:    base.DefaultIMAPAddr,
			Mailbox: base.DefaultMailbox,
			Auth:    "login",
		},
		Tally: Tally{
			BatchSize:   base.DefaultBatchSize,
			MaxMessages: base.DefaultMaxMessages,
		},
		Output: Output{Path: base.DefaultReportFile},
	}
}

// Load reads configuration from a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// ApplyEnv overrides non-secret settings that are present in the environment.
func ApplyEnv(cfg *Config) {
	override := func(dst *string, name string) {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
	override(&cfg.IMAP.Addr, envIMAPAddr)
	override(&cfg.IMAP.Mailbox, envMailbox)
	override(&cfg.S3.Bucket, envS3Bucket)
	override(&cfg.S3.Prefix, envS3Prefix)
	override(&cfg.S3.Region, envS3Region)
	override(&cfg.S3.Endpoint, envS3Endpoint)
	override(&cfg.WebhookURL, envWebhookURL)
}

// ValidateEnv ensures the account and secret are available.
func ValidateEnv() error {
	_, err := IMAPFromEnv(Default())
	return err
}

// IMAPFromEnv combines cfg with the credentials from the environment.
// MAILTALLY_* names win over the GMAIL_* ones.
func IMAPFromEnv(cfg Config) (IMAPConfig, error) {
	missing := []string{}

	account := lookup(envAccount, envAccountFallback)
	if account == "" {
		missing = append(missing, envAccount+" (or "+envAccountFallback+")")
	}

	secret := lookup(envSecret, envSecretFallback)
	if secret == "" {
		missing = append(missing, envSecret+" (or "+envSecretFallback+")")
	}

	if len(missing) > 0 {
		return IMAPConfig{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return IMAPConfig{
		Addr:    cfg.IMAP.Addr,
		Account: account,
		Secret:  secret,
		Mailbox: cfg.IMAP.Mailbox,
		Auth:    cfg.IMAP.Auth,
	}, nil
}

func lookup(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

// Keys returns the tracked keys for mode with blanks and repeats removed,
// keeping first occurrence order.
func (c Config) Keys(mode base.Mode) []string {
	src := c.Addresses
	if mode == base.ModeDomain {
		src = c.Domains
	}

	seen := map[string]bool{}
	keys := make([]string, 0, len(src))
	for _, k := range src {
		k = strings.TrimSpace(k)
		if mode == base.ModeDomain {
			k = strings.TrimPrefix(k, "@")
		}
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, k)
	}
	return keys
}

// Summary returns a concise config summary for validation runs.
func Summary(cfg Config) string {
	reportingStatus := "disabled"
	if strings.TrimSpace(cfg.WebhookURL) != "" {
		reportingStatus = "enabled"
	}
	upload := "disabled"
	if cfg.S3.Enabled() {
		upload = "s3://" + cfg.S3.Bucket + "/" + cfg.S3.Prefix
	}
	return fmt.Sprintf(
		"Config summary\n"+
			"- server: %s\n"+
			"- mailbox: %s\n"+
			"- domains: %d\n"+
			"- addresses: %d\n"+
			"- batch size: %d\n"+
			"- output: %s\n"+
			"- upload: %s\n"+
			"- reporting webhook: %s",
		cfg.IMAP.Addr,
		cfg.IMAP.Mailbox,
		len(cfg.Keys(base.ModeDomain)),
		len(cfg.Keys(base.ModeAddress)),
		cfg.Tally.BatchSize,
		defaultIfEmpty(cfg.Output.Path, "(not set)"),
		upload,
		reportingStatus,
	)
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// Validate performs basic validation on non-secret config for a run in mode.
func Validate(cfg Config, mode base.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if len(cfg.Keys(mode)) == 0 {
		if mode == base.ModeDomain {
			return errors.New("config must define at least one domain")
		}
		return errors.New("config must define at least one address")
	}
	if strings.TrimSpace(cfg.IMAP.Addr) == "" {
		return errors.New("imap.addr is required")
	}
	if strings.TrimSpace(cfg.IMAP.Mailbox) == "" {
		return errors.New("imap.mailbox is required")
	}
	switch cfg.IMAP.Auth {
	case "", "login", "plain":
	default:
		return fmt.Errorf("imap.auth must be login or plain, got %q", cfg.IMAP.Auth)
	}
	if cfg.Tally.BatchSize < 1 || cfg.Tally.BatchSize > base.MaxBatchSize {
		return fmt.Errorf("tally.batch_size must be between 1 and %d", base.MaxBatchSize)
	}
	if cfg.Tally.MaxMessages < 0 {
		return errors.New("tally.max_messages cannot be negative")
	}
	if mode == base.ModeAddress {
		for _, addr := range cfg.Keys(mode) {
			if !strings.Contains(addr, "@") {
				return fmt.Errorf("address %q must contain @", addr)
			}
		}
	}
	return nil
}
