package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"

	"aaronromeo.com/mailtally/handlers"
	"aaronromeo.com/mailtally/internal/announcer"
	"aaronromeo.com/mailtally/internal/config"
	"aaronromeo.com/mailtally/pkg/base"
	"aaronromeo.com/mailtally/pkg/commands"
	"aaronromeo.com/mailtally/pkg/models/imapmanager"
	"aaronromeo.com/mailtally/pkg/models/stats"
	"aaronromeo.com/mailtally/pkg/report"
	"aaronromeo.com/mailtally/pkg/repositories"
	"aaronromeo.com/mailtally/pkg/services"
	"aaronromeo.com/mailtally/pkg/storage"
	"aaronromeo.com/mailtally/pkg/utils"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	exitFailure  = 1
	exitUsage    = 2
	exitAuthFail = 3
)

var tracer = otel.Tracer(base.SERVICE_NAME)

// tallySession is an authenticated mail session the tally runs against.
type tallySession interface {
	imapmanager.Session
	Login() (base.Client, error)
	Close() error
}

type deps struct {
	stdout      io.Writer
	stderr      io.Writer
	fileMgr     utils.FileManager
	newSession  func(ctx context.Context, cfg config.IMAPConfig, logger *slog.Logger) (tallySession, error)
	newUploader func(cfg config.S3, logger *slog.Logger) (storage.Uploader, error)
}

func defaultDeps() deps {
	return deps{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		fileMgr:     &utils.OSFileManager{},
		newSession:  dialSession,
		newUploader: newS3Uploader,
	}
}

func dialSession(ctx context.Context, cfg config.IMAPConfig, logger *slog.Logger) (tallySession, error) {
	host, _, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid imap address %q", cfg.Addr)
	}
	return imapmanager.NewImapManager(
		imapmanager.WithAuth(cfg.Account, cfg.Secret),
		imapmanager.WithAuthMechanism(imapmanager.AuthMechanism(cfg.Auth)),
		imapmanager.WithTLSConfig(cfg.Addr, &tls.Config{ServerName: host}),
		imapmanager.WithLogger(logger),
		imapmanager.WithCtx(ctx),
	)
}

func newS3Uploader(cfg config.S3, logger *slog.Logger) (storage.Uploader, error) {
	return storage.NewS3Uploader(
		storage.WithBucket(cfg.Bucket, cfg.Prefix),
		storage.WithRegion(cfg.Region),
		storage.WithEndpoint(cfg.Endpoint),
		storage.WithLogger(logger),
	)
}

func main() {
	app := newApp(defaultDeps())
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFailure)
	}
}

type runtime struct {
	logger   *slog.Logger
	shutdown func(context.Context) error
}

func newApp(d deps) *cli.App {
	rt := &runtime{
		logger:   slog.New(slog.NewJSONHandler(d.stderr, nil)),
		shutdown: func(context.Context) error { return nil },
	}

	return &cli.App{
		Name:      base.SERVICE_NAME,
		Usage:     "Count mail exchanged with domains or addresses over IMAP",
		Writer:    d.stdout,
		ErrWriter: d.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML file with tracked keys and options",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "dotenv file loaded before reading the environment",
			},
			&cli.StringFlag{
				Name:    "uptrace-dsn",
				EnvVars: []string{base.UPTRACE_DSN_ENV_VAR},
				Usage:   "export traces, metrics and logs to Uptrace",
			},
			&cli.BoolFlag{
				Name:  "otel-stdout",
				Usage: "print OpenTelemetry log records to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if err := loadEnvFile(c); err != nil {
				return cli.Exit(err, exitUsage)
			}

			opts := utils.TelemetryOptions{DSN: c.String("uptrace-dsn")}
			if c.Bool("otel-stdout") {
				opts.Stdout = d.stderr
			}
			shutdown, err := utils.SetupOTelSDK(c.Context, opts)
			if err != nil {
				return cli.Exit(errors.Wrap(err, "setting up telemetry"), exitFailure)
			}
			rt.shutdown = shutdown
			rt.logger = utils.NewLogger(opts, d.stderr)
			return nil
		},
		After: func(c *cli.Context) error {
			return rt.shutdown(context.Background())
		},
		Commands: []*cli.Command{
			{
				Name:      "domains",
				Usage:     "Tally messages exchanged with each domain",
				ArgsUsage: "[domain...]",
				Flags:     tallyFlags(),
				Action: func(c *cli.Context) error {
					return runTally(c, d, rt.logger, base.ModeDomain)
				},
			},
			{
				Name:      "addresses",
				Usage:     "Tally messages exchanged with each address",
				ArgsUsage: "[address...]",
				Flags:     tallyFlags(),
				Action: func(c *cli.Context) error {
					return runTally(c, d, rt.logger, base.ModeAddress)
				},
			},
			{
				Name:  "serve",
				Usage: "Serve the last exported report over HTTP",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "report", Usage: "CSV report to serve"},
					&cli.StringFlag{Name: "listen", Value: ":3000", Usage: "address to listen on"},
				},
				Action: func(c *cli.Context) error {
					return serve(c, d, rt.logger)
				},
			},
			{
				Name:  "check",
				Usage: "Validate configuration and credentials without connecting",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "mode", Value: string(base.ModeDomain), Usage: "domain or address"},
				},
				Action: func(c *cli.Context) error {
					return check(c, d)
				},
			},
		},
	}
}

func tallyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "imap-addr", Usage: "IMAP server host:port"},
		&cli.StringFlag{Name: "mailbox", Usage: "mailbox to search"},
		&cli.StringFlag{Name: "auth", Usage: "login or plain"},
		&cli.IntFlag{Name: "batch-size", Usage: "messages per header fetch"},
		&cli.IntFlag{Name: "max-messages", Usage: "newest matches kept per key, 0 for all"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "CSV report path"},
		&cli.StringFlag{Name: "s3-bucket", Usage: "upload the report to this bucket"},
		&cli.StringFlag{Name: "s3-prefix", Usage: "key prefix inside the bucket"},
		&cli.StringFlag{Name: "webhook-url", Usage: "announce the run to this webhook"},
	}
}

func loadEnvFile(c *cli.Context) error {
	path := c.String("env-file")
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !c.IsSet("env-file") {
			return nil
		}
		return errors.Wrapf(err, "loading %s", path)
	}
	return nil
}

// loadConfig layers defaults, the YAML file, the environment and flags.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, errors.Wrapf(err, "loading config %s", path)
		}
		cfg = loaded
	}
	config.ApplyEnv(&cfg)

	setString := func(dst *string, name string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setString(&cfg.IMAP.Addr, "imap-addr")
	setString(&cfg.IMAP.Mailbox, "mailbox")
	setString(&cfg.IMAP.Auth, "auth")
	setString(&cfg.Output.Path, "output")
	setString(&cfg.S3.Bucket, "s3-bucket")
	setString(&cfg.S3.Prefix, "s3-prefix")
	setString(&cfg.WebhookURL, "webhook-url")
	if c.IsSet("batch-size") {
		cfg.Tally.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("max-messages") {
		cfg.Tally.MaxMessages = c.Int("max-messages")
	}
	return cfg, nil
}

func runTally(c *cli.Context, d deps, logger *slog.Logger, mode base.Mode) error {
	ctx, span := tracer.Start(c.Context, "tally")
	defer span.End()

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}
	if c.NArg() > 0 {
		if mode == base.ModeDomain {
			cfg.Domains = c.Args().Slice()
		} else {
			cfg.Addresses = c.Args().Slice()
		}
	}
	if err := config.Validate(cfg, mode); err != nil {
		return cli.Exit(err, exitUsage)
	}
	imapCfg, err := config.IMAPFromEnv(cfg)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}

	keys := cfg.Keys(mode)
	span.SetAttributes(
		attribute.String("mode", string(mode)),
		attribute.Int("keys", len(keys)),
	)

	logger.InfoContext(ctx, "Connecting to IMAP server", slog.String("addr", imapCfg.Addr))
	session, err := d.newSession(ctx, imapCfg, logger)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}
	if _, err := session.Login(); err != nil {
		var authErr *base.AuthError
		if errors.As(err, &authErr) {
			return cli.Exit(fmt.Sprintf("Login failed. Check your credentials. Error: %v", err), exitAuthFail)
		}
		return cli.Exit(err, exitFailure)
	}
	logger.InfoContext(ctx, "Logged in successfully")
	defer func() {
		if err := session.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to logout", slog.Any("error", utils.WrapError(err)))
		}
	}()

	svc, err := services.NewTallyService(session, logger,
		services.WithMailbox(imapCfg.Mailbox),
		services.WithBatchSize(cfg.Tally.BatchSize),
		services.WithMaxMessages(cfg.Tally.MaxMessages),
	)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}

	agg := newAggregator(mode)
	summary := svc.Run(ctx, agg, keys)

	rep, err := report.Build(agg)
	if err != nil {
		return cli.Exit(err, exitFailure)
	}

	sinks, err := reportSinks(d, cfg, logger, summary)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}
	if err := commands.NewCommandExecutor(logger).ExecuteCommands(ctx, sinks, rep); err != nil {
		return cli.Exit(err, exitFailure)
	}

	if err := summary.Err(); err != nil {
		return cli.Exit(fmt.Sprintf("incomplete tally for %s: %v", strings.Join(summary.FailedKeys(), ", "), err), exitFailure)
	}
	return nil
}

func newAggregator(mode base.Mode) stats.Aggregator {
	if mode == base.ModeDomain {
		return stats.NewDomainAggregator()
	}
	return stats.NewAddressAggregator()
}

// reportSinks builds summary, export and the optional upload and announce steps.
func reportSinks(d deps, cfg config.Config, logger *slog.Logger, summary *services.RunSummary) ([]commands.ReportCommand, error) {
	repo, err := repositories.NewFileReportRepository(d.fileMgr, cfg.Output.Path, logger)
	if err != nil {
		return nil, err
	}
	export := commands.NewExportCommand(logger, repo)
	sinks := []commands.ReportCommand{
		commands.NewSummaryCommand(logger, d.stdout),
		export,
	}
	locators := []commands.Locator{export}

	if cfg.S3.Enabled() {
		uploader, err := d.newUploader(cfg.S3, logger)
		if err != nil {
			return nil, err
		}
		upload := commands.NewUploadCommand(logger, uploader, d.fileMgr, cfg.Output.Path)
		sinks = append(sinks, upload)
		locators = append(locators, upload)
	}

	if strings.TrimSpace(cfg.WebhookURL) != "" {
		a := announcer.New(announcer.WithWebhookURL(cfg.WebhookURL))
		sinks = append(sinks, commands.NewAnnounceCommand(logger, a, summary.Observed, locators...))
	}
	return sinks, nil
}

func serve(c *cli.Context, d deps, logger *slog.Logger) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}
	path := cfg.Output.Path
	if c.IsSet("report") {
		path = c.String("report")
	}

	repo, err := repositories.NewFileReportRepository(d.fileMgr, path, logger)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}

	addr := c.String("listen")
	logger.InfoContext(c.Context, "Serving report", slog.String("listen", addr), slog.String("report", path))
	return handlers.NewApp(repo, logger).Listen(addr)
}

func check(c *cli.Context, d deps) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err, exitUsage)
	}
	fmt.Fprintln(d.stdout, config.Summary(cfg))

	mode := base.Mode(c.String("mode"))
	if err := config.Validate(cfg, mode); err != nil {
		return cli.Exit(err, exitUsage)
	}
	if err := config.ValidateEnv(); err != nil {
		return cli.Exit(err, exitUsage)
	}
	fmt.Fprintln(d.stdout, "Config OK")
	return nil
}
