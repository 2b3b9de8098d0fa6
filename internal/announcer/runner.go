package announcer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"aaronromeo.com/mailtally/pkg/base"
)

const webhookAnnouncePath = "/announcements"

type Option func(*tallyAnnouncer)

// Service posts a one-line run summary to a webhook.
type Service interface {
	Do(ctx context.Context, mode base.Mode, keys, messages int, location string) error
}

func WithWebhookURL(webhookURL string) Option {
	return func(a *tallyAnnouncer) {
		a.baseURL = strings.TrimSpace(webhookURL)
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(a *tallyAnnouncer) {
		a.client = client
	}
}

type tallyAnnouncer struct {
	baseURL string
	client  *http.Client
}

func New(opts ...Option) *tallyAnnouncer {
	announcer := &tallyAnnouncer{client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(announcer)
	}
	return announcer
}

// Enabled reports whether a webhook URL is configured.
func (a *tallyAnnouncer) Enabled() bool {
	return a.baseURL != ""
}

// Do is a no-op without a webhook URL.
func (a *tallyAnnouncer) Do(ctx context.Context, mode base.Mode, keys, messages int, location string) error {
	if !a.Enabled() {
		return nil
	}
	baseURL := strings.TrimRight(a.baseURL, "/")
	message := fmt.Sprintf("%s tally: %d keys, %d messages, report %s", mode, keys, messages, location)
	payload, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+webhookAnnouncePath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("reporting webhook returned status %s", resp.Status)
	}
	return nil
}
