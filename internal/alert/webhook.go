package alert

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/skywatch/skywatch-go/internal/conf"
	"github.com/skywatch/skywatch-go/internal/datastore"
)

// WebhookChannel POSTs the detection JSON to a configured endpoint.
type WebhookChannel struct {
	channelBase
	url    string
	client *http.Client
}

// NewWebhookChannel creates the channel from settings.
func NewWebhookChannel(settings *conf.AlertsSettings) *WebhookChannel {
	base := newChannelBase("webhook", settings.Webhook.ChannelSettings)
	return &WebhookChannel{
		channelBase: base,
		url:         settings.Webhook.URL,
		client:      &http.Client{Timeout: base.timeout},
	}
}

// Send posts one detection. Any non-2xx response is a failure.
func (c *WebhookChannel) Send(ctx context.Context, d *datastore.Detection) error {
	if c.url == "" {
		return fmt.Errorf("webhook channel has no URL configured")
	}

	body, err := buildPayload(d)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "SkyWatch")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
