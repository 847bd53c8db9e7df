package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Webhook posts events to the channel's webhook URL. Events of channels
// without one are skipped.
type Webhook struct {
	client *resty.Client
}

func NewWebhook(timeout time.Duration, retries int) *Webhook {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "iotlinker-webhook")
	return &Webhook{client: client}
}

func (w *Webhook) Publish(ctx context.Context, ev TelemetryEvent) error {
	if ev.WebhookURL == "" {
		return nil
	}
	resp, err := w.client.R().SetContext(ctx).SetBody(ev).Post(ev.WebhookURL)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook %s returned %d", ev.WebhookURL, resp.StatusCode())
	}
	return nil
}
