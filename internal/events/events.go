// Package events fans committed telemetry out to live subscribers, a Redis
// stream and channel webhooks. Delivery is best effort.
package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Point is one reading of a published batch.
type Point struct {
	MetricName   string         `json:"metric_name"`
	Value        float64        `json:"value"`
	Unit         *string        `json:"unit,omitempty"`
	QualityScore int            `json:"quality_score"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// TelemetryEvent describes one stored batch.
type TelemetryEvent struct {
	TenantID  string    `json:"tenant_id"`
	ChannelID string    `json:"channel_id"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
	Points    []Point   `json:"data"`

	// WebhookURL is the channel's outbound hook, if it has one.
	WebhookURL string `json:"-"`
}

// Publisher delivers telemetry events somewhere.
type Publisher interface {
	Publish(ctx context.Context, ev TelemetryEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, TelemetryEvent) error { return nil }

// Multi delivers each event to every publisher in its own goroutine, so a slow
// sink never holds up the caller. Publish always returns nil; delivery errors
// are logged.
type Multi struct {
	pubs    []Publisher
	timeout time.Duration
	log     *zap.Logger
	wg      sync.WaitGroup
}

// NewMulti bounds every delivery by timeout.
func NewMulti(log *zap.Logger, timeout time.Duration, pubs ...Publisher) *Multi {
	return &Multi{pubs: pubs, timeout: timeout, log: log}
}

func (m *Multi) Publish(ctx context.Context, ev TelemetryEvent) error {
	base := context.WithoutCancel(ctx)
	for _, p := range m.pubs {
		m.wg.Add(1)
		go func(p Publisher) {
			defer m.wg.Done()
			ctx, cancel := context.WithTimeout(base, m.timeout)
			defer cancel()
			if err := p.Publish(ctx, ev); err != nil {
				m.log.Warn("event delivery failed",
					zap.String("device_id", ev.DeviceID),
					zap.String("channel_id", ev.ChannelID),
					zap.Error(err))
			}
		}(p)
	}
	return nil
}

// Close waits for in-flight deliveries.
func (m *Multi) Close() {
	m.wg.Wait()
}
