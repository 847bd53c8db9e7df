// Package agent turns a host into an IoTLinker device: it periodically
// collects system metrics and posts them to the ingestion endpoint,
// authenticated with the device id and key issued at registration.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/vesaa/iotlinker/internal/models"
)

// Options configure an Agent.
type Options struct {
	ServerURL string // e.g. http://127.0.0.1:8001
	DeviceID  string
	DeviceKey string
	Interval  time.Duration
	Timeout   time.Duration
}

// ErrRejected is returned when the server refuses the device credentials.
var ErrRejected = errors.New("server rejected the device credentials")

// Agent reports host metrics as telemetry of one device.
type Agent struct {
	opts    Options
	client  *resty.Client
	collect func(context.Context) (*Snapshot, error)
	log     *zap.Logger
}

func New(opts Options, log *zap.Logger) (*Agent, error) {
	switch {
	case opts.ServerURL == "":
		return nil, errors.New("agent: server url is required")
	case opts.DeviceID == "":
		return nil, errors.New("agent: device id is required")
	case opts.DeviceKey == "":
		return nil, errors.New("agent: device key is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.ServerURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")

	return &Agent{
		opts:    opts,
		client:  client,
		collect: NewCollector().Collect,
		log:     log,
	}, nil
}

// Run reports once immediately and then every interval until ctx is done.
// Report failures are logged and retried on the next tick; only rejected
// credentials stop the loop.
func (a *Agent) Run(ctx context.Context) error {
	// Warmup: seed the bandwidth baseline before the first real report.
	_, _ = a.collect(ctx)

	a.log.Info("agent started",
		zap.String("server", a.opts.ServerURL),
		zap.String("device_id", a.opts.DeviceID),
		zap.Duration("interval", a.opts.Interval))

	ticker := time.NewTicker(a.opts.Interval)
	defer ticker.Stop()

	for {
		if err := a.Report(ctx); err != nil {
			if errors.Is(err, ErrRejected) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			a.log.Warn("report failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			a.log.Info("agent stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Report collects one snapshot and posts it as a telemetry batch.
func (a *Agent) Report(ctx context.Context) error {
	snap, err := a.collect(ctx)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	ts := snap.CollectedAt.UTC()
	batch := models.DeviceDataBatch{
		DeviceID:  a.opts.DeviceID,
		DeviceKey: a.opts.DeviceKey,
		Timestamp: &ts,
		Data:      snap.Points(),
	}

	var res models.IngestResult
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(batch).
		SetResult(&res).
		Post("/api/v1/devices/" + a.opts.DeviceID + "/data")
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized:
		return ErrRejected
	case resp.IsError():
		return fmt.Errorf("server returned %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	a.log.Debug("report accepted", zap.Int("points", res.Accepted))
	return nil
}
