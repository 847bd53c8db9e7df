// Package insights summarizes a series of channel readings and flags the
// values above an anomaly threshold.
package insights

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/vesaa/iotlinker/internal/models"
)

// Options configure a Generator. An empty Endpoint keeps summaries local.
type Options struct {
	Endpoint         string
	APIKey           string
	Timeout          time.Duration
	AnomalyThreshold float64
}

// Generator produces insights, optionally delegating the summary text to an
// external service.
type Generator struct {
	client    *resty.Client
	endpoint  string
	threshold float64
	log       *zap.Logger
}

func NewGenerator(opts Options, log *zap.Logger) *Generator {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	return &Generator{
		client:    client,
		endpoint:  opts.Endpoint,
		threshold: opts.AnomalyThreshold,
		log:       log,
	}
}

type remoteRequest struct {
	ChannelID string    `json:"channel_id"`
	Data      []float64 `json:"data"`
}

type remoteResponse struct {
	Summary string `json:"summary"`
}

// Generate never fails: when the external summarizer is unavailable the
// local summary is returned instead.
func (g *Generator) Generate(ctx context.Context, req models.InsightsRequest) models.InsightsResponse {
	anomalies := DetectAnomalies(req.Data, g.threshold)
	if len(req.Data) == 0 {
		return models.InsightsResponse{Summary: "No data points provided.", Anomalies: anomalies}
	}

	if g.endpoint != "" {
		summary, err := g.remoteSummary(ctx, req)
		if err == nil {
			return models.InsightsResponse{Summary: summary, Anomalies: anomalies}
		}
		g.log.Warn("external insights unavailable, using local summary",
			zap.String("channel_id", req.ChannelID), zap.Error(err))
	}
	return models.InsightsResponse{Summary: Summarize(req.Data, anomalies, g.threshold), Anomalies: anomalies}
}

func (g *Generator) remoteSummary(ctx context.Context, req models.InsightsRequest) (string, error) {
	var out remoteResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(remoteRequest{ChannelID: req.ChannelID, Data: req.Data}).
		SetResult(&out).
		Post(g.endpoint)
	if err != nil {
		return "", err
	}
	if resp.IsError() {
		return "", fmt.Errorf("insights endpoint returned %d", resp.StatusCode())
	}
	if strings.TrimSpace(out.Summary) == "" {
		return "", fmt.Errorf("insights endpoint returned an empty summary")
	}
	return out.Summary, nil
}

// DetectAnomalies returns every value strictly greater than threshold, in input order.
func DetectAnomalies(data []float64, threshold float64) []float64 {
	out := []float64{}
	for _, v := range data {
		if v > threshold {
			out = append(out, v)
		}
	}
	return out
}

// Summarize describes data with count, range and mean.
func Summarize(data, anomalies []float64, threshold float64) string {
	if len(data) == 0 {
		return "No data points provided."
	}
	lo, hi, sum := math.Inf(1), math.Inf(-1), 0.0
	for _, v := range data {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
		sum += v
	}
	mean := sum / float64(len(data))

	var b strings.Builder
	fmt.Fprintf(&b, "Analyzed %d data point(s): min %s, max %s, mean %s.",
		len(data), formatValue(lo), formatValue(hi), formatValue(mean))
	if len(anomalies) == 0 {
		fmt.Fprintf(&b, " No values exceeded the threshold of %s.", formatValue(threshold))
	} else {
		fmt.Fprintf(&b, " %d value(s) exceeded the threshold of %s.", len(anomalies), formatValue(threshold))
	}
	return b.String()
}

func formatValue(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	}
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}
