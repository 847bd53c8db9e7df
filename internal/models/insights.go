package models

// InsightsRequest is the body of POST /api/v1/insights/generate.
type InsightsRequest struct {
	ChannelID string    `json:"channel_id" binding:"required"`
	Data      []float64 `json:"data" binding:"required"`
}

// InsightsResponse is the generated summary plus the anomalous values.
type InsightsResponse struct {
	Summary   string    `json:"summary"`
	Anomalies []float64 `json:"anomalies"`
}
