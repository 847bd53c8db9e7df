package models

import (
	"time"

	"gorm.io/datatypes"
)

// DeviceData is one stored measurement. Every point of an ingested batch
// becomes one row; all rows of a batch share the batch timestamp.
type DeviceData struct {
	ID           int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID     string            `gorm:"type:uuid;not null;index" json:"-"`
	DeviceID     string            `gorm:"type:uuid;not null;index:idx_device_data_device_time,priority:1" json:"device_id"`
	MetricName   string            `gorm:"size:100;not null;index" json:"metric_name"`
	Value        float64           `gorm:"not null" json:"value"`
	Unit         *string           `gorm:"size:50" json:"unit"`
	QualityScore int               `gorm:"not null" json:"quality_score"`
	Metadata     datatypes.JSONMap `json:"metadata"`
	Time         time.Time         `gorm:"column:time;not null;index:idx_device_data_device_time,priority:2" json:"time"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (DeviceData) TableName() string { return "device_data" }

// ── Payloads ─────────────────────────────────────────────────────────────────

// DeviceDataPoint is a single metric reading inside a batch.
type DeviceDataPoint struct {
	MetricName   string         `json:"metric_name" binding:"required,min=1,max=100"`
	Value        *float64       `json:"value" binding:"required"`
	Unit         *string        `json:"unit" binding:"omitempty,max=50"`
	QualityScore *int           `json:"quality_score" binding:"omitempty,min=0,max=100"`
	Metadata     map[string]any `json:"metadata"`
}

// DeviceDataBatch is the ingestion payload. DeviceKey authenticates the sender.
type DeviceDataBatch struct {
	DeviceID  string            `json:"device_id" binding:"required"`
	DeviceKey string            `json:"device_key" binding:"required"`
	Timestamp *time.Time        `json:"timestamp"`
	Data      []DeviceDataPoint `json:"data" binding:"dive"`
}

// IngestResult acknowledges an accepted batch.
type IngestResult struct {
	DeviceID  string    `json:"device_id"`
	Accepted  int       `json:"accepted"`
	Timestamp time.Time `json:"timestamp"`
}
