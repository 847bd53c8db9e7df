package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertCondition compares a metric value against the alert threshold.
type AlertCondition string

const (
	ConditionGreaterThan    AlertCondition = "greater_than"
	ConditionLessThan       AlertCondition = "less_than"
	ConditionGreaterOrEqual AlertCondition = "greater_or_equal"
	ConditionLessOrEqual    AlertCondition = "less_or_equal"
	ConditionEqual          AlertCondition = "equal"
	ConditionNotEqual       AlertCondition = "not_equal"
)

// NotificationType is how a triggered alert is delivered.
type NotificationType string

const (
	NotifyEmail   NotificationType = "email"
	NotifySMS     NotificationType = "sms"
	NotifyWebhook NotificationType = "webhook"
)

// Alert is a threshold rule attached to a channel.
type Alert struct {
	ID               string           `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID         string           `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ChannelID        string           `gorm:"type:uuid;not null;index" json:"channel_id"`
	Name             *string          `gorm:"size:255" json:"name"`
	MetricName       *string          `gorm:"size:100" json:"metric_name"`
	Threshold        float64          `gorm:"not null" json:"threshold"`
	Condition        AlertCondition   `gorm:"column:condition;size:20;not null" json:"condition"`
	NotificationType NotificationType `gorm:"size:20;not null" json:"notification_type"`
	Recipient        *string          `gorm:"size:255" json:"recipient"`
	IsActive         bool             `gorm:"not null" json:"is_active"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func (Alert) TableName() string { return "alerts" }

func (a *Alert) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// ── Payloads ─────────────────────────────────────────────────────────────────

// AlertCreate is the body of POST /api/v1/alerts/.
type AlertCreate struct {
	TenantID         string           `json:"tenant_id" binding:"required,uuid"`
	ChannelID        string           `json:"channel_id" binding:"required,uuid"`
	Name             *string          `json:"name" binding:"omitempty,max=255"`
	MetricName       *string          `json:"metric_name" binding:"omitempty,max=100"`
	Threshold        *float64         `json:"threshold" binding:"required"`
	Condition        AlertCondition   `json:"condition" binding:"required,oneof=greater_than less_than greater_or_equal less_or_equal equal not_equal"`
	NotificationType NotificationType `json:"notification_type" binding:"required,oneof=email sms webhook"`
	Recipient        *string          `json:"recipient" binding:"omitempty,max=255"`
	IsActive         *bool            `json:"is_active"`
}

// Alert converts the payload into a new row.
func (in AlertCreate) Alert() *Alert {
	a := &Alert{
		TenantID:         in.TenantID,
		ChannelID:        in.ChannelID,
		Name:             in.Name,
		MetricName:       in.MetricName,
		Threshold:        *in.Threshold,
		Condition:        in.Condition,
		NotificationType: in.NotificationType,
		Recipient:        in.Recipient,
		IsActive:         true,
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}
	return a
}

// AlertUpdate is a partial update; nil fields are left untouched.
type AlertUpdate struct {
	ChannelID        *string           `json:"channel_id" binding:"omitempty,uuid"`
	Name             *string           `json:"name" binding:"omitempty,max=255"`
	MetricName       *string           `json:"metric_name" binding:"omitempty,max=100"`
	Threshold        *float64          `json:"threshold"`
	Condition        *AlertCondition   `json:"condition" binding:"omitempty,oneof=greater_than less_than greater_or_equal less_or_equal equal not_equal"`
	NotificationType *NotificationType `json:"notification_type" binding:"omitempty,oneof=email sms webhook"`
	Recipient        *string           `json:"recipient" binding:"omitempty,max=255"`
	IsActive         *bool             `json:"is_active"`
}

// Changes returns the column set to write.
func (in AlertUpdate) Changes() map[string]any {
	changes := map[string]any{}
	if in.ChannelID != nil {
		changes["channel_id"] = *in.ChannelID
	}
	if in.Name != nil {
		changes["name"] = *in.Name
	}
	if in.MetricName != nil {
		changes["metric_name"] = *in.MetricName
	}
	if in.Threshold != nil {
		changes["threshold"] = *in.Threshold
	}
	if in.Condition != nil {
		changes["condition"] = *in.Condition
	}
	if in.NotificationType != nil {
		changes["notification_type"] = *in.NotificationType
	}
	if in.Recipient != nil {
		changes["recipient"] = *in.Recipient
	}
	if in.IsActive != nil {
		changes["is_active"] = *in.IsActive
	}
	return changes
}
