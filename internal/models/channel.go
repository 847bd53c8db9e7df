// Package models defines GORM data models and API payloads for IoTLinker.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UncategorizedChannelName is the per-tenant channel that receives the devices
// of a deleted channel.
const UncategorizedChannelName = "Uncategorized"

// Channel is a named grouping of devices belonging to one tenant.
// DeviceCount and OnlineCount are aggregated at query time and never stored.
type Channel struct {
	ID          string            `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string            `gorm:"type:uuid;not null;index;uniqueIndex:idx_channels_tenant_name,priority:1" json:"tenant_id"`
	Name        string            `gorm:"size:255;not null;uniqueIndex:idx_channels_tenant_name,priority:2" json:"name"`
	Description *string           `gorm:"type:text" json:"description"`
	Icon        *string           `gorm:"size:50" json:"icon"`
	Color       *string           `gorm:"size:50" json:"color"`
	Metadata    datatypes.JSONMap `json:"metadata"`
	CreatedBy   *string           `gorm:"type:uuid" json:"created_by"`
	CreatedAt   time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`

	DeviceCount int64 `gorm:"->;-:migration" json:"device_count"`
	OnlineCount int64 `gorm:"->;-:migration" json:"online_count"`
}

func (Channel) TableName() string { return "channels" }

func (c *Channel) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Metadata == nil {
		c.Metadata = datatypes.JSONMap{}
	}
	return nil
}

func (c *Channel) AfterFind(*gorm.DB) error {
	if c.Metadata == nil {
		c.Metadata = datatypes.JSONMap{}
	}
	return nil
}

// WebhookURL returns the outbound webhook configured in the channel metadata
// under "webhook_url" (or the older "n8n_webhook"), if any.
func (c *Channel) WebhookURL() string {
	for _, key := range []string{"webhook_url", "n8n_webhook"} {
		if s, ok := c.Metadata[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ── Payloads ─────────────────────────────────────────────────────────────────

// ChannelCreate is the body of POST /api/v1/channels/.
type ChannelCreate struct {
	TenantID    string         `json:"tenant_id" binding:"required,uuid"`
	Name        string         `json:"name" binding:"required,min=1,max=255"`
	Description *string        `json:"description"`
	Icon        *string        `json:"icon" binding:"omitempty,max=50"`
	Color       *string        `json:"color" binding:"omitempty,max=50"`
	Metadata    map[string]any `json:"metadata"`
	CreatedBy   *string        `json:"created_by" binding:"omitempty,uuid"`
}

// Channel converts the payload into a new row.
func (in ChannelCreate) Channel() *Channel {
	return &Channel{
		TenantID:    in.TenantID,
		Name:        in.Name,
		Description: in.Description,
		Icon:        in.Icon,
		Color:       in.Color,
		Metadata:    datatypes.JSONMap(in.Metadata),
		CreatedBy:   in.CreatedBy,
	}
}

// ChannelUpdate is a partial update; nil fields are left untouched.
type ChannelUpdate struct {
	Name        *string        `json:"name" binding:"omitempty,min=1,max=255"`
	Description *string        `json:"description"`
	Icon        *string        `json:"icon" binding:"omitempty,max=50"`
	Color       *string        `json:"color" binding:"omitempty,max=50"`
	Metadata    map[string]any `json:"metadata"`
}

// Changes returns the column set to write.
func (in ChannelUpdate) Changes() map[string]any {
	changes := map[string]any{}
	if in.Name != nil {
		changes["name"] = *in.Name
	}
	if in.Description != nil {
		changes["description"] = *in.Description
	}
	if in.Icon != nil {
		changes["icon"] = *in.Icon
	}
	if in.Color != nil {
		changes["color"] = *in.Color
	}
	if in.Metadata != nil {
		changes["metadata"] = datatypes.JSONMap(in.Metadata)
	}
	return changes
}

// ChannelList is one page of channels.
type ChannelList struct {
	Channels []Channel `json:"channels"`
	PageInfo
}
