package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeviceStatus is the operational state of a device.
type DeviceStatus string

const (
	DeviceStatusOnline      DeviceStatus = "online"
	DeviceStatusOffline     DeviceStatus = "offline"
	DeviceStatusWarning     DeviceStatus = "warning"
	DeviceStatusError       DeviceStatus = "error"
	DeviceStatusMaintenance DeviceStatus = "maintenance"
)

// Valid reports whether s is one of the known statuses.
func (s DeviceStatus) Valid() bool {
	switch s {
	case DeviceStatusOnline, DeviceStatusOffline, DeviceStatusWarning, DeviceStatusError, DeviceStatusMaintenance:
		return true
	}
	return false
}

// Location is an optional geographic position, stored as location_* columns.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Address   *string  `gorm:"type:text" json:"address,omitempty"`
}

// Device is a physical or virtual endpoint that reports telemetry.
// DeviceKey is the public credential; the secret is only kept as a bcrypt hash.
type Device struct {
	ID              string            `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID        string            `gorm:"type:uuid;not null;index" json:"tenant_id"`
	ChannelID       string            `gorm:"type:uuid;not null;index" json:"channel_id"`
	DeviceTypeID    *string           `gorm:"type:uuid;index" json:"device_type_id"`
	Name            string            `gorm:"size:255;not null;index" json:"name"`
	Description     *string           `gorm:"type:text" json:"description"`
	DeviceKey       string            `gorm:"size:100;not null;uniqueIndex" json:"device_key"`
	SecretHash      string            `gorm:"column:device_secret_hash;size:100;not null" json:"-"`
	Status          DeviceStatus      `gorm:"size:20;not null;index" json:"status"`
	IsActive        bool              `gorm:"not null" json:"is_active"`
	LastSeen        *time.Time        `json:"last_seen"`
	LastIPAddress   *string           `gorm:"size:45" json:"last_ip_address"`
	Location        Location          `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Metadata        datatypes.JSONMap `json:"metadata"`
	Configuration   datatypes.JSONMap `json:"configuration"`
	FirmwareVersion *string           `gorm:"size:50" json:"firmware_version"`
	CreatedBy       *string           `gorm:"type:uuid" json:"created_by"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`

	ChannelName *string `gorm:"->;-:migration" json:"channel_name,omitempty"`
}

func (Device) TableName() string { return "devices" }

func (d *Device) BeforeCreate(*gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DeviceStatusOffline
	}
	if d.Metadata == nil {
		d.Metadata = datatypes.JSONMap{}
	}
	if d.Configuration == nil {
		d.Configuration = datatypes.JSONMap{}
	}
	return nil
}

func (d *Device) AfterFind(*gorm.DB) error {
	if d.Metadata == nil {
		d.Metadata = datatypes.JSONMap{}
	}
	if d.Configuration == nil {
		d.Configuration = datatypes.JSONMap{}
	}
	return nil
}

// ── Payloads ─────────────────────────────────────────────────────────────────

// DeviceCreate is the body of POST /api/v1/devices/.
type DeviceCreate struct {
	TenantID        string         `json:"tenant_id" binding:"required,uuid"`
	ChannelID       string         `json:"channel_id" binding:"required,uuid"`
	DeviceTypeID    *string        `json:"device_type_id" binding:"omitempty,uuid"`
	Name            string         `json:"name" binding:"required,min=1,max=255"`
	Description     *string        `json:"description" binding:"omitempty,max=1000"`
	Status          DeviceStatus   `json:"status" binding:"omitempty,oneof=online offline warning error maintenance"`
	Location        *Location      `json:"location"`
	Metadata        map[string]any `json:"metadata"`
	Configuration   map[string]any `json:"configuration"`
	FirmwareVersion *string        `json:"firmware_version" binding:"omitempty,max=50"`
	CreatedBy       *string        `json:"created_by" binding:"omitempty,uuid"`
}

// Device converts the payload into a new row without credentials.
func (in DeviceCreate) Device() *Device {
	d := &Device{
		TenantID:        in.TenantID,
		ChannelID:       in.ChannelID,
		DeviceTypeID:    in.DeviceTypeID,
		Name:            in.Name,
		Description:     in.Description,
		Status:          in.Status,
		IsActive:        true,
		Metadata:        datatypes.JSONMap(in.Metadata),
		FirmwareVersion: in.FirmwareVersion,
		CreatedBy:       in.CreatedBy,
	}
	if in.Configuration != nil {
		d.Configuration = datatypes.JSONMap(in.Configuration)
	}
	if in.Location != nil {
		d.Location = *in.Location
	}
	return d
}

// DeviceUpdate is a partial update; nil fields are left untouched.
type DeviceUpdate struct {
	Name            *string        `json:"name" binding:"omitempty,min=1,max=255"`
	Description     *string        `json:"description" binding:"omitempty,max=1000"`
	ChannelID       *string        `json:"channel_id" binding:"omitempty,uuid"`
	DeviceTypeID    *string        `json:"device_type_id" binding:"omitempty,uuid"`
	Status          *DeviceStatus  `json:"status" binding:"omitempty,oneof=online offline warning error maintenance"`
	IsActive        *bool          `json:"is_active"`
	Location        *Location      `json:"location"`
	Metadata        map[string]any `json:"metadata"`
	Configuration   map[string]any `json:"configuration"`
	FirmwareVersion *string        `json:"firmware_version" binding:"omitempty,max=50"`
}

// Changes returns the column set to write.
func (in DeviceUpdate) Changes() map[string]any {
	changes := map[string]any{}
	if in.Name != nil {
		changes["name"] = *in.Name
	}
	if in.Description != nil {
		changes["description"] = *in.Description
	}
	if in.ChannelID != nil {
		changes["channel_id"] = *in.ChannelID
	}
	if in.DeviceTypeID != nil {
		changes["device_type_id"] = *in.DeviceTypeID
	}
	if in.Status != nil {
		changes["status"] = *in.Status
	}
	if in.IsActive != nil {
		changes["is_active"] = *in.IsActive
	}
	if in.Location != nil {
		changes["location_latitude"] = in.Location.Latitude
		changes["location_longitude"] = in.Location.Longitude
		changes["location_address"] = in.Location.Address
	}
	if in.Metadata != nil {
		changes["metadata"] = datatypes.JSONMap(in.Metadata)
	}
	if in.Configuration != nil {
		changes["configuration"] = datatypes.JSONMap(in.Configuration)
	}
	if in.FirmwareVersion != nil {
		changes["firmware_version"] = *in.FirmwareVersion
	}
	return changes
}

// DeviceCredentials is returned once, when a device is created.
type DeviceCredentials struct {
	DeviceID     string `json:"device_id"`
	DeviceKey    string `json:"device_key"`
	DeviceSecret string `json:"device_secret"`
	MQTTEndpoint string `json:"mqtt_endpoint"`
}

// DeviceList is one page of devices.
type DeviceList struct {
	Devices []Device `json:"devices"`
	PageInfo
}
