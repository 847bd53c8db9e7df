// Package store is the persistence layer of IoTLinker. Store is the single
// contract the rest of the service depends on; DB implements it on GORM
// over PostgreSQL or SQLite.
package store

import (
	"context"
	"time"

	"github.com/vesaa/iotlinker/internal/models"
)

// ChannelFilter selects a page of a tenant's channels.
type ChannelFilter struct {
	TenantID string
	Search   string // case-insensitive substring of name or description
	Page     models.Page
}

// DeviceFilter selects a page of a tenant's devices. Empty fields do not filter.
type DeviceFilter struct {
	TenantID     string
	ChannelID    string
	DeviceTypeID string
	Status       models.DeviceStatus
	Search       string
	Page         models.Page
}

// TelemetryQuery selects stored readings of one device, newest first.
type TelemetryQuery struct {
	TenantID   string
	DeviceID   string
	MetricName string
	Start      *time.Time
	End        *time.Time
	Limit      int
}

// ChannelTelemetryQuery selects stored readings of every device in a channel,
// oldest first.
type ChannelTelemetryQuery struct {
	TenantID  string
	ChannelID string
	Start     *time.Time
	End       *time.Time
	Limit     int
}

// AlertFilter selects a tenant's alerts. Empty fields do not filter.
type AlertFilter struct {
	TenantID  string
	ChannelID string
	IsActive  *bool
}

type ChannelStore interface {
	ListChannels(ctx context.Context, f ChannelFilter) ([]models.Channel, int64, error)
	GetChannel(ctx context.Context, tenantID, id string) (*models.Channel, error)
	CreateChannel(ctx context.Context, ch *models.Channel) error
	UpdateChannel(ctx context.Context, tenantID, id string, in models.ChannelUpdate) (*models.Channel, error)
	DeleteChannel(ctx context.Context, tenantID, id string) error
	ListChannelDevices(ctx context.Context, tenantID, channelID string, status models.DeviceStatus) ([]models.Device, error)
}

type DeviceStore interface {
	ListDevices(ctx context.Context, f DeviceFilter) ([]models.Device, int64, error)
	GetDevice(ctx context.Context, tenantID, id string) (*models.Device, error)
	CreateDevice(ctx context.Context, d *models.Device) error
	UpdateDevice(ctx context.Context, tenantID, id string, in models.DeviceUpdate) (*models.Device, error)
	DeleteDevice(ctx context.Context, tenantID, id string) error
	// LookupDevice loads a device by id alone; used to authenticate ingestion.
	LookupDevice(ctx context.Context, id string) (*models.Device, error)
}

type TelemetryStore interface {
	// InsertTelemetry writes rows and refreshes the device's last_seen and
	// last_ip_address in one transaction.
	InsertTelemetry(ctx context.Context, deviceID string, rows []models.DeviceData, seenAt time.Time, remoteIP string) error
	QueryDeviceData(ctx context.Context, q TelemetryQuery) ([]models.DeviceData, error)
	QueryChannelData(ctx context.Context, q ChannelTelemetryQuery) ([]models.DeviceData, error)
}

type AlertStore interface {
	ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error)
	GetAlert(ctx context.Context, tenantID, id string) (*models.Alert, error)
	CreateAlert(ctx context.Context, a *models.Alert) error
	UpdateAlert(ctx context.Context, tenantID, id string, in models.AlertUpdate) (*models.Alert, error)
	DeleteAlert(ctx context.Context, tenantID, id string) error
}

type DeviceTypeStore interface {
	ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error)
	GetDeviceType(ctx context.Context, id string) (*models.DeviceType, error)
	SeedDeviceTypes(ctx context.Context) error
}

// Store is everything the service needs from persistence.
type Store interface {
	ChannelStore
	DeviceStore
	TelemetryStore
	AlertStore
	DeviceTypeStore

	Ping(ctx context.Context) error
	Close() error
}

var _ Store = (*DB)(nil)
