package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DeviceType is a tenant-independent catalog entry describing a class of device.
type DeviceType struct {
	ID                   string            `gorm:"type:uuid;primaryKey" json:"id"`
	Name                 string            `gorm:"size:100;not null;uniqueIndex" json:"name"`
	Description          *string           `gorm:"type:text" json:"description"`
	Icon                 *string           `gorm:"size:50" json:"icon"`
	DefaultConfiguration datatypes.JSONMap `json:"default_configuration"`
	SensorSchema         datatypes.JSONMap `json:"sensor_schema"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

func (DeviceType) TableName() string { return "device_types" }

func (t *DeviceType) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.DefaultConfiguration == nil {
		t.DefaultConfiguration = datatypes.JSONMap{}
	}
	if t.SensorSchema == nil {
		t.SensorSchema = datatypes.JSONMap{}
	}
	return nil
}
