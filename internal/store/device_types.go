package store

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/vesaa/iotlinker/internal/models"
)

func (s *DB) ListDeviceTypes(ctx context.Context) ([]models.DeviceType, error) {
	types := []models.DeviceType{}
	if err := s.db.WithContext(ctx).Order("name").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("listing device types: %w", err)
	}
	return types, nil
}

func (s *DB) GetDeviceType(ctx context.Context, id string) (*models.DeviceType, error) {
	var dt models.DeviceType
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&dt).Error; err != nil {
		return nil, notFoundOr(err, "device type")
	}
	return &dt, nil
}

// SeedDeviceTypes fills an empty catalog with the built-in device types.
func (s *DB) SeedDeviceTypes(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&models.DeviceType{}).Count(&n).Error; err != nil {
		return fmt.Errorf("counting device types: %w", err)
	}
	if n > 0 {
		return nil
	}
	types := defaultDeviceTypes()
	if err := db.Create(&types).Error; err != nil {
		return fmt.Errorf("seeding device types: %w", err)
	}
	s.log.Info("device type catalog seeded", zap.Int("types", len(types)))
	return nil
}

func defaultDeviceTypes() []models.DeviceType {
	str := func(s string) *string { return &s }
	metric := func(unit string) map[string]any { return map[string]any{"type": "number", "unit": unit} }
	return []models.DeviceType{
		{
			Name:                 "Temperature Sensor",
			Description:          str("Ambient or process temperature probe"),
			Icon:                 str("thermometer"),
			DefaultConfiguration: datatypes.JSONMap{"sampling_interval": 60},
			SensorSchema:         datatypes.JSONMap{"temperature": metric("°C")},
		},
		{
			Name:                 "Humidity Sensor",
			Description:          str("Relative humidity sensor"),
			Icon:                 str("droplet"),
			DefaultConfiguration: datatypes.JSONMap{"sampling_interval": 60},
			SensorSchema:         datatypes.JSONMap{"humidity": metric("%")},
		},
		{
			Name:                 "Environmental Monitor",
			Description:          str("Combined temperature, humidity and pressure station"),
			Icon:                 str("cloud"),
			DefaultConfiguration: datatypes.JSONMap{"sampling_interval": 300},
			SensorSchema: datatypes.JSONMap{
				"temperature": metric("°C"),
				"humidity":    metric("%"),
				"pressure":    metric("hPa"),
			},
		},
		{
			Name:                 "Smart Meter",
			Description:          str("Electrical energy meter"),
			Icon:                 str("zap"),
			DefaultConfiguration: datatypes.JSONMap{"sampling_interval": 900},
			SensorSchema: datatypes.JSONMap{
				"power":  metric("W"),
				"energy": metric("kWh"),
			},
		},
		{
			Name:                 "Gateway",
			Description:          str("Edge gateway forwarding data from local devices"),
			Icon:                 str("router"),
			DefaultConfiguration: datatypes.JSONMap{"heartbeat_interval": 30},
			SensorSchema:         datatypes.JSONMap{},
		},
	}
}
