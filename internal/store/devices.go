package store

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/vesaa/iotlinker/internal/models"
)

func devicesWithChannel(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.Device{}).
		Select("devices.*, channels.name AS channel_name").
		Joins("LEFT JOIN channels ON channels.id = devices.channel_id")
}

// ListDevices returns one page of the tenant's devices ordered by name.
func (s *DB) ListDevices(ctx context.Context, f DeviceFilter) ([]models.Device, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Device{}).Where("devices.tenant_id = ?", f.TenantID)
	if f.ChannelID != "" {
		q = q.Where("devices.channel_id = ?", f.ChannelID)
	}
	if f.Status != "" {
		q = q.Where("devices.status = ?", f.Status)
	}
	if f.DeviceTypeID != "" {
		q = q.Where("devices.device_type_id = ?", f.DeviceTypeID)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		q = q.Where(`(LOWER(devices.name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(devices.description, '')) LIKE ? ESCAPE '\')`, p, p)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting devices: %w", err)
	}

	devices := []models.Device{}
	if f.Page.Beyond(total) {
		return devices, total, nil
	}
	err := devicesWithChannel(q).
		Order("devices.name").
		Order("devices.id").
		Limit(f.Page.Size).
		Offset(f.Page.Offset()).
		Find(&devices).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing devices: %w", err)
	}
	return devices, total, nil
}

// GetDevice loads one device with its channel name.
func (s *DB) GetDevice(ctx context.Context, tenantID, id string) (*models.Device, error) {
	var d models.Device
	err := devicesWithChannel(s.db.WithContext(ctx)).
		Where("devices.id = ? AND devices.tenant_id = ?", id, tenantID).
		Take(&d).Error
	if err != nil {
		return nil, notFoundOr(err, "device")
	}
	return &d, nil
}

// LookupDevice loads a device by id regardless of tenant.
func (s *DB) LookupDevice(ctx context.Context, id string) (*models.Device, error) {
	var d models.Device
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&d).Error; err != nil {
		return nil, notFoundOr(err, "device")
	}
	return &d, nil
}

// CreateDevice inserts d after checking that its channel belongs to the same
// tenant. Without an explicit configuration the device type's default is copied.
func (s *DB) CreateDevice(ctx context.Context, d *models.Device) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := channelInTenant(tx, d.TenantID, d.ChannelID); err != nil {
			return err
		}
		if d.DeviceTypeID != nil {
			var dt models.DeviceType
			if err := tx.Where("id = ?", *d.DeviceTypeID).Take(&dt).Error; err != nil {
				return notFoundOr(err, "device type")
			}
			if d.Configuration == nil {
				d.Configuration = datatypes.JSONMap{}
				for k, v := range dt.DefaultConfiguration {
					d.Configuration[k] = v
				}
			}
		}
		if err := tx.Create(d).Error; err != nil {
			if isUniqueViolation(err) {
				return conflictf("device key already in use")
			}
			return fmt.Errorf("creating device: %w", err)
		}
		return nil
	})
}

// UpdateDevice applies the supplied fields only. A new channel must belong to
// the device's tenant.
func (s *DB) UpdateDevice(ctx context.Context, tenantID, id string, in models.DeviceUpdate) (*models.Device, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Device{}).Where("id = ? AND tenant_id = ?", id, tenantID).Count(&n).Error; err != nil {
			return fmt.Errorf("loading device: %w", err)
		}
		if n == 0 {
			return notFound("device")
		}
		changes := in.Changes()
		if len(changes) == 0 {
			return nil
		}
		if in.ChannelID != nil {
			if err := channelInTenant(tx, tenantID, *in.ChannelID); err != nil {
				return err
			}
		}
		if in.DeviceTypeID != nil {
			var dt int64
			if err := tx.Model(&models.DeviceType{}).Where("id = ?", *in.DeviceTypeID).Count(&dt).Error; err != nil {
				return fmt.Errorf("loading device type: %w", err)
			}
			if dt == 0 {
				return notFound("device type")
			}
		}
		if err := tx.Model(&models.Device{}).Where("id = ? AND tenant_id = ?", id, tenantID).Updates(changes).Error; err != nil {
			return fmt.Errorf("updating device: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetDevice(ctx, tenantID, id)
}

// DeleteDevice removes a device together with its telemetry.
func (s *DB) DeleteDevice(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Device{}).Where("id = ? AND tenant_id = ?", id, tenantID).Count(&n).Error; err != nil {
			return fmt.Errorf("loading device: %w", err)
		}
		if n == 0 {
			return notFound("device")
		}
		if err := tx.Where("device_id = ?", id).Delete(&models.DeviceData{}).Error; err != nil {
			return fmt.Errorf("deleting device data: %w", err)
		}
		if err := tx.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Device{}).Error; err != nil {
			return fmt.Errorf("deleting device: %w", err)
		}
		return nil
	})
}

func channelInTenant(tx *gorm.DB, tenantID, channelID string) error {
	var n int64
	if err := tx.Model(&models.Channel{}).Where("id = ? AND tenant_id = ?", channelID, tenantID).Count(&n).Error; err != nil {
		return fmt.Errorf("loading channel: %w", err)
	}
	if n == 0 {
		return notFound("channel")
	}
	return nil
}
