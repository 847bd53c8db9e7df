package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/vesaa/iotlinker/internal/models"
)

// channelColumns adds the per-channel device aggregates to every channel row.
const channelColumns = `channels.*,
	COUNT(devices.id) AS device_count,
	COALESCE(SUM(CASE WHEN devices.status = 'online' THEN 1 ELSE 0 END), 0) AS online_count`

func (s *DB) channelsWithCounts(tx *gorm.DB) *gorm.DB {
	return tx.Model(&models.Channel{}).
		Select(channelColumns).
		Joins("LEFT JOIN devices ON devices.channel_id = channels.id").
		Group("channels.id")
}

// ListChannels returns one page of the tenant's channels, newest first.
func (s *DB) ListChannels(ctx context.Context, f ChannelFilter) ([]models.Channel, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Channel{}).Where("channels.tenant_id = ?", f.TenantID)
	if f.Search != "" {
		p := likePattern(f.Search)
		q = q.Where(`(LOWER(channels.name) LIKE ? ESCAPE '\' OR LOWER(COALESCE(channels.description, '')) LIKE ? ESCAPE '\')`, p, p)
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting channels: %w", err)
	}

	channels := []models.Channel{}
	if f.Page.Beyond(total) {
		return channels, total, nil
	}
	err := s.channelsWithCounts(q).
		Order("channels.created_at DESC").
		Order("channels.id").
		Limit(f.Page.Size).
		Offset(f.Page.Offset()).
		Find(&channels).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing channels: %w", err)
	}
	return channels, total, nil
}

// GetChannel loads one channel with its device counts.
func (s *DB) GetChannel(ctx context.Context, tenantID, id string) (*models.Channel, error) {
	var ch models.Channel
	err := s.channelsWithCounts(s.db.WithContext(ctx)).
		Where("channels.id = ? AND channels.tenant_id = ?", id, tenantID).
		Take(&ch).Error
	if err != nil {
		return nil, notFoundOr(err, "channel")
	}
	return &ch, nil
}

// CreateChannel inserts ch. A name already used inside the tenant is a conflict.
func (s *DB) CreateChannel(ctx context.Context, ch *models.Channel) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureChannelNameFree(tx, ch.TenantID, ch.Name, ""); err != nil {
			return err
		}
		if err := tx.Create(ch).Error; err != nil {
			if isUniqueViolation(err) {
				return channelNameTaken(ch.Name)
			}
			return fmt.Errorf("creating channel: %w", err)
		}
		return nil
	})
}

// UpdateChannel applies the supplied fields only. With nothing supplied the
// current record is returned without a write.
func (s *DB) UpdateChannel(ctx context.Context, tenantID, id string, in models.ChannelUpdate) (*models.Channel, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.Channel
		if err := tx.Where("id = ? AND tenant_id = ?", id, tenantID).Take(&cur).Error; err != nil {
			return notFoundOr(err, "channel")
		}
		changes := in.Changes()
		if len(changes) == 0 {
			return nil
		}
		if in.Name != nil && *in.Name != cur.Name {
			if err := ensureChannelNameFree(tx, tenantID, *in.Name, id); err != nil {
				return err
			}
		}
		err := tx.Model(&models.Channel{}).Where("id = ? AND tenant_id = ?", id, tenantID).Updates(changes).Error
		if err != nil {
			if isUniqueViolation(err) {
				return channelNameTaken(*in.Name)
			}
			return fmt.Errorf("updating channel: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetChannel(ctx, tenantID, id)
}

// DeleteChannel removes a channel and its alerts. Its devices move to the
// tenant's Uncategorized channel, which is created on demand.
func (s *DB) DeleteChannel(ctx context.Context, tenantID, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ch models.Channel
		if err := tx.Where("id = ? AND tenant_id = ?", id, tenantID).Take(&ch).Error; err != nil {
			return notFoundOr(err, "channel")
		}

		var devices int64
		if err := tx.Model(&models.Device{}).Where("channel_id = ?", id).Count(&devices).Error; err != nil {
			return fmt.Errorf("counting channel devices: %w", err)
		}

		if devices > 0 {
			if ch.Name == models.UncategorizedChannelName {
				return conflictf("channel %q still holds %d device(s) and cannot be deleted", ch.Name, devices)
			}
			target, err := uncategorizedChannel(tx, tenantID)
			if err != nil {
				return err
			}
			err = tx.Model(&models.Device{}).
				Where("channel_id = ?", id).
				Updates(map[string]any{"channel_id": target.ID, "updated_at": tx.NowFunc()}).Error
			if err != nil {
				return fmt.Errorf("moving devices: %w", err)
			}
			s.log.Info("devices moved to uncategorized channel",
				zap.String("tenant_id", tenantID),
				zap.String("from_channel", id),
				zap.String("to_channel", target.ID),
				zap.Int64("devices", devices))
		}

		if err := tx.Where("channel_id = ?", id).Delete(&models.Alert{}).Error; err != nil {
			return fmt.Errorf("deleting channel alerts: %w", err)
		}
		if err := tx.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Channel{}).Error; err != nil {
			return fmt.Errorf("deleting channel: %w", err)
		}
		return nil
	})
}

// ListChannelDevices returns the channel's devices ordered by name.
func (s *DB) ListChannelDevices(ctx context.Context, tenantID, channelID string, status models.DeviceStatus) ([]models.Device, error) {
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.Channel{}).Where("id = ? AND tenant_id = ?", channelID, tenantID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("loading channel: %w", err)
	}
	if n == 0 {
		return nil, notFound("channel")
	}

	q := devicesWithChannel(db).Where("devices.channel_id = ? AND devices.tenant_id = ?", channelID, tenantID)
	if status != "" {
		q = q.Where("devices.status = ?", status)
	}
	devices := []models.Device{}
	if err := q.Order("devices.name").Order("devices.id").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("listing channel devices: %w", err)
	}
	return devices, nil
}

func ensureChannelNameFree(tx *gorm.DB, tenantID, name, exceptID string) error {
	q := tx.Model(&models.Channel{}).Where("tenant_id = ? AND name = ?", tenantID, name)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return fmt.Errorf("checking channel name: %w", err)
	}
	if n > 0 {
		return channelNameTaken(name)
	}
	return nil
}

func channelNameTaken(name string) error {
	return conflictf("channel with name %q already exists in this tenant", name)
}

func uncategorizedChannel(tx *gorm.DB, tenantID string) (*models.Channel, error) {
	var ch models.Channel
	err := tx.Where("tenant_id = ? AND name = ?", tenantID, models.UncategorizedChannelName).Take(&ch).Error
	if err == nil {
		return &ch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("loading uncategorized channel: %w", err)
	}
	desc := "Devices whose channel was deleted"
	ch = models.Channel{TenantID: tenantID, Name: models.UncategorizedChannelName, Description: &desc}
	if err := tx.Create(&ch).Error; err != nil {
		return nil, fmt.Errorf("creating uncategorized channel: %w", err)
	}
	return &ch, nil
}
