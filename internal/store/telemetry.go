package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/vesaa/iotlinker/internal/models"
)

// insertBatchSize bounds the rows per INSERT statement so large batches stay
// below driver parameter limits. All chunks share one transaction.
const insertBatchSize = 500

// InsertTelemetry persists a batch atomically: either every row is written
// and the device's last_seen/last_ip_address refreshed, or nothing is.
func (s *DB) InsertTelemetry(ctx context.Context, deviceID string, rows []models.DeviceData, seenAt time.Time, remoteIP string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
				return fmt.Errorf("inserting device data: %w", err)
			}
		}
		seen := map[string]any{"last_seen": seenAt.UTC()}
		if remoteIP != "" {
			seen["last_ip_address"] = remoteIP
		}
		res := tx.Model(&models.Device{}).Where("id = ?", deviceID).UpdateColumns(seen)
		if res.Error != nil {
			return fmt.Errorf("updating device last seen: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFound("device")
		}
		return nil
	})
}

// QueryDeviceData returns readings of one tenant device, newest first.
func (s *DB) QueryDeviceData(ctx context.Context, q TelemetryQuery) ([]models.DeviceData, error) {
	db := s.db.WithContext(ctx)

	var n int64
	if err := db.Model(&models.Device{}).Where("id = ? AND tenant_id = ?", q.DeviceID, q.TenantID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("loading device: %w", err)
	}
	if n == 0 {
		return nil, notFound("device")
	}

	tx := db.Where("device_id = ?", q.DeviceID)
	if q.MetricName != "" {
		tx = tx.Where("metric_name = ?", q.MetricName)
	}
	if start := utc(q.Start); start != nil {
		tx = tx.Where("time >= ?", *start)
	}
	if end := utc(q.End); end != nil {
		tx = tx.Where("time <= ?", *end)
	}
	rows := []models.DeviceData{}
	if err := tx.Order("time DESC").Order("id DESC").Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying device data: %w", err)
	}
	return rows, nil
}

// QueryChannelData returns readings of every device currently in the
// channel, oldest first.
func (s *DB) QueryChannelData(ctx context.Context, q ChannelTelemetryQuery) ([]models.DeviceData, error) {
	db := s.db.WithContext(ctx)
	if err := channelInTenant(db, q.TenantID, q.ChannelID); err != nil {
		return nil, err
	}

	tx := db.Model(&models.DeviceData{}).
		Select("device_data.*").
		Joins("JOIN devices ON devices.id = device_data.device_id").
		Where("devices.channel_id = ? AND devices.tenant_id = ?", q.ChannelID, q.TenantID)
	if start := utc(q.Start); start != nil {
		tx = tx.Where("device_data.time >= ?", *start)
	}
	if end := utc(q.End); end != nil {
		tx = tx.Where("device_data.time <= ?", *end)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	rows := []models.DeviceData{}
	if err := tx.Order("device_data.time").Order("device_data.id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying channel data: %w", err)
	}
	return rows, nil
}
