package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/vesaa/iotlinker/internal/models"
)

// ListAlerts returns the tenant's alerts, newest first.
func (s *DB) ListAlerts(ctx context.Context, f AlertFilter) ([]models.Alert, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", f.TenantID)
	if f.ChannelID != "" {
		q = q.Where("channel_id = ?", f.ChannelID)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	alerts := []models.Alert{}
	if err := q.Order("created_at DESC").Order("id").Find(&alerts).Error; err != nil {
		return nil, fmt.Errorf("listing alerts: %w", err)
	}
	return alerts, nil
}

func (s *DB) GetAlert(ctx context.Context, tenantID, id string) (*models.Alert, error) {
	var a models.Alert
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Take(&a).Error; err != nil {
		return nil, notFoundOr(err, "alert")
	}
	return &a, nil
}

// CreateAlert inserts a after checking that its channel belongs to the tenant.
func (s *DB) CreateAlert(ctx context.Context, a *models.Alert) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := channelInTenant(tx, a.TenantID, a.ChannelID); err != nil {
			return err
		}
		if err := tx.Create(a).Error; err != nil {
			return fmt.Errorf("creating alert: %w", err)
		}
		return nil
	})
}

func (s *DB) UpdateAlert(ctx context.Context, tenantID, id string, in models.AlertUpdate) (*models.Alert, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Alert{}).Where("id = ? AND tenant_id = ?", id, tenantID).Count(&n).Error; err != nil {
			return fmt.Errorf("loading alert: %w", err)
		}
		if n == 0 {
			return notFound("alert")
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
		if err := tx.Model(&models.Alert{}).Where("id = ? AND tenant_id = ?", id, tenantID).Updates(changes).Error; err != nil {
			return fmt.Errorf("updating alert: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetAlert(ctx, tenantID, id)
}

func (s *DB) DeleteAlert(ctx context.Context, tenantID, id string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Alert{})
	if res.Error != nil {
		return fmt.Errorf("deleting alert: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound("alert")
	}
	return nil
}
