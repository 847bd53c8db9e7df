// Package ingest accepts telemetry batches from devices, authenticates them
// and persists each batch atomically.
package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/vesaa/iotlinker/internal/events"
	"github.com/vesaa/iotlinker/internal/models"
	"github.com/vesaa/iotlinker/internal/store"
)

const defaultQualityScore = 100

// Store is the persistence the ingestion path needs.
type Store interface {
	LookupDevice(ctx context.Context, id string) (*models.Device, error)
	GetChannel(ctx context.Context, tenantID, id string) (*models.Channel, error)
	InsertTelemetry(ctx context.Context, deviceID string, rows []models.DeviceData, seenAt time.Time, remoteIP string) error
}

// Service runs the ingestion steps shared by the HTTP and MQTT transports.
type Service struct {
	store     Store
	publisher events.Publisher
	validate  *validator.Validate
	log       *zap.Logger
	now       func() time.Time
}

// NewService wires the ingestion path. publisher may be nil.
func NewService(st Store, publisher events.Publisher, log *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	v := validator.New()
	v.SetTagName("binding")
	v.RegisterTagNameFunc(store.JSONFieldName)
	return &Service{
		store:     st,
		publisher: publisher,
		validate:  v,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ingest validates, authenticates and stores one batch for the device
// addressed by deviceID. Every point becomes one row; all rows share the
// batch timestamp. Nothing is written unless the device authenticates, and
// either the whole batch is stored or none of it is.
func (s *Service) Ingest(ctx context.Context, deviceID string, batch models.DeviceDataBatch, remoteIP string) (*models.IngestResult, error) {
	if !validDeviceID(deviceID) {
		return nil, store.InvalidCredentials()
	}
	if err := s.validate.Struct(batch); err != nil {
		return nil, store.FromValidator(err)
	}
	if batch.DeviceID != deviceID {
		return nil, store.Invalid("device_id", "does not match the device in the request path")
	}

	device, err := s.authenticate(ctx, deviceID, batch.DeviceKey)
	if err != nil {
		return nil, err
	}

	ts := s.now()
	if batch.Timestamp != nil {
		ts = batch.Timestamp.UTC()
	}

	rows := make([]models.DeviceData, 0, len(batch.Data))
	for _, p := range batch.Data {
		quality := defaultQualityScore
		if p.QualityScore != nil {
			quality = *p.QualityScore
		}
		meta := datatypes.JSONMap(p.Metadata)
		if meta == nil {
			meta = datatypes.JSONMap{}
		}
		rows = append(rows, models.DeviceData{
			TenantID:     device.TenantID,
			DeviceID:     device.ID,
			MetricName:   p.MetricName,
			Value:        *p.Value,
			Unit:         p.Unit,
			QualityScore: quality,
			Metadata:     meta,
			Time:         ts,
		})
	}

	if err := s.store.InsertTelemetry(ctx, device.ID, rows, s.now(), remoteIP); err != nil {
		return nil, err
	}

	s.publish(ctx, device, ts, rows)

	return &models.IngestResult{DeviceID: device.ID, Accepted: len(rows), Timestamp: ts}, nil
}

// validDeviceID accepts only the canonical 36 character UUID form, so a
// malformed id never reaches the uuid column.
func validDeviceID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// authenticate returns the same error for an unknown, inactive or
// mismatched device so callers cannot probe which one it was.
func (s *Service) authenticate(ctx context.Context, deviceID, key string) (*models.Device, error) {
	device, err := s.store.LookupDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.log.Warn("ingest rejected: unknown device", zap.String("device_id", deviceID))
			return nil, store.InvalidCredentials()
		}
		return nil, err
	}
	if !keysMatch(device.DeviceKey, key) {
		s.log.Warn("ingest rejected: key mismatch", zap.String("device_id", deviceID))
		return nil, store.InvalidCredentials()
	}
	if !device.IsActive {
		s.log.Warn("ingest rejected: device inactive", zap.String("device_id", deviceID))
		return nil, store.InvalidCredentials()
	}
	return device, nil
}

// publish hands the committed batch to the event publisher. Failures are
// logged only; the batch is already stored.
func (s *Service) publish(ctx context.Context, device *models.Device, ts time.Time, rows []models.DeviceData) {
	ev := events.TelemetryEvent{
		TenantID:  device.TenantID,
		ChannelID: device.ChannelID,
		DeviceID:  device.ID,
		Timestamp: ts,
		Points:    make([]events.Point, 0, len(rows)),
	}
	for _, r := range rows {
		ev.Points = append(ev.Points, events.Point{
			MetricName:   r.MetricName,
			Value:        r.Value,
			Unit:         r.Unit,
			QualityScore: r.QualityScore,
			Metadata:     r.Metadata,
		})
	}
	if ch, err := s.store.GetChannel(ctx, device.TenantID, device.ChannelID); err == nil {
		ev.WebhookURL = ch.WebhookURL()
	} else {
		s.log.Warn("loading channel for event", zap.String("channel_id", device.ChannelID), zap.Error(err))
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("publishing telemetry event", zap.String("device_id", device.ID), zap.Error(err))
	}
}
