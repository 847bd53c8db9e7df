package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/iotlinker/internal/models"
)

func rowsAt(tenant, deviceID string, ts time.Time, metrics map[string]float64) []models.DeviceData {
	var rows []models.DeviceData
	for name, v := range metrics {
		rows = append(rows, models.DeviceData{
			TenantID: tenant, DeviceID: deviceID, MetricName: name, Value: v, QualityScore: 100, Time: ts,
		})
	}
	return rows
}

func TestInsertTelemetry(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	ch := mustChannel(t, s, tenant, "A")
	d := mustDevice(t, s, tenant, ch.ID, "dev", models.DeviceStatusOnline)

	ts := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertTelemetry(ctx, d.ID, rowsAt(tenant, d.ID, ts, map[string]float64{"temperature": 22.5, "humidity": 60}), ts, "10.0.0.7"))

	got, err := s.GetDevice(ctx, tenant, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastSeen)
	assert.True(t, got.LastSeen.Equal(ts))
	require.NotNil(t, got.LastIPAddress)
	assert.Equal(t, "10.0.0.7", *got.LastIPAddress)
	assert.Equal(t, models.DeviceStatusOnline, got.Status, "telemetry never changes status")

	rows, err := s.QueryDeviceData(ctx, TelemetryQuery{TenantID: tenant, DeviceID: d.ID, Limit: 100})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.True(t, r.Time.Equal(ts))
	}

	// an empty batch still refreshes last_seen
	later := ts.Add(time.Minute)
	require.NoError(t, s.InsertTelemetry(ctx, d.ID, nil, later, ""))
	got, err = s.GetDevice(ctx, tenant, d.ID)
	require.NoError(t, err)
	assert.True(t, got.LastSeen.Equal(later))
	assert.Equal(t, "10.0.0.7", *got.LastIPAddress)
}

func TestInsertTelemetryIsAtomic(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	ghost := uuid.NewString()

	ts := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	err := s.InsertTelemetry(ctx, ghost, rowsAt(tenant, ghost, ts, map[string]float64{"a": 1, "b": 2, "c": 3}), ts, "")
	require.ErrorIs(t, err, ErrNotFound)

	var n int64
	require.NoError(t, s.db.Model(&models.DeviceData{}).Count(&n).Error)
	assert.Zero(t, n, "rows of a failed batch must be rolled back")
}

func TestQueryDeviceData(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	ch := mustChannel(t, s, tenant, "A")
	d := mustDevice(t, s, tenant, ch.ID, "dev", models.DeviceStatusOnline)

	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.InsertTelemetry(ctx, d.ID, rowsAt(tenant, d.ID, ts, map[string]float64{"temperature": float64(20 + i), "humidity": 50}), ts, ""))
	}

	start, end := base.Add(time.Hour), base.Add(3*time.Hour)
	tests := []struct {
		name  string
		q     TelemetryQuery
		count int
		first float64
	}{
		{"all", TelemetryQuery{Limit: 100}, 10, 0},
		{"metric", TelemetryQuery{MetricName: "temperature", Limit: 100}, 5, 24},
		{"window", TelemetryQuery{MetricName: "temperature", Start: &start, End: &end, Limit: 100}, 3, 23},
		{"limit", TelemetryQuery{MetricName: "temperature", Limit: 2}, 2, 24},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.q
			q.TenantID, q.DeviceID = tenant, d.ID
			rows, err := s.QueryDeviceData(ctx, q)
			require.NoError(t, err)
			require.Len(t, rows, tt.count)
			if tt.first != 0 {
				assert.Equal(t, tt.first, rows[0].Value, "newest first")
			}
		})
	}

	_, err := s.QueryDeviceData(ctx, TelemetryQuery{TenantID: uuid.NewString(), DeviceID: d.ID, Limit: 10})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQueryChannelData(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	ch := mustChannel(t, s, tenant, "A")
	other := mustChannel(t, s, tenant, "B")
	d1 := mustDevice(t, s, tenant, ch.ID, "d1", models.DeviceStatusOnline)
	d2 := mustDevice(t, s, tenant, ch.ID, "d2", models.DeviceStatusOnline)
	d3 := mustDevice(t, s, tenant, other.ID, "d3", models.DeviceStatusOnline)

	base := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.InsertTelemetry(ctx, d2.ID, rowsAt(tenant, d2.ID, base.Add(time.Hour), map[string]float64{"v": 2}), base, ""))
	require.NoError(t, s.InsertTelemetry(ctx, d1.ID, rowsAt(tenant, d1.ID, base, map[string]float64{"v": 1}), base, ""))
	require.NoError(t, s.InsertTelemetry(ctx, d3.ID, rowsAt(tenant, d3.ID, base, map[string]float64{"v": 3}), base, ""))

	rows, err := s.QueryChannelData(ctx, ChannelTelemetryQuery{TenantID: tenant, ChannelID: ch.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, d1.ID, rows[0].DeviceID, "oldest first")
	assert.Equal(t, d2.ID, rows[1].DeviceID)

	start := base.Add(30 * time.Minute)
	rows, err = s.QueryChannelData(ctx, ChannelTelemetryQuery{TenantID: tenant, ChannelID: ch.ID, Start: &start})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2.0, rows[0].Value)

	_, err = s.QueryChannelData(ctx, ChannelTelemetryQuery{TenantID: uuid.NewString(), ChannelID: ch.ID})
	require.ErrorIs(t, err, ErrNotFound)
}
