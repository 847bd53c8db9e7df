package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/vesaa/iotlinker/internal/models"
)

func TestCreateDeviceChecksChannel(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	foreign := mustChannel(t, s, uuid.NewString(), "Foreign")

	for _, channelID := range []string{uuid.NewString(), foreign.ID} {
		err := s.CreateDevice(ctx, &models.Device{
			TenantID: tenant, ChannelID: channelID, Name: "x", DeviceKey: "dk_" + uuid.NewString(), SecretHash: "h", IsActive: true,
		})
		require.ErrorIs(t, err, ErrNotFound)
	}
}

func TestCreateDeviceDefaults(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.SeedDeviceTypes(ctx))
	types, err := s.ListDeviceTypes(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, types)
	dt := types[0]

	tenant := uuid.NewString()
	ch := mustChannel(t, s, tenant, "Lab")

	d := &models.Device{
		TenantID: tenant, ChannelID: ch.ID, DeviceTypeID: &dt.ID, Name: "probe",
		DeviceKey: "dk_" + uuid.NewString(), SecretHash: "h", IsActive: true,
	}
	require.NoError(t, s.CreateDevice(ctx, d))

	got, err := s.GetDevice(ctx, tenant, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeviceStatusOffline, got.Status)
	assert.True(t, got.IsActive)
	assert.Equal(t, len(dt.DefaultConfiguration), len(got.Configuration))
	require.NotNil(t, got.ChannelName)
	assert.Equal(t, "Lab", *got.ChannelName)
	assert.NotNil(t, got.Metadata)

	// an explicit configuration wins over the type default
	d2 := &models.Device{
		TenantID: tenant, ChannelID: ch.ID, DeviceTypeID: &dt.ID, Name: "probe-2",
		DeviceKey: "dk_" + uuid.NewString(), SecretHash: "h", IsActive: true,
		Configuration: datatypes.JSONMap{"custom": true},
	}
	require.NoError(t, s.CreateDevice(ctx, d2))
	got, err = s.GetDevice(ctx, tenant, d2.ID)
	require.NoError(t, err)
	assert.Equal(t, true, got.Configuration["custom"])

	missing := uuid.NewString()
	err = s.CreateDevice(ctx, &models.Device{
		TenantID: tenant, ChannelID: ch.ID, DeviceTypeID: &missing, Name: "probe-3",
		DeviceKey: "dk_" + uuid.NewString(), SecretHash: "h", IsActive: true,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListDevicesFilters(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, s.SeedDeviceTypes(ctx))
	types, err := s.ListDeviceTypes(ctx)
	require.NoError(t, err)

	tenant := uuid.NewString()
	chA := mustChannel(t, s, tenant, "A")
	chB := mustChannel(t, s, tenant, "B")

	mustDevice(t, s, tenant, chA.ID, "Boiler Sensor", models.DeviceStatusOnline)
	mustDevice(t, s, tenant, chA.ID, "Door", models.DeviceStatusOffline)
	typed := mustDevice(t, s, tenant, chB.ID, "Meter", models.DeviceStatusOnline)
	_, err = s.UpdateDevice(ctx, tenant, typed.ID, models.DeviceUpdate{DeviceTypeID: &types[0].ID, Description: strPtr("basement boiler meter")})
	require.NoError(t, err)
	mustDevice(t, s, uuid.NewString(), mustChannel(t, s, uuid.NewString(), "X").ID, "Boiler Elsewhere", models.DeviceStatusOnline)

	page := models.Page{Number: 1, Size: 20}
	tests := []struct {
		name   string
		filter DeviceFilter
		want   []string
	}{
		{"tenant only", DeviceFilter{}, []string{"Boiler Sensor", "Door", "Meter"}},
		{"channel", DeviceFilter{ChannelID: chA.ID}, []string{"Boiler Sensor", "Door"}},
		{"status", DeviceFilter{Status: models.DeviceStatusOnline}, []string{"Boiler Sensor", "Meter"}},
		{"type", DeviceFilter{DeviceTypeID: types[0].ID}, []string{"Meter"}},
		{"search name or description", DeviceFilter{Search: "boiler"}, []string{"Boiler Sensor", "Meter"}},
		{"channel and status", DeviceFilter{ChannelID: chA.ID, Status: models.DeviceStatusOffline}, []string{"Door"}},
		{"all filters", DeviceFilter{ChannelID: chB.ID, Status: models.DeviceStatusOnline, DeviceTypeID: types[0].ID, Search: "met"}, []string{"Meter"}},
		{"nothing", DeviceFilter{ChannelID: chB.ID, Status: models.DeviceStatusError}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := tt.filter
			f.TenantID = tenant
			f.Page = page
			got, total, err := s.ListDevices(ctx, f)
			require.NoError(t, err)
			assert.EqualValues(t, len(tt.want), total)
			var names []string
			for _, d := range got {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}

	got, total, err := s.ListDevices(ctx, DeviceFilter{TenantID: tenant, Page: models.Page{Number: 2, Size: 2}})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, got, 1)
	assert.Equal(t, "Meter", got[0].Name)
}

func TestUpdateDevice(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	chA := mustChannel(t, s, tenant, "A")
	chB := mustChannel(t, s, tenant, "B")
	foreign := mustChannel(t, s, uuid.NewString(), "Foreign")
	d := mustDevice(t, s, tenant, chA.ID, "dev", models.DeviceStatusOffline)

	status := models.DeviceStatusMaintenance
	inactive := false
	lat := 52.5
	got, err := s.UpdateDevice(ctx, tenant, d.ID, models.DeviceUpdate{
		ChannelID: &chB.ID,
		Status:    &status,
		IsActive:  &inactive,
		Location:  &models.Location{Latitude: &lat},
	})
	require.NoError(t, err)
	assert.Equal(t, chB.ID, got.ChannelID)
	assert.Equal(t, models.DeviceStatusMaintenance, got.Status)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.Location.Latitude)
	assert.Equal(t, 52.5, *got.Location.Latitude)
	assert.Equal(t, "dev", got.Name)

	_, err = s.UpdateDevice(ctx, tenant, d.ID, models.DeviceUpdate{ChannelID: &foreign.ID})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.UpdateDevice(ctx, uuid.NewString(), d.ID, models.DeviceUpdate{Name: strPtr("x")})
	require.ErrorIs(t, err, ErrNotFound)

	same, err := s.UpdateDevice(ctx, tenant, d.ID, models.DeviceUpdate{})
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(same.UpdatedAt))
}

func TestDeleteDeviceRemovesTelemetry(t *testing.T) {
	s := newTestDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	ch := mustChannel(t, s, tenant, "A")
	d := mustDevice(t, s, tenant, ch.ID, "dev", models.DeviceStatusOnline)
	keep := mustDevice(t, s, tenant, ch.ID, "keep", models.DeviceStatusOnline)

	now := time.Now().UTC().Truncate(time.Second)
	for _, dev := range []*models.Device{d, keep} {
		require.NoError(t, s.InsertTelemetry(ctx, dev.ID, []models.DeviceData{
			{TenantID: tenant, DeviceID: dev.ID, MetricName: "t", Value: 1, QualityScore: 100, Time: now},
		}, now, ""))
	}

	require.NoError(t, s.DeleteDevice(ctx, tenant, d.ID))
	_, err := s.GetDevice(ctx, tenant, d.ID)
	require.ErrorIs(t, err, ErrNotFound)

	var n int64
	require.NoError(t, s.db.Model(&models.DeviceData{}).Where("device_id = ?", d.ID).Count(&n).Error)
	assert.Zero(t, n)
	require.NoError(t, s.db.Model(&models.DeviceData{}).Where("device_id = ?", keep.ID).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	require.ErrorIs(t, s.DeleteDevice(ctx, tenant, d.ID), ErrNotFound)
}
