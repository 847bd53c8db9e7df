package store

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/iotlinker/internal/models"
)

// newTestDB returns a migrated store backed by a private in-memory SQLite database.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	s := New(gdb, zap.NewNop())
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustChannel(t *testing.T, s *DB, tenantID, name string) *models.Channel {
	t.Helper()
	ch := &models.Channel{TenantID: tenantID, Name: name}
	require.NoError(t, s.CreateChannel(context.Background(), ch))
	return ch
}

func mustDevice(t *testing.T, s *DB, tenantID, channelID, name string, status models.DeviceStatus) *models.Device {
	t.Helper()
	d := &models.Device{
		TenantID:   tenantID,
		ChannelID:  channelID,
		Name:       name,
		DeviceKey:  "dk_" + uuid.NewString(),
		SecretHash: "hash",
		Status:     status,
		IsActive:   true,
	}
	require.NoError(t, s.CreateDevice(context.Background(), d))
	return d
}

func strPtr(s string) *string { return &s }
