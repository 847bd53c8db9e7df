package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/iotlinker/internal/events"
	"github.com/vesaa/iotlinker/internal/ingest"
	"github.com/vesaa/iotlinker/internal/insights"
	"github.com/vesaa/iotlinker/internal/store"
)

func TestHealthReportsDatabaseDown(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer sqlDB.Close()

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	log := zap.NewNop()
	st := store.New(gdb, log)
	hub := events.NewHub(1)
	srv := New(testConfig(), st, ingest.NewService(st, hub, log), hub, insights.NewGenerator(insights.Options{}, log), log)

	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"unavailable"}`, w.Body.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}
