package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/iotlinker/internal/config"
	"github.com/vesaa/iotlinker/internal/events"
	"github.com/vesaa/iotlinker/internal/ingest"
	"github.com/vesaa/iotlinker/internal/insights"
	"github.com/vesaa/iotlinker/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	cfg    *config.Config
	store  *store.DB
	hub    *events.Hub
	server *Server
	engine *gin.Engine
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:                  "IoTLinker Enterprise API",
		DBDriver:                 "sqlite",
		DefaultPageSize:          20,
		MaxPageSize:              100,
		ExportMaxRows:            100000,
		CORSOrigins:              []string{"*"},
		MQTTPublicEndpoint:       "mqtt://localhost:1883",
		JWTSecret:                "test-secret",
		AdminUser:                "admin",
		AdminPass:                "s3cret",
		TokenTTL:                 time.Hour,
		InsightsAnomalyThreshold: 100,
	}
}

// newTestEnv builds the full HTTP stack over a private in-memory SQLite database.
// The hub is the only event publisher, so stream subscribers see batches
// before the ingest request returns.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}

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

	log := zap.NewNop()
	st := store.New(gdb, log)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.SeedDeviceTypes(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	hub := events.NewHub(16)
	ing := ingest.NewService(st, hub, log)
	gen := insights.NewGenerator(insights.Options{AnomalyThreshold: cfg.InsightsAnomalyThreshold}, log)
	srv := New(cfg, st, ing, hub, gen, log)

	return &testEnv{cfg: cfg, store: st, hub: hub, server: srv, engine: srv.Engine()}
}

// do sends a request with an optional JSON body and extra headers as
// alternating key/value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (e *testEnv) createChannel(t *testing.T, tenantID, name string) map[string]any {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/channels/", map[string]any{"tenant_id": tenantID, "name": name})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]any](t, w)
}

func (e *testEnv) createDevice(t *testing.T, tenantID, channelID, name string) map[string]any {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/devices/", map[string]any{
		"tenant_id":  tenantID,
		"channel_id": channelID,
		"name":       name,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]any](t, w)
}

func (e *testEnv) ingest(t *testing.T, deviceID, key string, points ...map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/v1/devices/"+deviceID+"/data", map[string]any{
		"device_id":  deviceID,
		"device_key": key,
		"data":       points,
	})
}

func point(metric string, value float64) map[string]any {
	return map[string]any{"metric_name": metric, "value": value}
}
