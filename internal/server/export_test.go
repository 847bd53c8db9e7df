package server

import (
	"bytes"
	"encoding/csv"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vesaa/iotlinker/internal/config"
)

func TestExportChannel(t *testing.T) {
	env := newTestEnv(t)
	tenant := uuid.NewString()
	ch := env.createChannel(t, tenant, "North Farm")["id"].(string)
	creds := env.createDevice(t, tenant, ch, "Sensor")
	w := env.ingest(t, creds["device_id"].(string), creds["device_key"].(string),
		point("temperature", 21.5), point("humidity", 40))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	path := "/api/v1/channels/" + ch + "/export?tenant_id=" + tenant

	t.Run("csv by default", func(t *testing.T) {
		w := env.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
		disp := w.Header().Get("Content-Disposition")
		assert.True(t, strings.HasPrefix(disp, `attachment; filename="North_Farm_`), disp)
		assert.True(t, strings.HasSuffix(disp, `.csv"`), disp)

		records, err := csv.NewReader(bytes.NewReader(w.Body.Bytes())).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "time", records[0][0])
	})

	t.Run("xlsx", func(t *testing.T) {
		w := env.do(t, http.MethodGet, path+"&format=xlsx", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows("Telemetry")
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("json", func(t *testing.T) {
		w := env.do(t, http.MethodGet, path+"&format=json", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]map[string]any](t, w), 2)
	})

	t.Run("unknown format", func(t *testing.T) {
		w := env.do(t, http.MethodGet, path+"&format=pdf", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown channel", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/v1/channels/"+uuid.NewString()+"/export?tenant_id="+tenant, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExportRefusesOversizedWindow(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.ExportMaxRows = 2 })
	tenant := uuid.NewString()
	ch := env.createChannel(t, tenant, "Farm")["id"].(string)
	creds := env.createDevice(t, tenant, ch, "Sensor")
	id, key := creds["device_id"].(string), creds["device_key"].(string)

	early := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	for _, ts := range []time.Time{early, late} {
		w := env.do(t, http.MethodPost, "/api/v1/devices/"+id+"/data", map[string]any{
			"device_id":  id,
			"device_key": key,
			"timestamp":  ts.Format(time.RFC3339),
			"data":       []map[string]any{point("temperature", 20), point("humidity", 40)},
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	path := "/api/v1/channels/" + ch + "/export?format=json&tenant_id=" + tenant

	w := env.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	body := decode[errorBody](t, w)
	assert.Equal(t, "validation_error", body.Code)
	require.Len(t, body.Details, 1)
	assert.Equal(t, "start_time", body.Details[0].Field)
	assert.Contains(t, body.Details[0].Message, "exceeds 2 rows")

	w = env.do(t, http.MethodGet, path+"&start_time="+late.Format(time.RFC3339), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Len(t, decode[[]map[string]any](t, w), 2)
}
