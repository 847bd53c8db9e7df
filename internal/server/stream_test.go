package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/iotlinker/internal/events"
)

func TestChannelStream(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.engine)
	defer ts.Close()

	tenant := uuid.NewString()
	ch := env.createChannel(t, tenant, "Farm")["id"].(string)
	creds := env.createDevice(t, tenant, ch, "Sensor")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/channels/" + ch + "/stream?tenant_id=" + tenant
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	assert.Equal(t, 1, env.hub.Subscribers(ch))

	w := env.ingest(t, creds["device_id"].(string), creds["device_key"].(string),
		point("temperature", 21.5), point("humidity", 40))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev events.TelemetryEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ch, ev.ChannelID)
	assert.Equal(t, tenant, ev.TenantID)
	assert.Equal(t, creds["device_id"], ev.DeviceID)
	require.Len(t, ev.Points, 2)
	assert.Equal(t, "temperature", ev.Points[0].MetricName)
	assert.Equal(t, 21.5, ev.Points[0].Value)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return env.hub.Subscribers(ch) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestChannelStreamUnknownChannel(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.engine)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/channels/" + uuid.NewString() + "/stream?tenant_id=" + uuid.NewString()
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
