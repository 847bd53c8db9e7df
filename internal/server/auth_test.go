package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesaa/iotlinker/internal/config"
)

func withAuth(c *config.Config) { c.AuthEnabled = true }

func login(t *testing.T, env *testEnv, tenantID string) string {
	t.Helper()
	w := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"username":  "admin",
		"password":  "s3cret",
		"tenant_id": tenantID,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[map[string]any](t, w)
	assert.Equal(t, "Bearer", resp["type"])
	assert.EqualValues(t, 3600, resp["expires_in"])
	return resp["token"].(string)
}

func TestLoginDisabledWithoutAuth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]any{"username": "admin"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t, withAuth)
	w := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]any{
		"username":  "admin",
		"password":  "wrong",
		"tenant_id": uuid.NewString(),
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestManagementRequiresToken(t *testing.T) {
	env := newTestEnv(t, withAuth)
	tenant := uuid.NewString()

	w := env.do(t, http.MethodGet, "/api/v1/channels/?tenant_id="+tenant, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/channels/?tenant_id="+tenant, nil, "Authorization", "Token abc")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/channels/?tenant_id="+tenant, nil, "Authorization", "Bearer not.a.jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Public endpoints stay open.
	w = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTokenIsBoundToTenant(t *testing.T) {
	env := newTestEnv(t, withAuth)
	tenant, other := uuid.NewString(), uuid.NewString()
	bearer := "Bearer " + login(t, env, tenant)

	w := env.do(t, http.MethodPost, "/api/v1/channels/", map[string]any{"tenant_id": tenant, "name": "Farm"},
		"Authorization", bearer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/channels/?tenant_id="+tenant, nil, "Authorization", bearer)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/channels/?tenant_id="+other, nil, "Authorization", bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/channels/", map[string]any{"tenant_id": other, "name": "Farm"},
		"Authorization", bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/channels/?access_token="+bearer[len("Bearer "):]+"&tenant_id="+tenant, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	env := newTestEnv(t, withAuth, func(c *config.Config) { c.TokenTTL = -time.Minute })
	tenant := uuid.NewString()

	token, err := env.server.GenerateJWT("admin", tenant)
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/api/v1/channels/?tenant_id="+tenant, nil, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestBypassesManagementAuth(t *testing.T) {
	env := newTestEnv(t, withAuth)
	tenant := uuid.NewString()
	bearer := "Bearer " + login(t, env, tenant)

	w := env.do(t, http.MethodPost, "/api/v1/channels/", map[string]any{"tenant_id": tenant, "name": "Farm"},
		"Authorization", bearer)
	require.Equal(t, http.StatusCreated, w.Code)
	ch := decode[map[string]any](t, w)["id"].(string)

	w = env.do(t, http.MethodPost, "/api/v1/devices/", map[string]any{"tenant_id": tenant, "channel_id": ch, "name": "D"},
		"Authorization", bearer)
	require.Equal(t, http.StatusCreated, w.Code)
	creds := decode[map[string]any](t, w)

	w = env.ingest(t, creds["device_id"].(string), creds["device_key"].(string), point("temperature", 20))
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
