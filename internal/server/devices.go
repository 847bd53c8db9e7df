package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/iotlinker/internal/ingest"
	"github.com/vesaa/iotlinker/internal/models"
	"github.com/vesaa/iotlinker/internal/store"
)

// handleListDevices returns one page of the tenant's devices.
//
//	GET /api/v1/devices/?tenant_id=&channel_id=&status=&device_type_id=&search=&page=&page_size=
func (s *Server) handleListDevices(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	f := store.DeviceFilter{TenantID: tenantID, Search: c.Query("search")}
	var err error
	if f.ChannelID, err = optionalUUIDQuery(c, "channel_id"); err != nil {
		s.fail(c, err)
		return
	}
	if f.DeviceTypeID, err = optionalUUIDQuery(c, "device_type_id"); err != nil {
		s.fail(c, err)
		return
	}
	if f.Status, err = statusQuery(c); err != nil {
		s.fail(c, err)
		return
	}
	if f.Page, err = s.pageQuery(c); err != nil {
		s.fail(c, err)
		return
	}

	items, total, err := s.store.ListDevices(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.DeviceList{Devices: items, PageInfo: models.NewPageInfo(total, f.Page)})
}

// handleCreateDevice registers a device and returns its credentials. The
// secret is never retrievable again.
func (s *Server) handleCreateDevice(c *gin.Context) {
	var in models.DeviceCreate
	if !s.bindJSON(c, &in) {
		return
	}
	if !s.authorizeTenant(c, in.TenantID) {
		return
	}

	creds, err := ingest.NewCredentials()
	if err != nil {
		s.fail(c, err)
		return
	}
	d := in.Device()
	d.DeviceKey = creds.Key
	d.SecretHash = creds.SecretHash

	if err := s.store.CreateDevice(c.Request.Context(), d); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, models.DeviceCredentials{
		DeviceID:     d.ID,
		DeviceKey:    creds.Key,
		DeviceSecret: creds.Secret,
		MQTTEndpoint: s.cfg.MQTTPublicEndpoint,
	})
}

func (s *Server) handleGetDevice(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	d, err := s.store.GetDevice(c.Request.Context(), tenantID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleUpdateDevice(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var in models.DeviceUpdate
	if !s.bindJSON(c, &in) {
		return
	}
	d, err := s.store.UpdateDevice(c.Request.Context(), tenantID, id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (s *Server) handleDeleteDevice(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteDevice(c.Request.Context(), tenantID, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListDeviceTypes(c *gin.Context) {
	types, err := s.store.ListDeviceTypes(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, types)
}

// handleIngest stores a telemetry batch. The device authenticates with its
// key in the body; no management token is involved.
//
//	POST /api/v1/devices/:id/data
func (s *Server) handleIngest(c *gin.Context) {
	id := c.Param("id")
	if !isUUID(id) {
		s.fail(c, store.InvalidCredentials())
		return
	}
	var batch models.DeviceDataBatch
	if !s.bindJSON(c, &batch) {
		return
	}
	res, err := s.ingest.Ingest(c.Request.Context(), id, batch, c.ClientIP())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// handleDeviceData returns stored readings of a device, newest first.
//
//	GET /api/v1/devices/:id/data?tenant_id=&metric_name=&start_time=&end_time=&limit=
func (s *Server) handleDeviceData(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	start, end, err := timeRange(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	limit, err := intQuery(c, "limit", defaultDataLimit, 1, maxDataLimit)
	if err != nil {
		s.fail(c, err)
		return
	}

	rows, err := s.store.QueryDeviceData(c.Request.Context(), store.TelemetryQuery{
		TenantID:   tenantID,
		DeviceID:   id,
		MetricName: c.Query("metric_name"),
		Start:      start,
		End:        end,
		Limit:      limit,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
