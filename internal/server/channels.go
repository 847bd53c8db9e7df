package server

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/iotlinker/internal/export"
	"github.com/vesaa/iotlinker/internal/models"
	"github.com/vesaa/iotlinker/internal/store"
)

// handleListChannels returns one page of the tenant's channels.
//
//	GET /api/v1/channels/?tenant_id=&search=&page=&page_size=
func (s *Server) handleListChannels(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	page, err := s.pageQuery(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	items, total, err := s.store.ListChannels(c.Request.Context(), store.ChannelFilter{
		TenantID: tenantID,
		Search:   c.Query("search"),
		Page:     page,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, models.ChannelList{Channels: items, PageInfo: models.NewPageInfo(total, page)})
}

func (s *Server) handleGetChannel(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	ch, err := s.store.GetChannel(c.Request.Context(), tenantID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

func (s *Server) handleCreateChannel(c *gin.Context) {
	var in models.ChannelCreate
	if !s.bindJSON(c, &in) {
		return
	}
	if !s.authorizeTenant(c, in.TenantID) {
		return
	}
	ch := in.Channel()
	if err := s.store.CreateChannel(c.Request.Context(), ch); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (s *Server) handleUpdateChannel(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var in models.ChannelUpdate
	if !s.bindJSON(c, &in) {
		return
	}
	ch, err := s.store.UpdateChannel(c.Request.Context(), tenantID, id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// handleDeleteChannel moves the channel's devices to Uncategorized, then deletes it.
func (s *Server) handleDeleteChannel(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteChannel(c.Request.Context(), tenantID, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleChannelDevices lists a channel's devices ordered by name.
//
//	GET /api/v1/channels/:id/devices?tenant_id=&status=
func (s *Server) handleChannelDevices(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	status, err := statusQuery(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	devices, err := s.store.ListChannelDevices(c.Request.Context(), tenantID, id, status)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, devices)
}

// handleExportChannel downloads the channel's telemetry.
//
//	GET /api/v1/channels/:id/export?tenant_id=&format=csv|xlsx|json&start_time=&end_time=
func (s *Server) handleExportChannel(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		s.fail(c, store.Invalid("format", "must be one of: csv, xlsx, json"))
		return
	}
	start, end, err := timeRange(c)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	ch, err := s.store.GetChannel(ctx, tenantID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	rows, err := s.store.QueryChannelData(ctx, store.ChannelTelemetryQuery{
		TenantID: tenantID, ChannelID: id, Start: start, End: end, Limit: s.cfg.ExportMaxRows + 1,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	if len(rows) > s.cfg.ExportMaxRows {
		s.fail(c, store.Invalid("start_time",
			fmt.Sprintf("export exceeds %d rows, narrow the start_time/end_time window", s.cfg.ExportMaxRows)))
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, rows); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+format.Filename(ch.Name, time.Now())+`"`)
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}
