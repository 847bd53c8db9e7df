package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vesaa/iotlinker/internal/models"
	"github.com/vesaa/iotlinker/internal/store"
)

func (s *Server) handleCreateAlert(c *gin.Context) {
	var in models.AlertCreate
	if !s.bindJSON(c, &in) {
		return
	}
	if !s.authorizeTenant(c, in.TenantID) {
		return
	}
	a := in.Alert()
	if err := s.store.CreateAlert(c.Request.Context(), a); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, a)
}

// handleListAlerts lists the tenant's alerts.
//
//	GET /api/v1/alerts/?tenant_id=&channel_id=&is_active=
func (s *Server) handleListAlerts(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	f := store.AlertFilter{TenantID: tenantID}
	var err error
	if f.ChannelID, err = optionalUUIDQuery(c, "channel_id"); err != nil {
		s.fail(c, err)
		return
	}
	if f.IsActive, err = boolQuery(c, "is_active"); err != nil {
		s.fail(c, err)
		return
	}
	alerts, err := s.store.ListAlerts(c.Request.Context(), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (s *Server) handleGetAlert(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	a, err := s.store.GetAlert(c.Request.Context(), tenantID, id)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleUpdateAlert(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	var in models.AlertUpdate
	if !s.bindJSON(c, &in) {
		return
	}
	a, err := s.store.UpdateAlert(c.Request.Context(), tenantID, id, in)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleDeleteAlert(c *gin.Context) {
	tenantID, ok := s.tenantQuery(c)
	if !ok {
		return
	}
	id, ok := s.pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteAlert(c.Request.Context(), tenantID, id); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleGenerateInsights summarizes a series and flags anomalous values.
//
//	POST /api/v1/insights/generate
//	Body: { "channel_id": "...", "data": [1.5, 2.0, 150] }
func (s *Server) handleGenerateInsights(c *gin.Context) {
	var in models.InsightsRequest
	if !s.bindJSON(c, &in) {
		return
	}
	c.JSON(http.StatusOK, s.insights.Generate(c.Request.Context(), in))
}
