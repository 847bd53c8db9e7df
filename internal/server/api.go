package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// registerRoutes wires up the API.
//
//	Public:        GET /, GET /health, POST /api/v1/auth/login (auth_enabled only)
//	Device auth:   POST /api/v1/devices/:id/data
//	Management:    everything else under /api/v1 (JWT-protected when auth_enabled)
func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/", s.handleRoot)
	r.GET("/health", s.handleHealth)

	v1 := r.Group("/api/v1")

	// ── Public / device-authenticated endpoints ──────────────────────────────
	if s.cfg.AuthEnabled {
		v1.POST("/auth/login", s.handleLogin)
	}
	v1.POST("/devices/:id/data", s.handleIngest)

	// ── Management endpoints ─────────────────────────────────────────────────
	api := v1.Group("")
	if s.cfg.AuthEnabled {
		api.Use(s.jwtMiddleware())
	}

	channels := api.Group("/channels")
	{
		channels.GET("/", s.handleListChannels)
		channels.POST("/", s.handleCreateChannel)
		channels.GET("/:id", s.handleGetChannel)
		channels.PUT("/:id", s.handleUpdateChannel)
		channels.DELETE("/:id", s.handleDeleteChannel)
		channels.GET("/:id/devices", s.handleChannelDevices)
		channels.GET("/:id/export", s.handleExportChannel)
		channels.GET("/:id/stream", s.handleChannelStream)
	}

	devices := api.Group("/devices")
	{
		devices.GET("/", s.handleListDevices)
		devices.POST("/", s.handleCreateDevice)
		devices.GET("/types/list", s.handleListDeviceTypes)
		devices.GET("/:id", s.handleGetDevice)
		devices.PUT("/:id", s.handleUpdateDevice)
		devices.DELETE("/:id", s.handleDeleteDevice)
		devices.GET("/:id/data", s.handleDeviceData)
	}

	alerts := api.Group("/alerts")
	{
		alerts.GET("/", s.handleListAlerts)
		alerts.POST("/", s.handleCreateAlert)
		alerts.GET("/:id", s.handleGetAlert)
		alerts.PUT("/:id", s.handleUpdateAlert)
		alerts.DELETE("/:id", s.handleDeleteAlert)
	}

	api.POST("/insights/generate", s.handleGenerateInsights)
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": s.cfg.AppName, "version": Version})
}

// handleHealth reports 503 when the database cannot be reached.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.log.Warn("health check: database unreachable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}
