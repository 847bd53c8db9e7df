// Package server provides the IoTLinker Gin-based REST API.
package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vesaa/iotlinker/internal/config"
	"github.com/vesaa/iotlinker/internal/events"
	"github.com/vesaa/iotlinker/internal/ingest"
	"github.com/vesaa/iotlinker/internal/insights"
	"github.com/vesaa/iotlinker/internal/store"
)

// Version is reported by GET /.
const Version = "1.0.0"

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	cfg       *config.Config
	store     store.Store
	ingest    *ingest.Service
	hub       *events.Hub
	insights  *insights.Generator
	log       *zap.Logger
	jwtSecret []byte
	upgrader  websocket.Upgrader
}

func New(cfg *config.Config, st store.Store, ing *ingest.Service, hub *events.Hub, gen *insights.Generator, log *zap.Logger) *Server {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(store.JSONFieldName)
	}
	s := &Server{
		cfg:       cfg,
		store:     st,
		ingest:    ing,
		hub:       hub,
		insights:  gen,
		log:       log,
		jwtSecret: []byte(cfg.JWTSecret),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Engine builds the Gin engine with middleware and every route registered.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(s.cfg.TrustedProxies); err != nil {
		s.log.Warn("invalid trusted_proxies, trusting none", zap.Error(err))
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.CustomRecovery(s.recoverPanic), requestLogger(s.log))
	if mw := s.corsMiddleware(); mw != nil {
		r.Use(mw)
	}
	s.registerRoutes(r)
	return r
}

func (s *Server) recoverPanic(c *gin.Context, rec any) {
	s.log.Error("panic recovered", zap.Any("panic", rec), zap.String("path", c.Request.URL.Path))
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": "internal_error"})
}

// corsMiddleware restricts cross-origin access to cors_origins; "*" allows any origin.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	if len(s.cfg.CORSOrigins) == 0 {
		return nil
	}
	cc := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" {
			cc.AllowAllOrigins = true
			cc.AllowCredentials = false
		}
	}
	if !cc.AllowAllOrigins {
		cc.AllowOrigins = s.cfg.CORSOrigins
	}
	return cors.New(cc)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// requestLogger logs one line per request.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.Error("request", fields...)
		case status >= http.StatusBadRequest:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
