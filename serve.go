package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vesaa/iotlinker/internal/config"
	"github.com/vesaa/iotlinker/internal/events"
	"github.com/vesaa/iotlinker/internal/ingest"
	"github.com/vesaa/iotlinker/internal/insights"
	"github.com/vesaa/iotlinker/internal/mqttbridge"
	"github.com/vesaa/iotlinker/internal/server"
	"github.com/vesaa/iotlinker/internal/store"
)

const shutdownTimeout = 10 * time.Second

func serverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "Start the IoTLinker API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("SERVER")

			cfg, log, err := setup("iotlinker")
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			return serve(cfg, log)
		},
	}
}

func serve(cfg *config.Config, log *zap.Logger) error {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signalContext()
	defer stop()

	// ── Storage ─────────────────────────────────────────────────────────────
	db, err := store.Open(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
	}
	if err := db.SeedDeviceTypes(ctx); err != nil {
		return err
	}

	// ── Event fan-out ───────────────────────────────────────────────────────
	hub := events.NewHub(64)
	pubs := []events.Publisher{hub, events.NewWebhook(cfg.WebhookTimeout, cfg.WebhookRetries)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		pubs = append(pubs, events.NewRedisStream(rdb, cfg.RedisStream, cfg.RedisStreamMaxLen))
		log.Info("redis stream publisher enabled", zap.String("stream", cfg.RedisStream))
	}
	fanout := events.NewMulti(log, cfg.WebhookTimeout*time.Duration(cfg.WebhookRetries+1), pubs...)
	defer fanout.Close()

	// ── Services ────────────────────────────────────────────────────────────
	ing := ingest.NewService(db, fanout, log)
	gen := insights.NewGenerator(insights.Options{
		Endpoint:         cfg.InsightsEndpoint,
		APIKey:           cfg.InsightsAPIKey,
		Timeout:          cfg.InsightsTimeout,
		AnomalyThreshold: cfg.InsightsAnomalyThreshold,
	}, log)
	api := server.New(cfg, db, ing, hub, gen, log)

	if cfg.MQTTBroker != "" {
		bridge, err := mqttbridge.New(mqttbridge.Options{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Username: cfg.MQTTUsername,
			Password: cfg.MQTTPassword,
			Topic:    cfg.MQTTTopic,
			QoS:      cfg.MQTTQoS,
		}, ing, log)
		if err != nil {
			return err
		}
		if err := bridge.Start(); err != nil {
			return fmt.Errorf("starting mqtt bridge: %w", err)
		}
		defer bridge.Stop()
	}

	// ── HTTP ────────────────────────────────────────────────────────────────
	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("  ✓ API        → http://%s/api/v1\n", cfg.Addr())
	fmt.Printf("  ✓ Database   → %s\n", cfg.DBDriver)
	if cfg.AuthEnabled {
		fmt.Printf("  ✓ Auth       → JWT (login as %s)\n", cfg.AdminUser)
	}
	if cfg.MQTTBroker != "" {
		fmt.Printf("  ✓ MQTT       → %s (%s)\n", cfg.MQTTBroker, cfg.MQTTTopic)
	}
	fmt.Println()

	errCh := make(chan error, 1)
	go func() { errCh <- httpSrv.ListenAndServe() }()
	log.Info("http server listening", zap.String("addr", cfg.Addr()))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
