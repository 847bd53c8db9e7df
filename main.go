// IoTLinker: multi-tenant IoT device management & telemetry backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vesaa/iotlinker/internal/agent"
	"github.com/vesaa/iotlinker/internal/config"
	"github.com/vesaa/iotlinker/internal/logger"
	"github.com/vesaa/iotlinker/internal/server"
	"github.com/vesaa/iotlinker/internal/store"
)

const asciiLogo = `
  ██╗ ██████╗ ████████╗██╗     ██╗███╗   ██╗██╗  ██╗███████╗██████╗
  ██║██╔═══██╗╚══██╔══╝██║     ██║████╗  ██║██║ ██╔╝██╔════╝██╔══██╗
  ██║██║   ██║   ██║   ██║     ██║██╔██╗ ██║█████╔╝ █████╗  ██████╔╝
  ██║██║   ██║   ██║   ██║     ██║██║╚██╗██║██╔═██╗ ██╔══╝  ██╔══██╗
  ██║╚██████╔╝   ██║   ███████╗██║██║ ╚████║██║  ██╗███████╗██║  ██║
  ╚═╝ ╚═════╝    ╚═╝   ╚══════╝╚═╝╚═╝  ╚═══╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`

func printBanner(mode string) {
	fmt.Print(asciiLogo + "\n")
	fmt.Printf("  ► IoTLinker %s  |  Mode: %s\n\n", server.Version, mode)
}

// setup loads the configuration and builds the logger shared by every subcommand.
func setup(service string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, service)
	if err != nil {
		return nil, nil, fmt.Errorf("building logger: %w", err)
	}
	return cfg, log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func main() {
	root := &cobra.Command{
		Use:   "iotlinker",
		Short: "IoTLinker IoT device management & telemetry platform",
		Long: `IoTLinker groups devices into channels per tenant, authenticates device
telemetry, stores it, streams it live and exports it.`,
		SilenceUsage: true,
	}

	root.AddCommand(serverCommand(), migrateCommand(), agentCommand(), versionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// ── migrate subcommand ───────────────────────────────────────────────────────

func migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or revert database migrations",
	}
	run := func(down bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup("iotlinker-migrate")
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			db, err := store.Open(cfg, log)
			if err != nil {
				return err
			}
			defer db.Close()

			if down {
				return db.MigrateDown()
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()
			return db.Migrate(ctx)
		}
	}
	cmd.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", RunE: run(false)},
		&cobra.Command{Use: "down", Short: "Revert all migrations (PostgreSQL only)", RunE: run(true)},
	)
	return cmd
}

// ── agent subcommand ─────────────────────────────────────────────────────────

func agentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Report this host's metrics as telemetry of a registered device",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner("AGENT")

			cfg, log, err := setup("iotlinker-agent")
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			// CLI flags override config values.
			if v, _ := cmd.Flags().GetString("server"); v != "" {
				cfg.AgentServerURL = v
			}
			if v, _ := cmd.Flags().GetString("device-id"); v != "" {
				cfg.AgentDeviceID = v
			}
			if v, _ := cmd.Flags().GetString("device-key"); v != "" {
				cfg.AgentDeviceKey = v
			}
			if v, _ := cmd.Flags().GetInt("interval"); v > 0 {
				cfg.AgentInterval = v
			}

			a, err := agent.New(agent.Options{
				ServerURL: cfg.AgentServerURL,
				DeviceID:  cfg.AgentDeviceID,
				DeviceKey: cfg.AgentDeviceKey,
				Interval:  time.Duration(cfg.AgentInterval) * time.Second,
			}, log)
			if err != nil {
				return err
			}

			fmt.Printf("  ✓ Server:          %s\n", cfg.AgentServerURL)
			fmt.Printf("  ✓ Device:          %s\n", cfg.AgentDeviceID)
			fmt.Printf("  ✓ Report interval: %ds\n\n", cfg.AgentInterval)

			ctx, stop := signalContext()
			defer stop()
			if err := a.Run(ctx); err != nil {
				if errors.Is(err, agent.ErrRejected) {
					return fmt.Errorf("%w: check --device-id and --device-key", err)
				}
				return err
			}
			return nil
		},
	}
	cmd.Flags().String("server", "", "IoTLinker API base URL, e.g. http://192.168.1.10:8001")
	cmd.Flags().String("device-id", "", "Device id issued at registration (overrides config)")
	cmd.Flags().String("device-key", "", "Device key issued at registration (overrides config)")
	cmd.Flags().Int("interval", 0, "Report interval in seconds")
	return cmd
}

// ── version subcommand ───────────────────────────────────────────────────────

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print IoTLinker version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("IoTLinker %s\n", server.Version)
		},
	}
}
