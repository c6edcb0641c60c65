package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/piiredact/internal/audit"
	"github.com/dativo-io/piiredact/internal/config"
	"github.com/dativo-io/piiredact/internal/engine"
	"github.com/dativo-io/piiredact/internal/server"
)

// serveRotationLabel is recorded as sector and input of rotated reports.
const serveRotationLabel = "serve"

var (
	servePort           int
	serveRotateSchedule string
	serveConfig         string
	serveCORSOrigins    []string
	serveWatchConfig    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the redaction HTTP API with scheduled audit rotation",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	serveCmd.Flags().StringVar(&serveRotateSchedule, "rotate-schedule", "0 * * * *", "cron schedule for rotating the audit log into a signed report (empty disables)")
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "redaction config file, JSON or YAML (overrides redaction_config)")
	serveCmd.Flags().StringSliceVar(&serveCORSOrigins, "cors-origin", []string{"*"}, "allowed CORS origins")
	serveCmd.Flags().BoolVar(&serveWatchConfig, "watch-config", false, "reload the redaction config when the file changes")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	eng, err := newEngine(ctx, cfg, serveConfig)
	if err != nil {
		return err
	}

	if serveWatchConfig {
		path := redactionConfigPath(cfg, serveConfig)
		if path == "" {
			return fmt.Errorf("--watch-config needs a redaction config (-c or redaction_config)")
		}
		if err := engine.WatchConfig(ctx, eng, path); err != nil {
			return err
		}
	}

	store, err := openReportStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	rotator := audit.NewRotator(store, eng, serveRotationLabel, resolvedVersion())
	scheduler := audit.NewScheduler(rotator)
	if err := scheduler.Register(serveRotateSchedule); err != nil {
		return err
	}
	scheduler.Start()

	stopRetention := audit.StartRetentionLoop(ctx, store, cfg.RetentionDays, 24*time.Hour)
	defer stopRetention()

	if len(cfg.APIKeys) == 0 {
		log.Warn().Msg("PIIREDACT_API_KEYS not set: /v1 endpoints accept unauthenticated requests")
	}

	srv := server.NewServer(eng,
		server.WithReportStore(store, rotator),
		server.WithAPIKeys(cfg.APIKeys),
		server.WithRateLimiter(server.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)),
		server.WithMaxBodyBytes(cfg.MaxBodyBytes),
		server.WithCORSOrigins(serveCORSOrigins),
		server.WithVersion(resolvedVersion()),
	)

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Int("cron_entries", scheduler.Entries()).
		Int("sectors", len(eng.Policies().Sectors())).
		Bool("auth", len(cfg.APIKeys) > 0).
		Int("retention_days", cfg.RetentionDays).
		Msg("serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		serveErr = fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && serveErr == nil {
		serveErr = fmt.Errorf("shutdown: %w", err)
	}
	scheduler.Stop()

	// Whatever was processed since the last rotation goes into one final report.
	if _, err := rotator.Rotate(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final_audit_rotation_failed")
	}
	log.Info().Msg("server_stopped")
	return serveErr
}
