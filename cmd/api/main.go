package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/insurance-leads-platform/cmd/mainconfig"
	"github.com/wolfman30/insurance-leads-platform/internal/api/router"
	appconfig "github.com/wolfman30/insurance-leads-platform/internal/config"
	"github.com/wolfman30/insurance-leads-platform/internal/events"
	"github.com/wolfman30/insurance-leads-platform/internal/http/handlers"
	"github.com/wolfman30/insurance-leads-platform/pkg/logging"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	logger.Info("starting insurance leads API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"fallback", cfg.FallbackProvider,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline, err := mainconfig.BuildPipeline(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("pipeline close failed", "error", err)
		}
	}()

	replayCtx, cancelReplay := context.WithCancel(ctx)
	defer cancelReplay()
	startReplayer(replayCtx, cfg, pipeline, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      buildRouter(cfg, pipeline, reg, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.DeliveryTimeout*2 + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildRouter(cfg *appconfig.Config, pipeline *mainconfig.Pipeline, reg *prometheus.Registry, logger *logging.Logger) http.Handler {
	return router.New(&router.Config{
		Logger:             logger,
		LeadsHandler:       handlers.NewLeadsHandler(pipeline.Service, logger.WithComponent("http")),
		AdminJournal:       handlers.NewAdminJournalHandler(pipeline.Journal, logger.WithComponent("admin")),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		IPLimiter:          pipeline.IPLimiter,
	})
}

// startReplayer retries journaled leads against the primary store in the
// background. It is a no-op without a durable journal or interval.
func startReplayer(ctx context.Context, cfg *appconfig.Config, pipeline *mainconfig.Pipeline, logger *logging.Logger) *events.Replayer {
	if cfg.JournalReplayInterval <= 0 || cfg.JournalBackend == "none" {
		return nil
	}
	replayer := events.NewReplayer(pipeline.Journal, pipeline.Service, logger.WithComponent("replayer")).
		WithInterval(cfg.JournalReplayInterval)
	go replayer.Start(ctx)
	return replayer
}
