// cmd/triage-server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"medical-triage/internal/api"
	"medical-triage/internal/app"
	"medical-triage/internal/common/config"
	"medical-triage/internal/common/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting triage server...", zap.String("environment", cfg.App.Environment))

	a, err := app.New(context.Background(), cfg, log, app.DefaultOptions())
	if err != nil {
		zapLog.Fatal("triage pipeline failed to start", zap.Error(err))
	}
	defer a.Close()

	opts := []api.Option{
		api.WithReadiness(a.Ready),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
	}
	if a.Audit != nil {
		opts = append(opts, api.WithAuditSummary(a.Audit.Summary))
	}

	server := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      api.NewServer(a.Service, log, opts...).Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining connections...")
	ctx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	zapLog.Info("Triage server stopped gracefully")
}
