// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"medical-triage/internal/app"
	"medical-triage/internal/common/camunda"
	"medical-triage/internal/common/config"
	"medical-triage/internal/common/logger"
	escalateemergency "medical-triage/internal/workers/notification/escalate-emergency"
	assessseverity "medical-triage/internal/workers/triage/assess-severity"
	classifyquery "medical-triage/internal/workers/triage/classify-query"
	normalizequery "medical-triage/internal/workers/triage/normalize-query"
	rankdocuments "medical-triage/internal/workers/triage/rank-documents"
	retrievedocuments "medical-triage/internal/workers/triage/retrieve-documents"
	synthesizeresponse "medical-triage/internal/workers/triage/synthesize-response"
	triagequery "medical-triage/internal/workers/triage/triage-query"
	"medical-triage/pkg/registry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting worker manager...")

	ctx := context.Background()

	a, err := app.New(ctx, cfg, log, app.DefaultOptions())
	if err != nil {
		zapLog.Fatal("triage pipeline failed to start", zap.Error(err))
	}
	defer a.Close()

	// --- Init Zeebe Client with retry ---
	var client *camunda.Client
	err = app.RetryWithBackoff(func() error {
		var err error
		client, err = camunda.NewClient(cfg.Camunda)
		return err
	}, 10, 2*time.Second, log, "Zeebe client initialization")
	if err != nil {
		zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
	}
	zapLog.Info("Zeebe client connected successfully")

	reg := loadRegistry(cfg.Camunda.RegistryPath, log)

	handlers := []struct {
		taskType string
		handle   worker.JobHandler
	}{
		{normalizequery.TaskType, a.Normalizer.Handle},
		{normalizequery.EmergencyTaskType, a.Normalizer.HandleEmergency},
		{classifyquery.TaskType, a.Classifier.Handle},
		{assessseverity.TaskType, a.Assessor.Handle},
		{retrievedocuments.TaskType, a.Retriever.Handle},
		{rankdocuments.TaskType, a.Ranker.Handle},
		{synthesizeresponse.TaskType, a.Synthesizer.Handle},
		{triagequery.TaskType, a.Triage.Handle},
	}
	if a.Escalator != nil {
		handlers = append(handlers, struct {
			taskType string
			handle   worker.JobHandler
		}{escalateemergency.TaskType, a.Escalator.Handle})
	} else {
		zapLog.Info("escalation disabled, escalate-emergency worker not registered")
	}

	var workers []*camunda.Worker
	for _, h := range handlers {
		var activity *registry.Activity
		if reg != nil {
			activity, _ = reg.Find(h.taskType)
		}
		w := camunda.StartWorker(client.GetClient(), h.taskType, config.GetWorkerConfig(cfg, h.taskType), h.handle, activity, log)
		if w != nil {
			workers = append(workers, w)
		}
	}
	zapLog.Info("workers registered", zap.Int("count", len(workers)))

	// --- Health & Metrics Server ---
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{}
		status := http.StatusOK
		if err := client.HealthCheck(r.Context()); err != nil {
			checks["zeebe"] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks["zeebe"] = "ok"
		}
		for name, err := range a.Ready(r.Context()) {
			if err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"checks": checks,
			"time":   time.Now().Format(time.RFC3339),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	server := &http.Server{Addr: cfg.Server.Address, Handler: mux}
	go func() {
		zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Server.Address))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLog.Error("Health/Metrics server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping workers...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping health server", zap.Error(err))
	}
	for _, w := range workers {
		w.Close()
	}
	if err := client.Close(); err != nil {
		zapLog.Error("Error closing Zeebe client", zap.Error(err))
	}

	zapLog.Info("Worker manager stopped gracefully")
}

func loadRegistry(path string, log logger.Logger) *registry.ActivityRegistry {
	if path == "" {
		return nil
	}
	reg, err := registry.LoadRegistry(path)
	if err != nil {
		log.Warn("activity registry unavailable, job input is not schema-checked", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return nil
	}
	if problems := reg.Check(); len(problems) > 0 {
		log.Warn("activity registry has problems", map[string]interface{}{"problems": problems})
	}
	return reg
}
