// internal/common/camunda/worker.go
package camunda

import (
	"context"
	"encoding/json"
	"time"

	"medical-triage/internal/common/config"
	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/common/metrics"
	"medical-triage/pkg/registry"

	"github.com/camunda/zeebe/clients/go/v8/pkg/commands"
	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Worker is an open Zeebe job worker for one task type.
type Worker struct {
	taskType  string
	jobWorker worker.JobWorker
	logger    logger.Logger
}

// StartWorker opens a job worker when the task type is enabled. It returns
// nil for disabled workers. When activity is non-nil, job variables are
// checked against its input schema before the handler runs.
func StartWorker(
	client zbc.Client,
	taskType string,
	wcfg config.WorkerConfig,
	handler worker.JobHandler,
	activity *registry.Activity,
	log logger.Logger,
) *Worker {
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	if !wcfg.Enabled {
		log.Info("worker disabled", nil)
		return nil
	}

	if activity != nil {
		if !activity.Implemented() {
			log.Warn("activity not marked implemented in registry", map[string]interface{}{
				"status": activity.ImplementationStatus,
			})
		}
		if d, err := activity.TimeoutDuration(); err == nil && d > time.Duration(wcfg.Timeout)*time.Millisecond {
			log.Warn("registry timeout exceeds job activation timeout", map[string]interface{}{
				"registryTimeout": d.String(),
				"timeoutMs":       wcfg.Timeout,
			})
		}
	}

	jobWorker := client.NewJobWorker().
		JobType(taskType).
		Handler(Instrument(taskType, handler, activity, log)).
		MaxJobsActive(wcfg.MaxJobsActive).
		Timeout(time.Duration(wcfg.Timeout) * time.Millisecond).
		Open()

	log.Info("worker started", map[string]interface{}{
		"maxJobsActive": wcfg.MaxJobsActive,
		"timeoutMs":     wcfg.Timeout,
		"schemaChecked": activity != nil,
	})

	return &Worker{taskType: taskType, jobWorker: jobWorker, logger: log}
}

// Close stops polling and waits for in-flight jobs.
func (w *Worker) Close() {
	if w == nil {
		return
	}
	w.logger.Info("stopping worker", nil)
	w.jobWorker.Close()
	w.jobWorker.AwaitClose()
}

// Instrument wraps a job handler with the worker metrics and the optional
// input schema check.
func Instrument(taskType string, handler worker.JobHandler, activity *registry.Activity, log logger.Logger) worker.JobHandler {
	errorHandler := apperrors.NewErrorHandler(log)

	return func(client worker.JobClient, job entities.Job) {
		active := metrics.WorkerJobsActive.WithLabelValues(taskType)
		active.Inc()
		defer active.Dec()

		start := time.Now()
		defer func() {
			metrics.WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(start).Seconds())
		}()

		if err := checkInput(activity, job.Variables); err != nil {
			errorHandler.HandleJobError(context.Background(), client, job, err)
			return
		}

		tracked := &completionTracker{JobClient: client}
		handler(tracked, job)
		if tracked.completed {
			metrics.WorkerJobsCompleted.WithLabelValues(taskType).Inc()
		}
	}
}

func checkInput(activity *registry.Activity, variables string) error {
	if activity == nil {
		return nil
	}
	var vars map[string]interface{}
	if err := json.Unmarshal([]byte(variables), &vars); err != nil {
		return apperrors.NewInputError("job variables are not a JSON object")
	}
	if err := activity.ValidateInput(vars); err != nil {
		return apperrors.NewInputError(err.Error())
	}
	return nil
}

// completionTracker notes whether the handler asked to complete the job.
type completionTracker struct {
	worker.JobClient
	completed bool
}

func (c *completionTracker) NewCompleteJobCommand() commands.CompleteJobCommandStep1 {
	c.completed = true
	return c.JobClient.NewCompleteJobCommand()
}
