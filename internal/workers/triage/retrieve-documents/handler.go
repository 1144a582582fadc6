// internal/workers/triage/retrieve-documents/handler.go
package retrievedocuments

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "retrieve-documents"
)

type Handler struct {
	config       *Config
	searcher     Searcher
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, searcher Searcher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		searcher:     searcher,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil || input.NormalizedQuery == nil {
		return nil, apperrors.NewInputError("normalizedQuery is required")
	}

	req := h.BuildRequest(input.NormalizedQuery)
	if input.TopK > 0 {
		req.TopK = input.TopK
	}

	start := time.Now()
	docs, err := h.searcher.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Output{
		Candidates: docs,
		Request:    req,
		Backend:    h.searcher.Name(),
		DurationMs: time.Since(start).Milliseconds(),
	}, nil
}

// BuildRequest derives the search call from a normalized query. Emergency
// queries use the stricter emergency threshold.
func (h *Handler) BuildRequest(q *models.NormalizedQuery) models.SearchRequest {
	hint := q.QueryType.ContextHint()
	minScore := h.config.MinScore
	if hint == models.SectionEmergency {
		minScore = h.config.EmergencyMinScore
	}

	seen := map[string]bool{}
	var symptoms []string
	for _, tags := range [][]string{q.SymptomTags, q.ClinicalIndicatorTags()} {
		for _, t := range tags {
			if !seen[t] {
				seen[t] = true
				symptoms = append(symptoms, t)
			}
		}
	}

	return models.SearchRequest{
		Query:       q.CleanedText,
		TopK:        h.config.TopK,
		ContextHint: hint,
		MinScore:    minScore,
		Symptoms:    symptoms,
	}
}

// Backend names the searcher behind the handler.
func (h *Handler) Backend() string {
	return h.searcher.Name()
}

// Retrieve runs a search for the query. An empty result is not an error.
func (h *Handler) Retrieve(ctx context.Context, q *models.NormalizedQuery) ([]models.RetrievedDocument, error) {
	output, err := h.execute(ctx, &Input{NormalizedQuery: q})
	if err != nil {
		return nil, err
	}
	h.logger.Debug("documents retrieved", map[string]interface{}{
		"backend":     output.Backend,
		"contextHint": output.Request.ContextHint,
		"candidates":  len(output.Candidates),
		"durationMs":  output.DurationMs,
	})
	return output.Candidates, nil
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
