// internal/workers/triage/classify-query/handler.go
package classifyquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"medical-triage/internal/common/logger"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "classify-query"
)

var (
	ErrNilInput = errors.New("INPUT_ERROR")
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType}),
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
		h.failJob(client, job, "TRIAGE_INPUT_REJECTED", err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input == nil || input.NormalizedQuery == nil {
		return nil, fmt.Errorf("%w: normalized query is required", ErrNilInput)
	}

	q := *input.NormalizedQuery
	q.QueryType, q.Confidence = h.Classify(&q)

	h.logger.Info("query classified", map[string]interface{}{
		"queryType":  q.QueryType,
		"confidence": q.Confidence,
		"symptoms":   len(q.SymptomTags),
	})

	return &Output{
		NormalizedQuery: &q,
		QueryType:       q.QueryType,
		Confidence:      q.Confidence,
		ContextHint:     q.QueryType.ContextHint(),
	}, nil
}

// Classify assigns the query type by fixed priority and scores confidence.
// Emergency indicators always win.
func (h *Handler) Classify(q *models.NormalizedQuery) (models.QueryType, float64) {
	if q == nil {
		return models.QueryTypeNonMedical, 0
	}
	text := lexicon.Fold(q.CleanedText)
	if text == "" {
		text = lexicon.Fold(q.OriginalText)
	}

	queryType := classify(q, text)
	return queryType, confidence(q, text, queryType)
}

func classify(q *models.NormalizedQuery, text string) models.QueryType {
	switch {
	case len(q.EmergencyIndicators) > 0 || q.EmergencyDetected:
		return models.QueryTypeEmergency
	case nonMedicalKeywords.MatchString(text):
		return models.QueryTypeNonMedical
	case len(q.SymptomTags) > 0:
		return models.QueryTypeSymptomInquiry
	case medicalKeywords.MatchString(text):
		return models.QueryTypeMedicalQuestion
	case preventionKeywords.MatchString(text):
		return models.QueryTypePreventionInquiry
	default:
		return models.QueryTypeNonMedical
	}
}

func confidence(q *models.NormalizedQuery, text string, queryType models.QueryType) float64 {
	score := 0.0

	length := utf8.RuneCountInString(text)
	if length > 10 {
		score += 0.2
	}
	if length > 30 {
		score += 0.1
	}

	score += math.Min(0.15*float64(len(q.SymptomTags)), 0.4)

	switch queryType {
	case models.QueryTypeSymptomInquiry, models.QueryTypeEmergency:
		score += 0.3
	case models.QueryTypeMedicalQuestion:
		score += 0.2
	}

	if queryType == models.QueryTypeEmergency {
		score += 0.2
	}

	if words := len(strings.Fields(text)); words > 0 {
		density := float64(distinctMatches(densityKeywords, text)) / float64(words)
		score += density * 0.2
	}

	return math.Min(score, 1.0)
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
