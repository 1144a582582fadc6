// internal/workers/triage/normalize-query/handler.go
package normalizequery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType          = "normalize-query"
	EmergencyTaskType = "detect-emergency"
)

const highFeverTag = "high fever"

type Handler struct {
	config       *Config
	store        *lexicon.Store
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, store *lexicon.Store, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		store:        store,
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

// HandleEmergency serves the detect-emergency task type: cleaning plus the
// emergency-tier scan, nothing else.
func (h *Handler) HandleEmergency(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
		"mode":        EmergencyTaskType,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}
	if strings.TrimSpace(input.Text) == "" {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
		defer cancel()
		h.errorHandler.HandleJobError(ctx, client, job, apperrors.NewInputError("query text is empty"))
		return
	}

	detected, indicators := h.DetectEmergencyFast(input.Text)
	h.completeJob(client, job, &EmergencyOutput{EmergencyDetected: detected, Indicators: indicators})
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInputError("input cannot be nil")
	}
	query, err := h.Process(input.Text)
	if err != nil {
		return nil, err
	}
	return &Output{NormalizedQuery: query}, nil
}

// Process turns raw text into a NormalizedQuery. QueryType and Confidence
// are left for the classifier.
func (h *Handler) Process(text string) (*models.NormalizedQuery, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewInputError("query text is empty")
	}
	start := time.Now()

	cleaned := cleanText(text)
	folded := asciiDigits.Replace(lexicon.Fold(cleaned))

	lang := detectLanguage(cleaned)
	if lang == models.LanguageUnknown {
		h.logger.Warn("language undetected", map[string]interface{}{
			"code":   apperrors.ErrCodeLanguageUndetected,
			"length": len(cleaned),
		})
	}

	tags := map[string]bool{}
	for _, m := range h.store.MatchSymptoms(folded) {
		tags[m.Tag] = true
	}

	indicators := h.emergencyIndicators(folded)
	temperature := extractTemperature(folded)
	if isHighFever(temperature) && !hasIndicator(indicators, highFeverTag) {
		indicators = append(indicators, models.EmergencyIndicator{Tag: highFeverTag, Phrase: temperature.Phrase})
	}
	for _, ind := range indicators {
		if !ind.IsUrgencyCue() {
			tags[ind.Tag] = true
		}
	}

	query := &models.NormalizedQuery{
		OriginalText:        text,
		CleanedText:         cleaned,
		Language:            lang,
		SymptomTags:         sortedSet(tags),
		EmergencyIndicators: indicators,
		EmergencyDetected:   len(indicators) > 0,
		UrgencyCues:         h.urgencyCues(folded),
		Duration:            extractDuration(folded),
		SeverityModifiers:   extractSeverityModifiers(folded),
		SpecialPopulations:  extractPopulations(folded),
		Temperature:         temperature,
	}

	duration := time.Since(start)
	h.logger.Info("query normalized", map[string]interface{}{
		"length":     len(cleaned),
		"language":   lang,
		"symptoms":   len(query.SymptomTags),
		"emergency":  query.EmergencyDetected,
		"durationMs": duration.Milliseconds(),
	})
	if duration > h.config.SlowThreshold {
		h.logger.Warn("normalization exceeded threshold", map[string]interface{}{
			"durationMs": duration.Milliseconds(),
		})
	}
	return query, nil
}

// DetectEmergencyFast runs cleaning and the emergency scan (emergency-tier
// symptoms, urgency cues, the temperature rule) only.
func (h *Handler) DetectEmergencyFast(text string) (bool, []models.EmergencyIndicator) {
	if strings.TrimSpace(text) == "" {
		return false, nil
	}
	folded := asciiDigits.Replace(lexicon.Fold(cleanText(text)))
	indicators := h.emergencyIndicators(folded)
	if t := extractTemperature(folded); isHighFever(t) && !hasIndicator(indicators, highFeverTag) {
		indicators = append(indicators, models.EmergencyIndicator{Tag: highFeverTag, Phrase: t.Phrase})
	}
	return len(indicators) > 0, indicators
}

// emergencyIndicators keeps the first phrase seen for each tag, in text
// order: emergency-tier symptoms first, then urgency cues.
func (h *Handler) emergencyIndicators(folded string) []models.EmergencyIndicator {
	var out []models.EmergencyIndicator
	seen := map[string]bool{}
	for _, m := range h.store.MatchEmergency(folded) {
		if seen[m.Tag] {
			continue
		}
		seen[m.Tag] = true
		out = append(out, models.EmergencyIndicator{Tag: m.Tag, Phrase: m.Surface})
	}
	for _, m := range h.store.MatchUrgencyCues(folded) {
		if seen[m.Tag] {
			continue
		}
		seen[m.Tag] = true
		out = append(out, models.EmergencyIndicator{Tag: m.Tag, Phrase: m.Surface, Source: models.IndicatorUrgencyCue})
	}
	return out
}

func (h *Handler) urgencyCues(folded string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range h.store.MatchUrgencyCues(folded) {
		if !seen[m.Tag] {
			seen[m.Tag] = true
			out = append(out, m.Tag)
		}
	}
	sort.Strings(out)
	return out
}

func hasIndicator(indicators []models.EmergencyIndicator, tag string) bool {
	for _, ind := range indicators {
		if ind.Tag == tag {
			return true
		}
	}
	return false
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output interface{}) {
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
