// internal/workers/triage/assess-severity/handler.go
package assessseverity

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "assess-severity"
)

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

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, apperrors.NewInputError("input cannot be nil")
	}

	var assessments []models.SeverityAssessment
	if input.Disease != "" {
		a, err := h.AssessIn(input.SymptomTags, input.Disease, input.Language)
		if err != nil {
			return nil, err
		}
		assessments = []models.SeverityAssessment{*a}
	} else {
		assessments = h.AssessAll(input.SymptomTags, input.Language)
	}

	primary := Primary(assessments)
	output := &Output{Assessments: assessments, Primary: primary}
	if primary != nil {
		output.Emergency = primary.IsEmergency()
	}

	h.logger.Info("severity assessed", map[string]interface{}{
		"diseases":  len(assessments),
		"symptoms":  len(input.SymptomTags),
		"emergency": output.Emergency,
	})
	return output, nil
}

// Assess runs one disease profile with English disclaimers.
func (h *Handler) Assess(tags []string, disease string) (*models.SeverityAssessment, error) {
	return h.AssessIn(tags, disease, models.LanguageEnglish)
}

// AssessIn runs one disease profile and resolves the disclaimer in lang.
func (h *Handler) AssessIn(tags []string, disease string, lang models.Language) (*models.SeverityAssessment, error) {
	profile, ok := h.store.Disease(disease)
	if !ok {
		return nil, apperrors.NewUnknownDiseaseError(disease)
	}
	a := Evaluate(profile, h.canonical(tags))
	a.Disclaimer = h.store.DiseaseDisclaimer(disease, string(lang.TextBankLanguage()), a.DisclaimerKey)
	return a, nil
}

// AssessAll runs every loaded profile in load order.
func (h *Handler) AssessAll(tags []string, lang models.Language) []models.SeverityAssessment {
	out := make([]models.SeverityAssessment, 0, len(h.store.DiseaseNames()))
	for _, name := range h.store.DiseaseNames() {
		a, err := h.AssessIn(tags, name, lang)
		if err != nil {
			continue
		}
		out = append(out, *a)
	}
	return out
}

// canonical maps incoming tags through the lexicon and deduplicates them.
// Unknown terms are kept folded; they simply match no partition.
func (h *Handler) canonical(tags []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		c, ok := h.store.Canonicalize(tag)
		if !ok {
			c = lexicon.Fold(tag)
		}
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Evaluate is the generic severity engine. Every partition count is taken
// first; an emergency-partition tag short-circuits to the emergency tier
// before any rule runs.
func Evaluate(profile *lexicon.DiseaseProfile, tags []string) *models.SeverityAssessment {
	counts := map[string]int{}
	present := map[string]bool{}
	matched := map[string][]string{}
	for _, name := range profile.PartitionNames() {
		matched[name] = []string{}
	}
	for _, tag := range tags {
		present[tag] = true
		partition := profile.PartitionOf(tag)
		if partition == "" {
			continue
		}
		counts[partition]++
		matched[partition] = append(matched[partition], tag)
	}
	for _, list := range matched {
		sort.Strings(list)
	}

	a := &models.SeverityAssessment{
		Disease:           profile.Name,
		MatchedTagsByTier: matched,
		TotalSymptoms:     len(tags),
	}

	if counts[lexicon.PartitionEmergency] > 0 {
		a.Tier = models.TierEmergency
		a.Confidence = profile.EmergencyConfidence
		a.DisclaimerKey = lexicon.DisclaimerKeyEmergency
		return a
	}

	for _, rule := range profile.Rules {
		if rule.Matches(counts, present) {
			a.Tier = rule.Tier
			a.Confidence = rule.Confidence
			a.DisclaimerKey = rule.Disclaimer
			if a.DisclaimerKey == "" {
				a.DisclaimerKey = lexicon.DisclaimerKeyGeneral
			}
			return a
		}
	}

	a.Tier = profile.Fallback.Tier
	a.Confidence = profile.Fallback.Confidence
	a.DisclaimerKey = lexicon.DisclaimerKeyGeneral
	return a
}

// Primary picks the assessment to surface: any emergency first, then the
// highest confidence. Ties keep load order.
func Primary(assessments []models.SeverityAssessment) *models.SeverityAssessment {
	var best *models.SeverityAssessment
	for i := range assessments {
		a := &assessments[i]
		switch {
		case best == nil:
			best = a
		case a.IsEmergency() && !best.IsEmergency():
			best = a
		case a.IsEmergency() == best.IsEmergency() && a.Confidence > best.Confidence:
			best = a
		}
	}
	return best
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
