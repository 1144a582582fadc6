// internal/workers/triage/synthesize-response/handler.go
package synthesizeresponse

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"
	rankdocuments "medical-triage/internal/workers/triage/rank-documents"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	TaskType = "synthesize-response"
)

const urgencyRecommendation = "Seek medical care promptly since your symptoms sound urgent"

const fallbackText = "I apologize, but I'm unable to generate a response at this time due to a technical issue. Please consult with a healthcare provider for your medical concerns."

type Handler struct {
	config       *Config
	store        *lexicon.Store
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
	now          func() time.Time
}

func NewHandler(config *Config, store *lexicon.Store, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		store:        store,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
		now:          time.Now,
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
	if input == nil || input.NormalizedQuery == nil {
		return nil, apperrors.NewInputError("normalizedQuery is required")
	}

	retrieval := input.RetrievalConfidence
	if retrieval == 0 {
		retrieval = rankdocuments.Confidence(input.RankedDocuments)
	}
	response := h.SynthesizeWithConfidence(input.NormalizedQuery, input.RankedDocuments, retrieval)
	return &Output{
		Response:       response,
		ResponseType:   response.ResponseType,
		EmergencyAlert: response.EmergencyAlert,
	}, nil
}

// Synthesize builds the final response. Retrieval confidence is derived from
// the ranked list.
func (h *Handler) Synthesize(q *models.NormalizedQuery, ranked []models.RankedDocument) *models.GeneratedResponse {
	return h.SynthesizeWithConfidence(q, ranked, rankdocuments.Confidence(ranked))
}

// SynthesizeWithConfidence is Synthesize with the ranker's confidence passed
// in. A response that fails schema validation is replaced by the fallback
// response, which always carries the general disclaimer.
func (h *Handler) SynthesizeWithConfidence(q *models.NormalizedQuery, ranked []models.RankedDocument, retrievalConfidence float64) *models.GeneratedResponse {
	if q == nil {
		q = &models.NormalizedQuery{Language: models.LanguageUnknown}
	}
	start := time.Now()

	responseType := SelectResponseType(q, ranked)
	c := &composition{query: q, ranked: ranked}
	if responseType == models.ResponseSymptomGuidance {
		c.guidance = matchGuidance(h.store, q.SymptomTags, ranked)
	}

	text := composers[responseType](h, c)
	response := &models.GeneratedResponse{
		ResponseID:      uuid.New().String(),
		ResponseText:    text,
		ResponseType:    responseType,
		Confidence:      ResponseConfidence(q.Confidence, retrievalConfidence, ranked, responseType),
		Disclaimers:     h.disclaimers(q, responseType),
		Recommendations: h.recommendations(q, responseType, c.guidance),
		Sources:         h.sources(ranked),
		EmergencyAlert:  responseType == models.ResponseEmergencyAlert,
		Metadata: map[string]interface{}{
			"queryType":           q.QueryType,
			"language":            q.Language,
			"symptomsAddressed":   nonNil(q.SymptomTags),
			"documentsUsed":       len(ranked),
			"responseLength":      utf8.RuneCountInString(text),
			"retrievalConfidence": retrievalConfidence,
		},
		GeneratedAt: h.now().UTC(),
	}

	if h.config.ValidateSchema {
		if err := validateResponse(response); err != nil {
			h.logger.Error("generated response failed validation", map[string]interface{}{
				"errorCode":    apperrors.ErrCodeResponseValidationFailed,
				"responseType": responseType,
				"error":        err.Error(),
			})
			return h.fallback(q, err)
		}
	}

	h.logger.Info("response synthesized", map[string]interface{}{
		"responseType":  responseType,
		"confidence":    response.Confidence,
		"documentsUsed": len(ranked),
		"emergency":     response.EmergencyAlert,
		"durationMs":    time.Since(start).Milliseconds(),
	})
	return response
}

// SelectResponseType applies the fixed priority: emergency, then missing
// evidence, then the query type.
func SelectResponseType(q *models.NormalizedQuery, ranked []models.RankedDocument) models.ResponseType {
	switch {
	case q.EmergencyDetected || q.QueryType == models.QueryTypeEmergency:
		return models.ResponseEmergencyAlert
	case len(ranked) == 0:
		return models.ResponseInsufficientInformation
	case q.QueryType == models.QueryTypeSymptomInquiry:
		return models.ResponseSymptomGuidance
	case q.QueryType == models.QueryTypePreventionInquiry:
		return models.ResponsePreventionGuidance
	default:
		return models.ResponseGeneralMedical
	}
}

// ResponseConfidence weighs query confidence 0.3, retrieval confidence 0.4
// and the average final score 0.2.
func ResponseConfidence(queryConfidence, retrievalConfidence float64, ranked []models.RankedDocument, responseType models.ResponseType) float64 {
	confidence := queryConfidence*0.3 + retrievalConfidence*0.4
	if len(ranked) > 0 {
		total := 0.0
		for _, r := range ranked {
			total += r.FinalScore
		}
		confidence += total / float64(len(ranked)) * 0.2
	}

	switch responseType {
	case models.ResponseEmergencyAlert:
		confidence += 0.1
	case models.ResponseInsufficientInformation:
		confidence = math.Max(confidence*0.5, 0.1)
	}
	return math.Max(0, math.Min(confidence, 1.0))
}

func (h *Handler) disclaimers(q *models.NormalizedQuery, responseType models.ResponseType) []string {
	lang := string(q.Language.TextBankLanguage())
	out := []string{h.store.Disclaimer(lang, lexicon.DisclaimerKeyGeneral)}
	if responseType == models.ResponseEmergencyAlert {
		out = append(out, h.store.Disclaimer(lang, lexicon.DisclaimerKeyEmergency))
	}
	if q.HasPopulation(models.PopulationPregnancy) {
		out = append(out, h.store.Disclaimer(lang, lexicon.DisclaimerKeyPregnancy))
	}
	return out
}

func (h *Handler) recommendations(q *models.NormalizedQuery, responseType models.ResponseType, guidance []*lexicon.DiseaseProfile) []string {
	bank := h.store.Recommendations()
	seen := map[string]bool{}
	out := []string{}
	add := func(items ...string) {
		for _, item := range items {
			if item != "" && !seen[item] {
				seen[item] = true
				out = append(out, item)
			}
		}
	}

	add(bank.ByType[string(responseType)]...)

	if responseType == models.ResponseSymptomGuidance {
		for _, trigger := range bank.Triggers {
			for _, tag := range trigger.WhenAny {
				if q.HasSymptom(tag) {
					add(trigger.Add...)
					break
				}
			}
		}
		for _, profile := range guidance {
			add(profile.Guidance.Recommendations...)
		}
	}

	if responseType != models.ResponseEmergencyAlert && len(q.UrgencyCues) > 0 {
		add(urgencyRecommendation)
	}

	add(bank.Closing[string(responseType)])
	return out
}

// sources lists each cited source once, in rank order, by friendly name.
func (h *Handler) sources(ranked []models.RankedDocument) []models.Source {
	out := []models.Source{}
	seen := map[string]bool{}
	title := cases.Title(language.English)
	for _, r := range ranked {
		id := r.Document.SourceID
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		name := title.String(id)
		if src, ok := h.store.Source(id); ok && src.Name != "" {
			name = src.Name
		}
		out = append(out, models.Source{ID: id, Name: name})
	}
	return out
}

func (h *Handler) fallback(q *models.NormalizedQuery, cause error) *models.GeneratedResponse {
	lang := string(q.Language.TextBankLanguage())
	return &models.GeneratedResponse{
		ResponseID:      uuid.New().String(),
		ResponseText:    fallbackText,
		ResponseType:    models.ResponseInsufficientInformation,
		Confidence:      0,
		Disclaimers:     []string{h.store.Disclaimer(lang, lexicon.DisclaimerKeyGeneral)},
		Recommendations: []string{"Consult with a qualified healthcare provider"},
		Sources:         []models.Source{},
		Metadata:        map[string]interface{}{"error": cause.Error()},
		GeneratedAt:     h.now().UTC(),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
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
