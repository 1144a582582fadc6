// internal/workers/triage/triage-query/service.go
package triagequery

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"medical-triage/internal/audit"
	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/common/metrics"
	"medical-triage/internal/common/observability"
	"medical-triage/internal/models"
	escalateemergency "medical-triage/internal/workers/notification/escalate-emergency"
	assessseverity "medical-triage/internal/workers/triage/assess-severity"
	classifyquery "medical-triage/internal/workers/triage/classify-query"
	normalizequery "medical-triage/internal/workers/triage/normalize-query"
	rankdocuments "medical-triage/internal/workers/triage/rank-documents"
	retrievedocuments "medical-triage/internal/workers/triage/retrieve-documents"
	synthesizeresponse "medical-triage/internal/workers/triage/synthesize-response"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	emergencyConfidence    = 0.9
	nonEmergencyConfidence = 0.1
)

var emergencyRecommendations = []string{
	"Seek immediate medical attention",
	"Call emergency services if available",
	"Go to the nearest hospital or healthcare facility",
}

// Stages are the pipeline components in call order. Retriever may be nil, in
// which case every query is answered without documents.
type Stages struct {
	Normalizer  *normalizequery.Handler
	Classifier  *classifyquery.Handler
	Assessor    *assessseverity.Handler
	Retriever   *retrievedocuments.Handler
	Ranker      *rankdocuments.Handler
	Synthesizer *synthesizeresponse.Handler
}

// Escalator notifies on-call staff about an emergency.
type Escalator interface {
	Execute(ctx context.Context, input *escalateemergency.Input) (*escalateemergency.Output, error)
}

type Option func(*Service)

func WithRecorder(r audit.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithEscalator(e Escalator) Option {
	return func(s *Service) { s.escalator = e }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

// Service runs the full normalize → classify → assess → retrieve → rank →
// synthesize pipeline. It is safe for concurrent use.
type Service struct {
	config    *Config
	stages    Stages
	recorder  audit.Recorder
	escalator Escalator
	obs       *observability.Observability
	logger    logger.Logger

	createdAt time.Time
	readyAt   time.Time

	queries           atomic.Int64
	failures          atomic.Int64
	emergencies       atomic.Int64
	retrievalFailures atomic.Int64
	retrievalDegraded atomic.Bool

	escalations sync.WaitGroup
}

func NewService(config *Config, stages Stages, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		config:    config,
		stages:    stages,
		recorder:  audit.NopRecorder{},
		logger:    log.WithFields(map[string]interface{}{"component": "triage"}),
		createdAt: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.readyAt = time.Now()
	return s
}

// Triage answers one query. Only an InputError is returned; every other
// failure degrades to a disclaimer-bearing response.
func (s *Service) Triage(ctx context.Context, req TriageRequest) (*models.GeneratedResponse, error) {
	start := time.Now()
	s.queries.Add(1)
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}

	ctx, span := s.obs.StartSpan(ctx, "triage", attribute.String("requestId", req.RequestID))
	resp, q, err := s.run(ctx, req)
	observability.EndSpan(span, err)
	if err != nil {
		s.failures.Add(1)
		s.logger.Warn("triage rejected", map[string]interface{}{
			"requestId": req.RequestID,
			"error":     err.Error(),
		})
		return nil, err
	}

	duration := time.Since(start)
	resp.Metadata["requestId"] = req.RequestID
	resp.Metadata["processingTimeMs"] = duration.Milliseconds()

	metrics.TriageRequests.WithLabelValues(string(q.QueryType), string(resp.ResponseType)).Inc()
	if q.EmergencyDetected {
		s.emergencies.Add(1)
		metrics.EmergenciesDetected.WithLabelValues(string(q.Language)).Inc()
	}

	s.record(ctx, req.RequestID, q, resp, duration)
	if resp.EmergencyAlert {
		s.escalate(req, q, resp)
	}

	fields := map[string]interface{}{
		"requestId":    req.RequestID,
		"language":     q.Language,
		"queryType":    q.QueryType,
		"responseType": resp.ResponseType,
		"symptoms":     len(q.SymptomTags),
		"emergency":    resp.EmergencyAlert,
		"durationMs":   duration.Milliseconds(),
	}
	if duration > s.config.SlowThreshold {
		s.logger.Warn("triage exceeded threshold", fields)
	} else {
		s.logger.Info("triage completed", fields)
	}
	return resp, nil
}

func (s *Service) run(ctx context.Context, req TriageRequest) (*models.GeneratedResponse, *models.NormalizedQuery, error) {
	var q *models.NormalizedQuery
	err := s.stage(ctx, "normalize", func(context.Context) error {
		var err error
		q, err = s.stages.Normalizer.Process(req.Text)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.observe(ctx, "classify", func(context.Context) {
		q.QueryType, q.Confidence = s.stages.Classifier.Classify(q)
	})

	var assessments []models.SeverityAssessment
	if len(q.SymptomTags) > 0 && s.stages.Assessor != nil {
		s.observe(ctx, "assess", func(context.Context) {
			assessments = s.stages.Assessor.AssessAll(q.SymptomTags, q.Language)
		})
	}

	candidates, degraded := s.retrieve(ctx, q)

	var ranked []models.RankedDocument
	s.observe(ctx, "rank", func(context.Context) {
		if req.MaxResults > 0 {
			ranked = s.stages.Ranker.RankTopK(candidates, q, req.MaxResults)
		} else {
			ranked = s.stages.Ranker.Rank(candidates, q)
		}
	})

	var resp *models.GeneratedResponse
	s.observe(ctx, "synthesize", func(context.Context) {
		resp = s.stages.Synthesizer.SynthesizeWithConfidence(q, ranked, rankdocuments.Confidence(ranked))
	})

	if resp.Metadata == nil {
		resp.Metadata = map[string]interface{}{}
	}
	if len(assessments) > 0 {
		resp.Metadata["severity"] = assessments
		resp.Metadata["primarySeverity"] = assessseverity.Primary(assessments)
	}
	if degraded {
		resp.Metadata["retrievalDegraded"] = true
	}
	return resp, q, nil
}

// retrieve swallows retrieval failures; the caller answers without
// documents and the response is flagged as degraded.
func (s *Service) retrieve(ctx context.Context, q *models.NormalizedQuery) ([]models.RetrievedDocument, bool) {
	if s.stages.Retriever == nil {
		return nil, false
	}
	var candidates []models.RetrievedDocument
	err := s.stage(ctx, "retrieve", func(ctx context.Context) error {
		var err error
		candidates, err = s.stages.Retriever.Retrieve(ctx, q)
		return err
	})
	if err != nil {
		s.retrievalFailures.Add(1)
		s.retrievalDegraded.Store(true)
		code := apperrors.ErrCodeUpstreamRetrieval
		if stdErr, ok := apperrors.AsStandard(err); ok {
			code = stdErr.Code
		}
		s.logger.Warn("retrieval failed, answering without documents", map[string]interface{}{
			"code":  code,
			"error": err.Error(),
		})
		return nil, true
	}
	s.retrievalDegraded.Store(false)
	return candidates, false
}

func (s *Service) stage(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := s.obs.StartSpan(ctx, "triage."+name)
	start := time.Now()
	err := fn(ctx)
	s.finish(ctx, span, name, time.Since(start), err)
	return err
}

// observe times a stage that cannot fail.
func (s *Service) observe(ctx context.Context, name string, fn func(context.Context)) {
	ctx, span := s.obs.StartSpan(ctx, "triage."+name)
	start := time.Now()
	fn(ctx)
	s.finish(ctx, span, name, time.Since(start), nil)
}

func (s *Service) finish(ctx context.Context, span trace.Span, name string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.StageDuration.WithLabelValues(name).Observe(duration.Seconds())
	s.obs.RecordStage(ctx, name, duration, status)
	observability.EndSpan(span, err)
}

func (s *Service) record(ctx context.Context, requestID string, q *models.NormalizedQuery, resp *models.GeneratedResponse, duration time.Duration) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.AuditTimeout)
	defer cancel()
	if err := s.recorder.Record(ctx, audit.NewRecord(requestID, q, resp, duration)); err != nil {
		s.logger.Warn("audit record dropped", map[string]interface{}{
			"requestId": requestID,
			"error":     err.Error(),
		})
	}
}

// escalate notifies on-call staff in the background. Use Wait to drain
// outstanding escalations on shutdown.
func (s *Service) escalate(req TriageRequest, q *models.NormalizedQuery, resp *models.GeneratedResponse) {
	if !s.config.EscalationEnabled || s.escalator == nil {
		return
	}
	facility := req.FacilityID
	if facility == "" {
		facility = s.config.DefaultFacility
	}
	input := &escalateemergency.Input{
		RequestID:  req.RequestID,
		ResponseID: resp.ResponseID,
		FacilityID: facility,
		Language:   string(q.Language),
		Indicators: q.IndicatorTags(),
		Location:   req.Location,
	}

	s.escalations.Add(1)
	go func() {
		defer s.escalations.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.config.EscalationTimeout)
		defer cancel()

		out, err := s.escalator.Execute(ctx, input)
		if err != nil {
			s.logger.Error("emergency escalation failed", map[string]interface{}{
				"requestId":  input.RequestID,
				"facilityId": input.FacilityID,
				"error":      err.Error(),
			})
			return
		}
		s.logger.Info("emergency escalated", map[string]interface{}{
			"requestId":     input.RequestID,
			"escalationId":  out.EscalationID,
			"status":        out.Status,
			"notifications": len(out.Notifications),
		})
	}()
}

// Wait blocks until background escalations finish.
func (s *Service) Wait() {
	s.escalations.Wait()
}

// CheckEmergency screens text for emergency indicators only.
func (s *Service) CheckEmergency(text string) (*EmergencyCheck, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewInputError("query text is empty")
	}
	detected, indicators := s.stages.Normalizer.DetectEmergencyFast(text)
	check := &EmergencyCheck{
		IsEmergency:     detected,
		Indicators:      indicators,
		Confidence:      nonEmergencyConfidence,
		Recommendations: []string{},
	}
	if indicators == nil {
		check.Indicators = []models.EmergencyIndicator{}
	}
	if detected {
		check.Confidence = emergencyConfidence
		check.Recommendations = append(check.Recommendations, emergencyRecommendations...)
	}
	return check, nil
}

// ExtractSymptoms normalizes and classifies text without retrieval.
func (s *Service) ExtractSymptoms(text string) (*SymptomExtraction, error) {
	q, err := s.stages.Normalizer.Process(text)
	if err != nil {
		return nil, err
	}
	q.QueryType, q.Confidence = s.stages.Classifier.Classify(q)

	indicators := q.EmergencyIndicators
	if indicators == nil {
		indicators = []models.EmergencyIndicator{}
	}
	return &SymptomExtraction{
		Symptoms:           orEmpty(q.SymptomTags),
		Indicators:         indicators,
		EmergencyDetected:  q.EmergencyDetected,
		Language:           q.Language,
		QueryType:          q.QueryType,
		Confidence:         q.Confidence,
		Duration:           q.Duration,
		SeverityModifiers:  orEmpty(q.SeverityModifiers),
		SpecialPopulations: orEmpty(q.SpecialPopulations),
		Temperature:        q.Temperature,
	}, nil
}

// Assess runs one disease profile, or every profile when disease is empty.
func (s *Service) Assess(tags []string, disease string, lang models.Language) ([]models.SeverityAssessment, error) {
	if len(tags) == 0 {
		return nil, apperrors.NewInputError("symptoms are required")
	}
	if disease == "" {
		return s.stages.Assessor.AssessAll(tags, lang), nil
	}
	a, err := s.stages.Assessor.AssessIn(tags, disease, lang)
	if err != nil {
		return nil, err
	}
	return []models.SeverityAssessment{*a}, nil
}

func (s *Service) Stats() *Stats {
	queries := s.queries.Load()
	failures := s.failures.Load()
	denominator := queries
	if denominator < 1 {
		denominator = 1
	}

	retrieval := "disabled"
	if s.stages.Retriever != nil {
		retrieval = s.stages.Retriever.Backend()
	}
	status := StatusOperational
	if s.retrievalDegraded.Load() {
		retrieval += " (degraded)"
		status = StatusDegraded
	}

	_, auditOff := s.recorder.(audit.NopRecorder)
	return &Stats{
		Status:                    status,
		TotalQueries:              queries,
		TotalErrors:               failures,
		EmergenciesDetected:       s.emergencies.Load(),
		RetrievalFailures:         s.retrievalFailures.Load(),
		ErrorRate:                 float64(failures) / float64(denominator),
		UptimeSeconds:             time.Since(s.createdAt).Seconds(),
		InitializationTimeSeconds: s.readyAt.Sub(s.createdAt).Seconds(),
		Components: map[string]string{
			"normalizer":  "ready",
			"classifier":  "ready",
			"assessor":    "ready",
			"retrieval":   retrieval,
			"ranker":      "ready",
			"synthesizer": "ready",
			"audit":       enabled(!auditOff),
			"escalation":  enabled(s.config.EscalationEnabled && s.escalator != nil),
		},
	}
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
