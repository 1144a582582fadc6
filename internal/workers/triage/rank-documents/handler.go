// internal/workers/triage/rank-documents/handler.go
package rankdocuments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "rank-documents"
)

const (
	emergencySectionBoost = 0.3
	emergencyTagBoost     = 0.2
	symptomMatchWeight    = 0.25
	maxAuthorityBoost     = 0.15
)

// sectionBoosts rewards documents whose section fits the query type.
var sectionBoosts = map[models.QueryType]struct {
	section string
	boost   float64
}{
	models.QueryTypeSymptomInquiry:    {models.SectionSymptoms, 0.1},
	models.QueryTypeEmergency:         {models.SectionEmergency, 0.15},
	models.QueryTypePreventionInquiry: {models.SectionPrevention, 0.1},
}

var (
	ErrNilInput = errors.New("input cannot be nil")
)

type Handler struct {
	config *Config
	store  *lexicon.Store
	logger logger.Logger
}

func NewHandler(config *Config, store *lexicon.Store, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		store:  store,
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
		h.failJob(client, job, "RANKING_FAILED", err.Error())
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(_ context.Context, input *Input) (*Output, error) {
	if input == nil || input.NormalizedQuery == nil {
		return nil, ErrNilInput
	}

	ranked := h.RankTopK(input.Candidates, input.NormalizedQuery, input.TopK)
	return &Output{
		RankedDocuments: ranked,
		Confidence:      Confidence(ranked),
		Stats:           Stats(ranked),
	}, nil
}

// Rank re-scores candidates with medical-context boosts and returns at most
// MaxItems documents sorted by final score.
func (h *Handler) Rank(candidates []models.RetrievedDocument, q *models.NormalizedQuery) []models.RankedDocument {
	return h.RankTopK(candidates, q, h.config.MaxItems)
}

// RankTopK is Rank with an explicit limit; k <= 0 means MaxItems.
func (h *Handler) RankTopK(candidates []models.RetrievedDocument, q *models.NormalizedQuery, k int) []models.RankedDocument {
	if k <= 0 {
		k = h.config.MaxItems
	}
	if q == nil {
		q = &models.NormalizedQuery{}
	}
	start := time.Now()

	querySymptoms := map[string]bool{}
	for _, tag := range q.SymptomTags {
		querySymptoms[lexicon.Fold(tag)] = true
	}
	emergencyQuery := q.QueryType == models.QueryTypeEmergency || q.EmergencyDetected

	ranked := make([]models.RankedDocument, 0, len(candidates))
	malformed := 0
	for _, doc := range candidates {
		if err := validateDocument(doc); err != nil {
			malformed++
			h.logger.Warn("skipping malformed document", map[string]interface{}{
				"documentId": doc.ID,
				"error":      err.Error(),
			})
			continue
		}
		if doc.SectionType == "" {
			doc.SectionType = models.SectionGeneral
		}

		boosts := h.boosts(doc, q.QueryType, emergencyQuery, querySymptoms)
		ranked = append(ranked, models.RankedDocument{
			Document:         doc,
			Boosts:           boosts,
			FinalScore:       doc.RawScore + boosts.Total(),
			RelevanceReasons: h.reasons(doc, boosts),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FinalScore != ranked[j].FinalScore {
			return ranked[i].FinalScore > ranked[j].FinalScore
		}
		return ranked[i].Document.ID < ranked[j].Document.ID
	})

	// ranked is sorted, so the first copy of a repeated id is its best score.
	accepted := make([]models.RankedDocument, 0, k)
	acceptedTokens := make([]map[string]bool, 0, k)
	seenIDs := map[string]bool{}
	belowThreshold, duplicates := 0, 0
	for _, r := range ranked {
		if len(accepted) == k {
			break
		}
		if seenIDs[r.Document.ID] {
			duplicates++
			continue
		}
		seenIDs[r.Document.ID] = true
		if r.FinalScore < h.config.MinScore || utf8.RuneCountInString(strings.TrimSpace(r.Document.Content)) < h.config.MinContentLength {
			belowThreshold++
			continue
		}
		tokens := tokenSet(r.Document.Content)
		if isNearDuplicate(tokens, acceptedTokens, h.config.DuplicateThreshold) {
			duplicates++
			continue
		}
		accepted = append(accepted, r)
		acceptedTokens = append(acceptedTokens, tokens)
	}

	duration := time.Since(start).Milliseconds()
	h.logger.Info("ranking completed", map[string]interface{}{
		"inputCount":     len(candidates),
		"outputCount":    len(accepted),
		"malformed":      malformed,
		"belowThreshold": belowThreshold,
		"duplicates":     duplicates,
		"durationMs":     duration,
	})
	if duration > 500 {
		h.logger.Warn("ranking exceeded 500ms", map[string]interface{}{
			"durationMs": duration,
		})
	}
	return accepted
}

func (h *Handler) boosts(doc models.RetrievedDocument, queryType models.QueryType, emergencyQuery bool, querySymptoms map[string]bool) models.BoostComponents {
	var b models.BoostComponents

	if emergencyQuery && doc.SectionType == models.SectionEmergency {
		b.Emergency += emergencySectionBoost
	}
	if len(doc.EmergencyTags) > 0 {
		b.Emergency += emergencyTagBoost
	}

	if len(querySymptoms) > 0 {
		matched := map[string]bool{}
		for _, tag := range doc.SymptomTags {
			if t := lexicon.Fold(tag); querySymptoms[t] {
				matched[t] = true
			}
		}
		for tag := range matched {
			b.MatchedSymptoms = append(b.MatchedSymptoms, tag)
		}
		sort.Strings(b.MatchedSymptoms)
		b.SymptomMatch = float64(len(matched)) / float64(len(querySymptoms)) * symptomMatchWeight
	}

	if src, ok := h.store.Source(doc.SourceID); ok {
		b.Authority = math.Min(src.Authority, maxAuthorityBoost)
	}

	if want, ok := sectionBoosts[queryType]; ok && want.section == doc.SectionType {
		b.SectionMatch = want.boost
	}
	return b
}

func (h *Handler) reasons(doc models.RetrievedDocument, b models.BoostComponents) []string {
	var reasons []string
	if b.Emergency > 0 {
		reasons = append(reasons, "Emergency medical content")
	}
	if len(b.MatchedSymptoms) > 0 {
		reasons = append(reasons, "Matches symptoms: "+strings.Join(b.MatchedSymptoms, ", "))
	}
	if b.Authority > 0 {
		name := doc.SourceID
		if src, ok := h.store.Source(doc.SourceID); ok && src.Name != "" {
			name = src.Name
		}
		reasons = append(reasons, "Authoritative source: "+name)
	}
	if b.SectionMatch > 0 {
		reasons = append(reasons, "Relevant content type: "+doc.SectionType)
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "General medical relevance")
	}
	return reasons
}

func validateDocument(doc models.RetrievedDocument) error {
	switch {
	case strings.TrimSpace(doc.ID) == "":
		return apperrors.NewMalformedDocumentError(doc.ID, "missing id")
	case strings.TrimSpace(doc.Content) == "":
		return apperrors.NewMalformedDocumentError(doc.ID, "missing content")
	case doc.SectionType != "" && !models.IsValidSection(doc.SectionType):
		return apperrors.NewMalformedDocumentError(doc.ID, "unknown section type "+doc.SectionType)
	case math.IsNaN(doc.RawScore) || math.IsInf(doc.RawScore, 0):
		return apperrors.NewMalformedDocumentError(doc.ID, "invalid score")
	}
	return nil
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[tok] = true
	}
	return set
}

// Jaccard returns |a ∩ b| / |a ∪ b|. Two empty sets are identical.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for tok := range a {
		if b[tok] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func isNearDuplicate(tokens map[string]bool, accepted []map[string]bool, threshold float64) bool {
	for _, other := range accepted {
		if Jaccard(tokens, other) > threshold {
			return true
		}
	}
	return false
}

// Confidence rates a ranked list: result count (up to three) weighs 0.3 and
// the average final score 0.7.
func Confidence(ranked []models.RankedDocument) float64 {
	if len(ranked) == 0 {
		return 0
	}
	stats := Stats(ranked)
	countFactor := math.Min(float64(len(ranked))/3.0, 1.0)
	return countFactor*0.3 + math.Min(stats.Avg, 1.0)*0.7
}

func Stats(ranked []models.RankedDocument) ScoreStats {
	if len(ranked) == 0 {
		return ScoreStats{}
	}
	s := ScoreStats{Count: len(ranked), Min: ranked[0].FinalScore, Max: ranked[0].FinalScore}
	total := 0.0
	for _, r := range ranked {
		s.Min = math.Min(s.Min, r.FinalScore)
		s.Max = math.Max(s.Max, r.FinalScore)
		total += r.FinalScore
	}
	s.Avg = total / float64(len(ranked))
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
