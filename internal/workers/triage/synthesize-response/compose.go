// internal/workers/triage/synthesize-response/compose.go
package synthesizeresponse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"
)

const (
	emergencyHeader      = "🚨 MEDICAL EMERGENCY DETECTED 🚨"
	maxIndicatorsShown   = 3
	summaryDocuments     = 3
	sentencesPerDocument = 2
	minSentenceLength    = 20
	excerptDocuments     = 2
	maxExcerptSentence   = 150
)

var emergencyChecklist = []string{
	"IMMEDIATE ACTION REQUIRED:",
	"• Go to the nearest hospital or emergency medical facility immediately",
	"• Call emergency services if available (dial 108 in India)",
	"• Do not delay seeking medical care",
	"• If possible, have someone accompany the patient",
}

var (
	sentenceBoundary = regexp.MustCompile(`[.!?।]+`)
	emergencyTerms   = regexp.MustCompile(`(?i)\b(emergency|immediate|immediately|urgent|serious)\b`)
)

// composition carries everything a composer may draw on.
type composition struct {
	query    *models.NormalizedQuery
	ranked   []models.RankedDocument
	guidance []*lexicon.DiseaseProfile
}

type composer func(h *Handler, c *composition) string

// composers maps every response type to its template. init checks that the
// table covers models.AllResponseTypes.
var composers = map[models.ResponseType]composer{
	models.ResponseEmergencyAlert:          (*Handler).composeEmergency,
	models.ResponseSymptomGuidance:         (*Handler).composeSymptomGuidance,
	models.ResponsePreventionGuidance:      (*Handler).composePrevention,
	models.ResponseGeneralMedical:          (*Handler).composeGeneral,
	models.ResponseInsufficientInformation: (*Handler).composeInsufficient,
}

func init() {
	for _, t := range models.AllResponseTypes {
		if _, ok := composers[t]; !ok {
			panic(fmt.Sprintf("synthesizeresponse: no composer for response type %q", t))
		}
	}
}

func (h *Handler) composeEmergency(c *composition) string {
	parts := []string{emergencyHeader, ""}

	tags := c.query.ClinicalIndicatorTags()
	if len(tags) > maxIndicatorsShown {
		tags = tags[:maxIndicatorsShown]
	}
	if len(tags) > 0 {
		parts = append(parts, fmt.Sprintf("The symptoms '%s' may indicate a serious medical emergency.", strings.Join(tags, ", ")))
	} else {
		parts = append(parts, "The described symptoms may indicate a serious medical emergency.")
	}

	parts = append(parts, "")
	parts = append(parts, emergencyChecklist...)

	if excerpt := emergencyExcerpt(c.ranked); excerpt != "" {
		parts = append(parts, "", "IMPORTANT MEDICAL INFORMATION:", excerpt)
	}
	return strings.Join(parts, "\n")
}

func (h *Handler) composeSymptomGuidance(c *composition) string {
	symptoms := c.query.SymptomTags
	var parts []string

	switch len(symptoms) {
	case 0:
		parts = append(parts, "Based on your health concern, here's relevant medical information:")
	case 1:
		parts = append(parts, fmt.Sprintf("Based on your symptom of %s, here's what you should know:", symptoms[0]))
	default:
		last := len(symptoms) - 1
		parts = append(parts, fmt.Sprintf("Based on your symptoms of %s and %s, here's what you should know:",
			strings.Join(symptoms[:last], ", "), symptoms[last]))
	}
	parts = append(parts, "")

	if summary := h.truncate(evidenceSummary(c.ranked, symptoms)); summary != "" {
		parts = append(parts, summary, "")
	}

	for _, profile := range c.guidance {
		parts = append(parts, profile.Guidance.Heading+":", guidanceText(profile.Guidance, symptoms), "")
	}

	if c.query.Duration != "" {
		parts = append(parts, fmt.Sprintf("Since you've had these symptoms for %s, it's important to seek medical evaluation.", c.query.Duration))
	}
	return strings.TrimRight(strings.Join(parts, "\n"), "\n")
}

func (h *Handler) composePrevention(c *composition) string {
	parts := []string{"Here's how you can lower your risk:", ""}
	if summary := h.truncate(evidenceSummary(c.ranked, c.query.SymptomTags)); summary != "" {
		parts = append(parts, summary, "")
	}
	parts = append(parts, "Prevention works best alongside regular check-ups with a healthcare provider.")
	return strings.Join(parts, "\n")
}

func (h *Handler) composeGeneral(c *composition) string {
	if len(c.ranked) == 0 {
		return h.composeInsufficient(c)
	}
	parts := []string{"Based on available medical information:", ""}
	if summary := h.truncate(evidenceSummary(c.ranked, c.query.SymptomTags)); summary != "" {
		parts = append(parts, summary, "")
	}
	parts = append(parts, "For personalized medical advice and proper evaluation, please consult with a healthcare professional.")
	return strings.Join(parts, "\n")
}

func (h *Handler) composeInsufficient(_ *composition) string {
	return strings.Join([]string{
		"I'm unable to provide specific medical information for your query.",
		"",
		"This could be because:",
		"• The query is not medical in nature",
		"• Insufficient medical information is available",
		"• The symptoms described are too general",
		"",
		"For any health concerns, please consult with a qualified healthcare provider who can properly evaluate your situation.",
	}, "\n")
}

// truncate caps the evidence summary only.
func (h *Handler) truncate(s string) string {
	max := h.config.MaxLength
	if max <= 3 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:max-3])) + "..."
}

func splitSentences(content string) []string {
	var out []string
	for _, s := range sentenceBoundary.Split(content, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// evidenceSummary takes up to two sentences from each of the top documents,
// preferring sentences that name a queried symptom. One sentence per
// document is kept even when no symptom is named.
func evidenceSummary(ranked []models.RankedDocument, symptoms []string) string {
	if len(ranked) > summaryDocuments {
		ranked = ranked[:summaryDocuments]
	}

	var pieces []string
	for _, r := range ranked {
		var relevant []string
		for _, sentence := range splitSentences(r.Document.Content) {
			if utf8.RuneCountInString(sentence) < minSentenceLength {
				continue
			}
			if mentionsAny(sentence, symptoms) || len(relevant) < 1 {
				relevant = append(relevant, sentence+".")
			}
		}
		if len(relevant) > sentencesPerDocument {
			relevant = relevant[:sentencesPerDocument]
		}
		pieces = append(pieces, relevant...)
	}
	return strings.Join(pieces, " ")
}

func mentionsAny(sentence string, symptoms []string) bool {
	folded := lexicon.Fold(sentence)
	for _, s := range symptoms {
		if s != "" && strings.Contains(folded, lexicon.Fold(s)) {
			return true
		}
	}
	return false
}

// emergencyExcerpt pulls one short emergency sentence from each of the top
// two emergency documents. Untagged documents are used when none are tagged.
func emergencyExcerpt(ranked []models.RankedDocument) string {
	var pool []models.RankedDocument
	for _, r := range ranked {
		if len(r.Document.EmergencyTags) > 0 || r.Document.SectionType == models.SectionEmergency {
			pool = append(pool, r)
		}
	}
	if len(pool) == 0 {
		pool = ranked
	}
	if len(pool) > excerptDocuments {
		pool = pool[:excerptDocuments]
	}

	var out []string
	for _, r := range pool {
		for _, sentence := range splitSentences(r.Document.Content) {
			if emergencyTerms.MatchString(sentence) && utf8.RuneCountInString(sentence) < maxExcerptSentence {
				out = append(out, sentence+".")
				break
			}
		}
	}
	return strings.Join(out, " ")
}

// matchGuidance returns the disease profiles whose guidance block applies:
// enough marker symptoms in the query, or the disease keyword named in one of
// the top two documents.
func matchGuidance(store *lexicon.Store, symptoms []string, ranked []models.RankedDocument) []*lexicon.DiseaseProfile {
	present := map[string]bool{}
	for _, s := range symptoms {
		present[lexicon.Fold(s)] = true
	}
	top := ranked
	if len(top) > excerptDocuments {
		top = top[:excerptDocuments]
	}

	var out []*lexicon.DiseaseProfile
	for _, profile := range store.Diseases() {
		g := profile.Guidance
		if g == nil {
			continue
		}
		overlap := 0
		for _, marker := range g.Markers {
			if present[marker] {
				overlap++
			}
		}
		if g.MinOverlap > 0 && overlap >= g.MinOverlap {
			out = append(out, profile)
			continue
		}
		if g.Keyword != "" {
			for _, r := range top {
				if strings.Contains(lexicon.Fold(r.Document.Content), g.Keyword) {
					out = append(out, profile)
					break
				}
			}
		}
	}
	return out
}

func guidanceText(g *lexicon.Guidance, symptoms []string) string {
	present := map[string]bool{}
	for _, s := range symptoms {
		present[lexicon.Fold(s)] = true
	}
	parts := []string{g.Lead}
	for _, line := range g.Lines {
		for _, tag := range line.WhenAny {
			if present[tag] {
				parts = append(parts, line.Text)
				break
			}
		}
	}
	if g.Closing != "" {
		parts = append(parts, g.Closing)
	}
	return strings.Join(parts, " ")
}
