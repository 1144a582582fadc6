// internal/workers/triage/retrieve-documents/memory.go
package retrievedocuments

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"medical-triage/internal/knowledge"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"
)

const BackendMemory = "memory"

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "have": true, "has": true,
	"are": true, "was": true, "what": true, "how": true, "can": true, "you": true,
	"your": true, "from": true, "this": true, "that": true, "been": true, "since": true,
}

// MemorySearcher scores an in-process corpus by word and symptom-tag
// overlap. It backs local runs and tests when Elasticsearch is disabled.
type MemorySearcher struct {
	docs   []knowledge.Document
	tokens []map[string]bool
}

func NewMemorySearcher(docs []knowledge.Document) *MemorySearcher {
	s := &MemorySearcher{docs: docs, tokens: make([]map[string]bool, len(docs))}
	for i, d := range docs {
		s.tokens[i] = tokenSet(d.Title + " " + d.Content)
	}
	return s
}

// NewSeedSearcher serves the embedded demo corpus.
func NewSeedSearcher() (*MemorySearcher, error) {
	docs, err := knowledge.Seed()
	if err != nil {
		return nil, err
	}
	return NewMemorySearcher(docs), nil
}

func (s *MemorySearcher) Name() string { return BackendMemory }

// Search returns documents scoring at least MinScore, best first. With no
// symptoms the score is the share of query words found in the document;
// otherwise it is the mean of that share and the share of request symptoms
// tagged on the document.
func (s *MemorySearcher) Search(ctx context.Context, req models.SearchRequest) ([]models.RetrievedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := tokenSet(req.Query)
	var out []models.RetrievedDocument
	for i, d := range s.docs {
		if !sectionAllowed(req.ContextHint, d.Section) {
			continue
		}
		score := overlap(words, s.tokens[i])
		if len(req.Symptoms) > 0 {
			score = (score + symptomOverlap(req.Symptoms, d)) / 2
		}
		if score <= 0 || score < req.MinScore {
			continue
		}
		out = append(out, d.Retrieved(score))
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].RawScore > out[j].RawScore })
	if req.TopK > 0 && len(out) > req.TopK {
		out = out[:req.TopK]
	}
	return out, nil
}

// sectionAllowed applies the context pre-filter: the hinted section plus
// general documents.
func sectionAllowed(hint, section string) bool {
	return hint == "" || section == hint || section == models.SectionGeneral
}

func tokenSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.FieldsFunc(lexicon.Fold(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && !unicode.Is(unicode.Mn, r) && !unicode.Is(unicode.Mc, r)
	}) {
		if len([]rune(w)) >= 3 && !stopwords[w] {
			set[w] = true
		}
	}
	return set
}

func overlap(query, doc map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	hits := 0
	for w := range query {
		if doc[w] {
			hits++
		}
	}
	return float64(hits) / float64(len(query))
}

func symptomOverlap(symptoms []string, d knowledge.Document) float64 {
	tagged := map[string]bool{}
	for _, t := range d.Symptoms {
		tagged[t] = true
	}
	for _, t := range d.EmergencyTags {
		tagged[t] = true
	}
	hits := 0
	for _, s := range symptoms {
		if tagged[s] {
			hits++
		}
	}
	return float64(hits) / float64(len(symptoms))
}
