// internal/models/document.go
package models

// Section types of knowledge-base documents.
const (
	SectionSymptoms   = "symptoms"
	SectionEmergency  = "emergency"
	SectionGeneral    = "general"
	SectionPrevention = "prevention"
	SectionTreatment  = "treatment"
)

var validSections = map[string]bool{
	SectionSymptoms:   true,
	SectionEmergency:  true,
	SectionGeneral:    true,
	SectionPrevention: true,
	SectionTreatment:  true,
}

// IsValidSection reports whether s is a known section type.
func IsValidSection(s string) bool {
	return validSections[s]
}

// RetrievedDocument is a raw candidate returned by the knowledge-base search.
type RetrievedDocument struct {
	ID            string   `json:"id"`
	Title         string   `json:"title,omitempty"`
	Content       string   `json:"content"`
	SectionType   string   `json:"sectionType"`
	SourceID      string   `json:"sourceId"`
	RawScore      float64  `json:"rawScore"`
	SymptomTags   []string `json:"symptomTags,omitempty"`
	EmergencyTags []string `json:"emergencyTags,omitempty"`
}

// BoostComponents records each additive adjustment applied by the ranker.
type BoostComponents struct {
	Emergency       float64  `json:"emergency"`
	SymptomMatch    float64  `json:"symptomMatch"`
	Authority       float64  `json:"authority"`
	SectionMatch    float64  `json:"sectionMatch"`
	MatchedSymptoms []string `json:"matchedSymptoms,omitempty"`
}

// Total is the sum of all boosts.
func (b BoostComponents) Total() float64 {
	return b.Emergency + b.SymptomMatch + b.Authority + b.SectionMatch
}

// RankedDocument is a candidate after medical-context re-scoring.
type RankedDocument struct {
	Document         RetrievedDocument `json:"document"`
	Boosts           BoostComponents   `json:"boostComponents"`
	FinalScore       float64           `json:"finalScore"`
	RelevanceReasons []string          `json:"relevanceReasons"`
}

// SearchRequest is the call made to the knowledge-base search.
type SearchRequest struct {
	Query       string   `json:"query"`
	TopK        int      `json:"topK"`
	ContextHint string   `json:"contextHint,omitempty"`
	MinScore    float64  `json:"minScore"`
	Symptoms    []string `json:"symptoms,omitempty"`
}
