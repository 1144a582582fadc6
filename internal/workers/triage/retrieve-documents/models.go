// internal/workers/triage/retrieve-documents/models.go
package retrievedocuments

import "medical-triage/internal/models"

type Input struct {
	NormalizedQuery *models.NormalizedQuery `json:"normalizedQuery"`
	TopK            int                     `json:"topK,omitempty"`
}

type Output struct {
	Candidates []models.RetrievedDocument `json:"candidates"`
	Request    models.SearchRequest       `json:"searchRequest"`
	Backend    string                     `json:"backend"`
	DurationMs int64                      `json:"durationMs"`
}
