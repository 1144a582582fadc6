// internal/workers/triage/rank-documents/models.go
package rankdocuments

import "medical-triage/internal/models"

type Input struct {
	Candidates      []models.RetrievedDocument `json:"candidates"`
	NormalizedQuery *models.NormalizedQuery    `json:"normalizedQuery"`
	TopK            int                        `json:"topK,omitempty"`
}

type Output struct {
	RankedDocuments []models.RankedDocument `json:"rankedDocuments"`
	Confidence      float64                 `json:"retrievalConfidence"`
	Stats           ScoreStats              `json:"scoreStats"`
}

// ScoreStats summarises final scores for response metadata.
type ScoreStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}
