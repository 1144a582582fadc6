// internal/workers/triage/synthesize-response/models.go
package synthesizeresponse

import "medical-triage/internal/models"

type Input struct {
	NormalizedQuery *models.NormalizedQuery `json:"normalizedQuery"`
	RankedDocuments []models.RankedDocument `json:"rankedDocuments"`
	// RetrievalConfidence is recomputed from RankedDocuments when zero.
	RetrievalConfidence float64 `json:"retrievalConfidence"`
}

type Output struct {
	Response       *models.GeneratedResponse `json:"response"`
	ResponseType   models.ResponseType       `json:"responseType"`
	EmergencyAlert bool                      `json:"emergencyAlert"`
}
