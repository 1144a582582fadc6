// internal/workers/triage/normalize-query/models.go
package normalizequery

import "medical-triage/internal/models"

type Input struct {
	QueryID string `json:"queryId,omitempty"`
	Text    string `json:"text"`
}

type Output struct {
	NormalizedQuery *models.NormalizedQuery `json:"normalizedQuery"`
}

type EmergencyOutput struct {
	EmergencyDetected bool                        `json:"emergencyDetected"`
	Indicators        []models.EmergencyIndicator `json:"emergencyIndicators"`
}
