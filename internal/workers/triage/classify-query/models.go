// internal/workers/triage/classify-query/models.go
package classifyquery

import "medical-triage/internal/models"

type Input struct {
	NormalizedQuery *models.NormalizedQuery `json:"normalizedQuery"`
}

type Output struct {
	NormalizedQuery *models.NormalizedQuery `json:"normalizedQuery"`
	QueryType       models.QueryType        `json:"queryType"`
	Confidence      float64                 `json:"confidence"`
	ContextHint     string                  `json:"contextHint,omitempty"`
}
