// internal/workers/triage/triage-query/models.go
package triagequery

import "medical-triage/internal/models"

// TriageRequest is one free-text query plus routing details for escalation.
type TriageRequest struct {
	RequestID  string `json:"requestId,omitempty"`
	Text       string `json:"query"`
	MaxResults int    `json:"maxResults,omitempty"`
	FacilityID string `json:"facilityId,omitempty"`
	Location   string `json:"location,omitempty"`
}

type Input struct {
	TriageRequest
}

type Output struct {
	RequestID      string                    `json:"requestId"`
	Response       *models.GeneratedResponse `json:"response"`
	ResponseType   models.ResponseType       `json:"responseType"`
	QueryType      models.QueryType          `json:"queryType"`
	EmergencyAlert bool                      `json:"emergencyAlert"`
}

// EmergencyCheck is the fast emergency screen result.
type EmergencyCheck struct {
	IsEmergency     bool                        `json:"isEmergency"`
	Indicators      []models.EmergencyIndicator `json:"emergencyIndicators"`
	Confidence      float64                     `json:"confidence"`
	Recommendations []string                    `json:"recommendations"`
}

// SymptomExtraction is the normalizer's view of a query without retrieval.
type SymptomExtraction struct {
	Symptoms           []string                    `json:"symptoms"`
	Indicators         []models.EmergencyIndicator `json:"emergencyIndicators"`
	EmergencyDetected  bool                        `json:"emergencyDetected"`
	Language           models.Language             `json:"language"`
	QueryType          models.QueryType            `json:"queryType"`
	Confidence         float64                     `json:"confidence"`
	Duration           string                      `json:"duration,omitempty"`
	SeverityModifiers  []string                    `json:"severityModifiers"`
	SpecialPopulations []string                    `json:"specialPopulations"`
	Temperature        *models.Temperature         `json:"temperature,omitempty"`
}

// Stats describes the service since start.
type Stats struct {
	Status                    string            `json:"systemStatus"` // operational | degraded
	TotalQueries              int64             `json:"totalQueries"`
	TotalErrors               int64             `json:"totalErrors"`
	EmergenciesDetected       int64             `json:"emergenciesDetected"`
	RetrievalFailures         int64             `json:"retrievalFailures"`
	ErrorRate                 float64           `json:"errorRate"`
	UptimeSeconds             float64           `json:"uptimeSeconds"`
	InitializationTimeSeconds float64           `json:"initializationTimeSeconds"`
	Components                map[string]string `json:"components"`
}

const (
	StatusOperational = "operational"
	StatusDegraded    = "degraded"
)
