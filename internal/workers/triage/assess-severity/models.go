// internal/workers/triage/assess-severity/models.go
package assessseverity

import "medical-triage/internal/models"

// Input names one disease, or none to assess every loaded profile.
type Input struct {
	SymptomTags []string        `json:"symptomTags"`
	Disease     string          `json:"disease,omitempty"`
	Language    models.Language `json:"language,omitempty"`
}

type Output struct {
	Assessments []models.SeverityAssessment `json:"assessments"`
	Primary     *models.SeverityAssessment  `json:"primary,omitempty"`
	Emergency   bool                        `json:"emergency"`
}
