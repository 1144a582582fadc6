// internal/models/severity.go
package models

// Tier names shared by every disease profile.
const (
	TierEmergency = "emergency"
	TierUnclear   = "unclear"
)

// SeverityAssessment is the result of running one disease profile over a
// symptom set. Any emergency-partition tag forces Tier to emergency.
type SeverityAssessment struct {
	Disease           string              `json:"disease"`
	Tier              string              `json:"tier"`
	Confidence        float64             `json:"confidence"`
	MatchedTagsByTier map[string][]string `json:"matchedTagsByTier"`
	TotalSymptoms     int                 `json:"totalSymptoms"`
	DisclaimerKey     string              `json:"disclaimerKey,omitempty"`
	Disclaimer        string              `json:"disclaimer,omitempty"`
}

// IsEmergency reports whether the assessment resolved to the emergency tier.
func (s *SeverityAssessment) IsEmergency() bool {
	return s.Tier == TierEmergency
}
