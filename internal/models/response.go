// internal/models/response.go
package models

import "time"

// ResponseType selects the composition template of a response.
type ResponseType string

const (
	ResponseEmergencyAlert          ResponseType = "emergency_alert"
	ResponseSymptomGuidance         ResponseType = "symptom_guidance"
	ResponsePreventionGuidance      ResponseType = "prevention_guidance"
	ResponseGeneralMedical          ResponseType = "general_medical"
	ResponseInsufficientInformation ResponseType = "insufficient_information"
)

// AllResponseTypes is used to check that every type has a composer.
var AllResponseTypes = []ResponseType{
	ResponseEmergencyAlert,
	ResponseSymptomGuidance,
	ResponsePreventionGuidance,
	ResponseGeneralMedical,
	ResponseInsufficientInformation,
}

// Disclaimer situations.
const (
	DisclaimerGeneral   = "general"
	DisclaimerEmergency = "emergency"
	DisclaimerPregnancy = "pregnancy"
	DisclaimerWarning   = "warning"
)

// Source is an attributed knowledge source.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GeneratedResponse is the final, disclaimer-bearing answer.
type GeneratedResponse struct {
	ResponseID      string                 `json:"responseId"`
	ResponseText    string                 `json:"responseText"`
	ResponseType    ResponseType           `json:"responseType"`
	Confidence      float64                `json:"confidence"`
	Disclaimers     []string               `json:"disclaimers"`
	Recommendations []string               `json:"recommendations"`
	Sources         []Source               `json:"sources"`
	EmergencyAlert  bool                   `json:"emergencyAlert"`
	Metadata        map[string]interface{} `json:"metadata"`
	GeneratedAt     time.Time              `json:"generatedAt"`
}
