// internal/workers/notification/escalate-emergency/models.go
package escalateemergency

import "medical-triage/internal/models"

type Input struct {
	RequestID  string   `json:"requestId"`
	ResponseID string   `json:"responseId,omitempty"`
	FacilityID string   `json:"facilityId,omitempty"`
	Language   string   `json:"language,omitempty"`
	Indicators []string `json:"indicators"`
	Location   string   `json:"location,omitempty"`
}

type Output struct {
	EscalationID  string                `json:"escalationId"`
	Status        string                `json:"status"` // "sent", "partial", "failed", "disabled"
	Notifications []models.Notification `json:"notifications"`
	SentAt        string                `json:"sentAt"` // ISO 8601
}

// Channels
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Statuses
const (
	StatusSent     = "sent"
	StatusPartial  = "partial"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)
