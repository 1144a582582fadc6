// internal/models/notification.go
package models

// HealthWorker is an on-call contact registered for a facility.
type HealthWorker struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	FacilityID string `json:"facilityId"`
}

// Notification records one escalation message sent to a health worker.
type Notification struct {
	ID          string `json:"id"`
	RecipientID string `json:"recipientId"`
	Channel     string `json:"channel"` // email, sms
	Status      string `json:"status"`  // sent, failed, disabled
	MessageID   string `json:"messageId,omitempty"`
	SentAt      string `json:"sentAt"`
}
