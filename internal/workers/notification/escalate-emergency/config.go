// internal/workers/notification/escalate-emergency/config.go
package escalateemergency

import "time"

type Config struct {
	EmailEnabled    bool
	SMSEnabled      bool
	FromEmail       string
	SenderID        string
	DefaultFacility string
	MaxContacts     int
	Timeout         time.Duration
}

func LoadConfig() *Config {
	return &Config{
		DefaultFacility: "default",
		MaxContacts:     3,
		Timeout:         30 * time.Second,
	}
}
