// internal/workers/triage/triage-query/config.go
package triagequery

import "time"

type Config struct {
	Timeout           time.Duration
	EscalationEnabled bool
	EscalationTimeout time.Duration
	AuditTimeout      time.Duration
	DefaultFacility   string
	// SlowThreshold triggers a warning for pipelines that take longer.
	SlowThreshold time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:           15 * time.Second,
		EscalationTimeout: 30 * time.Second,
		AuditTimeout:      2 * time.Second,
		DefaultFacility:   "default",
		SlowThreshold:     2 * time.Second,
	}
}
