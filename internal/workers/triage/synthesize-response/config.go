// internal/workers/triage/synthesize-response/config.go
package synthesizeresponse

import "time"

type Config struct {
	MaxLength      int
	ValidateSchema bool
	Timeout        time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MaxLength:      500,
		ValidateSchema: true,
		Timeout:        5 * time.Second,
	}
}
