// internal/workers/triage/rank-documents/config.go
package rankdocuments

import "time"

type Config struct {
	MaxItems           int
	MinScore           float64
	MinContentLength   int
	DuplicateThreshold float64
	Timeout            time.Duration
}

func LoadConfig() *Config {
	return &Config{
		MaxItems:           5,
		MinScore:           0.3,
		MinContentLength:   20,
		DuplicateThreshold: 0.8,
		Timeout:            5 * time.Second,
	}
}
