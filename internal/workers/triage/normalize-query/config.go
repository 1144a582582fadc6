// internal/workers/triage/normalize-query/config.go
package normalizequery

import "time"

type Config struct {
	Timeout time.Duration
	// Processing slower than this is logged as a warning.
	SlowThreshold time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       5 * time.Second,
		SlowThreshold: 50 * time.Millisecond,
	}
}
