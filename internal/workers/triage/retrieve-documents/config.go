// internal/workers/triage/retrieve-documents/config.go
package retrievedocuments

import "time"

type Config struct {
	TopK              int
	MinScore          float64
	EmergencyMinScore float64
	Timeout           time.Duration
	PoolSize          int
	QueueSize         int
}

func LoadConfig() *Config {
	return &Config{
		TopK:              10,
		MinScore:          0,
		EmergencyMinScore: 0.6,
		Timeout:           3 * time.Second,
		PoolSize:          4,
		QueueSize:         64,
	}
}
