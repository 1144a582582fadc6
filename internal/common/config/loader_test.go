package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "app:\n  name: triage-test\n")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "triage-test", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Retrieval.Backend)
	assert.Equal(t, 3000, cfg.Retrieval.Timeout)
	assert.Equal(t, 5, cfg.Ranking.MaxDocuments)
	assert.Equal(t, 0.8, cfg.Ranking.DuplicateThreshold)
	assert.Equal(t, 500, cfg.Response.MaxLength)
	assert.Equal(t, "medical-knowledge", cfg.Database.Elasticsearch.Index)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "triage-test", cfg.Observability.ServiceName)
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TRIAGE_TEST_ES", "http://es.internal:9200")
	path := writeConfig(t, `
database:
  elasticsearch:
    enabled: true
    addresses:
      - http://localhost:9200
retrieval:
  backend: elasticsearch
camunda:
  enabled: true
  broker_address: ${TRIAGE_TEST_ES}
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://es.internal:9200", cfg.Camunda.BrokerAddress)
	assert.Equal(t, "elasticsearch", cfg.Retrieval.Backend)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "camunda enabled without broker",
			body:    "camunda:\n  enabled: true\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "audit needs postgres",
			body:    "audit:\n  enabled: true\n",
			wantErr: "database.postgres.host",
		},
		{
			name:    "elasticsearch backend without addresses",
			body:    "retrieval:\n  backend: elasticsearch\n",
			wantErr: "database.elasticsearch.addresses",
		},
		{
			name:    "unknown backend",
			body:    "retrieval:\n  backend: faiss\n",
			wantErr: "retrieval.backend",
		},
		{
			name:    "cache without redis",
			body:    "cache:\n  enabled: true\n",
			wantErr: "database.redis.address",
		},
		{
			name:    "embeddings without key",
			body:    "embeddings:\n  enabled: true\n",
			wantErr: "embeddings.api_key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadWith_UsesProvidedViper(t *testing.T) {
	v := viper.New()
	v.Set("ranking.max_documents", 3)
	v.Set("response.max_length", 800)

	cfg, err := LoadWith(v)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Ranking.MaxDocuments)
	assert.Equal(t, 800, cfg.Response.MaxLength)
}

func TestWorkerConfigHelpers(t *testing.T) {
	cfg := &Config{Workers: map[string]WorkerConfig{
		"rank-documents": {Enabled: false, MaxJobsActive: 2, Timeout: 1000},
	}}

	assert.False(t, IsWorkerEnabled(cfg, "rank-documents"))
	assert.True(t, IsWorkerEnabled(cfg, "synthesize-response"))

	wc := GetWorkerConfig(cfg, "synthesize-response")
	assert.Equal(t, 5, wc.MaxJobsActive)
	assert.Equal(t, 30000, wc.Timeout)
	assert.Equal(t, int64(1000), GetDuration(1).Microseconds())
}
