// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"medical-triage/internal/common/config"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the connection used for the audit trail and on-call
// contact lookup.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Schema creates the tables used by the service when they are missing.
const Schema = `
CREATE TABLE IF NOT EXISTS triage_audit (
    id             UUID PRIMARY KEY,
    request_id     TEXT NOT NULL,
    query_hash     CHAR(64) NOT NULL,
    language       TEXT NOT NULL,
    query_type     TEXT NOT NULL,
    response_type  TEXT NOT NULL,
    emergency      BOOLEAN NOT NULL,
    symptom_tags   TEXT[] NOT NULL DEFAULT '{}',
    confidence     DOUBLE PRECISION NOT NULL,
    documents_used INTEGER NOT NULL,
    duration_ms    BIGINT NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS health_workers (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    email       TEXT,
    phone       TEXT,
    facility_id TEXT NOT NULL,
    on_call     BOOLEAN NOT NULL DEFAULT FALSE,
    priority    INTEGER NOT NULL DEFAULT 100
);

CREATE INDEX IF NOT EXISTS idx_health_workers_facility ON health_workers (facility_id) WHERE on_call;
`

// Migrate applies Schema.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	if _, err := c.DB.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
