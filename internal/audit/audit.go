// internal/audit/audit.go
package audit

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"strings"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Record is one audited triage. It never carries the query text itself, only
// a hash of the cleaned text.
type Record struct {
	ID            string
	RequestID     string
	QueryHash     string
	Language      models.Language
	QueryType     models.QueryType
	ResponseType  models.ResponseType
	Emergency     bool
	SymptomTags   []string
	Confidence    float64
	DocumentsUsed int
	DurationMs    int64
	CreatedAt     time.Time
}

// Summary aggregates the audit trail for the status endpoint.
type Summary struct {
	Total       int64            `json:"total"`
	Emergencies int64            `json:"emergencies"`
	ByResponse  map[string]int64 `json:"byResponseType"`
}

type Recorder interface {
	Record(ctx context.Context, rec *Record) error
}

// HashQuery fingerprints cleaned query text so repeated queries can be
// correlated without storing them.
func HashQuery(cleaned string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(cleaned))))
	return hex.EncodeToString(sum[:])
}

func NewRecord(requestID string, q *models.NormalizedQuery, resp *models.GeneratedResponse, duration time.Duration) *Record {
	rec := &Record{
		ID:         uuid.New().String(),
		RequestID:  requestID,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  time.Now().UTC(),
	}
	if q != nil {
		rec.QueryHash = HashQuery(q.CleanedText)
		rec.Language = q.Language
		rec.QueryType = q.QueryType
		rec.SymptomTags = append([]string{}, q.SymptomTags...)
	}
	if resp != nil {
		rec.ResponseType = resp.ResponseType
		rec.Emergency = resp.EmergencyAlert
		rec.Confidence = resp.Confidence
		if n, ok := resp.Metadata["documentsUsed"].(int); ok {
			rec.DocumentsUsed = n
		}
	}
	return rec
}

const insertQuery = `
	INSERT INTO triage_audit (
		id, request_id, query_hash, language, query_type, response_type,
		emergency, symptom_tags, confidence, documents_used, duration_ms, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const summaryQuery = `
	SELECT response_type, COUNT(*), COUNT(*) FILTER (WHERE emergency)
	FROM triage_audit
	WHERE created_at >= $1
	GROUP BY response_type
`

type PostgresRecorder struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresRecorder(db *sql.DB, log logger.Logger) *PostgresRecorder {
	return &PostgresRecorder{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "audit"}),
	}
}

func (r *PostgresRecorder) Record(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx, insertQuery,
		rec.ID,
		rec.RequestID,
		rec.QueryHash,
		string(rec.Language),
		string(rec.QueryType),
		string(rec.ResponseType),
		rec.Emergency,
		pq.Array(rec.SymptomTags),
		rec.Confidence,
		rec.DocumentsUsed,
		rec.DurationMs,
		rec.CreatedAt,
	)
	if err != nil {
		r.logger.Error("audit write failed", map[string]interface{}{
			"requestId": rec.RequestID,
			"error":     err.Error(),
		})
		return apperrors.NewAuditWriteFailedError(err)
	}

	r.logger.Debug("audit record written", map[string]interface{}{
		"requestId":    rec.RequestID,
		"responseType": rec.ResponseType,
	})
	return nil
}

// Summary counts audited triages created at or after since.
func (r *PostgresRecorder) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	rows, err := r.db.QueryContext(ctx, summaryQuery, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := &Summary{ByResponse: map[string]int64{}}
	for rows.Next() {
		var responseType string
		var total, emergencies int64
		if err := rows.Scan(&responseType, &total, &emergencies); err != nil {
			return nil, err
		}
		summary.ByResponse[responseType] = total
		summary.Total += total
		summary.Emergencies += emergencies
	}
	return summary, rows.Err()
}

// NopRecorder drops every record. Used when auditing is disabled.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *Record) error { return nil }
