// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"medical-triage/internal/audit"
	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	triagequery "medical-triage/internal/workers/triage/triage-query"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessFunc reports the health of each backend by name.
type ReadinessFunc func(ctx context.Context) map[string]error

// SummaryFunc returns audit totals since a point in time.
type SummaryFunc func(ctx context.Context, since time.Time) (*audit.Summary, error)

// Server is the HTTP and WebSocket facade over the triage service.
type Server struct {
	service        *triagequery.Service
	ready          ReadinessFunc
	summary        SummaryFunc
	allowedOrigins map[string]bool
	logger         logger.Logger
}

type Option func(*Server)

func WithReadiness(fn ReadinessFunc) Option {
	return func(s *Server) { s.ready = fn }
}

func WithAuditSummary(fn SummaryFunc) Option {
	return func(s *Server) { s.summary = fn }
}

// WithAllowedOrigins restricts CORS and WebSocket origins. An empty list
// allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		for _, o := range origins {
			s.allowedOrigins[o] = true
		}
	}
}

func NewServer(service *triagequery.Service, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		service:        service,
		allowedOrigins: map[string]bool{},
		logger:         log.WithFields(map[string]interface{}{"component": "api"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /query", s.handleQuery)
	mux.HandleFunc("POST /emergency-check", s.handleEmergencyCheck)
	mux.HandleFunc("GET /symptoms/extract", s.handleExtract)
	mux.HandleFunc("POST /assess", s.handleAssess)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws/triage", s.handleChat)
	return s.recoverer(s.cors(s.logRequests(mux)))
}

func (s *Server) originAllowed(origin string) bool {
	return origin == "" || len(s.allowedOrigins) == 0 || s.allowedOrigins[origin]
}

func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws/triage" {
			// the upgrader needs the raw writer for hijacking
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		fields := map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     rec.status,
			"durationMs": time.Since(start).Milliseconds(),
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Error("request failed", fields)
			return
		}
		s.logger.Debug("request served", fields)
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("handler panic", map[string]interface{}{
					"path":  r.URL.Path,
					"panic": p,
				})
				writeError(w, apperrors.NewInternalError(fmt.Errorf("panic: %v", p)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	TraceID string      `json:"traceId"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	body := ErrorBody{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		TraceID: uuid.New().String(),
	}
	if stdErr.Details != "" {
		body.Details = stdErr.Details
	}
	writeJSON(w, statusFor(stdErr.Code), body)
}

func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInputError, apperrors.ErrCodeUnknownDisease:
		return http.StatusBadRequest
	case apperrors.ErrCodeRetrievalTimeout:
		return http.StatusGatewayTimeout
	case apperrors.ErrCodeRetrievalPoolClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
