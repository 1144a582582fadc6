// internal/api/handlers.go
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"medical-triage/internal/audit"
	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/validation"
	"medical-triage/internal/models"
	triagequery "medical-triage/internal/workers/triage/triage-query"
)

const maxBodyBytes = 64 << 10

type emergencyCheckRequest struct {
	Query string `json:"query"`
}

type assessRequest struct {
	Symptoms []string        `json:"symptoms"`
	Disease  string          `json:"disease"`
	Language models.Language `json:"language"`
}

type assessResponse struct {
	Assessments []models.SeverityAssessment `json:"assessments"`
}

type statusResponse struct {
	*triagequery.Stats
	Audit *audit.Summary `json:"audit,omitempty"`
}

// decode reads the body, validates it against the named schema and
// unmarshals it into dst.
func decode(w http.ResponseWriter, r *http.Request, schema string, dst interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.NewInputError("request body too large or unreadable")
	}
	result, err := validation.ValidateJSON(schema, body)
	if err != nil {
		return err
	}
	if !result.Valid {
		return apperrors.NewInputError(result.Error())
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.NewInputError(err.Error())
	}
	return nil
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req triagequery.TriageRequest
	if err := decode(w, r, validation.SchemaQuery, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("X-Request-ID")
	}

	resp, err := s.service.Triage(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEmergencyCheck(w http.ResponseWriter, r *http.Request) {
	var req emergencyCheckRequest
	if err := decode(w, r, validation.SchemaEmergencyCheck, &req); err != nil {
		writeError(w, err)
		return
	}
	check, err := s.service.CheckEmergency(req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	extraction, err := s.service.ExtractSymptoms(r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, extraction)
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var req assessRequest
	if err := decode(w, r, validation.SchemaAssess, &req); err != nil {
		writeError(w, err)
		return
	}
	assessments, err := s.service.Assess(req.Symptoms, req.Disease, req.Language)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assessResponse{Assessments: assessments})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	status, code := "ready", http.StatusOK
	if s.ready != nil {
		for name, err := range s.ready(r.Context()) {
			if err != nil {
				checks[name] = err.Error()
				status, code = "not_ready", http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	out := statusResponse{Stats: s.service.Stats()}
	if s.summary != nil {
		summary, err := s.summary(r.Context(), time.Now().Add(-24*time.Hour))
		if err != nil {
			s.logger.Warn("audit summary unavailable", map[string]interface{}{"error": err.Error()})
		} else {
			out.Audit = summary
		}
	}
	writeJSON(w, http.StatusOK, out)
}
