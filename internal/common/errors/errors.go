// Package errors provides the triage error taxonomy and its mapping onto
// BPMN errors for the Zeebe workers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Input handling
	ErrCodeInputError         ErrorCode = "INPUT_ERROR"
	ErrCodeLanguageUndetected ErrorCode = "LANGUAGE_UNDETECTED"
	ErrCodeLexiconMiss        ErrorCode = "LEXICON_MISS"
	ErrCodeLexiconLoadFailed  ErrorCode = "LEXICON_LOAD_FAILED"
	ErrCodeUnknownDisease     ErrorCode = "UNKNOWN_DISEASE"

	// Retrieval
	ErrCodeNoCandidates        ErrorCode = "NO_CANDIDATES"
	ErrCodeUpstreamRetrieval   ErrorCode = "UPSTREAM_RETRIEVAL_FAILURE"
	ErrCodeRetrievalTimeout    ErrorCode = "RETRIEVAL_TIMEOUT"
	ErrCodeMalformedDocument   ErrorCode = "MALFORMED_DOCUMENT"
	ErrCodeIndexNotFound       ErrorCode = "INDEX_NOT_FOUND"
	ErrCodeEmbeddingFailed     ErrorCode = "EMBEDDING_FAILED"
	ErrCodeCacheUnavailable    ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeRetrievalPoolClosed ErrorCode = "RETRIEVAL_POOL_CLOSED"

	// Response
	ErrCodeResponseValidationFailed ErrorCode = "RESPONSE_VALIDATION_FAILED"

	// Escalation and audit
	ErrCodeContactLookupFailed ErrorCode = "CONTACT_LOOKUP_FAILED"
	ErrCodeNoOnCallContacts    ErrorCode = "NO_ON_CALL_CONTACTS"
	ErrCodeEscalationFailed    ErrorCode = "ESCALATION_FAILED"
	ErrCodeAuditWriteFailed    ErrorCode = "AUDIT_WRITE_FAILED"

	// Workflow engine
	ErrCodeWorkflowEngine   ErrorCode = "WORKFLOW_ENGINE_ERROR"
	ErrCodeWorkflowTimeout  ErrorCode = "WORKFLOW_TIMEOUT"
	ErrCodeWorkflowRejected ErrorCode = "WORKFLOW_REJECTED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata returns the error with one more metadata entry.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = map[string]interface{}{}
	}
	e.Metadata[key] = value
	return e
}

func newStandardError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewInputError is raised for empty queries and malformed job or request
// input. Details say what was wrong.
func NewInputError(details string) *StandardError {
	return newStandardError(ErrCodeInputError, "Invalid input", details, false, nil)
}

func NewLanguageUndetectedError() *StandardError {
	return newStandardError(ErrCodeLanguageUndetected, "No alphabetic characters in query", "", false, nil)
}

func NewLexiconLoadFailedError(err error) *StandardError {
	return newStandardError(ErrCodeLexiconLoadFailed, "Lexicon data could not be loaded", err.Error(), false, err)
}

func NewUnknownDiseaseError(disease string) *StandardError {
	return newStandardError(ErrCodeUnknownDisease, "Disease profile not found", fmt.Sprintf("disease: %s", disease), false, nil)
}

func NewNoCandidatesError() *StandardError {
	return newStandardError(ErrCodeNoCandidates, "Retrieval returned no usable documents", "", false, nil)
}

// NewUpstreamRetrievalError wraps a failed knowledge-base search.
func NewUpstreamRetrievalError(backend string, err error) *StandardError {
	return newStandardError(ErrCodeUpstreamRetrieval, "Knowledge-base search failed",
		fmt.Sprintf("backend: %s, error: %s", backend, err.Error()), true, err)
}

func NewRetrievalTimeoutError(backend string, timeout time.Duration) *StandardError {
	return newStandardError(ErrCodeRetrievalTimeout, "Knowledge-base search timed out",
		fmt.Sprintf("backend: %s, timeout: %s", backend, timeout), true, nil)
}

func NewRetrievalPoolClosedError() *StandardError {
	return newStandardError(ErrCodeRetrievalPoolClosed, "Retrieval pool is shut down", "", false, nil)
}

func NewMalformedDocumentError(docID, reason string) *StandardError {
	return newStandardError(ErrCodeMalformedDocument, "Candidate document is malformed",
		fmt.Sprintf("id: %s, reason: %s", docID, reason), false, nil)
}

func NewIndexNotFoundError(indexName string) *StandardError {
	return newStandardError(ErrCodeIndexNotFound, "Elasticsearch index not found",
		fmt.Sprintf("indexName: %s", indexName), false, nil)
}

func NewEmbeddingFailedError(err error) *StandardError {
	return newStandardError(ErrCodeEmbeddingFailed, "Query embedding failed", err.Error(), true, err)
}

func NewCacheUnavailableError(err error) *StandardError {
	return newStandardError(ErrCodeCacheUnavailable, "Retrieval cache unavailable", err.Error(), true, err)
}

func NewResponseValidationFailedError(details string) *StandardError {
	return newStandardError(ErrCodeResponseValidationFailed, "Generated response failed schema validation", details, false, nil)
}

func NewContactLookupFailedError(err error) *StandardError {
	return newStandardError(ErrCodeContactLookupFailed, "On-call contact lookup failed", err.Error(), true, err)
}

func NewNoOnCallContactsError(facilityID string) *StandardError {
	return newStandardError(ErrCodeNoOnCallContacts, "No on-call health workers registered",
		fmt.Sprintf("facilityId: %s", facilityID), false, nil)
}

func NewEscalationFailedError(channel string, err error) *StandardError {
	return newStandardError(ErrCodeEscalationFailed, "Emergency escalation delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

func NewAuditWriteFailedError(err error) *StandardError {
	return newStandardError(ErrCodeAuditWriteFailed, "Triage audit record could not be written", err.Error(), true, err)
}

func NewWorkflowEngineError(operation string, err error) *StandardError {
	return newStandardError(ErrCodeWorkflowEngine, "Workflow engine unavailable", err.Error(), true, err).
		WithMetadata("operation", operation)
}

func NewWorkflowTimeoutError(operation string, err error) *StandardError {
	return newStandardError(ErrCodeWorkflowTimeout, "Workflow engine request timed out", err.Error(), true, err).
		WithMetadata("operation", operation)
}

// NewWorkflowRejectedError covers requests the engine refused outright:
// unknown process, duplicates, missing permissions.
func NewWorkflowRejectedError(operation string, err error) *StandardError {
	return newStandardError(ErrCodeWorkflowRejected, "Workflow engine rejected the request", err.Error(), false, err).
		WithMetadata("operation", operation)
}

func NewInternalError(err error) *StandardError {
	return newStandardError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. Classification helpers
// ==========================

// BPMNErrorMapping maps internal codes to the error codes modelled in the
// triage BPMN process. Codes missing here are passed through verbatim.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInputError:               "TRIAGE_INPUT_REJECTED",
	ErrCodeUnknownDisease:           "TRIAGE_INPUT_REJECTED",
	ErrCodeUpstreamRetrieval:        "RETRIEVAL_UNAVAILABLE",
	ErrCodeRetrievalTimeout:         "RETRIEVAL_UNAVAILABLE",
	ErrCodeIndexNotFound:            "RETRIEVAL_UNAVAILABLE",
	ErrCodeRetrievalPoolClosed:      "RETRIEVAL_UNAVAILABLE",
	ErrCodeResponseValidationFailed: "RESPONSE_INVALID",
	ErrCodeContactLookupFailed:      "ESCALATION_FAILED",
	ErrCodeNoOnCallContacts:         "ESCALATION_NO_CONTACTS",
	ErrCodeEscalationFailed:         "ESCALATION_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeUpstreamRetrieval,
		ErrCodeContactLookupFailed,
		ErrCodeEscalationFailed,
		ErrCodeAuditWriteFailed,
		ErrCodeWorkflowEngine:
		return 3
	case ErrCodeRetrievalTimeout,
		ErrCodeEmbeddingFailed,
		ErrCodeCacheUnavailable,
		ErrCodeWorkflowTimeout:
		return 2
	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// AsStandard finds a StandardError in err's chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INPUT") || strings.Contains(codeStr, "LANGUAGE") || strings.Contains(codeStr, "DISEASE"):
		return "INPUT"
	case strings.Contains(codeStr, "LEXICON"):
		return "LEXICON"
	case strings.Contains(codeStr, "RETRIEVAL") || strings.Contains(codeStr, "CANDIDATES") ||
		strings.Contains(codeStr, "DOCUMENT") || strings.Contains(codeStr, "INDEX") ||
		strings.Contains(codeStr, "EMBEDDING") || strings.Contains(codeStr, "CACHE"):
		return "RETRIEVAL"
	case strings.Contains(codeStr, "RESPONSE"):
		return "RESPONSE"
	case strings.Contains(codeStr, "ESCALATION") || strings.Contains(codeStr, "CONTACT"):
		return "ESCALATION"
	case strings.Contains(codeStr, "AUDIT"):
		return "AUDIT"
	case strings.Contains(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
