package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medical-triage/internal/audit"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"
	assessseverity "medical-triage/internal/workers/triage/assess-severity"
	classifyquery "medical-triage/internal/workers/triage/classify-query"
	normalizequery "medical-triage/internal/workers/triage/normalize-query"
	rankdocuments "medical-triage/internal/workers/triage/rank-documents"
	retrievedocuments "medical-triage/internal/workers/triage/retrieve-documents"
	synthesizeresponse "medical-triage/internal/workers/triage/synthesize-response"
	triagequery "medical-triage/internal/workers/triage/triage-query"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()
	store, err := lexicon.Load()
	require.NoError(t, err)
	seed, err := retrievedocuments.NewSeedSearcher()
	require.NoError(t, err)
	log := logger.NewTestLogger(t)

	service := triagequery.NewService(&triagequery.Config{
		Timeout:         5 * time.Second,
		AuditTimeout:    time.Second,
		DefaultFacility: "default",
		SlowThreshold:   time.Second,
	}, triagequery.Stages{
		Normalizer:  normalizequery.NewHandler(&normalizequery.Config{Timeout: time.Second, SlowThreshold: time.Second}, store, log),
		Classifier:  classifyquery.NewHandler(classifyquery.LoadConfig(), log),
		Assessor:    assessseverity.NewHandler(assessseverity.LoadConfig(), store, log),
		Retriever:   retrievedocuments.NewHandler(retrievedocuments.LoadConfig(), seed, log),
		Ranker:      rankdocuments.NewHandler(rankdocuments.LoadConfig(), store, log),
		Synthesizer: synthesizeresponse.NewHandler(synthesizeresponse.LoadConfig(), store, log),
	}, log)

	server := httptest.NewServer(NewServer(service, log, opts...).Handler())
	t.Cleanup(server.Close)
	return server
}

func post(t *testing.T, server *httptest.Server, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func get(t *testing.T, server *httptest.Server, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

// ==========================
// Query
// ==========================

func TestQuery_SymptomGuidance(t *testing.T) {
	server := newTestServer(t)

	resp, body := post(t, server, "/query", `{"query":"I have fever and headache for 2 days","requestId":"req-42"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, string(models.ResponseSymptomGuidance), body["responseType"])
	assert.Equal(t, false, body["emergencyAlert"])
	assert.NotEmpty(t, body["disclaimers"])
	metadata := body["metadata"].(map[string]interface{})
	assert.Equal(t, "req-42", metadata["requestId"])
}

func TestQuery_Emergency(t *testing.T) {
	server := newTestServer(t)

	resp, body := post(t, server, "/query", `{"query":"patient is unconscious with high fever"}`)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(models.ResponseEmergencyAlert), body["responseType"])
	assert.Equal(t, true, body["emergencyAlert"])
	assert.Contains(t, body["responseText"], "MEDICAL EMERGENCY DETECTED")
}

func TestQuery_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing query", body: `{}`},
		{name: "empty query", body: `{"query":""}`},
		{name: "whitespace query", body: `{"query":"   "}`},
		{name: "wrong type", body: `{"query":["fever"]}`},
		{name: "not json", body: `fever`},
		{name: "unknown field", body: `{"query":"fever","admin":true}`},
	}

	server := newTestServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, server, "/query", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "INPUT_ERROR", body["code"])
			assert.NotEmpty(t, body["traceId"])
		})
	}
}

func TestQuery_MethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/query")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// ==========================
// Emergency check, extraction, assessment
// ==========================

func TestEmergencyCheck(t *testing.T) {
	server := newTestServer(t)

	resp, body := post(t, server, "/emergency-check", `{"query":"severe chest pain and difficulty breathing"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["isEmergency"])
	assert.Equal(t, 0.9, body["confidence"])
	assert.Len(t, body["recommendations"], 3)

	resp, body = post(t, server, "/emergency-check", `{"query":"mild cough"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["isEmergency"])
	assert.Equal(t, 0.1, body["confidence"])
	assert.Empty(t, body["recommendations"])
}

func TestExtractSymptoms(t *testing.T) {
	server := newTestServer(t)

	resp, body := get(t, server, "/symptoms/extract?query=fever+and+chills+since+yesterday")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "en", body["language"])
	assert.Contains(t, body["symptoms"], "fever")
	assert.Contains(t, body["symptoms"], "chills")

	resp, body = get(t, server, "/symptoms/extract")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INPUT_ERROR", body["code"])
}

func TestAssess(t *testing.T) {
	server := newTestServer(t)

	resp, body := post(t, server, "/assess", `{"symptoms":["fever","chills","sweating"],"disease":"malaria"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assessments := body["assessments"].([]interface{})
	require.Len(t, assessments, 1)
	assert.Equal(t, "malaria", assessments[0].(map[string]interface{})["disease"])

	resp, body = post(t, server, "/assess", `{"symptoms":["fever"],"disease":"cholera"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "UNKNOWN_DISEASE", body["code"])

	resp, _ = post(t, server, "/assess", `{"symptoms":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ==========================
// Health, readiness, status
// ==========================

func TestHealthAndReady(t *testing.T) {
	healthy := newTestServer(t, WithReadiness(func(ctx context.Context) map[string]error {
		return map[string]error{"redis": nil}
	}))

	resp, body := get(t, healthy, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	resp, body = get(t, healthy, "/ready")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])

	unhealthy := newTestServer(t, WithReadiness(func(ctx context.Context) map[string]error {
		return map[string]error{"postgres": errors.New("connection refused")}
	}))
	resp, body = get(t, unhealthy, "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "connection refused", body["checks"].(map[string]interface{})["postgres"])
}

func TestStatus(t *testing.T) {
	server := newTestServer(t, WithAuditSummary(func(ctx context.Context, since time.Time) (*audit.Summary, error) {
		return &audit.Summary{Total: 7, Emergencies: 2, ByResponse: map[string]int64{"emergency_alert": 2}}, nil
	}))

	post(t, server, "/query", `{"query":"fever and cough"}`)
	post(t, server, "/query", `{"query":" "}`)

	resp, body := get(t, server, "/status")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["totalQueries"])
	assert.Equal(t, float64(1), body["totalErrors"])
	assert.Equal(t, float64(7), body["audit"].(map[string]interface{})["total"])
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t)
	post(t, server, "/query", `{"query":"fever"}`)

	resp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	server := newTestServer(t, WithAllowedOrigins([]string{"https://clinic.example"}))

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/query", nil)
	req.Header.Set("Origin", "https://clinic.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://clinic.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, _ = http.NewRequest(http.MethodOptions, server.URL+"/query", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

// ==========================
// WebSocket chat
// ==========================

func dial(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/triage"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, msg interface{}) ChatReply {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var reply ChatReply
	require.NoError(t, conn.ReadJSON(&reply))
	return reply
}

func TestChat(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, nil)

	reply := exchange(t, conn, ChatMessage{Type: MessagePing, ID: "p1"})
	assert.Equal(t, MessagePong, reply.Type)
	assert.Equal(t, "p1", reply.ID)

	reply = exchange(t, conn, ChatMessage{Type: MessageQuery, ID: "q1", Query: "আমার জ্বর এবং মাথাব্যথা আছে"})
	assert.Equal(t, MessageResponse, reply.Type)
	assert.Equal(t, "q1", reply.ID)
	require.NotNil(t, reply.Response)
	assert.Equal(t, string(models.LanguageBengali), reply.Response.Metadata["language"])
}

func TestChat_InvalidMessages(t *testing.T) {
	server := newTestServer(t)
	conn := dial(t, server, nil)

	reply := exchange(t, conn, map[string]string{"type": "query"})
	assert.Equal(t, MessageError, reply.Type)
	require.NotNil(t, reply.Error)
	assert.Equal(t, "INPUT_ERROR", reply.Error.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	var raw ChatReply
	require.NoError(t, conn.ReadJSON(&raw))
	assert.Equal(t, MessageError, raw.Type)

	reply = exchange(t, conn, ChatMessage{Type: MessageQuery, ID: "q2", Query: "   "})
	assert.Equal(t, MessageError, reply.Type)
	assert.Equal(t, "q2", reply.ID)
}

func TestChat_RejectsForeignOrigin(t *testing.T) {
	server := newTestServer(t, WithAllowedOrigins([]string{"https://clinic.example"}))
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/triage"

	header := http.Header{"Origin": []string{"https://elsewhere.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn := dial(t, server, http.Header{"Origin": []string{"https://clinic.example"}})
	reply := exchange(t, conn, ChatMessage{Type: MessagePing})
	assert.Equal(t, MessagePong, reply.Type)
}
