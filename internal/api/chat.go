// internal/api/chat.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/validation"
	"medical-triage/internal/models"
	triagequery "medical-triage/internal/workers/triage/triage-query"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 16
)

// Chat message types.
const (
	MessageQuery    = "query"
	MessagePing     = "ping"
	MessageResponse = "response"
	MessagePong     = "pong"
	MessageError    = "error"
)

// ChatMessage is sent by the client.
type ChatMessage struct {
	Type       string `json:"type"`
	ID         string `json:"id,omitempty"`
	Query      string `json:"query,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// ChatReply is sent by the server, one per client message.
type ChatReply struct {
	Type     string                    `json:"type"`
	ID       string                    `json:"id,omitempty"`
	Response *models.GeneratedResponse `json:"response,omitempty"`
	Error    *ErrorBody                `json:"error,omitempty"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	upgrader := s.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	sessionID := uuid.New().String()
	log := s.logger.WithFields(map[string]interface{}{"sessionId": sessionID})
	log.Info("chat session opened", nil)

	ctx, cancel := context.WithCancel(context.Background())
	send := make(chan []byte, sendBuffer)

	go s.writePump(ctx, conn, send)
	s.readPump(ctx, conn, send)

	cancel()
	log.Info("chat session closed", nil)
}

// readPump answers messages in arrival order until the client goes away.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, send chan<- []byte) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		reply := s.answer(ctx, raw)
		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("encode chat reply", map[string]interface{}{"error": err.Error()})
			continue
		}
		select {
		case send <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) answer(ctx context.Context, raw []byte) *ChatReply {
	result, err := validation.ValidateJSON(validation.SchemaChatMessage, raw)
	if err != nil {
		return errorReply("", err)
	}
	if !result.Valid {
		return errorReply("", apperrors.NewInputError(result.Error()))
	}

	var msg ChatMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errorReply("", apperrors.NewInputError(err.Error()))
	}

	if msg.Type == MessagePing {
		return &ChatReply{Type: MessagePong, ID: msg.ID}
	}

	resp, err := s.service.Triage(ctx, triagequery.TriageRequest{
		RequestID:  msg.ID,
		Text:       msg.Query,
		MaxResults: msg.MaxResults,
	})
	if err != nil {
		return errorReply(msg.ID, err)
	}
	return &ChatReply{Type: MessageResponse, ID: msg.ID, Response: resp}
}

func errorReply(id string, err error) *ChatReply {
	stdErr := apperrors.Normalize(err)
	body := &ErrorBody{
		Code:    string(stdErr.Code),
		Message: stdErr.Message,
		TraceID: uuid.New().String(),
	}
	if stdErr.Details != "" {
		body.Details = stdErr.Details
	}
	return &ChatReply{Type: MessageError, ID: id, Error: body}
}

func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.logger.Warn("websocket write error", map[string]interface{}{"error": err.Error()})
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
