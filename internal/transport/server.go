// Package transport implements the thin streaming HTTP adapter: it
// decodes a ChatRequest, drives one internal/orchestrator.Session, and
// writes the resulting StreamEvent sequence back to the caller as
// newline-delimited JSON frames, flushing after each one. It is
// deliberately a thin translation layer — session construction and all
// collaboration semantics live in internal/orchestrator.
package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/valerka1292/conclave/internal/history"
	"github.com/valerka1292/conclave/internal/orchestrator"
	"github.com/valerka1292/conclave/pkg/models"
)

// maxRequestBodyBytes bounds the decoded ChatRequest body.
const maxRequestBodyBytes = 1 << 20 // 1 MiB

// ChatRequest is the caller-facing request shape.
type ChatRequest struct {
	Message        string             `json:"message"`
	Temperatures   map[string]float64 `json:"temperatures,omitempty"`
	ConversationID string             `json:"conversation_id,omitempty"`
}

// SessionFactory builds a fresh, single-use Session for one request,
// applying any per-agent temperature overrides from the request.
type SessionFactory func(conversationID string, temperatures map[string]float64) *orchestrator.Session

// Server adapts a SessionFactory to net/http, persisting the resulting
// conversation through a history.Store.
type Server struct {
	NewSession SessionFactory
	History    history.Store
	Logger     *slog.Logger
}

// NewServer constructs a Server. A nil logger defaults to slog.Default().
func NewServer(factory SessionFactory, store history.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{NewSession: factory, History: store, Logger: logger.With("component", "transport")}
}

// Routes returns the server's http.Handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/chat", s.handleChat)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleChat decodes a ChatRequest, runs one session, and streams its
// events back as newline-delimited JSON, terminated by a `done` frame
//. Each event is flushed as soon as it is produced so the
// caller sees progress incrementally rather than buffered.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ChatRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}
	if s.History != nil {
		if _, err := s.History.GetOrCreate(ctx, conversationID); err != nil {
			s.Logger.Error("get-or-create conversation failed", "error", err)
			http.Error(w, "failed to initialize conversation", http.StatusInternalServerError)
			return
		}
		if err := s.History.AddMessage(ctx, conversationID, models.ConversationMessage{
			Role: models.RoleUser, Content: req.Message, CreatedAt: time.Now().UTC(),
		}); err != nil {
			s.Logger.Error("append user message failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)

	sess := s.NewSession(conversationID, req.Temperatures)
	enc := json.NewEncoder(w)

	start := time.Now()
	var finalText string
	var thoughts []string

	for ev := range sess.RunStreaming(ctx, req.Message) {
		if ev.Type == models.StreamToken {
			finalText += ev.TokenText
		}
		if ev.Type == models.StreamThought {
			thoughts = append(thoughts, fmt.Sprintf("%s: %s", ev.Agent, ev.Text))
		}
		if err := enc.Encode(ev); err != nil {
			s.Logger.Warn("write stream frame failed", "error", err)
			return
		}
		if canFlush {
			flusher.Flush()
		}
	}

	if s.History != nil && finalText != "" {
		if err := s.History.AddMessage(ctx, conversationID, models.ConversationMessage{
			Role: models.RoleAssistant, Content: finalText, CreatedAt: time.Now().UTC(),
			Thoughts: thoughts, Duration: time.Since(start),
		}); err != nil {
			s.Logger.Error("append assistant message failed", "error", err)
		}
	}
}
