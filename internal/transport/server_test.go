package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerka1292/conclave/internal/agentcore"
	"github.com/valerka1292/conclave/internal/history"
	"github.com/valerka1292/conclave/internal/orchestrator"
	"github.com/valerka1292/conclave/pkg/models"
)

type scriptedOracle struct {
	responses []agentcore.Response
}

func (o *scriptedOracle) Complete(ctx context.Context, req agentcore.Request) (agentcore.Response, error) {
	if len(o.responses) == 0 {
		return agentcore.Response{}, nil
	}
	resp := o.responses[0]
	o.responses = o.responses[1:]
	return resp, nil
}

func newTestHistory(t *testing.T) history.Store {
	t.Helper()
	store, err := history.Open("file:" + t.TempDir() + "/h.db")
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestHandleChatStreamsNDJSONAndPersists(t *testing.T) {
	store := newTestHistory(t)
	factory := func(conversationID string, temps map[string]float64) *orchestrator.Session {
		return orchestrator.NewSession(orchestrator.Config{
			Leader:         orchestrator.AgentSpec{Name: "Leader", Oracle: &scriptedOracle{responses: []agentcore.Response{{Text: "Hi!"}}}},
			ConversationID: conversationID,
		})
	}
	srv := NewServer(factory, store, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(`{"message":"hello"}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var sawDone bool
	var tokenText string
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var ev models.StreamEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		if ev.Type == models.StreamToken {
			tokenText += ev.TokenText
		}
		if ev.Type == models.StreamDone {
			sawDone = true
		}
	}
	assert.True(t, sawDone)
	assert.Equal(t, "Hi!", tokenText)

	conv, err := store.Get(context.Background(), extractConversationID(t, rec))
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "hello", conv.Messages[0].Content)
	assert.Equal(t, "Hi!", conv.Messages[1].Content)
}

// extractConversationID re-reads the conversation event from the response
// body to recover the server-generated id (the request omitted one).
func extractConversationID(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	scanner := bufio.NewScanner(bytes.NewReader(rec.Body.Bytes()))
	for scanner.Scan() {
		var ev models.StreamEvent
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		if ev.Type == models.StreamConversation {
			return ev.ConvID
		}
	}
	t.Fatal("no conversation event found")
	return ""
}

func TestHandleChatRejectsEmptyMessage(t *testing.T) {
	srv := NewServer(func(string, map[string]float64) *orchestrator.Session { return nil }, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(`{"message":""}`))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChatRejectsGet(t *testing.T) {
	srv := NewServer(func(string, map[string]float64) *orchestrator.Session { return nil }, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := NewServer(nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
