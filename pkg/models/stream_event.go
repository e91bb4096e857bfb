package models

import "time"

// StreamEventType discriminates a StreamEvent.
type StreamEventType string

const (
	StreamConversation      StreamEventType = "conversation"
	StreamStatus            StreamEventType = "status"
	StreamThought           StreamEventType = "thought"
	StreamToolUse           StreamEventType = "tool_use"
	StreamChatroomSend      StreamEventType = "chatroom_send"
	StreamConversationTitle StreamEventType = "conversation_title"
	StreamToken             StreamEventType = "token"
	StreamDone              StreamEventType = "done"
	StreamError             StreamEventType = "error"
)

// StreamEvent is one frame of the orchestrator's caller-facing stream.
// Exactly the fields relevant to Type are populated; the rest are zero.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	Time      time.Time       `json:"time"`
	Agent     string          `json:"agent,omitempty"`
	Text      string          `json:"text,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Query     string          `json:"query,omitempty"`
	Args      string          `json:"args,omitempty"`
	To        []string        `json:"to,omitempty"`
	Preview   string          `json:"preview,omitempty"`
	Title     string          `json:"title,omitempty"`
	ConvID    string          `json:"conversation_id,omitempty"`
	TokenText string          `json:"token,omitempty"`
	Error     string          `json:"error,omitempty"`
}
