package models

import "time"

// ConversationMessage is one persisted turn in a Conversation, as returned
// by the history store.
type ConversationMessage struct {
	Role      Role          `json:"role"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	Thoughts  []string      `json:"thoughts,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Conversation is the full external-store shape: an ordered message log
// under a title and id.
type Conversation struct {
	ID        string                `json:"id"`
	Title     string                `json:"title"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Messages  []ConversationMessage `json:"messages"`
}

// ConversationSummary is the lightweight listing/search projection of a
// Conversation — no message bodies.
type ConversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary projects a Conversation down to its ConversationSummary.
func (c *Conversation) Summary() ConversationSummary {
	return ConversationSummary{ID: c.ID, Title: c.Title, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt}
}
