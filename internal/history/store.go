// Package history implements the external conversation persistence store:
// initialize, create, get, getOrCreate, list/search summaries, append a
// message, update title, delete. The kernel only reads and appends through
// this interface; the one concrete backing is sqlite (modernc.org/sqlite)
// so the module is runnable and testable end to end.
package history

import (
	"context"

	"github.com/valerka1292/conclave/pkg/models"
)

// Store is the conversation persistence contract.
type Store interface {
	// Init prepares the backing storage (schema creation). Safe to call
	// more than once.
	Init(ctx context.Context) error

	Create(ctx context.Context, title string) (*models.Conversation, error)
	Get(ctx context.Context, id string) (*models.Conversation, error)
	GetOrCreate(ctx context.Context, id string) (*models.Conversation, error)

	ListSummaries(ctx context.Context) ([]models.ConversationSummary, error)
	SearchSummaries(ctx context.Context, query string) ([]models.ConversationSummary, error)

	AddMessage(ctx context.Context, conversationID string, msg models.ConversationMessage) error
	UpdateTitle(ctx context.Context, id string, title string) error
	Delete(ctx context.Context, id string) error

	Close() error
}
