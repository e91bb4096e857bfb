package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/valerka1292/conclave/pkg/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	thoughts TEXT,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_conversation_messages_conv_seq
	ON conversation_messages(conversation_id, seq);
`

// SQLiteStore is the one concrete Store implementation, backed by
// modernc.org/sqlite. Writes are serialized through a single mutex so the
// append path has exactly one writer.
type SQLiteStore struct {
	db *sql.DB

	// writeMu enforces the single-writer append path independent of
	// sqlite's own locking.
	writeMu sync.Mutex
}

// Open opens (or creates) the sqlite database at dsn. Callers must call
// Init before using the store.
func Open(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("history: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer connection avoids SQLITE_BUSY
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema if it does not already exist.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("history: init schema: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create inserts a new conversation with the given title (may be empty)
// and returns it.
func (s *SQLiteStore) Create(ctx context.Context, title string) (*models.Conversation, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("history: create conversation: %w", err)
	}
	return &models.Conversation{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// Get returns the conversation with all of its messages in append order.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations WHERE id = ?`, id)
	conv := &models.Conversation{}
	if err := row.Scan(&conv.ID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("history: conversation %q not found", id)
		}
		return nil, fmt.Errorf("history: get conversation: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, thoughts, duration_ms, created_at
		   FROM conversation_messages
		  WHERE conversation_id = ?
		  ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("history: list messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			msg        models.ConversationMessage
			thoughts   sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&msg.Role, &msg.Content, &thoughts, &durationMs, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan message: %w", err)
		}
		if thoughts.Valid && thoughts.String != "" {
			msg.Thoughts = strings.Split(thoughts.String, "\x1f")
		}
		msg.Duration = time.Duration(durationMs) * time.Millisecond
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: iterate messages: %w", err)
	}
	return conv, nil
}

// GetOrCreate returns the conversation named by id, creating an empty
// untitled one if it does not exist yet.
func (s *SQLiteStore) GetOrCreate(ctx context.Context, id string) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err == nil {
		return conv, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO conversations (id, title, created_at, updated_at) VALUES (?, '', ?, ?)`,
		id, now, now)
	if err != nil {
		return nil, fmt.Errorf("history: get-or-create conversation: %w", err)
	}
	return &models.Conversation{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

// ListSummaries returns every conversation summary, newest first.
func (s *SQLiteStore) ListSummaries(ctx context.Context) ([]models.ConversationSummary, error) {
	return s.querySummaries(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations ORDER BY updated_at DESC`)
}

// SearchSummaries returns conversation summaries whose title contains
// query (case-insensitive), newest first.
func (s *SQLiteStore) SearchSummaries(ctx context.Context, query string) ([]models.ConversationSummary, error) {
	return s.querySummaries(ctx,
		`SELECT id, title, created_at, updated_at FROM conversations
		  WHERE title LIKE ? ESCAPE '\' ORDER BY updated_at DESC`,
		"%"+escapeLike(query)+"%")
}

func (s *SQLiteStore) querySummaries(ctx context.Context, query string, args ...any) ([]models.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: query summaries: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationSummary
	for rows.Next() {
		var sum models.ConversationSummary
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("history: scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// AddMessage appends msg to the conversation, advancing its updated_at.
// Ordering is by a monotonic per-conversation sequence number, so messages
// are always returned in append order.
func (s *SQLiteStore) AddMessage(ctx context.Context, conversationID string, msg models.ConversationMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var nextSeq int64
	row := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM conversation_messages WHERE conversation_id = ?`,
		conversationID)
	if err := row.Scan(&nextSeq); err != nil {
		return fmt.Errorf("history: next seq: %w", err)
	}

	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var thoughts any
	if len(msg.Thoughts) > 0 {
		thoughts = strings.Join(msg.Thoughts, "\x1f")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO conversation_messages
		   (id, conversation_id, seq, role, content, thoughts, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), conversationID, nextSeq, msg.Role, msg.Content,
		thoughts, msg.Duration.Milliseconds(), createdAt,
	); err != nil {
		return fmt.Errorf("history: insert message: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`, createdAt, conversationID)
	if err != nil {
		return fmt.Errorf("history: touch conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: conversation %q not found", conversationID)
	}

	return tx.Commit()
}

// UpdateTitle renames a conversation.
func (s *SQLiteStore) UpdateTitle(ctx context.Context, id string, title string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("history: update title: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: conversation %q not found", id)
	}
	return nil
}

// Delete removes a conversation and all of its messages.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("history: delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("history: delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("history: conversation %q not found", id)
	}
	return tx.Commit()
}

var _ Store = (*SQLiteStore)(nil)
