package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valerka1292/conclave/pkg/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "history.db") + "?_pragma=busy_timeout(5000)"
	s, err := Open(dsn)
	require.NoError(t, err)
	require.NoError(t, s.Init(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "Greeting")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Greeting", got.Title)
	assert.Empty(t, got.Messages)
}

func TestAddMessagePreservesAppendOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "")
	require.NoError(t, err)

	require.NoError(t, s.AddMessage(ctx, conv.ID, models.ConversationMessage{
		Role: models.RoleUser, Content: "first", CreatedAt: time.Now(),
	}))
	require.NoError(t, s.AddMessage(ctx, conv.ID, models.ConversationMessage{
		Role: models.RoleAssistant, Content: "second", Thoughts: []string{"thinking"},
	}))

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "first", got.Messages[0].Content)
	assert.Equal(t, "second", got.Messages[1].Content)
	assert.Equal(t, []string{"thinking"}, got.Messages[1].Thoughts)
}

func TestAddMessageUnknownConversationErrors(t *testing.T) {
	s := newTestStore(t)
	err := s.AddMessage(context.Background(), "missing", models.ConversationMessage{Content: "x"})
	assert.Error(t, err)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, "fixed-id")
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, first.ID, models.ConversationMessage{Content: "hi"}))

	second, err := s.GetOrCreate(ctx, "fixed-id")
	require.NoError(t, err)
	assert.Len(t, second.Messages, 1)
}

func TestUpdateTitleAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "Original")
	require.NoError(t, err)
	require.NoError(t, s.UpdateTitle(ctx, conv.ID, "Renamed"))

	found, err := s.SearchSummaries(ctx, "enam")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Renamed", found[0].Title)

	none, err := s.SearchSummaries(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteRemovesConversationAndMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.Create(ctx, "Temp")
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(ctx, conv.ID, models.ConversationMessage{Content: "x"}))

	require.NoError(t, s.Delete(ctx, conv.ID))

	_, err = s.Get(ctx, conv.ID)
	assert.Error(t, err)
}

func TestListSummariesOrdersByMostRecentlyUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Create(ctx, "First")
	require.NoError(t, err)
	_, err = s.Create(ctx, "Second")
	require.NoError(t, err)

	// Touch "First" so it becomes the most recently updated.
	require.NoError(t, s.AddMessage(ctx, first.ID, models.ConversationMessage{Content: "bump"}))

	summaries, err := s.ListSummaries(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "First", summaries[0].Title)
}
