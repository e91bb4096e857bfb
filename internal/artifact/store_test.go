package artifact

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenGetRoundTrips(t *testing.T) {
	s := New()
	ctx := context.Background()
	content := strings.Repeat("abcde", 1000)

	id, err := s.Put(ctx, content)
	require.NoError(t, err)

	got, err := s.Get(ctx, id, 0, len(content))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestGetPastEndIsEmpty(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.Put(ctx, "hello")

	got, err := s.Get(ctx, id, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestGetZeroLengthIsEmpty(t *testing.T) {
	s := New()
	ctx := context.Background()
	id, _ := s.Put(ctx, "hello")

	got, err := s.Get(ctx, id, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestGetUnknownIDErrors(t *testing.T) {
	s := New()
	_, err := s.Get(context.Background(), "nonexistent", 0, 1)
	assert.Error(t, err)
}

func TestIdenticalContentSameID(t *testing.T) {
	s := New()
	ctx := context.Background()
	id1, _ := s.Put(ctx, "same content")
	id2, _ := s.Put(ctx, "same content")
	assert.Equal(t, id1, id2)
}

func TestDifferentContentDifferentID(t *testing.T) {
	s := New()
	ctx := context.Background()
	id1, _ := s.Put(ctx, "content one")
	id2, _ := s.Put(ctx, "content two")
	assert.NotEqual(t, id1, id2)
}
