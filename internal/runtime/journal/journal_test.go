package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/graphsink/internal/runtime/sink"
)

var _ sink.Writer = (*Store)(nil)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{FilePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConfig_withDefaults(t *testing.T) {
	assert.Equal(t, DefaultFilePath, Config{}.withDefaults().FilePath)
	assert.Equal(t, "custom.db", Config{FilePath: "custom.db"}.withDefaults().FilePath)
}

func TestWriteRecordsStatementsInOrder(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "UNWIND $events AS event MERGE (n:A {id: event.id})", []any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
	}))
	require.NoError(t, s.Write(ctx, "UNWIND $events AS event MATCH (n:A {id: event.id}) DETACH DELETE n", nil))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Less(t, entries[0].ID, entries[1].ID)
	assert.Contains(t, entries[0].Query, "MERGE")
	assert.Equal(t, []any{map[string]any{"id": int64(1)}, map[string]any{"id": int64(2)}}, entries[0].Events)
	assert.Contains(t, entries[1].Query, "DELETE")
	assert.Empty(t, entries[1].Events)
	assert.WithinDuration(t, time.Now(), entries[0].WrittenAt, time.Minute)

	statements, events, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), statements)
	assert.Equal(t, int64(2), events)
}

func TestStatsEmpty(t *testing.T) {
	s := newMemoryStore(t)

	statements, events, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, statements)
	assert.Zero(t, events)
}

func TestWriteUnmarshalableEvents(t *testing.T) {
	s := newMemoryStore(t)

	err := s.Write(context.Background(), "RETURN 1", []any{make(chan int)})
	assert.ErrorContains(t, err, "failed to marshal events")
}

func TestClosedStore(t *testing.T) {
	s, err := New(Config{FilePath: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	ctx := context.Background()
	assert.ErrorIs(t, s.Write(ctx, "RETURN 1", nil), ErrClosed)
	_, err = s.Entries(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, err = s.Stats(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileBackedStorePersists(t *testing.T) {
	path := t.TempDir() + "/journal.db"
	ctx := context.Background()

	s, err := New(Config{FilePath: path})
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "RETURN 1", []any{"a"}))
	require.NoError(t, s.Close())

	reopened, err := New(Config{FilePath: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	entries, err := reopened.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []any{"a"}, entries[0].Events)
}
