package gormstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/planmesh/planmesh/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(sqlite.Open(":memory:"))
	require.NoError(t, err)
	return s
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	e := core.NewEvent("Team dinner", core.EventDining, "user-1")
	require.NoError(t, s.Set(ctx, "events", e.ID, e))

	var got core.Event
	require.NoError(t, s.Get(ctx, "events", e.ID, &got))
	assert.Equal(t, "Team dinner", got.Title)
	assert.Equal(t, core.EventDining, got.Type)
}

func TestSetUpserts(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Set(ctx, "events", "e1", map[string]any{"title": "v1"}))
	require.NoError(t, s.Set(ctx, "events", "e1", map[string]any{"title": "v2"}))

	var got map[string]any
	require.NoError(t, s.Get(ctx, "events", "e1", &got))
	assert.Equal(t, "v2", got["title"])
}

func TestGetNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	var out map[string]any
	err := s.Get(ctx, "events", "missing", &out)
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.Set(ctx, "events", "e1", map[string]any{"title": "x"}))
	require.NoError(t, s.Delete(ctx, "events", "e1"))
	assert.True(t, errors.Is(s.Delete(ctx, "events", "e1"), core.ErrDocumentNotFound))
}

func TestQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, userID := range []string{"u1", "u2"} {
		p := core.NewParticipant("evt-1", userID)
		require.NoError(t, s.Set(ctx, "participants", p.ID, p))
	}
	other := core.NewParticipant("evt-2", "u3")
	require.NoError(t, s.Set(ctx, "participants", other.ID, other))

	var byEvent []core.Participant
	require.NoError(t, s.Query(ctx, "participants", map[string]any{"event_id": "evt-1"}, &byEvent))
	assert.Len(t, byEvent, 2)

	var all []core.Participant
	require.NoError(t, s.Query(ctx, "participants", nil, &all))
	assert.Len(t, all, 3)
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx core.DocumentStore) error {
		if err := tx.Set(ctx, "events", "e1", map[string]any{"title": "x"}); err != nil {
			return err
		}
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	var out map[string]any
	err = s.Get(ctx, "events", "e1", &out)
	assert.True(t, errors.Is(err, core.ErrDocumentNotFound))
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	err := s.Transaction(ctx, func(tx core.DocumentStore) error {
		return tx.Set(ctx, "events", "e1", map[string]any{"title": "x"})
	})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, s.Get(ctx, "events", "e1", &out))
	assert.Equal(t, "x", out["title"])
}
