package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAndLookupRoute(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRoute(ctx, "ses_1", "!room:beeper.local", "build"))

	roomID, err := store.RouteForSession(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, "!room:beeper.local", roomID)
}

func TestSaveRouteReplacesExisting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRoute(ctx, "ses_1", "!old:beeper.local", "build"))
	require.NoError(t, store.SaveRoute(ctx, "ses_1", "!new:beeper.local", "plan"))

	roomID, err := store.RouteForSession(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, "!new:beeper.local", roomID)
}

func TestRouteNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RouteForSession(context.Background(), "ses_missing")
	assert.ErrorIs(t, err, ErrRouteNotFound)
}

func TestDeleteRoute(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRoute(ctx, "ses_1", "!room:beeper.local", "build"))
	require.NoError(t, store.DeleteRoute(ctx, "ses_1"))

	_, err := store.RouteForSession(ctx, "ses_1")
	assert.ErrorIs(t, err, ErrRouteNotFound)

	// Deleting again is not an error
	require.NoError(t, store.DeleteRoute(ctx, "ses_1"))
}

func TestRoutesSurviveReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	store, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.SaveRoute(ctx, "ses_1", "!room:beeper.local", "build"))
	require.NoError(t, store.Close())

	reopened, err := NewStore(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	roomID, err := reopened.RouteForSession(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, "!room:beeper.local", roomID)
}
