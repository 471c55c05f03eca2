package bot

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateReusesSession(t *testing.T) {
	_, _, control, _ := newTestBot(t)
	bindings := newSessionBindings()

	first, err := bindings.GetOrCreate(context.Background(), control, "!room:beeper.local")
	require.NoError(t, err)
	assert.Equal(t, sessionTitle, first.Title)
	assert.Equal(t, 1, control.createCalls)
	assert.Equal(t, 0, control.getSessionCalls, "first call has nothing to verify")

	second, err := bindings.GetOrCreate(context.Background(), control, "!room:beeper.local")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, control.createCalls, "second call must not create")
	assert.Equal(t, 1, control.getSessionCalls, "second call verifies the cached session")
}

func TestGetOrCreateReplacesStaleSession(t *testing.T) {
	_, _, control, _ := newTestBot(t)
	bindings := newSessionBindings()

	first, err := bindings.GetOrCreate(context.Background(), control, "!room:beeper.local")
	require.NoError(t, err)

	// Simulate server-side deletion: verification now 404s.
	control.mu.Lock()
	delete(control.sessionsByID, first.ID)
	control.mu.Unlock()

	second, err := bindings.GetOrCreate(context.Background(), control, "!room:beeper.local")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, control.createCalls, "stale binding triggers exactly one new create")

	third, err := bindings.GetOrCreate(context.Background(), control, "!room:beeper.local")
	require.NoError(t, err)
	assert.Equal(t, second.ID, third.ID, "binding reflects the replacement session")
	assert.Equal(t, 2, control.createCalls)
}

func TestInvalidateClearsSingleRoom(t *testing.T) {
	_, _, control, _ := newTestBot(t)
	bindings := newSessionBindings()

	first, err := bindings.GetOrCreate(context.Background(), control, "!a:beeper.local")
	require.NoError(t, err)
	other, err := bindings.GetOrCreate(context.Background(), control, "!b:beeper.local")
	require.NoError(t, err)

	bindings.Invalidate("!a:beeper.local")

	replacement, err := bindings.GetOrCreate(context.Background(), control, "!a:beeper.local")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, replacement.ID)

	unchanged, err := bindings.GetOrCreate(context.Background(), control, "!b:beeper.local")
	require.NoError(t, err)
	assert.Equal(t, other.ID, unchanged.ID)
}

func TestGetOrCreateIsPerRoom(t *testing.T) {
	_, _, control, _ := newTestBot(t)
	bindings := newSessionBindings()

	first, err := bindings.GetOrCreate(context.Background(), control, "!a:beeper.local")
	require.NoError(t, err)
	second, err := bindings.GetOrCreate(context.Background(), control, "!b:beeper.local")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, control.createCalls)
}

func TestGetOrCreateConcurrentCallsCreateOnce(t *testing.T) {
	_, _, control, _ := newTestBot(t)
	bindings := newSessionBindings()

	var wg sync.WaitGroup
	ids := make([]string, 16)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, err := bindings.GetOrCreate(context.Background(), control, "!room:beeper.local")
			assert.NoError(t, err)
			ids[i] = session.ID
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, control.createCalls, "concurrent callers in one room share one session")
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
