package bot

import (
	"context"
	"sync"

	"codebeep/logging"
	"codebeep/opencode"
)

// sessionTitle is the title given to sessions the bot creates.
const sessionTitle = "codebeep mobile session"

// roomBinding holds the cached session for one room. The mutex is held
// across the whole get-or-create sequence so two concurrent commands in the
// same room cannot race to create two sessions.
type roomBinding struct {
	mu      sync.Mutex
	session *opencode.Session
}

// sessionBindings maps each room to its active session.
type sessionBindings struct {
	mu    sync.Mutex
	rooms map[string]*roomBinding
}

func newSessionBindings() *sessionBindings {
	return &sessionBindings{rooms: make(map[string]*roomBinding)}
}

func (b *sessionBindings) slot(roomID string) *roomBinding {
	b.mu.Lock()
	defer b.mu.Unlock()

	binding, ok := b.rooms[roomID]
	if !ok {
		binding = &roomBinding{}
		b.rooms[roomID] = binding
	}
	return binding
}

// GetOrCreate returns the room's active session. A cached session is
// verified against the server first so its metadata is fresh; any failure
// there invalidates the cache and a new session is created.
func (b *sessionBindings) GetOrCreate(ctx context.Context, client ControlPlane, roomID string) (*opencode.Session, error) {
	binding := b.slot(roomID)
	binding.mu.Lock()
	defer binding.mu.Unlock()

	if binding.session != nil {
		session, err := client.GetSession(ctx, binding.session.ID)
		if err == nil {
			binding.session = session
			return session, nil
		}
		logging.Logger.Warn("cached session no longer valid, creating a new one",
			"room_id", roomID, "session_id", binding.session.ID, "error", err)
		binding.session = nil
	}

	session, err := client.CreateSession(ctx, sessionTitle, "")
	if err != nil {
		return nil, err
	}
	binding.session = session

	logging.Logger.Info("created session for room", "room_id", roomID, "session_id", session.ID)
	return session, nil
}

// Invalidate drops the cached session for one room.
func (b *sessionBindings) Invalidate(roomID string) {
	binding := b.slot(roomID)
	binding.mu.Lock()
	binding.session = nil
	binding.mu.Unlock()
}
