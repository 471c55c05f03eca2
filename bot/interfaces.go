package bot

import (
	"context"

	"codebeep/opencode"
)

// Transport is the narrow slice of the chat transport the bot depends on.
// matrix.Session satisfies it.
type Transport interface {
	// UserID returns the bot's own identity, used for the self-echo guard.
	UserID() string
	// SendMarkdown delivers a markdown-flavored message to a room and
	// returns the event id.
	SendMarkdown(ctx context.Context, roomID, markdown string) (string, error)
	// SetTyping toggles the typing indicator in a room.
	SetTyping(ctx context.Context, roomID string, typing bool) error
	// JoinRoom accepts a room invite.
	JoinRoom(ctx context.Context, roomID string) (string, error)
}

// ControlPlane is the slice of the OpenCode client the bot uses.
// opencode.Client satisfies it.
type ControlPlane interface {
	GetSession(ctx context.Context, sessionID string) (*opencode.Session, error)
	CreateSession(ctx context.Context, title, parentID string) (*opencode.Session, error)
	SessionStatuses(ctx context.Context) (map[string]opencode.SessionStatus, error)
	ListSessions(ctx context.Context) ([]opencode.Session, error)
	AbortSession(ctx context.Context, sessionID string) (bool, error)
	SendMessageAsync(ctx context.Context, sessionID, content, agent, model string) error
	ListAgents(ctx context.Context) ([]opencode.Agent, error)
	SubscribeEvents(ctx context.Context) (<-chan opencode.Event, error)
}

// RouteStore persists the session-to-room correlation consulted by the
// event monitor. A missing route is reported as storage.ErrRouteNotFound.
// storage.Store satisfies it.
type RouteStore interface {
	SaveRoute(ctx context.Context, sessionID, roomID, agent string) error
	RouteForSession(ctx context.Context, sessionID string) (string, error)
	DeleteRoute(ctx context.Context, sessionID string) error
}
