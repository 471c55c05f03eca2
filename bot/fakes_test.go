package bot

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"codebeep/config"
	"codebeep/opencode"
	"codebeep/storage"
)

type sentMessage struct {
	roomID string
	body   string
}

type fakeTransport struct {
	mu        sync.Mutex
	userID    string
	sent      []sentMessage
	typing    []bool
	joined    []string
	sendErr   error
	failAfter int // fail sends once this many succeed (0 = never)
}

func (t *fakeTransport) UserID() string { return t.userID }

func (t *fakeTransport) SendMarkdown(_ context.Context, roomID, markdown string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return "", t.sendErr
	}
	if t.failAfter > 0 && len(t.sent) >= t.failAfter {
		return "", fmt.Errorf("room send rejected")
	}
	t.sent = append(t.sent, sentMessage{roomID: roomID, body: markdown})
	return fmt.Sprintf("$event%d", len(t.sent)), nil
}

func (t *fakeTransport) SetTyping(_ context.Context, roomID string, typing bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.typing = append(t.typing, typing)
	return nil
}

func (t *fakeTransport) JoinRoom(_ context.Context, roomID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joined = append(t.joined, roomID)
	return roomID, nil
}

func (t *fakeTransport) sentMessages() []sentMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sentMessage(nil), t.sent...)
}

type sentPrompt struct {
	sessionID string
	content   string
	agent     string
	model     string
}

type fakeControlPlane struct {
	mu sync.Mutex

	sessionsByID map[string]*opencode.Session
	sessionList  []opencode.Session
	statuses     map[string]opencode.SessionStatus
	agents       []opencode.Agent
	events       chan opencode.Event

	getSessionErr error
	createErr     error
	sendErr       error
	abortErr      error
	statusErr     error
	subscribeErr  error

	totalCalls      int
	getSessionCalls int
	createCalls     int
	statusCalls     int
	listCalls       int
	agentCalls      int
	subscribeCalls  int
	aborted         []string
	prompts         []sentPrompt
}

func newFakeControlPlane() *fakeControlPlane {
	return &fakeControlPlane{
		sessionsByID: make(map[string]*opencode.Session),
		statuses:     make(map[string]opencode.SessionStatus),
		events:       make(chan opencode.Event),
	}
}

func (c *fakeControlPlane) GetSession(_ context.Context, sessionID string) (*opencode.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
	c.getSessionCalls++
	if c.getSessionErr != nil {
		return nil, c.getSessionErr
	}
	if session, ok := c.sessionsByID[sessionID]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, &opencode.RemoteError{StatusCode: 404, Body: "session not found"}
}

func (c *fakeControlPlane) CreateSession(_ context.Context, title, parentID string) (*opencode.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
	c.createCalls++
	if c.createErr != nil {
		return nil, c.createErr
	}
	session := &opencode.Session{
		ID:    fmt.Sprintf("session-%08d", c.createCalls),
		Title: title,
	}
	c.sessionsByID[session.ID] = session
	return session, nil
}

func (c *fakeControlPlane) SessionStatuses(_ context.Context) (map[string]opencode.SessionStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
	c.statusCalls++
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return c.statuses, nil
}

func (c *fakeControlPlane) ListSessions(_ context.Context) ([]opencode.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
	c.listCalls++
	return c.sessionList, nil
}

func (c *fakeControlPlane) AbortSession(_ context.Context, sessionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
	if c.abortErr != nil {
		return false, c.abortErr
	}
	c.aborted = append(c.aborted, sessionID)
	return true, nil
}

func (c *fakeControlPlane) SendMessageAsync(_ context.Context, sessionID, content, agent, model string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
	if c.sendErr != nil {
		return c.sendErr
	}
	c.prompts = append(c.prompts, sentPrompt{sessionID: sessionID, content: content, agent: agent, model: model})
	return nil
}

func (c *fakeControlPlane) ListAgents(_ context.Context) ([]opencode.Agent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalCalls++
	c.agentCalls++
	return c.agents, nil
}

// SubscribeEvents mirrors the real client: the returned channel closes when
// the context is cancelled or the source channel is exhausted.
func (c *fakeControlPlane) SubscribeEvents(ctx context.Context) (<-chan opencode.Event, error) {
	c.mu.Lock()
	c.totalCalls++
	c.subscribeCalls++
	source := c.events
	err := c.subscribeErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make(chan opencode.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-source:
				if !ok {
					return
				}
				select {
				case <-ctx.Done():
					return
				case out <- event:
				}
			}
		}
	}()
	return out, nil
}

func (c *fakeControlPlane) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalCalls
}

func (c *fakeControlPlane) sentPrompts() []sentPrompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentPrompt(nil), c.prompts...)
}

type fakeRoutes struct {
	mu      sync.Mutex
	routes  map[string]string
	saves   int
	deletes int
}

func newFakeRoutes() *fakeRoutes {
	return &fakeRoutes{routes: make(map[string]string)}
}

func (r *fakeRoutes) SaveRoute(_ context.Context, sessionID, roomID, agent string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.routes[sessionID] = roomID
	return nil
}

func (r *fakeRoutes) RouteForSession(_ context.Context, sessionID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.routes[sessionID]
	if !ok {
		return "", storage.ErrRouteNotFound
	}
	return roomID, nil
}

func (r *fakeRoutes) DeleteRoute(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	delete(r.routes, sessionID)
	return nil
}

func (r *fakeRoutes) roomFor(sessionID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.routes[sessionID]
}

func newTestBot(t *testing.T) (*Bot, *fakeTransport, *fakeControlPlane, *fakeRoutes) {
	t.Helper()

	cfg := config.Default()
	cfg.Matrix.Username = "@codebeep:beeper.local"
	cfg.Matrix.Homeserver = "https://matrix.beeper.local"
	cfg.Matrix.Password = "hunter2"

	transport := &fakeTransport{userID: "@codebeep:beeper.local"}
	control := newFakeControlPlane()
	routes := newFakeRoutes()
	return New(cfg, transport, control, routes), transport, control, routes
}
