package opencode

import "encoding/json"

// Session is one unit of agent work, owned by the OpenCode server. The bot
// only ever holds a cached reference; the id is stable and server-assigned.
type Session struct {
	ID        string          `json:"id"`
	Title     string          `json:"title,omitempty"`
	ParentID  string          `json:"parentID,omitempty"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
	Share     json.RawMessage `json:"share,omitempty"`
}

// Session status values reported by /session/status.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusWaiting = "waiting"
)

// SessionStatus is the transient, polled view of a session. It may be stale
// between poll and use; there is no locking with the server.
type SessionStatus struct {
	SessionID string `json:"-"`
	Status    string `json:"status"`
	Agent     string `json:"agent,omitempty"`
	Model     string `json:"model,omitempty"`
}

// Part is one content block of a message, tagged by a type discriminator
// (text, tool-call, tool-result, ...). Text is populated for text parts;
// the raw JSON is retained for everything else.
type Part struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON keeps the raw block alongside the decoded discriminator so
// non-text parts survive a round trip through the client.
func (p *Part) UnmarshalJSON(data []byte) error {
	type alias struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	p.Type = a.Type
	p.Text = a.Text
	p.raw = append(p.raw[:0], data...)
	return nil
}

// MarshalJSON emits the original raw block when one was captured, so parts
// the client does not model are passed through unchanged.
func (p Part) MarshalJSON() ([]byte, error) {
	if len(p.raw) > 0 {
		return p.raw, nil
	}
	type alias struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	}
	return json.Marshal(alias{Type: p.Type, Text: p.Text})
}

// Message is one turn in a session.
type Message struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
	Parts     []Part `json:"parts"`
}

// MessageInfo mirrors the "info" block of the wire format.
type MessageInfo struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// MessageEnvelope is the wire shape of a message: metadata under "info",
// content blocks under "parts". It appears in /session/{id}/message
// responses and nested inside session.message events.
type MessageEnvelope struct {
	Info  MessageInfo `json:"info"`
	Parts []Part      `json:"parts"`
}

// Message flattens the envelope into the client-facing Message type.
func (e MessageEnvelope) Message() Message {
	return Message{
		ID:        e.Info.ID,
		SessionID: e.Info.SessionID,
		Role:      e.Info.Role,
		CreatedAt: e.Info.CreatedAt,
		Parts:     e.Parts,
	}
}

// Agent is a named behavior profile on the control-plane.
type Agent struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// CommandInfo describes a slash command exposed by the server.
type CommandInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Template    string `json:"template,omitempty"`
}

// FileDiff is one file-level diff record from /session/{id}/diff.
type FileDiff struct {
	File    string `json:"file"`
	Added   int    `json:"added,omitempty"`
	Removed int    `json:"removed,omitempty"`
	Diff    string `json:"diff,omitempty"`
}

// Event type emitted when a message lands in a session. An assistant role
// inside the nested message signals turn completion.
const EventSessionMessage = "session.message"

// Event is one server-pushed record from the /event stream.
type Event struct {
	Type      string           `json:"type"`
	SessionID string           `json:"sessionID,omitempty"`
	Message   *MessageEnvelope `json:"message,omitempty"`
}
