package matrix

import "encoding/json"

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

// MessageContent is the content of an m.room.message event.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// Event is one Matrix room event as delivered by /sync.
type Event struct {
	Type     string          `json:"type"`
	EventID  string          `json:"event_id,omitempty"`
	Sender   string          `json:"sender,omitempty"`
	StateKey *string         `json:"state_key,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
}

// messageEventContent is the subset of m.room.message content the bot reads.
type messageEventContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// memberEventContent is the subset of m.room.member content the bot reads.
type memberEventContent struct {
	Membership string `json:"membership"`
}

// SyncOptions controls a single /sync call.
type SyncOptions struct {
	// Since is the batch token from the previous sync. Empty means initial sync.
	Since string
	// Timeout is the server-side long-poll hold in milliseconds.
	Timeout int
	// SetTimeout forces the timeout parameter even when zero.
	SetTimeout bool
}

// SyncResponse is the subset of the /sync response the bot consumes.
type SyncResponse struct {
	NextBatch string `json:"next_batch"`
	Rooms     struct {
		Join   map[string]joinedRoom  `json:"join,omitempty"`
		Invite map[string]invitedRoom `json:"invite,omitempty"`
	} `json:"rooms,omitempty"`
}

type joinedRoom struct {
	Timeline struct {
		Events []Event `json:"events,omitempty"`
	} `json:"timeline,omitempty"`
}

type invitedRoom struct {
	InviteState struct {
		Events []Event `json:"events,omitempty"`
	} `json:"invite_state,omitempty"`
}

type sendEventResponse struct {
	EventID string `json:"event_id"`
}
