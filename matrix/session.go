package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/yuin/goldmark"
)

// typingTimeoutMillis is how long a typing notification stays visible if
// not refreshed or cleared.
const typingTimeoutMillis = 30000

// Session is an authenticated Matrix session. Sessions are lightweight and
// safe for concurrent use.
type Session struct {
	client      *Client
	accessToken string
	userID      string
	deviceID    string

	// transactionCounter generates unique transaction IDs for idempotent sends.
	transactionCounter atomic.Int64
}

// UserID returns the fully-qualified Matrix user ID (e.g., "@bot:beeper.local").
func (s *Session) UserID() string {
	return s.userID
}

// DeviceID returns the device ID for this session.
func (s *Session) DeviceID() string {
	return s.deviceID
}

// WhoAmI validates the access token and returns the user ID.
func (s *Session) WhoAmI(ctx context.Context) (string, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil, nil)
	if err != nil {
		return "", fmt.Errorf("matrix: whoami failed: %w", err)
	}

	var response struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse whoami response: %w", err)
	}
	return response.UserID, nil
}

// JoinRoom joins a room by ID and returns the joined room ID.
func (s *Session) JoinRoom(ctx context.Context, roomID string) (string, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID)
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{}, nil)
	if err != nil {
		return "", fmt.Errorf("matrix: join room %s failed: %w", roomID, err)
	}

	var response struct {
		RoomID string `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse join response: %w", err)
	}

	s.client.logger.Info("joined matrix room", "room_id", response.RoomID)
	return response.RoomID, nil
}

// SendText sends a plain-text message to a room. Returns the event ID.
func (s *Session) SendText(ctx context.Context, roomID, text string) (string, error) {
	return s.sendMessage(ctx, roomID, MessageContent{
		MsgType: "m.text",
		Body:    text,
	})
}

// SendMarkdown sends a message with the markdown source as the plain-text
// body and the rendered HTML as formatted_body. Returns the event ID.
func (s *Session) SendMarkdown(ctx context.Context, roomID, markdown string) (string, error) {
	var rendered bytes.Buffer
	if err := goldmark.Convert([]byte(markdown), &rendered); err != nil {
		// Fall back to plain text; losing formatting beats losing the message.
		s.client.logger.Warn("markdown rendering failed, sending plain text", "error", err)
		return s.SendText(ctx, roomID, markdown)
	}

	return s.sendMessage(ctx, roomID, MessageContent{
		MsgType:       "m.text",
		Body:          markdown,
		Format:        "org.matrix.custom.html",
		FormattedBody: rendered.String(),
	})
}

func (s *Session) sendMessage(ctx context.Context, roomID string, content MessageContent) (string, error) {
	// Matrix sends are idempotent PUTs keyed by a transaction ID.
	transactionID := s.nextTransactionID()
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID),
		url.PathEscape(transactionID),
	)

	body, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, content, nil)
	if err != nil {
		return "", fmt.Errorf("matrix: send message to %q failed: %w", roomID, err)
	}

	var response sendEventResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("matrix: failed to parse send response: %w", err)
	}
	return response.EventID, nil
}

// SetTyping toggles the typing indicator in a room.
func (s *Session) SetTyping(ctx context.Context, roomID string, typing bool) error {
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/typing/%s",
		url.PathEscape(roomID),
		url.PathEscape(s.userID),
	)

	request := map[string]any{"typing": typing}
	if typing {
		request["timeout"] = typingTimeoutMillis
	}

	if _, err := s.client.doRequest(ctx, http.MethodPut, path, s.accessToken, request, nil); err != nil {
		return fmt.Errorf("matrix: set typing in %q failed: %w", roomID, err)
	}
	return nil
}

// Sync performs one incremental sync with the homeserver. For the initial
// sync, leave options.Since empty.
func (s *Session) Sync(ctx context.Context, options SyncOptions) (*SyncResponse, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout || options.Timeout > 0 {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("matrix: sync failed: %w", err)
	}

	var response SyncResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("matrix: failed to parse sync response: %w", err)
	}
	return &response, nil
}

// nextTransactionID generates a unique transaction ID for idempotent event
// sending. Format: "codebeep-<timestamp_ms>-<counter>" so ids stay unique
// across restarts.
func (s *Session) nextTransactionID() string {
	counter := s.transactionCounter.Add(1)
	return fmt.Sprintf("codebeep-%d-%d", time.Now().UnixMilli(), counter)
}
