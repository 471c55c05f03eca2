package opencode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// defaultTimeout bounds control-plane calls. The chat transport has its
	// own liveness requirements, so everything except turn submission must
	// return quickly.
	defaultTimeout = 30 * time.Second

	// turnTimeout bounds the two blocking turn-submission calls. Agent turns
	// are long-running; five minutes matches the server contract.
	turnTimeout = 300 * time.Second
)

// RemoteError is a non-2xx response from the OpenCode server. Callers can
// use errors.As to inspect the HTTP status:
//
//	var remoteErr *opencode.RemoteError
//	if errors.As(err, &remoteErr) && remoteErr.NotFound() { ... }
type RemoteError struct {
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("opencode: server returned %d: %s", e.StatusCode, e.Body)
}

// NotFound reports whether the server had no such resource.
func (e *RemoteError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// ServerURL is the base URL of the OpenCode server (e.g., "http://127.0.0.1:4096").
	ServerURL string
	// HTTPClient overrides the short-timeout client used for control calls.
	// Mainly for tests. If nil, a client with a 30s timeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is a typed HTTP client for the OpenCode control-plane. It carries
// two http.Clients over one shared transport: a short-timeout one for
// control calls and a long-timeout one for blocking turn submission.
type Client struct {
	baseURL    string
	httpClient *http.Client
	longClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new OpenCode client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.ServerURL == "" {
		return nil, fmt.Errorf("opencode: ServerURL is required")
	}
	if _, err := url.Parse(config.ServerURL); err != nil {
		return nil, fmt.Errorf("opencode: invalid ServerURL %q: %w", config.ServerURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	// The long client shares the short client's transport so both reuse the
	// same connection pool.
	longClient := &http.Client{
		Transport: httpClient.Transport,
		Timeout:   turnTimeout,
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.ServerURL, "/"),
		httpClient: httpClient,
		longClient: longClient,
		logger:     logger,
	}, nil
}

// Close releases idle connections in the shared pool. Safe to call more
// than once.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
	c.longClient.CloseIdleConnections()
}

// doRequest performs an HTTP request against the control-plane and returns
// the response body. Non-2xx responses come back as *RemoteError.
func (c *Client) doRequest(ctx context.Context, client *http.Client, method, path string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("opencode: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("opencode: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("opencode: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("opencode: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	return nil, &RemoteError{StatusCode: response.StatusCode, Body: string(responseBody)}
}

// get performs a short-timeout GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.doRequest(ctx, c.httpClient, http.MethodGet, path, nil, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("opencode: failed to parse %s response: %w", path, err)
	}
	return nil
}

// Health probes server liveness and returns the health payload, which
// includes the server version.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var health map[string]any
	if err := c.get(ctx, "/global/health", nil, &health); err != nil {
		return nil, err
	}
	return health, nil
}

// Config returns the server configuration.
func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	var cfg map[string]any
	if err := c.get(ctx, "/config", nil, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListSessions returns all sessions in the order the server reports them.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.get(ctx, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SessionStatuses returns a bulk status snapshot keyed by session id.
func (c *Client) SessionStatuses(ctx context.Context) (map[string]SessionStatus, error) {
	var statuses map[string]SessionStatus
	if err := c.get(ctx, "/session/status", nil, &statuses); err != nil {
		return nil, err
	}
	for id, status := range statuses {
		status.SessionID = id
		if status.Status == "" {
			status.Status = StatusIdle
		}
		statuses[id] = status
	}
	return statuses, nil
}

// CreateSession creates a new session. Empty title and parentID are omitted
// from the request body so server defaults apply.
func (c *Client) CreateSession(ctx context.Context, title, parentID string) (*Session, error) {
	body := map[string]any{}
	if title != "" {
		body["title"] = title
	}
	if parentID != "" {
		body["parentID"] = parentID
	}

	responseBody, err := c.doRequest(ctx, c.httpClient, http.MethodPost, "/session", body, nil)
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(responseBody, &session); err != nil {
		return nil, fmt.Errorf("opencode: failed to parse create session response: %w", err)
	}

	c.logger.Info("created opencode session", "session_id", session.ID, "title", session.Title)
	return &session, nil
}

// GetSession fetches a single session. A deleted session surfaces as a
// *RemoteError with NotFound set; callers should treat that as a stale
// binding.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	if err := c.get(ctx, "/session/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	body, err := c.doRequest(ctx, c.httpClient, http.MethodDelete, "/session/"+url.PathEscape(sessionID), nil, nil)
	if err != nil {
		return false, err
	}
	var deleted bool
	if err := json.Unmarshal(body, &deleted); err != nil {
		return false, fmt.Errorf("opencode: failed to parse delete response: %w", err)
	}
	return deleted, nil
}

// AbortSession requests cancellation of in-flight work on a session. The
// server treats aborting an idle session as a no-op, so the call is
// idempotent from the caller's perspective.
func (c *Client) AbortSession(ctx context.Context, sessionID string) (bool, error) {
	body, err := c.doRequest(ctx, c.httpClient, http.MethodPost, "/session/"+url.PathEscape(sessionID)+"/abort", nil, nil)
	if err != nil {
		return false, err
	}
	var aborted bool
	if err := json.Unmarshal(body, &aborted); err != nil {
		return false, fmt.Errorf("opencode: failed to parse abort response: %w", err)
	}
	return aborted, nil
}

// Messages returns the messages in a session, oldest first. A limit of zero
// means no limit.
func (c *Client) Messages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": []string{strconv.Itoa(limit)}}
	}

	var envelopes []MessageEnvelope
	if err := c.get(ctx, "/session/"+url.PathEscape(sessionID)+"/message", query, &envelopes); err != nil {
		return nil, err
	}

	messages := make([]Message, len(envelopes))
	for i, envelope := range envelopes {
		messages[i] = envelope.Message()
	}
	return messages, nil
}

// promptBody builds the request body shared by the turn-submission calls.
// Empty agent and model are omitted.
func promptBody(content, agent, model string) map[string]any {
	body := map[string]any{
		"parts": []map[string]any{{"type": "text", "text": content}},
	}
	if agent != "" {
		body["agent"] = agent
	}
	if model != "" {
		body["model"] = model
	}
	return body
}

// SendMessage submits a turn and blocks until the server completes it. This
// uses the extended timeout; interactive paths should prefer
// SendMessageAsync so the chat transport is never stalled for minutes.
func (c *Client) SendMessage(ctx context.Context, sessionID, content, agent, model string) (*Message, error) {
	body, err := c.doRequest(ctx, c.longClient, http.MethodPost,
		"/session/"+url.PathEscape(sessionID)+"/message", promptBody(content, agent, model), nil)
	if err != nil {
		return nil, err
	}

	var envelope MessageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("opencode: failed to parse send message response: %w", err)
	}
	message := envelope.Message()
	return &message, nil
}

// SendMessageAsync submits a turn without waiting for it. Completion arrives
// later on the event stream.
func (c *Client) SendMessageAsync(ctx context.Context, sessionID, content, agent, model string) error {
	_, err := c.doRequest(ctx, c.httpClient, http.MethodPost,
		"/session/"+url.PathEscape(sessionID)+"/prompt_async", promptBody(content, agent, model), nil)
	return err
}

// ExecuteCommand runs a server-side slash command and blocks until it
// completes, under the same extended timeout as SendMessage.
func (c *Client) ExecuteCommand(ctx context.Context, sessionID, command, arguments, agent, model string) (*Message, error) {
	body := map[string]any{
		"command":   command,
		"arguments": arguments,
	}
	if agent != "" {
		body["agent"] = agent
	}
	if model != "" {
		body["model"] = model
	}

	responseBody, err := c.doRequest(ctx, c.longClient, http.MethodPost,
		"/session/"+url.PathEscape(sessionID)+"/command", body, nil)
	if err != nil {
		return nil, err
	}

	var envelope MessageEnvelope
	if err := json.Unmarshal(responseBody, &envelope); err != nil {
		return nil, fmt.Errorf("opencode: failed to parse command response: %w", err)
	}
	message := envelope.Message()
	return &message, nil
}

// ListAgents returns the agents available on the server.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var agents []Agent
	if err := c.get(ctx, "/agent", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// ListCommands returns the slash commands available on the server.
func (c *Client) ListCommands(ctx context.Context) ([]CommandInfo, error) {
	var commands []CommandInfo
	if err := c.get(ctx, "/command", nil, &commands); err != nil {
		return nil, err
	}
	return commands, nil
}

// Diff returns the file diffs for a session, optionally at a specific
// message.
func (c *Client) Diff(ctx context.Context, sessionID, messageID string) ([]FileDiff, error) {
	var query url.Values
	if messageID != "" {
		query = url.Values{"messageID": []string{messageID}}
	}

	var diffs []FileDiff
	if err := c.get(ctx, "/session/"+url.PathEscape(sessionID)+"/diff", query, &diffs); err != nil {
		return nil, err
	}
	return diffs, nil
}
