package opencode

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// SubscribeEvents opens the server-sent event stream and returns a channel
// of decoded events. The channel is closed when the stream ends or ctx is
// cancelled; calling SubscribeEvents again opens a fresh stream. Malformed
// records are logged and skipped, never fatal to the stream.
func (c *Client) SubscribeEvents(ctx context.Context) (<-chan Event, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		return nil, fmt.Errorf("opencode: failed to create event request: %w", err)
	}
	request.Header.Set("Accept", "text/event-stream")

	// The stream is long-lived, so it must not run under the control-call
	// timeout. Cancellation comes from ctx instead.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	response, err := streamClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("opencode: failed to open event stream: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		defer response.Body.Close()
		return nil, &RemoteError{StatusCode: response.StatusCode, Body: response.Status}
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer response.Body.Close()

		scanner := bufio.NewScanner(response.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := line[len("data: "):]
			if data == "" {
				continue
			}

			var event Event
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				c.logger.Warn("failed to parse event, skipping", "error", err, "data", data)
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			c.logger.Warn("event stream closed with error", "error", err)
		}
	}()

	return events, nil
}
