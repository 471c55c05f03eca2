package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codebeep/logging"
	"codebeep/opencode"
	"codebeep/storage"
)

const (
	monitorRetryInitial = time.Second
	monitorRetryMax     = 30 * time.Second
)

// MonitorEvents consumes the control-plane event stream until the context
// is cancelled, relaying assistant turn completions to the rooms that
// started them. The subscription is supervised: any failure other than
// cancellation is logged and the stream reopened with exponential backoff,
// reset once events flow again.
func (b *Bot) MonitorEvents(ctx context.Context) error {
	retryDelay := monitorRetryInitial

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		events, err := b.opencode.SubscribeEvents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Logger.Error("event subscription failed, retrying", "error", err, "retry_in", retryDelay)
			if !sleepContext(ctx, retryDelay) {
				return ctx.Err()
			}
			retryDelay = min(retryDelay*2, monitorRetryMax)
			continue
		}

		for event := range events {
			retryDelay = monitorRetryInitial
			b.handleEvent(ctx, event)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Logger.Warn("event stream closed, reconnecting", "retry_in", retryDelay)
		if !sleepContext(ctx, retryDelay) {
			return ctx.Err()
		}
		retryDelay = min(retryDelay*2, monitorRetryMax)
	}
}

// sleepContext waits for the delay, returning false when the context is
// cancelled first.
func sleepContext(ctx context.Context, delay time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

// handleEvent relays assistant turn completions. Everything else on the
// stream is noise to the bot.
func (b *Bot) handleEvent(ctx context.Context, event opencode.Event) {
	if event.Type != opencode.EventSessionMessage || event.Message == nil {
		return
	}

	message := event.Message.Message()
	if message.Role != "assistant" {
		return
	}

	sessionID := event.SessionID
	if sessionID == "" {
		sessionID = message.SessionID
	}
	if sessionID == "" {
		return
	}

	roomID, err := b.routes.RouteForSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrRouteNotFound) {
			logging.Logger.Debug("no room recorded for completed session", "session_id", sessionID)
		} else {
			logging.Logger.Error("route lookup failed", "session_id", sessionID, "error", err)
		}
		return
	}

	logging.Logger.Info("session turn completed", "session_id", sessionID, "room_id", roomID)
	b.deliver(ctx, roomID, completionNotice(sessionID, message.Parts))
}

// completionNotice renders the message sent back to the originating room,
// including the assistant's text output when there is any.
func completionNotice(sessionID string, parts []opencode.Part) string {
	notice := fmt.Sprintf("✅ Task complete. Session: `%s...`", shortID(sessionID))

	var texts []string
	for _, part := range parts {
		if part.Type == "text" && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	if summary := strings.TrimSpace(strings.Join(texts, "\n")); summary != "" {
		notice += "\n\n" + summary
	}
	return notice
}
