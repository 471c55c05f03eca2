package matrix

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// syncPollTimeoutMillis is the server-side long-poll hold for /sync.
	syncPollTimeoutMillis = 30000

	syncRetryInitial = time.Second
	syncRetryMax     = 30 * time.Second
)

// SyncHandlers receives events from SyncLoop. Handlers run on the sync
// goroutine; long-running work should be dispatched elsewhere.
type SyncHandlers struct {
	// OnMessage is called for each m.room.message text event in a joined
	// room. Messages sent by the session's own user are filtered out.
	OnMessage func(ctx context.Context, roomID, sender, body string)
	// OnInvite is called for each pending room invite addressed to the
	// session's user.
	OnInvite func(ctx context.Context, roomID, sender string)
}

// SyncLoop runs the /sync long-poll loop until the context is cancelled.
// The first sync uses a zero timeout and discards its events so the bot
// never replays history from before it started; only invites from the
// initial batch are delivered, since those are still pending.
func (s *Session) SyncLoop(ctx context.Context, handlers SyncHandlers) error {
	since := ""
	initial := true
	retryDelay := syncRetryInitial

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		options := SyncOptions{Since: since, Timeout: syncPollTimeoutMillis}
		if initial {
			options.Timeout = 0
			options.SetTimeout = true
		}

		response, err := s.Sync(ctx, options)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.client.logger.Error("matrix sync failed, retrying", "error", err, "retry_in", retryDelay)
			// Drop pooled connections so the retry dials fresh.
			s.client.CloseIdleConnections()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay = min(retryDelay*2, syncRetryMax)
			continue
		}
		retryDelay = syncRetryInitial
		since = response.NextBatch

		s.dispatchInvites(ctx, response, handlers)
		if !initial {
			s.dispatchMessages(ctx, response, handlers)
		}
		initial = false
	}
}

func (s *Session) dispatchMessages(ctx context.Context, response *SyncResponse, handlers SyncHandlers) {
	if handlers.OnMessage == nil {
		return
	}

	for roomID, room := range response.Rooms.Join {
		for _, event := range room.Timeline.Events {
			if event.Type != "m.room.message" || event.Sender == s.userID {
				continue
			}

			var content messageEventContent
			if err := json.Unmarshal(event.Content, &content); err != nil {
				s.client.logger.Warn("skipping malformed message event",
					"room_id", roomID, "event_id", event.EventID, "error", err)
				continue
			}
			if content.MsgType != "m.text" || content.Body == "" {
				continue
			}

			handlers.OnMessage(ctx, roomID, event.Sender, content.Body)
		}
	}
}

func (s *Session) dispatchInvites(ctx context.Context, response *SyncResponse, handlers SyncHandlers) {
	if handlers.OnInvite == nil {
		return
	}

	for roomID, room := range response.Rooms.Invite {
		for _, event := range room.InviteState.Events {
			if event.Type != "m.room.member" {
				continue
			}
			if event.StateKey == nil || *event.StateKey != s.userID {
				continue
			}

			var content memberEventContent
			if err := json.Unmarshal(event.Content, &content); err != nil || content.Membership != "invite" {
				continue
			}

			handlers.OnInvite(ctx, roomID, event.Sender)
		}
	}
}
