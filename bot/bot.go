package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"codebeep/config"
	"codebeep/logging"
)

const defaultMaxMessageLength = 4000

// Bot routes chat commands from Matrix rooms to the OpenCode control-plane
// and relays results back. One Bot serves all rooms; per-room state lives in
// the session bindings.
type Bot struct {
	config    *config.Config
	transport Transport
	opencode  ControlPlane
	routes    RouteStore
	registry  *Registry
	bindings  *sessionBindings

	modelMu      sync.Mutex
	currentModel string
}

// New creates a Bot over the given collaborators.
func New(cfg *config.Config, transport Transport, controlPlane ControlPlane, routes RouteStore) *Bot {
	return &Bot{
		config:    cfg,
		transport: transport,
		opencode:  controlPlane,
		routes:    routes,
		registry:  NewRegistry(),
		bindings:  newSessionBindings(),
	}
}

// CurrentModel returns the model preference set via /model, or empty when
// the server default applies.
func (b *Bot) CurrentModel() string {
	b.modelMu.Lock()
	defer b.modelMu.Unlock()
	return b.currentModel
}

func (b *Bot) setModel(model string) {
	b.modelMu.Lock()
	b.currentModel = model
	b.modelMu.Unlock()
}

// isUserAllowed reports whether a sender may use the bot. An empty
// allow-list means no restrictions.
func (b *Bot) isUserAllowed(userID string) bool {
	allowed := b.config.Matrix.AllowedUsers
	if len(allowed) == 0 {
		return true
	}
	for _, user := range allowed {
		if user == userID {
			return true
		}
	}
	return false
}

// HandleMessage processes one inbound room message. Each guard is terminal:
// the first one that fails ends handling with no reply, except the unknown
// command case which may reply per config.
func (b *Bot) HandleMessage(ctx context.Context, roomID, sender, body string) {
	if sender == "" || body == "" {
		return
	}

	// Self-echo guard: the transport identity when available, the
	// configured username as fallback.
	if self := b.transport.UserID(); self != "" {
		if sender == self {
			return
		}
	} else if sender == b.config.Matrix.Username {
		return
	}

	if !b.isUserAllowed(sender) {
		logging.Logger.Warn("unauthorized user attempted to use bot", "sender", sender, "room_id", roomID)
		return
	}

	prefix := b.config.Bot.Prefix
	if prefix == "" {
		prefix = "/"
	}
	if !strings.HasPrefix(body, prefix) {
		return
	}

	name, args := splitCommand(body[len(prefix):])
	if name == "" {
		return
	}

	command, ok := b.registry.Lookup(name)
	if !ok {
		if b.config.Bot.UnknownCommandReply {
			b.deliver(ctx, roomID,
				fmt.Sprintf("Unknown command: %s\nUse /help to see available commands.", name))
		}
		return
	}

	logging.Logger.Info("executing command", "command", command.Name(), "sender", sender, "room_id", roomID)

	if b.config.Bot.TypingIndicator {
		if err := b.transport.SetTyping(ctx, roomID, true); err != nil {
			logging.Logger.Warn("failed to set typing indicator", "room_id", roomID, "error", err)
		}
		defer func() {
			if err := b.transport.SetTyping(ctx, roomID, false); err != nil {
				logging.Logger.Warn("failed to clear typing indicator", "room_id", roomID, "error", err)
			}
		}()
	}

	result := b.execute(ctx, command, roomID, args)
	b.deliver(ctx, roomID, result.Message)
}

// splitCommand tokenizes the body after the prefix into a lower-cased
// command token and the remainder.
func splitCommand(rest string) (name, args string) {
	rest = strings.TrimLeft(rest, " \t")
	if rest == "" {
		return "", ""
	}
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		return strings.ToLower(rest[:i]), strings.TrimLeft(rest[i+1:], " \t\n")
	}
	return strings.ToLower(rest), ""
}

// execute is the outermost safety boundary: handlers isolate their own
// errors, but a panicking handler must not take down the dispatch loop.
func (b *Bot) execute(ctx context.Context, command Command, roomID, args string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.Error("command handler panicked", "command", command.Name(), "panic", r)
			result = Result{Message: fmt.Sprintf("Error executing command: %v", r)}
		}
	}()
	return command.Execute(ctx, b, roomID, args)
}

// deliver sends a message to a room, splitting it into fixed-size chunks
// when it exceeds the configured maximum. Chunks are sent in order and
// concatenate back to the original text.
func (b *Bot) deliver(ctx context.Context, roomID, message string) {
	if message == "" {
		return
	}

	maxLength := b.config.Bot.MaxMessageLength
	if maxLength <= 0 {
		maxLength = defaultMaxMessageLength
	}

	chunks := splitMessage(message, maxLength)
	for i, chunk := range chunks {
		if _, err := b.transport.SendMarkdown(ctx, roomID, chunk); err != nil {
			logging.Logger.Error("failed to send message",
				"room_id", roomID, "error", err, "chunks_dropped", len(chunks)-i)
			return
		}
	}
}

// splitMessage slices text into chunks of at most maxLength runes. Pure
// length slicing, no boundary awareness.
func splitMessage(message string, maxLength int) []string {
	runes := []rune(message)
	if len(runes) <= maxLength {
		return []string{message}
	}

	chunks := make([]string, 0, (len(runes)+maxLength-1)/maxLength)
	for start := 0; start < len(runes); start += maxLength {
		end := min(start+maxLength, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// HandleInvite joins a room when the inviter is allowed, otherwise ignores
// the invite.
func (b *Bot) HandleInvite(ctx context.Context, roomID, sender string) {
	if !b.isUserAllowed(sender) {
		logging.Logger.Warn("ignoring room invite", "room_id", roomID, "sender", sender)
		return
	}

	logging.Logger.Info("joining room", "room_id", roomID, "inviter", sender)
	if _, err := b.transport.JoinRoom(ctx, roomID); err != nil {
		logging.Logger.Error("failed to join room", "room_id", roomID, "error", err)
	}
}
