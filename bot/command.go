package bot

import "context"

// Result is the outcome of one command execution. Created fresh per
// execution, never mutated afterwards, consumed once by the delivery path.
type Result struct {
	// OK reports whether the command succeeded.
	OK bool
	// Message is the human-readable, markdown-flavored reply text.
	Message string
	// Data carries auxiliary values, e.g. the session id a task started on.
	Data map[string]string
}

// Command is one chat command. The set of implementations is fixed at
// compile time; the registry enumerates them all.
type Command interface {
	Name() string
	Description() string
	Usage() string
	Aliases() []string
	// Execute runs the command. Implementations catch control-plane errors
	// themselves and fold them into a failed Result, so a failing command
	// never takes down the dispatch loop.
	Execute(ctx context.Context, b *Bot, roomID, args string) Result
}
