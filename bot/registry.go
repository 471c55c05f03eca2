package bot

import "strings"

// Registry resolves a command token to its handler. Every command name and
// alias maps to the same instance; lookup is case-insensitive.
type Registry struct {
	byName  map[string]Command
	ordered []Command
}

// NewRegistry builds the registry over the full command set. Order here is
// the order /help lists commands in.
func NewRegistry() *Registry {
	commands := []Command{
		buildCommand{},
		planCommand{},
		statusCommand{},
		sessionsCommand{},
		abortCommand{},
		modelCommand{},
		helpCommand{},
		agentsCommand{},
	}

	byName := make(map[string]Command, len(commands)*3)
	for _, command := range commands {
		byName[strings.ToLower(command.Name())] = command
		for _, alias := range command.Aliases() {
			byName[strings.ToLower(alias)] = command
		}
	}

	return &Registry{byName: byName, ordered: commands}
}

// Lookup resolves a name or alias, case-insensitively.
func (r *Registry) Lookup(name string) (Command, bool) {
	command, ok := r.byName[strings.ToLower(name)]
	return command, ok
}

// All returns the commands in registration order, one entry per command.
func (r *Registry) All() []Command {
	return r.ordered
}
