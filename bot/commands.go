package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"codebeep/logging"
	"codebeep/opencode"
)

// Agent profiles on the control-plane the chat commands target.
const (
	agentBuild = "build"
	agentPlan  = "plan"
)

// shortID truncates a session id for display.
func shortID(id string) string {
	runes := []rune(id)
	if len(runes) > 8 {
		return string(runes[:8])
	}
	return id
}

// startTask runs the shared build/plan path: bind a session to the room,
// fire the prompt asynchronously, and record the session-to-room route so
// the event monitor can deliver the completion notice.
func (b *Bot) startTask(ctx context.Context, roomID, content, agent, startNotice, failPrefix string) Result {
	session, err := b.bindings.GetOrCreate(ctx, b.opencode, roomID)
	if err != nil {
		return Result{Message: fmt.Sprintf("%s: %v", failPrefix, err)}
	}

	if err := b.opencode.SendMessageAsync(ctx, session.ID, content, agent, b.CurrentModel()); err != nil {
		return Result{Message: fmt.Sprintf("%s: %v", failPrefix, err)}
	}

	if err := b.routes.SaveRoute(ctx, session.ID, roomID, agent); err != nil {
		// The task is already running; losing the route only costs the
		// completion notice.
		logging.Logger.Warn("failed to record session route",
			"session_id", session.ID, "room_id", roomID, "error", err)
	}

	return Result{
		OK: true,
		Message: fmt.Sprintf("%s\nSession: %s...\n\nI'll notify you when it's complete.",
			startNotice, shortID(session.ID)),
		Data: map[string]string{"session_id": session.ID},
	}
}

type buildCommand struct{}

func (buildCommand) Name() string        { return "build" }
func (buildCommand) Description() string { return "Execute a coding task with full access to modify files" }
func (buildCommand) Usage() string       { return "/build <task description>" }
func (buildCommand) Aliases() []string   { return []string{"b", "do", "code"} }

func (buildCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	if strings.TrimSpace(args) == "" {
		return Result{Message: "Please provide a task description.\nUsage: /build <task>"}
	}
	return b.startTask(ctx, roomID, args, agentBuild,
		"Task started with build agent.", "Failed to start task")
}

type planCommand struct{}

func (planCommand) Name() string        { return "plan" }
func (planCommand) Description() string { return "Analyze code and plan changes without modifying files" }
func (planCommand) Usage() string       { return "/plan <analysis request>" }
func (planCommand) Aliases() []string   { return []string{"p", "analyze", "review"} }

func (planCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	if strings.TrimSpace(args) == "" {
		return Result{Message: "Please provide an analysis request.\nUsage: /plan <request>"}
	}
	return b.startTask(ctx, roomID, args, agentPlan,
		"Analysis started with plan agent.", "Failed to start analysis")
}

type statusCommand struct{}

func (statusCommand) Name() string        { return "status" }
func (statusCommand) Description() string { return "Check the status of current tasks" }
func (statusCommand) Usage() string       { return "/status" }
func (statusCommand) Aliases() []string   { return []string{"s", "st"} }

func (statusCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	statuses, err := b.opencode.SessionStatuses(ctx)
	if err != nil {
		return Result{Message: fmt.Sprintf("Failed to get status: %v", err)}
	}

	if len(statuses) == 0 {
		return Result{OK: true, Message: "No active sessions."}
	}

	sessionIDs := make([]string, 0, len(statuses))
	for sessionID := range statuses {
		sessionIDs = append(sessionIDs, sessionID)
	}
	sort.Strings(sessionIDs)

	lines := []string{"**Session Status:**\n"}
	for _, sessionID := range sessionIDs {
		status := statuses[sessionID]
		glyph := "❓"
		switch status.Status {
		case opencode.StatusIdle:
			glyph = "💤"
		case opencode.StatusRunning:
			glyph = "🔄"
		case opencode.StatusWaiting:
			glyph = "⏳"
		}

		line := fmt.Sprintf("%s `%s...` - %s", glyph, shortID(sessionID), status.Status)
		if status.Agent != "" {
			line += fmt.Sprintf(" (%s)", status.Agent)
		}
		lines = append(lines, line)
	}

	return Result{OK: true, Message: strings.Join(lines, "\n")}
}

type sessionsCommand struct{}

func (sessionsCommand) Name() string        { return "sessions" }
func (sessionsCommand) Description() string { return "List all OpenCode sessions" }
func (sessionsCommand) Usage() string       { return "/sessions" }
func (sessionsCommand) Aliases() []string   { return []string{"ls", "list"} }

func (sessionsCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	sessions, err := b.opencode.ListSessions(ctx)
	if err != nil {
		return Result{Message: fmt.Sprintf("Failed to list sessions: %v", err)}
	}

	if len(sessions) == 0 {
		return Result{OK: true, Message: "No sessions found."}
	}

	const maxListed = 10

	lines := []string{"**Sessions:**\n"}
	for i, session := range sessions {
		if i == maxListed {
			break
		}
		title := session.Title
		if title == "" {
			title = "Untitled"
		}
		lines = append(lines, fmt.Sprintf("• `%s...` - %s", shortID(session.ID), title))
	}
	if len(sessions) > maxListed {
		lines = append(lines, fmt.Sprintf("\n... and %d more", len(sessions)-maxListed))
	}

	return Result{OK: true, Message: strings.Join(lines, "\n")}
}

type abortCommand struct{}

func (abortCommand) Name() string        { return "abort" }
func (abortCommand) Description() string { return "Stop the current running task" }
func (abortCommand) Usage() string       { return "/abort [session_id]" }
func (abortCommand) Aliases() []string   { return []string{"stop", "cancel"} }

func (abortCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	sessionID := strings.TrimSpace(args)

	if sessionID == "" {
		statuses, err := b.opencode.SessionStatuses(ctx)
		if err != nil {
			return Result{Message: fmt.Sprintf("Failed to abort: %v", err)}
		}

		var running []string
		for id, status := range statuses {
			if status.Status == opencode.StatusRunning {
				running = append(running, id)
			}
		}
		if len(running) == 0 {
			return Result{Message: "No running tasks to abort."}
		}
		sort.Strings(running)
		sessionID = running[0]
	}

	if _, err := b.opencode.AbortSession(ctx, sessionID); err != nil {
		return Result{Message: fmt.Sprintf("Failed to abort: %v", err)}
	}

	// The task will not complete, so its completion route is dead weight.
	if err := b.routes.DeleteRoute(ctx, sessionID); err != nil {
		logging.Logger.Warn("failed to drop session route", "session_id", sessionID, "error", err)
	}

	return Result{OK: true, Message: fmt.Sprintf("Aborted session `%s...`", shortID(sessionID))}
}

type modelCommand struct{}

func (modelCommand) Name() string        { return "model" }
func (modelCommand) Description() string { return "Switch the AI model" }
func (modelCommand) Usage() string       { return "/model <model_name>" }
func (modelCommand) Aliases() []string   { return []string{"m"} }

func (modelCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	model := strings.TrimSpace(args)
	if model == "" {
		return Result{
			OK: true,
			Message: "**Available models:**\n" +
				"• `claude-opus-4.5` - Most capable\n" +
				"• `claude-sonnet-4.5` - Fast and capable\n" +
				"• `gemini-3-pro-high` - Google's best\n" +
				"• `gemini-3-flash` - Ultra fast\n\n" +
				"Usage: /model <name>",
		}
	}

	b.setModel(model)
	return Result{OK: true, Message: fmt.Sprintf("Switched to model: `%s`", model)}
}

type helpCommand struct{}

func (helpCommand) Name() string        { return "help" }
func (helpCommand) Description() string { return "Show available commands" }
func (helpCommand) Usage() string       { return "/help [command]" }
func (helpCommand) Aliases() []string   { return []string{"h", "?"} }

func (helpCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	name := strings.TrimSpace(args)

	if name != "" {
		command, ok := b.registry.Lookup(name)
		if !ok {
			return Result{Message: fmt.Sprintf("Unknown command: %s", strings.ToLower(name))}
		}

		aliases := ""
		if len(command.Aliases()) > 0 {
			aliases = fmt.Sprintf(" (aliases: %s)", strings.Join(command.Aliases(), ", "))
		}
		return Result{
			OK: true,
			Message: fmt.Sprintf("**/%s**%s\n\n%s\n\nUsage: `%s`",
				command.Name(), aliases, command.Description(), command.Usage()),
		}
	}

	lines := []string{"**codebeep Commands:**\n"}
	for _, command := range b.registry.All() {
		lines = append(lines, fmt.Sprintf("• `/%s` - %s", command.Name(), command.Description()))
	}
	lines = append(lines, "\n\nUse `/help <command>` for more details.")

	return Result{OK: true, Message: strings.Join(lines, "\n")}
}

type agentsCommand struct{}

func (agentsCommand) Name() string        { return "agents" }
func (agentsCommand) Description() string { return "List available OpenCode agents" }
func (agentsCommand) Usage() string       { return "/agents" }
func (agentsCommand) Aliases() []string   { return []string{"a"} }

func (agentsCommand) Execute(ctx context.Context, b *Bot, roomID, args string) Result {
	agents, err := b.opencode.ListAgents(ctx)
	if err != nil {
		return Result{Message: fmt.Sprintf("Failed to list agents: %v", err)}
	}

	if len(agents) == 0 {
		return Result{OK: true, Message: "No agents available."}
	}

	lines := []string{"**Available Agents:**\n"}
	for _, agent := range agents {
		description := agent.Description
		if description == "" {
			description = "No description"
		}
		lines = append(lines, fmt.Sprintf("• **%s** - %s", agent.Name, description))
	}

	return Result{OK: true, Message: strings.Join(lines, "\n")}
}
