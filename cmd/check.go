package cmd

import (
	"context"
	"fmt"
	"time"

	"codebeep/logging"
	"codebeep/opencode"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42")).
		Bold(true)

	warningStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true)

	errorStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("196")).
		Bold(true)

	infoStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("62")).
		Bold(true).
		Underline(true)
)

// CheckCmd probes the OpenCode server
type CheckCmd struct {
	Verbose bool `help:"Show extra detail" short:"v"`
}

// Run checks connectivity to the OpenCode server and reports what it offers.
func (c *CheckCmd) Run(cli *CLI) error {
	cfg, err := cli.loadConfig()
	if err != nil {
		return err
	}

	fmt.Println(sectionStyle.Render("🔍 codebeep Connectivity Check"))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	control, err := opencode.NewClient(opencode.ClientConfig{
		ServerURL: cfg.OpenCode.ServerURL,
		Logger:    logging.Logger,
	})
	if err != nil {
		return err
	}
	defer control.Close()

	fmt.Println(infoStyle.Render(fmt.Sprintf("Step 1: Probing OpenCode server at %s...", cfg.OpenCode.ServerURL)))
	health, err := control.Health(ctx)
	if err != nil {
		fmt.Println(errorStyle.Render("❌ OpenCode server unreachable:"), err)
		return fmt.Errorf("health check failed")
	}
	fmt.Println(successStyle.Render("✅ OpenCode server is up"))
	if c.Verbose {
		fmt.Printf("   Version: %v\n", health["version"])
	}
	fmt.Println()

	fmt.Println(infoStyle.Render("Step 2: Listing agents..."))
	agents, err := control.ListAgents(ctx)
	if err != nil {
		fmt.Println(warningStyle.Render("⚠️  Could not list agents:"), err)
	} else if len(agents) == 0 {
		fmt.Println(warningStyle.Render("⚠️  No agents available"))
	} else {
		fmt.Println(successStyle.Render(fmt.Sprintf("✅ %d agents available", len(agents))))
		if c.Verbose {
			for _, agent := range agents {
				fmt.Printf("   • %s - %s\n", agent.Name, agent.Description)
			}
		}
	}
	fmt.Println()

	fmt.Println(infoStyle.Render("Step 3: Listing sessions..."))
	sessions, err := control.ListSessions(ctx)
	if err != nil {
		fmt.Println(warningStyle.Render("⚠️  Could not list sessions:"), err)
	} else {
		fmt.Println(successStyle.Render(fmt.Sprintf("✅ %d sessions on the server", len(sessions))))
	}
	fmt.Println()

	fmt.Println(infoStyle.Render("Step 4: Matrix configuration..."))
	if cfg.Matrix.AccessToken != "" {
		fmt.Println(successStyle.Render("✅ Access token configured"))
	} else {
		fmt.Println(successStyle.Render(fmt.Sprintf("✅ Password login configured for %s", cfg.Matrix.Username)))
	}
	if len(cfg.Matrix.AllowedUsers) == 0 {
		fmt.Println(warningStyle.Render("⚠️  allowed_users is empty - anyone can command the bot"))
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Check complete."))
	return nil
}
