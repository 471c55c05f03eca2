package cmd

import (
	"fmt"
	"os"

	"codebeep/config"
	"codebeep/logging"

	"github.com/alecthomas/kong"
)

// CLI represents the command-line interface structure
type CLI struct {
	Version     kong.VersionFlag `help:"Show version information"`
	Config      string           `help:"Path to the config file (default: search config.yaml, ~/.config/codebeep/)" short:"c" type:"path"`
	Debug       bool             `help:"Enable debug logging to file" short:"d"`
	DebugFile   string           `help:"Custom path for debug log file (disables automatic cleanup)"`
	MaxLogFiles int              `help:"Maximum number of log files to keep (0 = unlimited)" default:"1000"`

	Run        RunCmd     `cmd:"" help:"Start the codebeep bot (default)" default:"1"`
	Check      CheckCmd   `cmd:"" help:"Probe the OpenCode server and report what it offers"`
	Init       InitCmd    `cmd:"" help:"Write a default config.yaml"`
	VersionCmd VersionCmd `cmd:"" name:"version" help:"Show version information"`
}

// AfterApply initializes logging after CLI parsing
func (c *CLI) AfterApply() error {
	logFilePath, err := logging.Initialize(c.Debug, c.DebugFile, c.MaxLogFiles)
	if err != nil {
		return err
	}

	// Export debug settings so child processes append to the same log file
	if c.Debug || c.DebugFile != "" {
		os.Setenv("CODEBEEP_DEBUG", "1")
		if logFilePath != "" {
			os.Setenv("CODEBEEP_DEBUG_FILE", logFilePath)
		}
	}
	if c.MaxLogFiles != 1000 {
		os.Setenv("CODEBEEP_MAX_LOG_FILES", fmt.Sprintf("%d", c.MaxLogFiles))
	}

	return nil
}

// loadConfig loads and validates the configuration, then points the logger
// where the config says unless debug logging already claimed it.
func (c *CLI) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logging.Configure(cfg.Logging.Level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		return nil, err
	}
	return cfg, nil
}
