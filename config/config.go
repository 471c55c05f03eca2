package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// MatrixConfig holds the Matrix/Beeper connection settings.
type MatrixConfig struct {
	Homeserver   string   `yaml:"homeserver"`
	Username     string   `yaml:"username"`
	Password     string   `yaml:"password,omitempty"`
	AccessToken  string   `yaml:"access_token,omitempty"`
	AllowedUsers []string `yaml:"allowed_users,omitempty"`
	DeviceName   string   `yaml:"device_name,omitempty"`
}

// OpenCodeConfig holds the OpenCode server settings.
type OpenCodeConfig struct {
	ServerURL      string `yaml:"server_url"`
	DefaultAgent   string `yaml:"default_agent,omitempty"`
	ProjectPath    string `yaml:"project_path,omitempty"`
	SessionTimeout int    `yaml:"session_timeout,omitempty"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level,omitempty"`
	File    string `yaml:"file,omitempty"`
	Console bool   `yaml:"console"`
}

// BotConfig holds bot behavior settings.
type BotConfig struct {
	Prefix              string `yaml:"prefix,omitempty"`
	TypingIndicator     bool   `yaml:"typing_indicator"`
	MaxMessageLength    int    `yaml:"max_message_length,omitempty"`
	RateLimit           int    `yaml:"rate_limit,omitempty"`
	UnknownCommandReply bool   `yaml:"unknown_command_reply"`
	DBPath              string `yaml:"db_path,omitempty"`
}

// Config is the root configuration loaded from config.yaml.
type Config struct {
	Matrix   MatrixConfig   `yaml:"matrix"`
	OpenCode OpenCodeConfig `yaml:"opencode"`
	Logging  LoggingConfig  `yaml:"logging"`
	Bot      BotConfig      `yaml:"bot"`
}

// Default returns a configuration with all defaults applied. The Matrix
// username must still be filled in by the user.
func Default() *Config {
	return &Config{
		Matrix: MatrixConfig{
			Homeserver: "https://matrix.beeper.com",
			DeviceName: "codebeep",
		},
		OpenCode: OpenCodeConfig{
			ServerURL:      "http://127.0.0.1:4096",
			DefaultAgent:   "build",
			SessionTimeout: 3600,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
		},
		Bot: BotConfig{
			Prefix:              "/",
			TypingIndicator:     true,
			MaxMessageLength:    4000,
			RateLimit:           30,
			UnknownCommandReply: true,
			DBPath:              "~/.codebeep/state.db",
		},
	}
}

// searchPaths returns the candidate config file locations, in order.
func searchPaths() []string {
	paths := []string{"config.yaml", "config.yml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		configDir := filepath.Join(homeDir, ".config", "codebeep")
		paths = append(paths,
			filepath.Join(configDir, "config.yaml"),
			filepath.Join(configDir, "config.yml"),
		)
	}
	return paths
}

// Load reads the configuration from the given path. When path is empty it
// searches config.yaml/config.yml in the working directory and
// ~/.config/codebeep/. Environment variables referenced as $VAR or ${VAR}
// in string values are expanded.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, candidate := range searchPaths() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return nil, fmt.Errorf("no config file found: create config.yaml or pass --config")
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Decode into a generic tree first so environment variables can be
	// expanded in string values only, then re-decode into the typed config.
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	tree = expandEnvVars(tree)

	expanded, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnvVars walks the decoded YAML tree and expands environment variable
// references in every string value.
func expandEnvVars(node any) any {
	switch v := node.(type) {
	case map[string]any:
		for key, value := range v {
			v[key] = expandEnvVars(value)
		}
		return v
	case []any:
		for i, item := range v {
			v[i] = expandEnvVars(item)
		}
		return v
	case string:
		return os.ExpandEnv(v)
	default:
		return node
	}
}

// Validate checks that the required fields are present.
func (c *Config) Validate() error {
	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if c.Matrix.Username == "" {
		return fmt.Errorf("matrix.username is required")
	}
	if c.Matrix.Password == "" && c.Matrix.AccessToken == "" {
		return fmt.Errorf("matrix.password or matrix.access_token is required")
	}
	if c.OpenCode.ServerURL == "" {
		return fmt.Errorf("opencode.server_url is required")
	}
	if c.Bot.Prefix == "" {
		return fmt.Errorf("bot.prefix must not be empty")
	}
	return nil
}

// Save writes the configuration to the given path, creating parent
// directories as needed.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
