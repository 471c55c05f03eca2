package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
matrix:
  username: "@bot:beeper.local"
  password: "secret"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://matrix.beeper.com", cfg.Matrix.Homeserver)
	assert.Equal(t, "http://127.0.0.1:4096", cfg.OpenCode.ServerURL)
	assert.Equal(t, "/", cfg.Bot.Prefix)
	assert.Equal(t, 4000, cfg.Bot.MaxMessageLength)
	assert.True(t, cfg.Bot.UnknownCommandReply)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("CODEBEEP_TEST_PASSWORD", "hunter2")

	path := writeConfig(t, `
matrix:
  username: "@bot:beeper.local"
  password: "${CODEBEEP_TEST_PASSWORD}"
  allowed_users:
    - "$CODEBEEP_TEST_USER"
`)
	t.Setenv("CODEBEEP_TEST_USER", "@me:beeper.local")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Matrix.Password)
	require.Len(t, cfg.Matrix.AllowedUsers, 1)
	assert.Equal(t, "@me:beeper.local", cfg.Matrix.AllowedUsers[0])
}

func TestLoadRejectsMissingUsername(t *testing.T) {
	path := writeConfig(t, `
matrix:
  password: "secret"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matrix.username")
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	path := writeConfig(t, `
matrix:
  username: "@bot:beeper.local"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Matrix.Username = "@bot:beeper.local"
	cfg.Matrix.Password = "secret"
	cfg.Bot.MaxMessageLength = 1234

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Matrix.Username, loaded.Matrix.Username)
	assert.Equal(t, 1234, loaded.Bot.MaxMessageLength)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "matrix: [unbalanced")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config file")
}
