package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadDefaultsWithFlags(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load([]string{"--username", "alice", "--room", "general"})
	require.NoError(t, err)

	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "general", cfg.RoomID)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, time.Second, cfg.TypingIdle)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "chat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_url: wss://file.example/ws
username: from-file
room: lobby
reconnect_attempts: 7
reconnect_delay: 2s
typing_idle: 1500ms
`), 0o600))
	t.Setenv("CHATSYNC_CONFIG", path)
	t.Setenv("CHATSYNC_USERNAME", "from-env")
	t.Setenv("CHATSYNC_RECONNECT_DELAY", "3s")

	cfg, err := Load([]string{"--reconnect-attempts", "9"})
	require.NoError(t, err)

	assert.Equal(t, "wss://file.example/ws", cfg.ServerURL)
	assert.Equal(t, "from-env", cfg.Username)
	assert.Equal(t, "lobby", cfg.RoomID)
	assert.Equal(t, 9, cfg.MaxAttempts)
	assert.Equal(t, 3*time.Second, cfg.RetryDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.TypingIdle)
}

func TestLoadConfigFlag(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "other.yaml")
	require.NoError(t, os.WriteFile(path, []byte("username: bob\nroom: ops\n"), 0o600))

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "ops", cfg.RoomID)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CHATSYNC_ROOM=from-dotenv\nCHATSYNC_USERNAME=carol\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("CHATSYNC_ROOM")
		os.Unsetenv("CHATSYNC_USERNAME")
	})

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.RoomID)
	assert.Equal(t, "carol", cfg.Username)
}

func TestLoadBadEnvDuration(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CHATSYNC_JOB_TIMEOUT", "soon")

	_, err := Load([]string{"-u", "alice", "-r", "general"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())

	cfg.Username, cfg.RoomID = "alice", "general"
	assert.NoError(t, cfg.Validate())

	cfg.RetryDelay = 0
	assert.Error(t, cfg.Validate())

	cfg = Defaults()
	cfg.RoomID = "general"
	cfg.Token = "abc"
	assert.Error(t, cfg.Validate())
	cfg.TokenSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}
