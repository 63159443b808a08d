package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "adminsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
api_base_url: "https://api.example.com"
websocket_url: "wss://api.example.com/admin/ws"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "admin", cfg.Room)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay())
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelayMax())
	assert.Equal(t, time.Minute, cfg.GCInterval())
	assert.Equal(t, DefaultListStaleMs, cfg.ListStaleMs)
	assert.Equal(t, DefaultDetailGCMs, cfg.DetailGCMs)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfig(t, `
api_base_url: "https://api.example.com"
websocket_url: "wss://api.example.com/admin/ws"
room: "ops"
reconnect_attempts: 3
list_stale_ms: 2500
debug_logging: true
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ops", cfg.Room)
	assert.Equal(t, 3, cfg.ReconnectAttempts)
	assert.Equal(t, 2500, cfg.ListStaleMs)
	assert.True(t, cfg.DebugLogging)
}

func TestLoadConfigRejectsBadURLs(t *testing.T) {
	cases := map[string]string{
		"missing api url": `
websocket_url: "wss://api.example.com/ws"
`,
		"http websocket url": `
api_base_url: "https://api.example.com"
websocket_url: "https://api.example.com/ws"
`,
		"ws api url": `
api_base_url: "ws://api.example.com"
websocket_url: "wss://api.example.com/ws"
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigRejectsBadNumbers(t *testing.T) {
	path := writeConfig(t, `
api_base_url: "https://api.example.com"
websocket_url: "wss://api.example.com/ws"
reconnect_delay_ms: 2000
reconnect_delay_max_ms: 500
`)

	_, err := LoadConfig(path)
	assert.Error(t, err, "delay cap below the floor must be rejected")
}
