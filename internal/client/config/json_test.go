package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"server_url":            "ws://www.example:9000/ws",
		"registrar_private_key": "00ff",
		"auto_login_identity":   "email",
		"dial_timeout":          "10s",
	})

	t.Run("loads from flags", func(t *testing.T) {
		cfg := defaults()
		require.NoError(t, parseJson(cfg, []string{"-config", pathFlag}))

		assert.Equal(t, "ws://www.example:9000/ws", cfg.ServerURL)
		assert.Equal(t, "00ff", cfg.RegistrarPrivateKey)
		assert.Equal(t, "email", cfg.AutoLoginIdentity)
		assert.Equal(t, 10*time.Second, cfg.DialTimeout)
		assert.Equal(t, "io.xconn.deskconn", cfg.Realm, "absent keys keep defaults")
	})

	t.Run("short flag", func(t *testing.T) {
		cfg := defaults()
		require.NoError(t, parseJson(cfg, []string{"-c", pathFlag}))
		assert.Equal(t, "ws://www.example:9000/ws", cfg.ServerURL)
	})

	t.Run("no flags → no changes", func(t *testing.T) {
		cfg := &Config{
			ServerURL:   "ws://defaults:1234/ws",
			DialTimeout: 42 * time.Second,
		}
		require.NoError(t, parseJson(cfg, nil))

		assert.Equal(t, "ws://defaults:1234/ws", cfg.ServerURL)
		assert.Equal(t, 42*time.Second, cfg.DialTimeout)
	})

	t.Run("invalid JSON → error", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		cfg := &Config{}
		require.Error(t, parseJson(cfg, []string{"-config", bad}))
	})
}
