package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name      string
		args      []string
		expectErr bool
		mutate    func(c *Config)
	}{
		{
			name: "all flags",
			args: []string{"-a", "ws://10.0.0.1:8080/ws", "-realm", "r", "-prefix", "p", "-store", "redis",
				"-data", "/tmp/d", "-redis", "redis:6379", "-identity", "email", "-device", "Laptop",
				"-timeout", "2s", "-log", "warn"},
			mutate: func(c *Config) {
				c.ServerURL = "ws://10.0.0.1:8080/ws"
				c.Realm = "r"
				c.ProcedurePrefix = "p"
				c.StoreBackend = StoreRedis
				c.DataDir = "/tmp/d"
				c.RedisAddr = "redis:6379"
				c.AutoLoginIdentity = "email"
				c.DeviceName = "Laptop"
				c.DialTimeout = 2 * time.Second
				c.LogLevel = "warn"
			},
		},
		{
			name:   "foreign flags ignored",
			args:   []string{"-c", "cfg.json", "-v", "-store=memory"},
			mutate: func(c *Config) { c.StoreBackend = StoreMemory },
		},
		{
			name:      "bad duration",
			args:      []string{"-timeout", "abc"},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			err := parseFlags(cfg, tt.args)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			want := defaults()
			tt.mutate(want)
			assert.Empty(t, cmp.Diff(want, cfg))
		})
	}
}
