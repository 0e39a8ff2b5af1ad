package config

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrijs2005/deskauth/internal/common"
	"github.com/dmitrijs2005/deskauth/internal/flagx"
)

var knownFlags = []string{"-a", "-realm", "-prefix", "-store", "-data", "-redis", "-identity", "-device", "-timeout", "-log"}

// parseFlags populates Config fields from command-line flags.
//
// Supported flags:
//
//	-a string          WebSocket URL of the router
//	-realm string      realm to join
//	-prefix string     procedure namespace
//	-store string      credential store: sqlite, redis or memory
//	-data string       data directory for the sqlite store
//	-redis string      host:port of the redis store
//	-identity string   auto-login identity: username_or_email or email
//	-device string     device name sent with new device keys
//	-timeout duration  dial timeout, e.g. 5s
//	-log string        log level
//
// Arguments are filtered with flagx.FilterArgs first, so flags owned by other
// components do not cause parse errors.
func parseFlags(cfg *Config, args []string) error {
	filtered := flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet(common.AppName, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "WebSocket URL of the router")
	fs.StringVar(&cfg.Realm, "realm", cfg.Realm, "realm to join")
	fs.StringVar(&cfg.ProcedurePrefix, "prefix", cfg.ProcedurePrefix, "procedure namespace")
	fs.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "credential store: sqlite, redis or memory")
	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "redis address")
	fs.StringVar(&cfg.AutoLoginIdentity, "identity", cfg.AutoLoginIdentity, "auto-login identity field")
	fs.StringVar(&cfg.DeviceName, "device", cfg.DeviceName, "device name")
	fs.DurationVar(&cfg.DialTimeout, "timeout", cfg.DialTimeout, "dial timeout")
	fs.StringVar(&cfg.LogLevel, "log", cfg.LogLevel, "log level")

	if err := fs.Parse(filtered); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	return nil
}
