// Package config loads runtime configuration for the deskauth CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. DESKAUTH_* environment variables (see parseEnv).
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Empty values never override: a JSON key or variable that is absent or
// blank keeps whatever the previous source set.
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "10s" or integer nanoseconds:
//
//	{
//	  "server_url": "ws://localhost:8080/ws",
//	  "realm": "io.xconn.deskconn",
//	  "registrar_auth_id": "deskconn-web-app",
//	  "registrar_private_key": "<hex ed25519 seed>",
//	  "store_backend": "sqlite",
//	  "data_dir": ".deskauth",
//	  "dial_timeout": "10s"
//	}
//
// Primary API
//
//   - type Config                            : all runtime settings
//   - func LoadConfig(args) (*Config, error) : defaults, JSON, env, then flags
//   - func (*Config) LoadDefaults()          : sets sensible defaults
//   - func (*Config) Validate() error        : rejects unusable settings
package config
