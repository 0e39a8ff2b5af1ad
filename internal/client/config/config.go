package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/deskauth/internal/client/models"
	"github.com/dmitrijs2005/deskauth/internal/common"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds runtime settings for the deskauth CLI.
//
// Fields:
//   - ServerURL, Realm: WebSocket endpoint of the WAMP router and the realm to join.
//   - ProcedurePrefix: namespace of the account and device procedures.
//   - RegistrarAuthID, RegistrarPrivateKey: the fixed registrar identity
//     (hex Ed25519 seed) used for account creation and recovery.
//   - StoreBackend, DataDir, RedisAddr, RedisNamespace: local credential store.
//   - AutoLoginIdentity: "username_or_email" or "email".
//   - DeviceName: label sent when registering a device key.
//   - DialTimeout: bound on opening a session.
//   - LogLevel: debug, info, warn or error.
type Config struct {
	ServerURL           string
	Realm               string
	ProcedurePrefix     string
	RegistrarAuthID     string
	RegistrarPrivateKey string
	StoreBackend        string
	DataDir             string
	RedisAddr           string
	RedisNamespace      string
	AutoLoginIdentity   string
	DeviceName          string
	DialTimeout         time.Duration
	LogLevel            string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "ws://localhost:8080/ws"
	c.Realm = "io.xconn.deskconn"
	c.ProcedurePrefix = "io.xconn.deskconn"
	c.RegistrarAuthID = "deskconn-web-app"
	c.RegistrarPrivateKey = ""
	c.StoreBackend = StoreSQLite
	c.DataDir = "." + common.AppName
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisNamespace = common.AppName
	c.AutoLoginIdentity = string(models.IdentityUsernameOrEmail)
	c.DeviceName = "Browser Interface"
	c.DialTimeout = 10 * time.Second
	c.LogLevel = "info"
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server url is empty"))
	}
	if c.Realm == "" {
		errs = append(errs, errors.New("realm is empty"))
	}
	switch c.StoreBackend {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.StoreBackend))
	}
	if _, err := models.ParseIdentityField(c.AutoLoginIdentity); err != nil {
		errs = append(errs, err)
	}
	if c.DialTimeout <= 0 {
		errs = append(errs, fmt.Errorf("dial timeout must be positive, got %s", c.DialTimeout))
	}
	return errors.Join(errs...)
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
