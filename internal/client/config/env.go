package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// envConfig lists the environment variables understood by the CLI. Unset
// variables leave their field zero and do not override earlier sources.
type envConfig struct {
	ServerURL           string        `env:"DESKAUTH_SERVER_URL"`
	Realm               string        `env:"DESKAUTH_REALM"`
	ProcedurePrefix     string        `env:"DESKAUTH_PROCEDURE_PREFIX"`
	RegistrarAuthID     string        `env:"DESKAUTH_REGISTRAR_AUTH_ID"`
	RegistrarPrivateKey string        `env:"DESKAUTH_REGISTRAR_PRIVATE_KEY"`
	StoreBackend        string        `env:"DESKAUTH_STORE_BACKEND"`
	DataDir             string        `env:"DESKAUTH_DATA_DIR"`
	RedisAddr           string        `env:"DESKAUTH_REDIS_ADDR"`
	RedisNamespace      string        `env:"DESKAUTH_REDIS_NAMESPACE"`
	AutoLoginIdentity   string        `env:"DESKAUTH_AUTO_LOGIN_IDENTITY"`
	DeviceName          string        `env:"DESKAUTH_DEVICE_NAME"`
	DialTimeout         time.Duration `env:"DESKAUTH_DIAL_TIMEOUT"`
	LogLevel            string        `env:"DESKAUTH_LOG_LEVEL"`
}

// parseEnv overlays cfg with the DESKAUTH_* environment variables.
func parseEnv(cfg *Config) error {
	var ec envConfig
	if err := env.Parse(&ec); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	overlay(&cfg.ServerURL, ec.ServerURL)
	overlay(&cfg.Realm, ec.Realm)
	overlay(&cfg.ProcedurePrefix, ec.ProcedurePrefix)
	overlay(&cfg.RegistrarAuthID, ec.RegistrarAuthID)
	overlay(&cfg.RegistrarPrivateKey, ec.RegistrarPrivateKey)
	overlay(&cfg.StoreBackend, ec.StoreBackend)
	overlay(&cfg.DataDir, ec.DataDir)
	overlay(&cfg.RedisAddr, ec.RedisAddr)
	overlay(&cfg.RedisNamespace, ec.RedisNamespace)
	overlay(&cfg.AutoLoginIdentity, ec.AutoLoginIdentity)
	overlay(&cfg.DeviceName, ec.DeviceName)
	overlay(&cfg.DialTimeout, ec.DialTimeout)
	overlay(&cfg.LogLevel, ec.LogLevel)
	return nil
}

// overlay copies v into dst unless v is the zero value.
func overlay[T comparable](dst *T, v T) {
	var zero T
	if v != zero {
		*dst = v
	}
}
