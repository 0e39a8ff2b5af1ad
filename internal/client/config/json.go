package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/deskauth/internal/flagx"
	"github.com/dmitrijs2005/deskauth/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling.
// It relies on timex.Duration so JSON can specify intervals either as
// strings like "10s" or as integer nanoseconds. After parsing, values
// are copied into the runtime Config (which uses time.Duration).
type JsonConfig struct {
	ServerURL           string         `json:"server_url"`
	Realm               string         `json:"realm"`
	ProcedurePrefix     string         `json:"procedure_prefix"`
	RegistrarAuthID     string         `json:"registrar_auth_id"`
	RegistrarPrivateKey string         `json:"registrar_private_key"`
	StoreBackend        string         `json:"store_backend"`
	DataDir             string         `json:"data_dir"`
	RedisAddr           string         `json:"redis_addr"`
	RedisNamespace      string         `json:"redis_namespace"`
	AutoLoginIdentity   string         `json:"auto_login_identity"`
	DeviceName          string         `json:"device_name"`
	DialTimeout         timex.Duration `json:"dial_timeout"`
	LogLevel            string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Without either flag it does nothing. Keys missing from the
// file keep their current value.
func parseJson(cfg *Config, args []string) error {
	jsonConfigFile := flagx.ConfigFile(args)
	if jsonConfigFile == "" {
		return nil
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		return fmt.Errorf("read config %s: %w", jsonConfigFile, err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		return fmt.Errorf("parse config %s: %w", jsonConfigFile, err)
	}

	overlay(&cfg.ServerURL, jc.ServerURL)
	overlay(&cfg.Realm, jc.Realm)
	overlay(&cfg.ProcedurePrefix, jc.ProcedurePrefix)
	overlay(&cfg.RegistrarAuthID, jc.RegistrarAuthID)
	overlay(&cfg.RegistrarPrivateKey, jc.RegistrarPrivateKey)
	overlay(&cfg.StoreBackend, jc.StoreBackend)
	overlay(&cfg.DataDir, jc.DataDir)
	overlay(&cfg.RedisAddr, jc.RedisAddr)
	overlay(&cfg.RedisNamespace, jc.RedisNamespace)
	overlay(&cfg.AutoLoginIdentity, jc.AutoLoginIdentity)
	overlay(&cfg.DeviceName, jc.DeviceName)
	overlay(&cfg.DialTimeout, jc.DialTimeout.Duration)
	overlay(&cfg.LogLevel, jc.LogLevel)
	return nil
}
