package config

// loader.go - configuration loading from file and environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (BTLINK_*, this file)
//   3. Config file  (YAML, this file)
//   4. Defaults   (defaults.go)

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from path, or from the first btlink.yaml
// found in the working directory or ~/.config/btlink when path is
// empty.  A missing config file is not an error.  Environment
// variables use the BTLINK_ prefix with "." replaced by "_", e.g.
// BTLINK_LOG_FILE.  The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("adapter", cfg.Adapter)
	v.SetDefault("service_uuid", cfg.ServiceUUID)
	v.SetDefault("channel", cfg.Channel)
	v.SetDefault("connect_timeout", cfg.ConnectTimeout)
	v.SetDefault("enable_adapter", cfg.EnableAdapter)
	v.SetDefault("breaker.max_failures", cfg.Breaker.MaxFailures)
	v.SetDefault("breaker.cooldown", cfg.Breaker.Cooldown)
	v.SetDefault("greeting", cfg.Greeting)
	v.SetDefault("resend", cfg.Resend)
	v.SetDefault("peers", cfg.Peers)
	v.SetDefault("verbose", cfg.Verbose)
	v.SetDefault("log.file", cfg.Log.File)
	v.SetDefault("log.max_size_mb", cfg.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", cfg.Log.MaxBackups)

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("btlink")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "btlink"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
