// Package config loads runtime configuration from an optional YAML file
// layered under ATRIUM_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Auth     AuthConfig     `koanf:"auth"`
	CORS     CORSConfig     `koanf:"cors"`
	Debug    bool           `koanf:"debug"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type DatabaseConfig struct {
	Path string `koanf:"path"`
}

type RedisConfig struct {
	// Addr empty means no key-value store: rate limiting and caching
	// degrade to pass-through.
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
}

type AuthConfig struct {
	SessionTTLHours int  `koanf:"session_ttl_hours"`
	SecureCookies   bool `koanf:"secure_cookies"`
}

type CORSConfig struct {
	// Origins is the fixed production allow-list. Loopback origins are
	// always allowed regardless.
	Origins []string `koanf:"origins"`
}

// Load reads config.yaml when present, then environment variables
// (ATRIUM_SERVER__PORT → server.port), then fills defaults.
func Load() (*Config, error) {
	return LoadFile("config.yaml")
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Double underscore separates nesting levels so multi-word keys survive:
	// ATRIUM_AUTH__SESSION_TTL_HOURS → auth.session_ttl_hours.
	if err := k.Load(env.Provider("ATRIUM_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "ATRIUM_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Default values
	if !k.Exists("server.port") {
		k.Set("server.port", 8080)
	}
	if !k.Exists("database.path") {
		k.Set("database.path", "./data/atrium.db")
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Auth.SessionTTLHours <= 0 {
		cfg.Auth.SessionTTLHours = 168
	}

	return &cfg, nil
}
