// Package config loads gateway configuration from an optional TOML file
// overlaid by environment variables. Precedence: built-in defaults < file <
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"
)

// Config is the full daemon configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `toml:"addr" env:"HERMOD_ADDR"`

	// TransportDriver selects the registered protocol driver.
	TransportDriver string `toml:"transport" env:"HERMOD_TRANSPORT"`

	// CredsDir is where per-session credential blobs are written.
	CredsDir string `toml:"creds_dir" env:"HERMOD_CREDS_DIR"`

	// ReconnectDelay is the fixed wait between reconnect attempts.
	ReconnectDelay time.Duration `toml:"reconnect_delay" env:"HERMOD_RECONNECT_DELAY"`

	// DefaultSession controls creation of the "default" session at startup.
	// Enabled unless explicitly disabled. Tri-state so an absent file key
	// and HERMOD_DEFAULT_SESSION=false stay distinguishable.
	DefaultSession *bool `toml:"default_session"`

	// RedisAddr, when set, backs the message-retry counter cache with
	// Redis instead of process memory.
	RedisAddr string `toml:"redis_addr" env:"HERMOD_REDIS_ADDR"`

	Webhook Webhook `toml:"webhook"`
	Auth    Auth    `toml:"auth"`
}

// Webhook configures the outbound event consumer.
type Webhook struct {
	URL     string        `toml:"url" env:"HERMOD_WEBHOOK_URL"`
	Secret  string        `toml:"secret" env:"HERMOD_WEBHOOK_SECRET"`
	Timeout time.Duration `toml:"timeout" env:"HERMOD_WEBHOOK_TIMEOUT"`
}

// Auth configures optional Bearer authentication on the /api/ routes.
// Leaving JWKSURL empty disables authentication.
type Auth struct {
	JWKSURL  string `toml:"jwks_url" env:"HERMOD_JWKS_URL"`
	Issuer   string `toml:"issuer" env:"HERMOD_JWT_ISSUER"`
	Audience string `toml:"audience" env:"HERMOD_JWT_AUDIENCE"`
}

// applyDefaults populates zero values with conservative defaults.
func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = ":3000"
	}
	if c.CredsDir == "" {
		c.CredsDir = "credentials"
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 3 * time.Second
	}
	if c.DefaultSession == nil {
		t := true
		c.DefaultSession = &t
	}
	if c.Webhook.Timeout == 0 {
		c.Webhook.Timeout = 5 * time.Second
	}
}

// Load reads the file at path (skipped when empty), overlays environment
// variables, and fills remaining zero values with defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	// Absent variables leave file values untouched; defaults come last.
	_ = envdecode.Decode(cfg)
	if raw := os.Getenv("HERMOD_DEFAULT_SESSION"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("parse HERMOD_DEFAULT_SESSION: %w", err)
		}
		cfg.DefaultSession = &v
	}
	cfg.applyDefaults()
	return cfg, nil
}
