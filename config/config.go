// Package config loads and validates the broker's configuration using
// Viper. Values come from a JSON config file with environment-variable
// overrides (prefix BROKER_), matching the precedence the broker's
// startup sequence expects: defaults, then config file, then env.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/qsysmcp/broker/errors"
)

// Config is the root configuration tree (spec §9).
type Config struct {
	Connection ConnectionConfig `mapstructure:"connection"`
	Recorder   RecorderConfig   `mapstructure:"recorder"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

// ConnectionConfig describes how to reach the Q-SYS core.
type ConnectionConfig struct {
	Host                string `mapstructure:"host"`
	Port                int    `mapstructure:"port"`
	User                string `mapstructure:"user"`
	Pass                string `mapstructure:"pass"`
	TimeoutMS           int    `mapstructure:"timeout_ms"`
	ReconnectIntervalMS int    `mapstructure:"reconnect_interval_ms"`
	HeartbeatMS         int    `mapstructure:"heartbeat_ms"`
	AutoReconnect       bool   `mapstructure:"auto_reconnect"`
}

// RecorderConfig describes the event recorder's SQLite backend.
type RecorderConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Path            string `mapstructure:"path"`
	RetentionDays   int    `mapstructure:"retention_days"`
	BufferSize      int    `mapstructure:"buffer_size"`
	FlushIntervalMS int    `mapstructure:"flush_interval_ms"`
}

// DispatcherConfig describes the MCP-facing auth/rate-limit/audit surface.
type DispatcherConfig struct {
	RateLimit        RateLimitConfig `mapstructure:"rate_limit"`
	AuthTokensHashed []string        `mapstructure:"auth_tokens_hashed"`
	AnonymousAllow   []string        `mapstructure:"anonymous_allow"`
	AuditCapacity    int             `mapstructure:"audit_capacity"`
}

// RateLimitConfig is a token-bucket shape: rpm refills the bucket, burst
// caps it.
type RateLimitConfig struct {
	RPM   int `mapstructure:"rpm"`
	Burst int `mapstructure:"burst"`
}

var globalConfig *Config

// Load reads configuration from the default search path ("./broker.json")
// plus BROKER_-prefixed environment variables, caching the result.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := newViper()
	v.SetConfigName("broker")
	v.SetConfigType("json")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = &cfg
	return globalConfig, nil
}

// LoadFromFile loads configuration from an explicit path, bypassing the
// search path and the process-wide cache. Used by the CLI's --config flag
// and by tests.
func LoadFromFile(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Reset clears the cached configuration. For tests.
func Reset() {
	globalConfig = nil
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix("BROKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	return v
}
