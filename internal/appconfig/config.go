package appconfig

import (
	"os"
	"path/filepath"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	Bridge        BridgeConfig  `mapstructure:"bridge" yaml:"bridge"`
	Host          HostConfig    `mapstructure:"host" yaml:"host"`
	Metrics       MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// BridgeConfig configures the listener and its sessions.
type BridgeConfig struct {
	Addr                string  `mapstructure:"addr" yaml:"addr"`
	MaxSessions         int     `mapstructure:"max_sessions" yaml:"max_sessions"`
	ReadLimitBytes      int64   `mapstructure:"read_limit_bytes" yaml:"read_limit_bytes"`
	WriteTimeoutSeconds int     `mapstructure:"write_timeout_seconds" yaml:"write_timeout_seconds"`
	PingIntervalSeconds int     `mapstructure:"ping_interval_seconds" yaml:"ping_interval_seconds"`
	RateLimitPerSecond  float64 `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	RateLimitBurst      int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// HostConfig configures the host loop.
type HostConfig struct {
	TickIntervalMS  int `mapstructure:"tick_interval_ms" yaml:"tick_interval_ms"`
	ConsoleCapacity int `mapstructure:"console_capacity" yaml:"console_capacity"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConfigVersion: CurrentConfigVersion,
		Bridge: BridgeConfig{
			Addr:                "127.0.0.1:8080",
			MaxSessions:         64,
			ReadLimitBytes:      1 << 20,
			WriteTimeoutSeconds: 10,
			PingIntervalSeconds: 30,
			RateLimitPerSecond:  0,
			RateLimitBurst:      0,
		},
		Host: HostConfig{
			TickIntervalMS:  16,
			ConsoleCapacity: 100,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".hostbridge", "config.yaml"), nil
}
