package appconfig

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses
// DefaultConfigPath. A missing file yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("bridge.addr", cfg.Bridge.Addr)
	v.SetDefault("bridge.max_sessions", cfg.Bridge.MaxSessions)
	v.SetDefault("bridge.read_limit_bytes", cfg.Bridge.ReadLimitBytes)
	v.SetDefault("bridge.write_timeout_seconds", cfg.Bridge.WriteTimeoutSeconds)
	v.SetDefault("bridge.ping_interval_seconds", cfg.Bridge.PingIntervalSeconds)
	v.SetDefault("bridge.rate_limit_per_second", cfg.Bridge.RateLimitPerSecond)
	v.SetDefault("bridge.rate_limit_burst", cfg.Bridge.RateLimitBurst)
	v.SetDefault("host.tick_interval_ms", cfg.Host.TickIntervalMS)
	v.SetDefault("host.console_capacity", cfg.Host.ConsoleCapacity)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// isNotFound reports a missing config file. Viper returns its own error type
// for search paths and an fs error for an explicit file.
func isNotFound(err error) bool {
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		return true
	}
	return os.IsNotExist(err)
}

// Validate checks value ranges.
func Validate(cfg Config) error {
	addr := strings.TrimSpace(cfg.Bridge.Addr)
	if addr == "" {
		return fmt.Errorf("bridge.addr is required")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("bridge.addr must be host:port: %w", err)
	}
	if cfg.Bridge.MaxSessions < 0 {
		return fmt.Errorf("bridge.max_sessions must not be negative")
	}
	if cfg.Bridge.ReadLimitBytes < 0 {
		return fmt.Errorf("bridge.read_limit_bytes must not be negative")
	}
	if cfg.Bridge.WriteTimeoutSeconds < 0 {
		return fmt.Errorf("bridge.write_timeout_seconds must not be negative")
	}
	if cfg.Bridge.PingIntervalSeconds < 0 {
		return fmt.Errorf("bridge.ping_interval_seconds must not be negative")
	}
	if cfg.Bridge.RateLimitPerSecond < 0 {
		return fmt.Errorf("bridge.rate_limit_per_second must not be negative")
	}
	if cfg.Bridge.RateLimitBurst < 0 {
		return fmt.Errorf("bridge.rate_limit_burst must not be negative")
	}
	if cfg.Host.TickIntervalMS <= 0 {
		return fmt.Errorf("host.tick_interval_ms must be positive")
	}
	if cfg.Host.ConsoleCapacity <= 0 {
		return fmt.Errorf("host.console_capacity must be positive")
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.Bridge.Addr = expandEnv(cfg.Bridge.Addr)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
