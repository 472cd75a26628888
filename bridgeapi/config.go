package bridgeapi

import "time"

// Config defines listener and session settings.
// RateLimit is the sustained command rate per session; zero disables limiting.
type Config struct {
	Addr           string
	MaxSessions    int
	ReadLimitBytes int64
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	RateLimit      float64
	RateBurst      int
	EnableMetrics  bool
}

const (
	defaultAddr           = "127.0.0.1:8080"
	defaultReadLimitBytes = 1 << 20
	defaultWriteTimeout   = 10 * time.Second
	shutdownTimeout       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = defaultAddr
	}
	if c.ReadLimitBytes <= 0 {
		c.ReadLimitBytes = defaultReadLimitBytes
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.MaxSessions < 0 {
		c.MaxSessions = 0
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		c.RateBurst = int(c.RateLimit)
		if c.RateBurst < 1 {
			c.RateBurst = 1
		}
	}
	return c
}

// pongWait is how long a streaming session may stay silent before it is dropped.
func (c Config) pongWait() time.Duration {
	if c.PingInterval <= 0 {
		return 0
	}
	return c.PingInterval * 2
}
