package appconfig

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Bridge.Addr != "127.0.0.1:8080" {
		t.Fatalf("expected loopback default addr, got %q", cfg.Bridge.Addr)
	}
	if cfg.Host.ConsoleCapacity != 100 {
		t.Fatalf("expected console capacity 100, got %d", cfg.Host.ConsoleCapacity)
	}
	if cfg.Metrics.Enabled {
		t.Fatalf("expected metrics to default off")
	}
}
