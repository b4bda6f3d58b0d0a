package common

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Watch.Mode != "regex" {
		t.Errorf("Watch.Mode = %q, want regex", cfg.Watch.Mode)
	}
	if cfg.Watch.Debounce != 500*time.Millisecond {
		t.Errorf("Watch.Debounce = %v", cfg.Watch.Debounce)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadConfigWatchMode(t *testing.T) {
	t.Setenv("WATCH_MODE", "hybrid")
	t.Setenv("WATCH_DIRS", "/tmp/in, /tmp/more")

	cfg := LoadConfig()
	if cfg.Watch.Mode != "hybrid" {
		t.Errorf("Watch.Mode = %q, want hybrid", cfg.Watch.Mode)
	}
	if len(cfg.Watch.Roots) != 2 || cfg.Watch.Roots[0] != "/tmp/in" {
		t.Errorf("Watch.Roots = %v", cfg.Watch.Roots)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestValidateRejectsBadWatchMode(t *testing.T) {
	t.Setenv("WATCH_MODE", "turbo")
	cfg := LoadConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid WATCH_MODE")
	}
}
