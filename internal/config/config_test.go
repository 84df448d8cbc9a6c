package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Trigger.PressCount != 3 {
		t.Errorf("expected press_count 3, got %d", cfg.Trigger.PressCount)
	}
	if cfg.Trigger.PressWindow != 2*time.Second {
		t.Errorf("expected press_window 2s, got %v", cfg.Trigger.PressWindow)
	}
	if cfg.Evidence.SessionDuration != 300*time.Second {
		t.Errorf("expected session_duration 300s, got %v", cfg.Evidence.SessionDuration)
	}
	if cfg.Evidence.SessionCooldown != 10*time.Second {
		t.Errorf("expected session_cooldown 10s, got %v", cfg.Evidence.SessionCooldown)
	}
	if cfg.Evidence.AudioRetryBackoff != 30*time.Second {
		t.Errorf("expected audio_retry_backoff 30s, got %v", cfg.Evidence.AudioRetryBackoff)
	}
	if cfg.Trigger.ConfirmTrackThreshold != 0.7 {
		t.Errorf("expected confirm_track_threshold 0.7, got %v", cfg.Trigger.ConfirmTrackThreshold)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "guardian.yaml")
	data := []byte("log_level: debug\ntrigger:\n  press_count: 5\n  press_window: 3s\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level debug, got %s", cfg.LogLevel)
	}
	if cfg.Trigger.PressCount != 5 {
		t.Errorf("expected press_count 5, got %d", cfg.Trigger.PressCount)
	}
	if cfg.Trigger.PressWindow != 3*time.Second {
		t.Errorf("expected press_window 3s, got %v", cfg.Trigger.PressWindow)
	}
	// Untouched sections keep their defaults
	if cfg.Evidence.SessionDuration != 300*time.Second {
		t.Errorf("expected default session_duration, got %v", cfg.Evidence.SessionDuration)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"press count too low", func(c *Config) { c.Trigger.PressCount = 1 }},
		{"zero press window", func(c *Config) { c.Trigger.PressWindow = 0 }},
		{"zero confirm timeout", func(c *Config) { c.Trigger.ConfirmTimeout = 0 }},
		{"track threshold above one", func(c *Config) { c.Trigger.ConfirmTrackThreshold = 1.5 }},
		{"zero session duration", func(c *Config) { c.Evidence.SessionDuration = 0 }},
		{"negative cooldown", func(c *Config) { c.Evidence.SessionCooldown = -time.Second }},
		{"zero fetch timeout", func(c *Config) { c.Location.FetchTimeout = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted invalid config")
			}
		})
	}
}
