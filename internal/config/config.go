// Package config loads guardiand configuration from file and environment.
// Policy constants (press threshold, session durations) live here so they
// can be tuned per deployment without a rebuild; defaults match the
// shipped behavior.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the daemon.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	DataDir  string `mapstructure:"data_dir"`
	Listen   string `mapstructure:"listen"`

	Trigger   Trigger   `mapstructure:"trigger"`
	Evidence  Evidence  `mapstructure:"evidence"`
	Location  Location  `mapstructure:"location"`
	SMS       SMS       `mapstructure:"sms"`
	Community Community `mapstructure:"community"`
	Profile   Profile   `mapstructure:"profile"`
}

// Trigger holds press-pattern and confirmation policy.
type Trigger struct {
	// PressCount is how many screen-off presses arm the trigger.
	PressCount int `mapstructure:"press_count"`
	// PressWindow is the maximum gap between consecutive presses.
	PressWindow time.Duration `mapstructure:"press_window"`
	// ConfirmTimeout is how long the confirmation surface stays up.
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	// ConfirmTrackThreshold is the drag fraction that counts as confirm.
	ConfirmTrackThreshold float64 `mapstructure:"confirm_track_threshold"`
	// StopGrace bounds how long Stop waits for children to release hardware.
	StopGrace time.Duration `mapstructure:"stop_grace"`
}

// Evidence holds recording policy and device selection.
type Evidence struct {
	Dir               string        `mapstructure:"dir"`
	SessionDuration   time.Duration `mapstructure:"session_duration"`
	SessionCooldown   time.Duration `mapstructure:"session_cooldown"`
	AudioRetryBackoff time.Duration `mapstructure:"audio_retry_backoff"`
	// VideoStartAttempts is how many consecutive video start failures
	// are tolerated before falling back to audio for the rest of the run.
	VideoStartAttempts int `mapstructure:"video_start_attempts"`

	CameraDevice int     `mapstructure:"camera_device"`
	VideoWidth   int     `mapstructure:"video_width"`
	VideoHeight  int     `mapstructure:"video_height"`
	VideoFPS     float64 `mapstructure:"video_fps"`

	AudioDevice     string `mapstructure:"audio_device"`
	AudioSampleRate int    `mapstructure:"audio_sample_rate"`
}

// Location holds location and geocoding settings.
type Location struct {
	UpdateInterval time.Duration `mapstructure:"update_interval"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	GeocodeURL     string        `mapstructure:"geocode_url"`
	GeocodeTimeout time.Duration `mapstructure:"geocode_timeout"`
}

// SMS holds the SMS gateway endpoint.
type SMS struct {
	GatewayURL string `mapstructure:"gateway_url"`
	Token      string `mapstructure:"token"`
}

// Community holds the community-alert backend endpoint and credentials.
type Community struct {
	BaseURL      string `mapstructure:"base_url"`
	TokenURL     string `mapstructure:"token_url"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

// Profile identifies the user on outgoing alerts and messages.
type Profile struct {
	UserID   string `mapstructure:"user_id"`
	Username string `mapstructure:"username"`
	Contact  string `mapstructure:"contact"`
}

// Load reads configuration from the given file (optional) with
// GUARDIAN_* environment overrides applied on top of defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("log_level", "info")
	v.SetDefault("data_dir", "/var/lib/guardian")
	v.SetDefault("listen", "127.0.0.1:8787")

	v.SetDefault("trigger.press_count", 3)
	v.SetDefault("trigger.press_window", 2*time.Second)
	v.SetDefault("trigger.confirm_timeout", 30*time.Second)
	v.SetDefault("trigger.confirm_track_threshold", 0.7)
	v.SetDefault("trigger.stop_grace", 5*time.Second)

	v.SetDefault("evidence.dir", "/var/lib/guardian/evidence")
	v.SetDefault("evidence.session_duration", 300*time.Second)
	v.SetDefault("evidence.session_cooldown", 10*time.Second)
	v.SetDefault("evidence.audio_retry_backoff", 30*time.Second)
	v.SetDefault("evidence.video_start_attempts", 3)
	v.SetDefault("evidence.camera_device", 0)
	v.SetDefault("evidence.video_width", 1280)
	v.SetDefault("evidence.video_height", 720)
	v.SetDefault("evidence.video_fps", 30.0)
	v.SetDefault("evidence.audio_device", "default")
	v.SetDefault("evidence.audio_sample_rate", 16000)

	v.SetDefault("location.update_interval", 5*time.Second)
	v.SetDefault("location.fetch_timeout", 30*time.Second)
	v.SetDefault("location.geocode_url", "https://nominatim.openstreetmap.org/reverse")
	v.SetDefault("location.geocode_timeout", 10*time.Second)

	v.SetEnvPrefix("GUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Trigger.PressCount < 2 {
		return fmt.Errorf("trigger.press_count must be at least 2, got %d", c.Trigger.PressCount)
	}
	if c.Trigger.PressWindow <= 0 {
		return fmt.Errorf("trigger.press_window must be positive, got %v", c.Trigger.PressWindow)
	}
	if c.Trigger.ConfirmTimeout <= 0 {
		return fmt.Errorf("trigger.confirm_timeout must be positive, got %v", c.Trigger.ConfirmTimeout)
	}
	if c.Trigger.ConfirmTrackThreshold <= 0 || c.Trigger.ConfirmTrackThreshold > 1 {
		return fmt.Errorf("trigger.confirm_track_threshold must be in (0,1], got %v", c.Trigger.ConfirmTrackThreshold)
	}
	if c.Evidence.SessionDuration <= 0 {
		return fmt.Errorf("evidence.session_duration must be positive, got %v", c.Evidence.SessionDuration)
	}
	if c.Evidence.SessionCooldown < 0 {
		return fmt.Errorf("evidence.session_cooldown must not be negative, got %v", c.Evidence.SessionCooldown)
	}
	if c.Evidence.VideoStartAttempts < 1 {
		return fmt.Errorf("evidence.video_start_attempts must be at least 1, got %d", c.Evidence.VideoStartAttempts)
	}
	if c.Evidence.AudioSampleRate <= 0 {
		return fmt.Errorf("evidence.audio_sample_rate must be positive, got %d", c.Evidence.AudioSampleRate)
	}
	if c.Location.FetchTimeout <= 0 {
		return fmt.Errorf("location.fetch_timeout must be positive, got %v", c.Location.FetchTimeout)
	}
	return nil
}
