package config

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*SessionConfig)
		want   error
	}{
		{"zero players", func(c *SessionConfig) { c.NumPlayers = 0 }, ErrInvalidNumPlayers},
		{"zero tick rate", func(c *SessionConfig) { c.TickRate = 0 }, ErrInvalidTickRate},
		{"tick rate too high", func(c *SessionConfig) { c.TickRate = MaxTickRate + 1 }, ErrInvalidTickRate},
		{"zero prediction", func(c *SessionConfig) { c.MaxPredictionWindow = 0 }, ErrInvalidPredictionWindow},
		{"prediction too large", func(c *SessionConfig) { c.MaxPredictionWindow = MaxPredictionWindow + 1 }, ErrInvalidPredictionWindow},
		{"negative delay", func(c *SessionConfig) { c.InputDelay = -1 }, ErrInvalidInputDelay},
		{"zero disconnect timeout", func(c *SessionConfig) { c.DisconnectTimeout = 0 }, ErrInvalidDisconnectTimeout},
		{"zero delay ok", func(c *SessionConfig) { c.InputDelay = 0 }, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestTickDuration(t *testing.T) {
	cfg := Default()
	cfg.TickRate = 50
	if got := cfg.TickDuration(); got != 20*time.Millisecond {
		t.Fatalf("TickDuration() = %s, want 20ms", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(2)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg != Default() {
		t.Fatalf("Load() = %+v, want %+v", cfg, Default())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ROLLDUEL_TICK_RATE", "30")
	t.Setenv("ROLLDUEL_INPUT_DELAY", "0")
	t.Setenv("ROLLDUEL_DISCONNECT_TIMEOUT", "500ms")

	cfg, err := Load(2)
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.TickRate != 30 || cfg.InputDelay != 0 || cfg.DisconnectTimeout != 500*time.Millisecond {
		t.Fatalf("Load() = %+v", cfg)
	}
}

func TestLoadRejectsInvalidTickRate(t *testing.T) {
	t.Setenv("ROLLDUEL_TICK_RATE", "0")
	if _, err := Load(2); !errors.Is(err, ErrInvalidTickRate) {
		t.Fatalf("Load() = %v, want ErrInvalidTickRate", err)
	}
}

func TestParseEnvError(t *testing.T) {
	t.Setenv("ROLLDUEL_TICK_RATE", "fast")
	_, err := ParseEnv()
	if err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("ParseEnv() = %v, want parse env error", err)
	}
}

func TestValidatePort(t *testing.T) {
	for _, port := range []int{1, 7000, 65535} {
		if err := ValidatePort(port); err != nil {
			t.Errorf("ValidatePort(%d) = %v", port, err)
		}
	}
	for _, port := range []int{0, -1, 65536} {
		if err := ValidatePort(port); !errors.Is(err, ErrInvalidPort) {
			t.Errorf("ValidatePort(%d) = %v, want ErrInvalidPort", port, err)
		}
	}
}
