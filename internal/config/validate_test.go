// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ---- tests ----

func TestValidate_Default(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown bus", func(c *Config) { c.Bus.Kind = "i2c" }, "unknown kind"},
		{"spidev without name", func(c *Config) { c.Bus.Kind = BusSpidev; c.Pins = PinsConfig{CS: "8"} }, "requires a name"},
		{"zero clock", func(c *Config) { c.Bus.ClockHz = 0 }, "clock_hz"},
		{"bad mode", func(c *Config) { c.Bus.Mode = 4 }, "mode"},
		{"no cs", func(c *Config) { c.Pins.CS = "" }, "cs is required"},
		{"bad ftdi pin", func(c *Config) { c.Pins.Hold = "D9" }, "not an FT2232H pin"},
		{"shared pin", func(c *Config) { c.Pins.Power = "D4" }, "share"},
		{"spidev pin not numeric", func(c *Config) {
			c.Bus = BusConfig{Kind: BusSpidev, Name: "/dev/spidev0.0", ClockHz: 1}
			c.Pins = PinsConfig{CS: "D4"}
		}, "not a GPIO number"},
		{"spidev reset", func(c *Config) {
			c.Bus = BusConfig{Kind: BusSpidev, Name: "/dev/spidev0.0", ClockHz: 1}
			c.Pins = PinsConfig{CS: "8", Reset: "9"}
		}, "only supported on ftdi"},
		{"sector not multiple of page", func(c *Config) { c.Flash.SectorSize = 1000 }, "not a multiple"},
		{"zero page", func(c *Config) { c.Flash.PageSize = 0 }, "must be positive"},
		{"capacity too large", func(c *Config) { c.Flash.Capacity = 1 << 25 }, "24-bit"},
		{"capacity partial sector", func(c *Config) { c.Flash.Capacity = 1<<20 + 256 }, "whole number"},
		{"negative timeout", func(c *Config) { c.Flash.BusyTimeoutMs = -1 }, "negative"},
		{"tiny transfer", func(c *Config) { c.Flash.MaxTransfer = 4 }, "no room"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestValidate_SpidevOK(t *testing.T) {
	cfg := Default()
	cfg.Bus = BusConfig{Kind: BusSpidev, Name: "/dev/spidev0.0", ClockHz: 10_000_000}
	cfg.Pins = PinsConfig{CS: "8", Power: "17", Hold: "27"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoad_OverlaysDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board.yaml")
	const doc = `
bus:
  kind: spidev
  name: /dev/spidev1.0
pins:
  cs: "5"
  reset: ""
flash:
  canary: true
  busy_timeout_ms: 3000
watchdog:
  device: /dev/watchdog
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bus.Kind != BusSpidev || cfg.Bus.Name != "/dev/spidev1.0" {
		t.Errorf("bus = %+v", cfg.Bus)
	}
	if cfg.Bus.ClockHz != 30_000_000 {
		t.Errorf("clock default lost: %d", cfg.Bus.ClockHz)
	}
	if cfg.Pins.CS != "5" || cfg.Pins.Reset != "" {
		t.Errorf("pins = %+v", cfg.Pins)
	}
	if !cfg.Flash.Canary || cfg.Flash.BusyTimeoutMs != 3000 || cfg.Flash.PageSize != 256 {
		t.Errorf("flash = %+v", cfg.Flash)
	}
	if cfg.Watchdog.Device != "/dev/watchdog" {
		t.Errorf("watchdog = %+v", cfg.Watchdog)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("bus: [not, a, map]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}
