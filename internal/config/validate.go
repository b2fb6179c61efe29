// internal/config/validate.go
package config

import (
	"fmt"
	"strconv"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	// ------------------------------------------------------------
	// BUS
	// ------------------------------------------------------------

	switch cfg.Bus.Kind {
	case BusFTDI:
	case BusSpidev:
		if cfg.Bus.Name == "" {
			return fmt.Errorf("bus: spidev requires a name")
		}
	default:
		return fmt.Errorf("bus: unknown kind %q", cfg.Bus.Kind)
	}

	if cfg.Bus.ClockHz <= 0 {
		return fmt.Errorf("bus: clock_hz must be positive, got %d", cfg.Bus.ClockHz)
	}
	if cfg.Bus.Mode < 0 || cfg.Bus.Mode > 3 {
		return fmt.Errorf("bus: mode must be 0-3, got %d", cfg.Bus.Mode)
	}

	// ------------------------------------------------------------
	// CONTROL LINES
	// ------------------------------------------------------------

	if cfg.Pins.CS == "" {
		return fmt.Errorf("pins: cs is required")
	}

	lines := []struct {
		name, value string
	}{
		{"cs", cfg.Pins.CS},
		{"power", cfg.Pins.Power},
		{"hold", cfg.Pins.Hold},
		{"reset", cfg.Pins.Reset},
	}
	used := make(map[string]string)
	for _, l := range lines {
		if l.value == "" {
			continue
		}
		switch cfg.Bus.Kind {
		case BusFTDI:
			if !isFTDIPin(l.value) {
				return fmt.Errorf("pins: %s: %q is not an FT2232H pin (D0-D7, C0-C7)", l.name, l.value)
			}
		case BusSpidev:
			if l.name == "reset" {
				return fmt.Errorf("pins: reset is only supported on ftdi")
			}
			if n, err := strconv.Atoi(l.value); err != nil || n < 0 {
				return fmt.Errorf("pins: %s: %q is not a GPIO number", l.name, l.value)
			}
		}
		if prev, ok := used[l.value]; ok {
			return fmt.Errorf("pins: %s and %s share %s", prev, l.name, l.value)
		}
		used[l.value] = l.name
	}

	// ------------------------------------------------------------
	// FLASH GEOMETRY
	// ------------------------------------------------------------

	f := cfg.Flash
	if f.PageSize == 0 || f.SectorSize == 0 {
		return fmt.Errorf("flash: page_size and sector_size must be positive")
	}
	if f.SectorSize%f.PageSize != 0 {
		return fmt.Errorf("flash: sector_size %d is not a multiple of page_size %d", f.SectorSize, f.PageSize)
	}
	if f.Capacity > 1<<24 {
		return fmt.Errorf("flash: capacity %d exceeds the 24-bit address space", f.Capacity)
	}
	if f.Capacity%f.SectorSize != 0 {
		return fmt.Errorf("flash: capacity %d is not a whole number of sectors", f.Capacity)
	}
	if f.BusyTimeoutMs < 0 || f.PollIntervalUs < 0 {
		return fmt.Errorf("flash: busy_timeout_ms and poll_interval_us must not be negative")
	}
	if f.MaxTransfer != 0 && f.MaxTransfer <= 4 {
		return fmt.Errorf("flash: max_transfer %d leaves no room for data", f.MaxTransfer)
	}

	return nil
}

func isFTDIPin(name string) bool {
	if len(name) != 2 {
		return false
	}
	return (name[0] == 'D' || name[0] == 'C') && name[1] >= '0' && name[1] <= '7'
}
