// internal/config/config.go
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	BusFTDI   = "ftdi"
	BusSpidev = "spidev"
)

type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Pins     PinsConfig     `yaml:"pins"`
	Flash    FlashConfig    `yaml:"flash"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
}

// ---- BUS ----

type BusConfig struct {
	Kind    string `yaml:"kind"` // ftdi | spidev
	Name    string `yaml:"name"` // spidev only, e.g. /dev/spidev0.0
	ClockHz int64  `yaml:"clock_hz"`
	Mode    int    `yaml:"mode"`
}

// ---- CONTROL LINES ----

// PinsConfig names the control lines. On ftdi these are FT2232H pin names
// (D0-D7, C0-C7); on spidev they are sysfs GPIO numbers. Empty means not
// connected.
type PinsConfig struct {
	CS    string `yaml:"cs"`
	Power string `yaml:"power"`
	Hold  string `yaml:"hold"`
	Reset string `yaml:"reset"` // ftdi only
}

// ---- FLASH GEOMETRY ----

type FlashConfig struct {
	PageSize       uint32 `yaml:"page_size"`
	SectorSize     uint32 `yaml:"sector_size"`
	Capacity       uint32 `yaml:"capacity"`
	Canary         bool   `yaml:"canary"`
	BusyTimeoutMs  int    `yaml:"busy_timeout_ms"` // 0 waits forever
	PollIntervalUs int    `yaml:"poll_interval_us"`
	MaxTransfer    int    `yaml:"max_transfer"`
}

// ---- WATCHDOG ----

type WatchdogConfig struct {
	Device string `yaml:"device"` // empty disables
}

// Default matches an iCEstick / iCEBreaker board with its M25P80-class
// flash behind the FT2232H.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Kind:    BusFTDI,
			ClockHz: 30_000_000,
		},
		Pins: PinsConfig{
			CS:    "D4",
			Reset: "D7",
		},
		Flash: FlashConfig{
			PageSize:    256,
			SectorSize:  64 << 10,
			Capacity:    1 << 20,
			MaxTransfer: 65536,
		},
	}
}

// Load reads a YAML board file on top of Default.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}
	return cfg, nil
}
