package main

import (
	"strconv"
	"time"

	"github.com/gentam/xmem"
	"github.com/gentam/xmem/internal/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/u-root/u-root/pkg/watchdog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// armedWatchdog is a watchdog the session must disarm before exiting,
// otherwise the host reboots once it times out.
type armedWatchdog interface {
	xmem.Watchdog
	MagicClose() error
}

// session is an initialized flash plus whatever has to be undone on exit.
// Any field may be nil when opening stopped half way.
type session struct {
	cfg   *config.Config
	dev   *xmem.Device
	flash *xmem.Driver
	wd    armedWatchdog
}

var (
	openWatchdog = func(dev string) (armedWatchdog, error) {
		wd, err := watchdog.Open(dev)
		if err != nil {
			return nil, err
		}
		return wd, nil
	}
	openDevice = newDevice
)

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(cfg); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}
	return cfg, nil
}

func driverOptions(cfg *config.Config) []xmem.Option {
	f := cfg.Flash
	opts := []xmem.Option{
		xmem.WithClock(physic.Frequency(cfg.Bus.ClockHz) * physic.Hertz),
		xmem.WithGeometry(xmem.Geometry{
			PageSize:   f.PageSize,
			SectorSize: f.SectorSize,
			Capacity:   f.Capacity,
		}),
		xmem.WithCanary(f.Canary),
		xmem.WithBusyTimeout(time.Duration(f.BusyTimeoutMs) * time.Millisecond),
		xmem.WithPollInterval(time.Duration(f.PollIntervalUs) * time.Microsecond),
		xmem.WithMaxTransfer(f.MaxTransfer),
	}
	if cfg.Bus.Kind == config.BusSpidev {
		opts = append(opts, xmem.WithMode(spi.Mode(cfg.Bus.Mode)|spi.NoCS))
	} else {
		opts = append(opts, xmem.WithMode(spi.Mode(cfg.Bus.Mode)))
	}
	return opts
}

func gpioNumber(s string) int {
	if s == "" {
		return xmem.NoPin
	}
	n, _ := strconv.Atoi(s) // checked by config.Validate
	return n
}

func newDevice(cfg *config.Config, opts []xmem.Option) (*xmem.Device, error) {
	if cfg.Bus.Kind == config.BusSpidev {
		pins := &xmem.SysfsPort{
			CS:    gpioNumber(cfg.Pins.CS),
			Power: gpioNumber(cfg.Pins.Power),
			Hold:  gpioNumber(cfg.Pins.Hold),
		}
		return xmem.NewSpidevDevice(cfg.Bus.Name, pins, opts...)
	}
	return xmem.NewFTDIDevice(xmem.FTDIPins{
		CS:    cfg.Pins.CS,
		Power: cfg.Pins.Power,
		Hold:  cfg.Pins.Hold,
		Reset: cfg.Pins.Reset,
	}, opts...)
}

// withFlash opens the configured flash, runs fn and tears the session down
// on every path out, fn's errors included.
func withFlash(fn func(*session) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s := &session{cfg: cfg}
	if err := s.open(); err != nil {
		s.close()
		return err
	}
	return s.run(fn)
}

func (s *session) run(fn func(*session) error) error {
	defer s.close()
	return fn(s)
}

func (s *session) open() error {
	opts := driverOptions(s.cfg)
	if dev := s.cfg.Watchdog.Device; dev != "" {
		wd, err := openWatchdog(dev)
		if err != nil {
			return errors.Wrap(err, "open watchdog")
		}
		s.wd = wd
		opts = append(opts, xmem.WithWatchdog(wd))
	}

	dev, err := openDevice(s.cfg, opts)
	if err != nil {
		return err
	}
	s.dev = dev

	// prevent an FPGA from acting as a SPI master
	if err := s.dev.ResetTarget(gpio.Low); err != nil {
		return errors.Wrap(err, "hold target in reset failed")
	}
	if err := dev.Flash.Init(); err != nil {
		return errors.Wrap(err, "flash power up failed")
	}
	s.flash = dev.Flash
	return nil
}

func (s *session) close() {
	if s.flash != nil {
		if err := s.flash.PowerDown(); err != nil {
			logrus.WithError(err).Warn("flash power down failed")
		}
		s.flash = nil
	}
	if s.dev != nil {
		if err := s.dev.ResetTarget(gpio.High); err != nil {
			logrus.WithError(err).Warn("release target reset failed")
		}
		if err := s.dev.Close(); err != nil {
			logrus.WithError(err).Warn("close bus failed")
		}
		s.dev = nil
	}
	if s.wd != nil {
		if err := s.wd.MagicClose(); err != nil {
			logrus.WithError(err).Warn("disarm watchdog failed")
		}
		s.wd = nil
	}
}
