package xmem

import (
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// Watchdog is serviced once per status poll while the driver waits for the
// chip. *watchdog.Watchdog from u-root satisfies it.
type Watchdog interface {
	KeepAlive() error
}

type nopWatchdog struct{}

func (nopWatchdog) KeepAlive() error { return nil }

type config struct {
	clock    physic.Frequency
	mode     spi.Mode
	geometry Geometry

	canary     bool
	canaryHook func(CanaryReport)

	log      logrus.FieldLogger
	watchdog Watchdog
	irq      InterruptController

	busyTimeout  time.Duration
	pollInterval time.Duration
	maxTransfer  int
}

func defaultConfig() config {
	return config{
		clock:    30 * physic.MegaHertz, // [FTDI-AN_135|3.2.1 Divisors]
		mode:     spi.Mode0,
		geometry: DefaultGeometry,
		log:      logrus.StandardLogger(),
		watchdog: nopWatchdog{},
		irq:      defaultInterrupts(),
	}
}

// Option configures a Driver.
type Option func(*config)

// WithClock sets the SPI clock used when the bus is connected.
func WithClock(f physic.Frequency) Option {
	return func(c *config) {
		if f > 0 {
			c.clock = f
		}
	}
}

// WithMode sets the SPI mode. The M25P80 supports mode 0 and mode 3.
func WithMode(m spi.Mode) Option {
	return func(c *config) {
		c.mode = m
	}
}

// WithGeometry overrides the page, sector and capacity sizes. Invalid
// geometries are ignored.
func WithGeometry(g Geometry) Option {
	return func(c *config) {
		if g.valid() {
			c.geometry = g
		}
	}
}

// WithCanary enables the canary scan before every page program and sector
// erase.
func WithCanary(enabled bool) Option {
	return func(c *config) {
		c.canary = enabled
	}
}

// WithCanaryHook receives every canary report in addition to the log line.
func WithCanaryHook(fn func(CanaryReport)) Option {
	return func(c *config) {
		c.canaryHook = fn
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *config) {
		if l != nil {
			c.log = l
		}
	}
}

func WithWatchdog(w Watchdog) Option {
	return func(c *config) {
		if w != nil {
			c.watchdog = w
		}
	}
}

// WithInterrupts replaces the interrupt controller used for the bus
// critical section.
func WithInterrupts(irq InterruptController) Option {
	return func(c *config) {
		if irq != nil {
			c.irq = irq
		}
	}
}

// WithBusyTimeout bounds the busy wait. Zero, the default, waits forever.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.busyTimeout = d
		}
	}
}

// WithPollInterval sleeps between status polls. Zero polls back to back.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxTransfer limits the number of bytes clocked in a single bus
// transfer, command bytes included. Reads longer than that are split into
// several transactions. Zero means no limit.
func WithMaxTransfer(n int) Option {
	return func(c *config) {
		if n == 0 || n > cmdLen {
			c.maxTransfer = n
		}
	}
}
