package xmem

import (
	sysfs "github.com/piotrjaromin/gpio"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
)

// Port drives the chip's control lines. Chip select and hold are active
// low on every supported board.
type Port interface {
	// Setup makes the control lines outputs, with the chip deselected.
	Setup() error
	PowerOn() error
	Select() error
	Deselect() error
	// Unhold releases the hold line so the chip listens to the bus.
	Unhold() error
}

// GPIOPort drives the control lines through periph pins. Power and Hold
// may be nil on boards that tie them to the supply.
type GPIOPort struct {
	CS    gpio.PinOut
	Power gpio.PinOut
	Hold  gpio.PinOut
}

func (p *GPIOPort) Setup() error {
	if err := p.CS.Out(gpio.High); err != nil {
		return errors.Wrapf(err, "configure %s", p.CS)
	}
	if p.Hold != nil {
		if err := p.Hold.Out(gpio.Low); err != nil {
			return errors.Wrapf(err, "configure %s", p.Hold)
		}
	}
	return nil
}

func (p *GPIOPort) PowerOn() error {
	if p.Power == nil {
		return nil
	}
	return p.Power.Out(gpio.High)
}

func (p *GPIOPort) Select() error   { return p.CS.Out(gpio.Low) }
func (p *GPIOPort) Deselect() error { return p.CS.Out(gpio.High) }

func (p *GPIOPort) Unhold() error {
	if p.Hold == nil {
		return nil
	}
	return p.Hold.Out(gpio.High)
}

// NoPin marks an absent line in a SysfsPort.
const NoPin = -1

// SysfsPort drives the control lines through the Linux sysfs GPIO interface.
// Numbers are kernel GPIO numbers; Power and Hold may be NoPin.
type SysfsPort struct {
	CS    int
	Power int
	Hold  int

	cs, power, hold sysfsLine
}

type sysfsLine struct {
	pin      sysfs.Pin
	exported bool
}

func (l *sysfsLine) export(n int, high bool) (err error) {
	if n == NoPin {
		return nil
	}
	if l.pin, err = sysfs.NewOutput(uint(n), high); err != nil {
		return errors.Wrapf(err, "export gpio %d", n)
	}
	l.exported = true
	return nil
}

func (l *sysfsLine) set(high bool) error {
	if !l.exported {
		return nil
	}
	if high {
		return l.pin.High()
	}
	return l.pin.Low()
}

func (p *SysfsPort) Setup() error {
	if p.CS == NoPin {
		return errors.New("sysfs port needs a chip select line")
	}
	if err := p.cs.export(p.CS, true); err != nil {
		return err
	}
	if err := p.power.export(p.Power, false); err != nil {
		return err
	}
	return p.hold.export(p.Hold, false)
}

func (p *SysfsPort) PowerOn() error { return p.power.set(true) }
func (p *SysfsPort) Unhold() error  { return p.hold.set(true) }

func (p *SysfsPort) Select() error {
	if !p.cs.exported {
		return errors.New("sysfs port is not set up")
	}
	return p.cs.set(false)
}

func (p *SysfsPort) Deselect() error {
	if !p.cs.exported {
		return errors.New("sysfs port is not set up")
	}
	return p.cs.set(true)
}

// Close unexports the pins.
func (p *SysfsPort) Close() {
	for _, l := range []*sysfsLine{&p.cs, &p.power, &p.hold} {
		if l.exported {
			l.pin.Cleanup()
			l.exported = false
		}
	}
}
