//go:build !tinygo

package xmem

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Device is a flash chip reached from a host, either through an FT2232H
// MPSSE bridge or a Linux spidev bus with sysfs GPIO control lines.
type Device struct {
	FTDI  *ftdi.FT232H // nil on spidev
	Flash *Driver

	port  spi.PortCloser
	reset gpio.PinIO
	sysfs *SysfsPort
}

// FTDIPins names the FT2232H lines wired to the flash, e.g. "D4" or "C2".
// Empty names are not connected.
type FTDIPins struct {
	CS    string
	Power string
	Hold  string
	// Reset holds another bus master (an FPGA) off the SPI bus.
	Reset string
}

// [EB82|Appendix A. Sheet 2 of 5 (USB to SPI/RS232)] / [icebreaker-sch.pdf]
// ADBUS0 | iCE_SCK
// ADBUS1 | iCE_MOSI / FLASH_MOSI
// ADBUS2 | iCE_MISO / FLASH_MISO
// ADBUS4 | iCE_SS_B
// ADBUS7 | iCE_CRESET / iCE_RESET
var DefaultFTDIPins = FTDIPins{CS: "D4", Reset: "D7"}

var hostInitialized atomic.Bool

func initHost() error {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			hostInitialized.Store(false)
			return errors.Wrap(err, "host initialization failed")
		}
	}
	return nil
}

// NewFTDIDevice finds the FT2232H and prepares a driver on its MPSSE SPI
// port. The driver still needs Init.
func NewFTDIDevice(pins FTDIPins, opts ...Option) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}

	d := &Device{}
	if err := d.findFT2232H(); err != nil {
		return nil, err
	}

	var gp GPIOPort
	var err error
	if gp.CS, err = d.ftdiPin(pins.CS); err != nil {
		return nil, err
	}
	if gp.CS == nil {
		return nil, errors.New("chip select pin is required")
	}
	if gp.Power, err = d.ftdiPin(pins.Power); err != nil {
		return nil, err
	}
	if gp.Hold, err = d.ftdiPin(pins.Hold); err != nil {
		return nil, err
	}
	if d.reset, err = d.ftdiPin(pins.Reset); err != nil {
		return nil, err
	}

	d.port, err = d.FTDI.SPI()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get SPI port")
	}

	// [FTDI-AN_114|1.2]> FTDI device can only support mode 0 and mode 2 due to the limitation of MPSSE engine
	// [FTDI-AN_108] caps a single MPSSE transfer at 65536 bytes
	opts = append([]Option{WithMode(spi.Mode0), WithMaxTransfer(65536)}, opts...)
	d.Flash = New(d.port, &gp, opts...)
	return d, nil
}

// NewSpidevDevice opens a spidev bus by periph name ("/dev/spidev0.0" or
// "SPI0.0"). The kernel must not drive chip select; pins does.
func NewSpidevDevice(name string, pins *SysfsPort, opts ...Option) (*Device, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	port, err := spireg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	d := &Device{port: port, sysfs: pins}
	opts = append([]Option{WithMode(spi.Mode0 | spi.NoCS)}, opts...)
	d.Flash = New(port, pins, opts...)
	return d, nil
}

// ResetTarget drives the reset line of the other bus master, if wired.
// Hold it low while talking to the flash.
func (d *Device) ResetTarget(l gpio.Level) error {
	if d.reset == nil {
		return nil
	}
	return d.reset.Out(l)
}

func (d *Device) Close() error {
	if d.sysfs != nil {
		d.sysfs.Close()
	}
	return d.port.Close()
}

func (d *Device) findFT2232H() error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6010 // FT2232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			return nil
		}
	}

	return errors.New("FT2232H device not found")
}

func (d *Device) ftdiPin(name string) (gpio.PinIO, error) {
	if name == "" {
		return nil, nil
	}
	if len(name) != 2 || (name[0] != 'D' && name[0] != 'C') || name[1] < '0' || name[1] > '7' {
		return nil, errors.Errorf("unknown FT2232H pin %q", name)
	}
	if d.FTDI == nil {
		return nil, errors.New("FT2232H device not found")
	}
	ft := d.FTDI
	pins := map[string]gpio.PinIO{
		"D0": ft.D0, "D1": ft.D1, "D2": ft.D2, "D3": ft.D3,
		"D4": ft.D4, "D5": ft.D5, "D6": ft.D6, "D7": ft.D7,
		"C0": ft.C0, "C1": ft.C1, "C2": ft.C2, "C3": ft.C3,
		"C4": ft.C4, "C5": ft.C5, "C6": ft.C6, "C7": ft.C7,
	}
	return pins[name], nil
}
