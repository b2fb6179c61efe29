package xmem

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/spi"
)

// Driver is a serial NOR flash on an SPI bus. Every byte is stored inverted,
// so an erased chip reads as zeros.
//
// A Driver is meant to be used from a single goroutine; the critical
// section only keeps interrupt handlers off the bus.
type Driver struct {
	bus  spi.Port
	conn spi.Conn
	pins Port
	cfg  config

	part *flashParams
}

// New returns a driver for the chip behind bus, using pins for chip select,
// power and hold. Call Init before anything else.
func New(bus spi.Port, pins Port, opts ...Option) *Driver {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Driver{
		bus:  bus,
		pins: pins,
		cfg:  cfg,
	}
}

// Flash commands:
//   - [M25P80|Table 4: Instruction set]
const (
	flashCmdWriteEnable      = 0x06
	flashCmdWriteDisable     = 0x04
	flashCmdReadStatus       = 0x05
	flashCmdWriteStatus      = 0x01
	flashCmdRead             = 0x03
	flashCmdFastRead         = 0x0B
	flashCmdPageProgram      = 0x02
	flashCmdSectorErase      = 0xD8
	flashCmdBulkErase        = 0xC7
	flashCmdPowerDown        = 0xB9 // Deep Power-down
	flashCmdReleasePowerDown = 0xAB
	flashCmdReadID           = 0x9F
)

const cmdLen = 4 // opcode + 24-bit address

// putCommand writes op and the address, most significant byte first.
func putCommand(buf []byte, op byte, addr uint32) {
	buf[0] = op
	buf[1] = byte(addr >> 16)
	buf[2] = byte(addr >> 8)
	buf[3] = byte(addr)
}

// Init connects the bus, powers the chip and wakes it from deep power-down.
func (d *Driver) Init() error {
	if d.conn == nil {
		conn, err := d.bus.Connect(d.cfg.clock, d.cfg.mode, 8)
		if err != nil {
			return errors.Wrap(err, "spi connect")
		}
		d.conn = conn
	}

	if err := d.pins.Setup(); err != nil {
		return errors.Wrap(err, "control pins")
	}
	if err := d.pins.PowerOn(); err != nil {
		return errors.Wrap(err, "flash power on")
	}

	buf := []byte{flashCmdReleasePowerDown}
	if err := d.tx(buf, buf); err != nil {
		return errors.Wrap(err, "release from deep power-down")
	}
	time.Sleep(d.tRES1())

	if err := d.pins.Unhold(); err != nil {
		return errors.Wrap(err, "release hold")
	}
	d.cfg.log.WithField("bus", d.conn.String()).Debug("flash ready")
	return nil
}

// PowerDown puts the chip in deep power-down. Init wakes it again.
func (d *Driver) PowerDown() error {
	if _, err := d.WaitReady(); err != nil {
		return err
	}
	buf := []byte{flashCmdPowerDown}
	if err := d.tx(buf, buf); err != nil {
		return errors.Wrap(err, "deep power-down")
	}
	time.Sleep(d.tDP())
	return nil
}

// ReadID returns the JEDEC ID of the flash chip. It returns a non-empty name
// for known IDs, whose capacity then bounds the address checks.
func (d *Driver) ReadID() (id [3]byte, name string, err error) {
	if _, err = d.WaitReady(); err != nil {
		return
	}
	buf := make([]byte, 4)
	buf[0] = flashCmdReadID
	if err = d.tx(buf, buf); err != nil {
		return id, "", errors.Wrap(err, "read id")
	}

	id = [3]byte(buf[1:])
	d.part = nil
	if params, ok := knownFlash[id]; ok {
		d.part = &params
		name = params.name
	}
	return id, name, nil
}

func (d *Driver) checkRange(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > uint64(d.capacity()) {
		return errors.Wrapf(ErrOutOfRange, "0x%06X+%d", addr, n)
	}
	return nil
}

// Pread reads len(p) bytes starting at off. There is no alignment
// constraint.
func (d *Driver) Pread(p []byte, off uint32) (int, error) {
	if err := d.checkRange(off, len(p)); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if _, err := d.WaitReady(); err != nil {
		return 0, err
	}

	maxData := len(p)
	if d.cfg.maxTransfer > 0 {
		maxData = d.cfg.maxTransfer - cmdLen
	}

	n := 0
	for n < len(p) {
		chunk := min(len(p)-n, maxData)
		addr := off + uint32(n)
		buf := make([]byte, cmdLen+chunk)
		putCommand(buf, flashCmdRead, addr)
		// buf[cmdLen:] dummy bytes

		if err := d.tx(buf, buf); err != nil {
			return n, errors.Wrapf(err, "read 0x%06X", addr)
		}
		for i, b := range buf[cmdLen:] {
			p[n+i] = ^b
		}
		n += chunk
	}
	return n, nil
}

// ReadAt implements io.ReaderAt.
func (d *Driver) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > addrSpace {
		return 0, errors.Wrapf(ErrOutOfRange, "offset %d", off)
	}
	return d.Pread(p, uint32(off))
}

func (d *Driver) writeEnable() error {
	buf := []byte{flashCmdWriteEnable}
	return errors.Wrap(d.tx(buf, buf), "write enable")
}

// WriteDisable clears the write enable latch.
func (d *Driver) WriteDisable() error {
	buf := []byte{flashCmdWriteDisable}
	return errors.Wrap(d.tx(buf, buf), "write disable")
}

// programPage programs data at off. data must not cross a page boundary.
func (d *Driver) programPage(off uint32, data []byte) error {
	if _, err := d.WaitReady(); err != nil {
		return err
	}
	if d.cfg.canary {
		d.checkWriteCanary(data, off)
	}
	if err := d.writeEnable(); err != nil {
		return err
	}

	buf := make([]byte, cmdLen+len(data))
	putCommand(buf, flashCmdPageProgram, off)
	for i, b := range data {
		buf[cmdLen+i] = ^b
	}

	d.cfg.log.WithFields(logrus.Fields{"addr": off, "len": len(data)}).Debug("page program")
	return errors.Wrapf(d.tx(buf, buf), "page program 0x%06X", off)
}

// Pwrite programs p at addr, one page program per page touched. The range
// must have been erased.
func (d *Driver) Pwrite(p []byte, addr uint32) (int, error) {
	if err := d.checkRange(addr, len(p)); err != nil {
		return 0, err
	}

	page := d.cfg.geometry.PageSize
	end := addr + uint32(len(p))
	for i := addr; i < end; {
		next := min(nextBoundary(i, page), end)
		if err := d.programPage(i, p[i-addr:next-addr]); err != nil {
			return int(i - addr), err
		}
		i = next
	}
	return len(p), nil
}

// WriteAt implements io.WriterAt.
func (d *Driver) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > addrSpace {
		return 0, errors.Wrapf(ErrOutOfRange, "offset %d", off)
	}
	return d.Pwrite(p, uint32(off))
}

// eraseSector starts erasing the sector at off. The erase takes around a
// second; the next WaitReady absorbs it.
func (d *Driver) eraseSector(off uint32) error {
	if _, err := d.WaitReady(); err != nil {
		return err
	}
	if d.cfg.canary {
		d.checkEraseCanary(off)
	}
	if err := d.writeEnable(); err != nil {
		return err
	}

	var buf [cmdLen]byte
	putCommand(buf[:], flashCmdSectorErase, off)

	d.cfg.log.WithField("addr", off).Debug("sector erase")
	return errors.Wrapf(d.tx(buf[:], buf[:]), "sector erase 0x%06X", off)
}

// Erase erases size bytes from addr. Both must be multiples of the sector
// size, otherwise nothing is sent to the chip.
func (d *Driver) Erase(size, addr uint32) (int, error) {
	sector := d.cfg.geometry.SectorSize
	if !aligned(size, sector) {
		return 0, errors.Wrapf(ErrEraseSize, "size 0x%X", size)
	}
	if !aligned(addr, sector) {
		return 0, errors.Wrapf(ErrEraseOffset, "address 0x%06X", addr)
	}
	if err := d.checkRange(addr, int(size)); err != nil {
		return 0, err
	}

	for a := addr; a < addr+size; a += sector {
		if err := d.eraseSector(a); err != nil {
			return 0, err
		}
	}
	return int(size), nil
}

// EraseChip starts a bulk erase of the entire chip. It does not wait for
// completion.
func (d *Driver) EraseChip() error {
	if _, err := d.WaitReady(); err != nil {
		return err
	}
	if err := d.writeEnable(); err != nil {
		return err
	}
	buf := []byte{flashCmdBulkErase}
	d.cfg.log.Debug("bulk erase")
	return errors.Wrap(d.tx(buf, buf), "bulk erase")
}

var (
	_ io.ReaderAt = (*Driver)(nil)
	_ io.WriterAt = (*Driver)(nil)
)
