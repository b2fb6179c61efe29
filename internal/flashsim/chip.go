// Package flashsim simulates an M25P80-style SPI NOR flash behind a periph
// SPI port and three gpiotest control pins.
//
// The chip keeps real NOR semantics: erase sets bits, page program can only
// clear them, the write enable latch is consumed by every program or erase,
// and each of those leaves the chip busy for a configurable number of status
// polls. Protocol mistakes are not fatal; they are collected as violations
// for the test to inspect.
package flashsim

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	PageSize   = 256
	SectorSize = 64 << 10

	// ElectronicSignature is returned by the release from deep power-down
	// command after three dummy bytes.
	ElectronicSignature = 0x13
)

var M25P80 = [3]byte{0x20, 0x20, 0x14}

// Command is one decoded bus transaction.
type Command struct {
	Op   byte
	Addr uint32
	Len  int // data bytes after the address
}

type Chip struct {
	CS    *gpiotest.Pin
	Power *gpiotest.Pin
	Hold  *gpiotest.Pin

	// OnTx runs at the start of every transfer, before the chip lock is
	// taken.
	OnTx func(w []byte)

	mu         sync.Mutex
	mem        []byte
	id         [3]byte
	busyPolls  int
	stuck      bool
	txErr      error
	wel        bool
	busy       int
	sleeping   bool
	statusRead int
	commands   []Command
	violations []string

	freq physic.Frequency
	mode spi.Mode
}

// New returns an erased chip of size bytes, powered off and deselected.
func New(size int) *Chip {
	c := &Chip{
		CS:        &gpiotest.Pin{N: "CS", Num: 0, L: gpio.High},
		Power:     &gpiotest.Pin{N: "PWR", Num: 1, L: gpio.Low},
		Hold:      &gpiotest.Pin{N: "HOLD", Num: 2, L: gpio.Low},
		mem:       make([]byte, size),
		id:        M25P80,
		busyPolls: 2,
	}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

// SetBusyPolls sets how many status reads report WIP after a program or
// erase.
func (c *Chip) SetBusyPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busyPolls = n
}

// SetStuck makes every status read report WIP.
func (c *Chip) SetStuck(stuck bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuck = stuck
}

// SetTxError makes every transfer fail with err until cleared with nil.
func (c *Chip) SetTxError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.txErr = err
}

// SetID sets the JEDEC ID returned by RDID.
func (c *Chip) SetID(id [3]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

// Physical returns a copy of the raw cell contents.
func (c *Chip) Physical(addr, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, n)
	for i := range out {
		out[i] = c.mem[(addr+i)%len(c.mem)]
	}
	return out
}

// Commands returns the decoded transactions since the last ClearLog.
func (c *Chip) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Command(nil), c.commands...)
}

// Ops returns the opcodes of Commands.
func (c *Chip) Ops() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	ops := make([]byte, len(c.commands))
	for i, cmd := range c.commands {
		ops[i] = cmd.Op
	}
	return ops
}

func (c *Chip) Violations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.violations...)
}

// StatusReads counts RDSR transactions since the last ClearLog.
func (c *Chip) StatusReads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusRead
}

func (c *Chip) Sleeping() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeping
}

func (c *Chip) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = nil
	c.violations = nil
	c.statusRead = 0
}

// Connection returns the frequency and mode of the last Connect.
func (c *Chip) Connection() (physic.Frequency, spi.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.freq, c.mode
}

// spi.Port

func (c *Chip) String() string { return "flashsim" }

func (c *Chip) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if bits != 8 {
		return nil, fmt.Errorf("flashsim: %d bits per word not supported", bits)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.freq = f
	c.mode = mode
	return &simConn{chip: c}, nil
}

func (c *Chip) LimitSpeed(f physic.Frequency) error { return nil }

type simConn struct {
	chip *Chip
}

func (s *simConn) String() string      { return "flashsim.conn" }
func (s *simConn) Duplex() conn.Duplex { return conn.Full }
func (s *simConn) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		if err := s.Tx(pkt.W, pkt.R); err != nil {
			return err
		}
	}
	return nil
}

// Tx decodes w as one complete command. w and r may alias.
func (s *simConn) Tx(w, r []byte) error {
	c := s.chip
	if c.OnTx != nil {
		c.OnTx(w)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txErr != nil {
		return c.txErr
	}
	if len(w) == 0 {
		return nil
	}
	if c.CS.Read() != gpio.Low {
		c.violate("opcode 0x%02X sent with chip deselected", w[0])
		return nil
	}
	if c.Power.Read() != gpio.High {
		c.violate("opcode 0x%02X sent with chip unpowered", w[0])
		return nil
	}

	in := append([]byte(nil), w...)
	out := make([]byte, len(in))
	c.exec(in, out)
	if r != nil {
		copy(r, out)
	}
	return nil
}

func (c *Chip) violate(format string, a ...any) {
	c.violations = append(c.violations, fmt.Sprintf(format, a...))
}

func (c *Chip) exec(in, out []byte) {
	op := in[0]
	if c.sleeping && op != 0xAB {
		c.violate("opcode 0x%02X while in deep power-down", op)
		return
	}
	if c.busy > 0 && op != 0x05 {
		c.violate("opcode 0x%02X while busy", op)
	}

	cmd := Command{Op: op}
	addressed := op == 0x03 || op == 0x0B || op == 0x02 || op == 0xD8
	if addressed {
		if len(in) < 4 {
			c.violate("opcode 0x%02X without address", op)
			return
		}
		cmd.Addr = uint32(in[1])<<16 | uint32(in[2])<<8 | uint32(in[3])
		cmd.Len = len(in) - 4
	}
	c.commands = append(c.commands, cmd)

	size := uint32(len(c.mem))
	switch op {
	case 0x05: // RDSR
		c.statusRead++
		var sr byte
		if c.busy > 0 || c.stuck {
			sr |= 1
			if c.busy > 0 {
				c.busy--
			}
		}
		if c.wel {
			sr |= 2
		}
		for i := 1; i < len(out); i++ {
			out[i] = sr
		}
	case 0x06: // WREN
		c.wel = true
	case 0x04: // WRDI
		c.wel = false
	case 0x01: // WRSR
		c.wel = false
	case 0x03: // READ
		for i := 4; i < len(in); i++ {
			out[i] = c.mem[(cmd.Addr+uint32(i-4))%size]
		}
	case 0x0B: // FAST_READ, one dummy byte
		for i := 5; i < len(in); i++ {
			out[i] = c.mem[(cmd.Addr+uint32(i-5))%size]
		}
	case 0x02: // PP
		if !c.wel {
			c.violate("page program at 0x%06X without write enable", cmd.Addr)
			return
		}
		base := cmd.Addr &^ (PageSize - 1)
		for i, b := range in[4:] {
			// the chip wraps inside the page
			a := base + (cmd.Addr+uint32(i))%PageSize
			c.mem[a%size] &= b
		}
		c.wel = false
		c.busy = c.busyPolls
	case 0xD8: // SE
		if !c.wel {
			c.violate("sector erase at 0x%06X without write enable", cmd.Addr)
			return
		}
		base := (cmd.Addr &^ (SectorSize - 1)) % size
		for a := base; a < base+SectorSize && a < size; a++ {
			c.mem[a] = 0xFF
		}
		c.wel = false
		c.busy = c.busyPolls
	case 0xC7: // BE
		if !c.wel {
			c.violate("bulk erase without write enable")
			return
		}
		for i := range c.mem {
			c.mem[i] = 0xFF
		}
		c.wel = false
		c.busy = c.busyPolls
	case 0xB9: // DP
		c.sleeping = true
	case 0xAB: // RES
		c.sleeping = false
		for i := 4; i < len(out); i++ {
			out[i] = ElectronicSignature
		}
	case 0x9F: // RDID
		for i := 1; i < len(out) && i <= 3; i++ {
			out[i] = c.id[i-1]
		}
	default:
		c.violate("unknown opcode 0x%02X", op)
	}
}
