package xmem

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// StatusRegister represents the status register of the flash chip. The
// driver only looks at WIP; the other names are for display.
//
//	Bits| [M25P80|Status Register Format]
//	----+-----------------------------------
//	7   | SRWD: Status Register Write Disable
//	6:5 | Reserved
//	4:2 | BP2-0: Block Protect bit 2-0
//	1   | WEL: Write Enable Latch
//	0   | WIP: Write In Progress
type StatusRegister byte

func (sr StatusRegister) WriteDisable() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister) BlockProtect() byte { return byte(sr>>2) & 0x7 }
func (sr StatusRegister) WriteEnabled() bool { return sr&(1<<1) != 0 }
func (sr StatusRegister) Busy() bool         { return sr&(1<<0) != 0 }

func (sr StatusRegister) String() string {
	b := fmt.Sprintf("%08b", byte(sr))
	s := []string{}
	if sr.WriteDisable() {
		s = append(s, "SRWD")
	}
	if bp := sr.BlockProtect(); bp != 0 {
		s = append(s, fmt.Sprintf("BP=%d", bp))
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "WIP")
	}
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}

func (d *Driver) ReadStatus() (StatusRegister, error) {
	buf := []byte{flashCmdReadStatus, 0}
	if err := d.tx(buf, buf); err != nil {
		return 0, errors.Wrap(err, "read status register")
	}
	return StatusRegister(buf[1]), nil
}

// WaitReady polls the status register until the write in progress bit
// clears, servicing the watchdog once per poll. Every poll is a transaction
// of its own so interrupts stay serviceable while the chip is busy.
//
// Without WithBusyTimeout it never gives up.
func (d *Driver) WaitReady() (StatusRegister, error) {
	var deadline time.Time
	if d.cfg.busyTimeout > 0 {
		deadline = time.Now().Add(d.cfg.busyTimeout)
	}

	for {
		sr, err := d.ReadStatus()
		if err != nil {
			return sr, err
		}
		if err := d.cfg.watchdog.KeepAlive(); err != nil {
			d.cfg.log.WithError(err).Warn("watchdog keepalive failed")
		}
		if !sr.Busy() {
			return sr, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return sr, errors.Wrapf(ErrUnresponsive, "status %s after %v", sr, d.cfg.busyTimeout)
		}
		if d.cfg.pollInterval > 0 {
			time.Sleep(d.cfg.pollInterval)
		}
	}
}
