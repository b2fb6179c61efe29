package xmem

import "github.com/pkg/errors"

// critical is one bus transaction: interrupts masked and the chip selected.
type critical struct {
	d        *Driver
	prev     IRQLevel
	released bool
}

// enterCritical masks interrupts, then selects the chip. The returned guard
// must be released on every path out of the transaction.
func (d *Driver) enterCritical() (critical, error) {
	prev := d.cfg.irq.Disable()
	if err := d.pins.Select(); err != nil {
		d.cfg.irq.Restore(prev)
		return critical{}, errors.Wrap(err, "assert chip select")
	}
	return critical{d: d, prev: prev}, nil
}

// release deselects the chip, then puts back the mask level captured on
// entry.
func (c *critical) release() error {
	if c.released {
		return nil
	}
	c.released = true
	err := c.d.pins.Deselect()
	c.d.cfg.irq.Restore(c.prev)
	return errors.Wrap(err, "deassert chip select")
}

// tx wraps one SPI transfer in a critical section.
func (d *Driver) tx(w, r []byte) (err error) {
	if d.conn == nil {
		return ErrNotInitialized
	}
	cs, err := d.enterCritical()
	if err != nil {
		return err
	}
	defer func() {
		if csErr := cs.release(); csErr != nil && err == nil {
			err = csErr
		}
	}()
	return d.conn.Tx(w, r)
}
