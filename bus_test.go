package xmem

import (
	"testing"

	"github.com/gentam/xmem/internal/flashsim"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
)

func newMaskedDriver(t *testing.T, level IRQLevel) (*Driver, *flashsim.Chip, *SoftInterrupts) {
	t.Helper()
	irq := &SoftInterrupts{}
	d, chip := newTestDriver(t, WithInterrupts(irq))
	irq.Restore(level)
	return d, chip, irq
}

func TestBusMasksDuringTransfer(t *testing.T) {
	d, chip, irq := newMaskedDriver(t, 2)
	transfers := 0
	chip.OnTx = func([]byte) {
		transfers++
		if irq.Level() != MaxIRQLevel {
			t.Errorf("transfer at mask level %d", irq.Level())
		}
		if chip.CS.Read() != gpio.Low {
			t.Error("transfer with chip deselected")
		}
	}

	if _, err := d.Pwrite([]byte{1, 2, 3}, 0x10); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Pread(make([]byte, 3), 0x10); err != nil {
		t.Fatal(err)
	}
	if transfers == 0 {
		t.Fatal("no transfers observed")
	}
	if irq.Level() != 2 {
		t.Errorf("mask level %d after transfers, want 2", irq.Level())
	}
}

func TestBusRestoresOnError(t *testing.T) {
	d, chip, irq := newMaskedDriver(t, 3)
	chip.SetTxError(errors.New("bus fault"))
	if _, err := d.ReadStatus(); err == nil {
		t.Fatal("expected error")
	}
	if irq.Level() != 3 {
		t.Errorf("mask level %d after failed transfer, want 3", irq.Level())
	}
	if chip.CS.Read() != gpio.High {
		t.Error("chip left selected")
	}
}

func TestBusRestoresOnPanic(t *testing.T) {
	d, chip, irq := newMaskedDriver(t, 1)
	chip.OnTx = func([]byte) { panic("interrupted") }

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic")
			}
		}()
		d.ReadStatus()
	}()

	if irq.Level() != 1 {
		t.Errorf("mask level %d after panic, want 1", irq.Level())
	}
	if chip.CS.Read() != gpio.High {
		t.Error("chip left selected")
	}
}

func TestBusNested(t *testing.T) {
	d, chip, irq := newMaskedDriver(t, 4)

	outer, err := d.enterCritical()
	if err != nil {
		t.Fatal(err)
	}
	if irq.Level() != MaxIRQLevel {
		t.Fatalf("mask level %d inside critical section", irq.Level())
	}
	if err := d.tx([]byte{flashCmdWriteDisable}, nil); err != nil {
		t.Fatal(err)
	}
	if irq.Level() != MaxIRQLevel {
		t.Errorf("inner release lowered mask to %d", irq.Level())
	}
	if err := outer.release(); err != nil {
		t.Fatal(err)
	}
	if irq.Level() != 4 {
		t.Errorf("mask level %d after outer release, want 4", irq.Level())
	}
	// releasing twice must not clobber the level
	irq.Restore(5)
	if err := outer.release(); err != nil {
		t.Fatal(err)
	}
	if irq.Level() != 5 {
		t.Errorf("second release changed mask level to %d", irq.Level())
	}
	checkViolations(t, chip)
}

type failingPin struct {
	gpio.PinOut
	err error
}

func (p *failingPin) Out(gpio.Level) error { return p.err }

func TestBusSelectFailure(t *testing.T) {
	chip := flashsim.New(1 << 20)
	irq := &SoftInterrupts{}
	d := New(chip, &GPIOPort{CS: chip.CS, Power: chip.Power}, WithInterrupts(irq))
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	irq.Restore(2)

	d.pins = &GPIOPort{CS: &failingPin{PinOut: chip.CS, err: errors.New("pin stuck")}}
	if _, err := d.ReadStatus(); err == nil {
		t.Fatal("expected chip select error")
	}
	if irq.Level() != 2 {
		t.Errorf("mask level %d after select failure, want 2", irq.Level())
	}
}
