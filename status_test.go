package xmem

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

type countingWatchdog struct {
	kicks int
	err   error
}

func (w *countingWatchdog) KeepAlive() error {
	w.kicks++
	return w.err
}

func TestStatusRegisterString(t *testing.T) {
	tests := []struct {
		sr   StatusRegister
		want string
	}{
		{0x00, "00000000"},
		{0x03, "00000011 WEL,WIP"},
		{0x9C, "10011100 SRWD,BP=7"},
	}
	for _, tt := range tests {
		if got := tt.sr.String(); got != tt.want {
			t.Errorf("StatusRegister(%#02x) = %q, want %q", byte(tt.sr), got, tt.want)
		}
	}
}

func TestWaitReadyKicksWatchdog(t *testing.T) {
	wd := &countingWatchdog{}
	d, chip := newTestDriver(t, WithWatchdog(wd))
	chip.SetBusyPolls(5)

	if _, err := d.Pwrite([]byte{1}, 0); err != nil {
		t.Fatal(err)
	}
	chip.ClearLog()
	wd.kicks = 0

	sr, err := d.WaitReady()
	if err != nil {
		t.Fatal(err)
	}
	if sr.Busy() {
		t.Errorf("WaitReady returned busy status %s", sr)
	}
	if chip.StatusReads() != 6 {
		t.Errorf("%d status reads, want 6", chip.StatusReads())
	}
	if wd.kicks != chip.StatusReads() {
		t.Errorf("%d watchdog kicks for %d polls", wd.kicks, chip.StatusReads())
	}
}

func TestWaitReadyWatchdogErrorDoesNotAbort(t *testing.T) {
	wd := &countingWatchdog{err: errors.New("no watchdog")}
	d, chip := newTestDriver(t, WithWatchdog(wd))
	chip.SetBusyPolls(3)
	if _, err := d.Pwrite([]byte{1}, 0); err != nil {
		t.Fatal(err)
	}
	if _, err := d.WaitReady(); err != nil {
		t.Fatalf("WaitReady = %v", err)
	}
}

func TestWaitReadyTimeout(t *testing.T) {
	d, chip := newTestDriver(t, WithBusyTimeout(5*time.Millisecond), WithPollInterval(time.Millisecond))
	chip.SetStuck(true)

	start := time.Now()
	_, err := d.WaitReady()
	if !errors.Is(err, ErrUnresponsive) {
		t.Fatalf("WaitReady error = %v, want ErrUnresponsive", err)
	}
	if time.Since(start) < 5*time.Millisecond {
		t.Error("gave up before the timeout")
	}

	// every entry point surfaces it
	if _, err := d.Erase(SectorSize, 0); !errors.Is(err, ErrUnresponsive) {
		t.Errorf("Erase error = %v", err)
	}
}
