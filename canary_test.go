package xmem

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestScanCanaries(t *testing.T) {
	b := make([]byte, 16)
	copy(b[0:], Canaries[1][:])
	copy(b[12:], Canaries[2][:]) // last possible position

	type hit struct{ marker, i int }
	var hits []hit
	scanCanaries(b, func(marker, i int) { hits = append(hits, hit{marker, i}) })

	want := []hit{{2, 0}, {3, 12}}
	if len(hits) != len(want) {
		t.Fatalf("hits %v, want %v", hits, want)
	}
	for i := range want {
		if hits[i] != want[i] {
			t.Errorf("hits %v, want %v", hits, want)
		}
	}

	scanCanaries(b[:3], func(int, int) { t.Error("hit in a 3 byte buffer") })
}

func TestWriteCanary(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var reports []CanaryReport
	d, chip := newTestDriver(t,
		WithCanary(true),
		WithLogger(logger),
		WithCanaryHook(func(r CanaryReport) { reports = append(reports, r) }))

	data := make([]byte, 64)
	copy(data[20:], Canaries[0][:])
	if _, err := d.Pwrite(data, 0x10110); err != nil {
		t.Fatal(err)
	}

	if len(reports) != 1 {
		t.Fatalf("reports %+v, want one", reports)
	}
	want := CanaryReport{Marker: 1, Op: CanaryWrite, Page: 0x10100, Offset: 20, Addr: 0x10124}
	if reports[0] != want {
		t.Errorf("report %+v, want %+v", reports[0], want)
	}

	entry := hook.LastEntry()
	if entry == nil || entry.Level != logrus.WarnLevel {
		t.Fatalf("no warning logged: %+v", entry)
	}
	if entry.Message != "CANARY1 W P 0x00010100 O 0x00000014" {
		t.Errorf("log line %q", entry.Message)
	}
	checkViolations(t, chip)
}

func TestEraseCanary(t *testing.T) {
	logger, hook := test.NewNullLogger()
	var reports []CanaryReport
	d, _ := newTestDriver(t,
		WithCanary(true),
		WithLogger(logger),
		WithCanaryHook(func(r CanaryReport) { reports = append(reports, r) }))

	data := make([]byte, 8)
	copy(data[2:], Canaries[0][:])
	if _, err := d.Pwrite(data, 0x20300); err != nil {
		t.Fatal(err)
	}
	reports = nil
	hook.Reset()

	if _, err := d.Erase(SectorSize, 0x20000); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("reports %+v, want one", reports)
	}
	want := CanaryReport{Marker: 1, Op: CanaryErase, Page: 0x20300, Sector: 0x20000, Addr: 0x20302}
	if reports[0] != want {
		t.Errorf("report %+v, want %+v", reports[0], want)
	}
	found := false
	for _, e := range hook.AllEntries() {
		if strings.HasPrefix(e.Message, "CANARY1 E P 0x00020300 S 0x00020000") {
			found = true
		}
	}
	if !found {
		t.Error("erase canary not logged")
	}

	// a second erase finds a clean sector
	reports = nil
	if _, err := d.Erase(SectorSize, 0x20000); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 0 {
		t.Errorf("clean sector reported %+v", reports)
	}
}

func TestCanaryDisabled(t *testing.T) {
	var reports []CanaryReport
	d, chip := newTestDriver(t, WithCanaryHook(func(r CanaryReport) { reports = append(reports, r) }))

	if _, err := d.Pwrite(Canaries[2][:], 0); err != nil {
		t.Fatal(err)
	}
	chip.ClearLog()
	if _, err := d.Erase(SectorSize, 0); err != nil {
		t.Fatal(err)
	}
	if len(reports) != 0 {
		t.Errorf("disabled canary reported %+v", reports)
	}
	for _, op := range chip.Ops() {
		if op == flashCmdRead {
			t.Error("erase read the sector back with canary disabled")
		}
	}
}
