package xmem

import (
	"bytes"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Canaries are marker patterns test firmware writes into flash. Finding one
// in data about to be programmed, or in a sector about to be erased, points
// at a region that is being rewritten without an erase in between.
var Canaries = [3][4]byte{
	{0xe7, 0x1d, 0xe5, 0xce},
	{0xca, 0xfe, 0xba, 0xbe},
	{0xde, 0xad, 0xbe, 0xef},
}

type CanaryOp byte

const (
	CanaryWrite CanaryOp = 'W'
	CanaryErase CanaryOp = 'E'
)

// CanaryReport locates one marker hit. Marker is 1-based. Offset is the
// position inside the programmed chunk for writes; Sector is only set for
// erases. Addr is always the absolute flash address of the marker.
type CanaryReport struct {
	Marker int
	Op     CanaryOp
	Page   uint32
	Sector uint32
	Offset uint32
	Addr   uint32
}

func (r CanaryReport) String() string {
	if r.Op == CanaryErase {
		return fmt.Sprintf("CANARY%d E P 0x%08x S 0x%08x", r.Marker, r.Page, r.Sector)
	}
	return fmt.Sprintf("CANARY%d W P 0x%08x O 0x%08x", r.Marker, r.Page, r.Offset)
}

// scanCanaries calls fn for every position of b holding a marker.
func scanCanaries(b []byte, fn func(marker, i int)) {
	for i := 0; i+4 <= len(b); i++ {
		for m, c := range Canaries {
			if bytes.Equal(b[i:i+4], c[:]) {
				fn(m+1, i)
				break
			}
		}
	}
}

func (d *Driver) checkWriteCanary(data []byte, off uint32) {
	page := alignDown(off, d.cfg.geometry.PageSize)
	scanCanaries(data, func(marker, i int) {
		d.reportCanary(CanaryReport{
			Marker: marker,
			Op:     CanaryWrite,
			Page:   page,
			Offset: uint32(i),
			Addr:   off + uint32(i),
		})
	})
}

// checkEraseCanary reads back every page of the sector at off.
func (d *Driver) checkEraseCanary(off uint32) {
	g := d.cfg.geometry
	buf := make([]byte, g.PageSize)
	for p := off; p < off+g.SectorSize; p += g.PageSize {
		if _, err := d.Pread(buf, p); err != nil {
			d.cfg.log.WithError(err).Errorf("error reading page: %08x", p)
			continue
		}
		scanCanaries(buf, func(marker, i int) {
			d.reportCanary(CanaryReport{
				Marker: marker,
				Op:     CanaryErase,
				Page:   p,
				Sector: off,
				Addr:   p + uint32(i),
			})
		})
	}
}

func (d *Driver) reportCanary(r CanaryReport) {
	d.cfg.log.WithFields(logrus.Fields{
		"marker": r.Marker,
		"op":     string(rune(r.Op)),
		"addr":   fmt.Sprintf("0x%08x", r.Addr),
	}).Warn(r.String())
	if d.cfg.canaryHook != nil {
		d.cfg.canaryHook(r)
	}
}
