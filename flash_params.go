package xmem

import (
	"time"

	"golang.org/x/exp/constraints"
)

const (
	PageSize   = 256      // [M25P80|Page Program]
	SectorSize = 64 << 10 // [M25P80|Sector Erase]

	addrSpace = 1 << 24 // 24-bit address field
)

// Geometry describes the program and erase granules of the chip. SectorSize
// must be a multiple of PageSize. A zero Capacity means the whole 24-bit
// address space.
type Geometry struct {
	PageSize   uint32
	SectorSize uint32
	Capacity   uint32
}

// DefaultGeometry matches the M25P80.
var DefaultGeometry = Geometry{
	PageSize:   PageSize,
	SectorSize: SectorSize,
	Capacity:   1 << 20,
}

func (g Geometry) valid() bool {
	return g.PageSize > 0 && g.SectorSize > 0 && g.SectorSize%g.PageSize == 0 &&
		g.Capacity <= addrSpace
}

func alignDown[T constraints.Unsigned](v, unit T) T {
	return v - v%unit
}

// nextBoundary returns the first multiple of unit above v.
func nextBoundary[T constraints.Unsigned](v, unit T) T {
	return alignDown(v, unit) + unit
}

func aligned[T constraints.Unsigned](v, unit T) bool {
	return v%unit == 0
}

type flashParams struct {
	name     string
	capacity uint32

	tRES1 time.Duration
	tDP   time.Duration
}

var (
	flashIDSTM25P80       = [3]byte{0x20, 0x20, 0x14}
	flashIDMicronN25Q32   = [3]byte{0x20, 0xBA, 0x16}
	flashIDWinbondW25Q128 = [3]byte{0xEF, 0x70, 0x18}
)

var knownFlash = map[[3]byte]flashParams{
	flashIDSTM25P80: {
		name:     "ST M25P80 8Mb",
		capacity: 1 << 20,

		// [M25P80|AC Characteristics]
		// tRES1: /S High to Standby Power mode without Read Electronic Signature
		tRES1: 3 * time.Microsecond,
		// tDP: /S High to Deep Power-down mode
		tDP: 3 * time.Microsecond,
	},

	flashIDMicronN25Q32: {
		name:     "Micron N25Q 32Mb",
		capacity: 4 << 20,
	},

	flashIDWinbondW25Q128: {
		name:     "Winbond W25Q 128Mb",
		capacity: 16 << 20,

		// [W25Q128|9.6 AC Electrical Characteristics]:
		// tRES1: /CS High to Standby Mode without ID Read
		tRES1: 3 * time.Microsecond,
		// tDP: /CS High to Power-down Mode
		tDP: 3 * time.Microsecond,
	},
}

func (d *Driver) paramOrMax(get func(*flashParams) time.Duration) time.Duration {
	// get parameter if the chip was identified
	if d.part != nil {
		return get(d.part)
	}

	// fall back to maximum duration from all known flash parameters
	var tmax time.Duration
	for _, param := range knownFlash {
		tmax = max(tmax, get(&param))
	}
	return tmax
}

func (d *Driver) tRES1() time.Duration {
	return d.paramOrMax(func(p *flashParams) time.Duration { return p.tRES1 })
}
func (d *Driver) tDP() time.Duration {
	return d.paramOrMax(func(p *flashParams) time.Duration { return p.tDP })
}

// capacity is the addressable size, preferring the identified part over the
// configured geometry.
func (d *Driver) capacity() uint32 {
	if d.part != nil && d.part.capacity > 0 {
		return d.part.capacity
	}
	if d.cfg.geometry.Capacity > 0 {
		return d.cfg.geometry.Capacity
	}
	return addrSpace
}

// Size returns the addressable size in bytes. It is the identified part's
// capacity after ReadID, the configured geometry before.
func (d *Driver) Size() uint32 { return d.capacity() }
