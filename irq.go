package xmem

import "sync/atomic"

// IRQLevel is an interrupt mask level as captured by an InterruptController.
type IRQLevel uintptr

// MaxIRQLevel is the level that masks every interrupt.
const MaxIRQLevel IRQLevel = 7

// InterruptController raises and restores the processor interrupt mask.
// Disable raises the mask to its highest level and returns the previous
// level; Restore puts back exactly the level it is given.
type InterruptController interface {
	Disable() IRQLevel
	Restore(IRQLevel)
}

// SoftInterrupts keeps the mask level in memory. It is the default on hosts
// where the SPI bridge is outside of any interrupt handler's reach.
type SoftInterrupts struct {
	level atomic.Uintptr
}

func (s *SoftInterrupts) Disable() IRQLevel {
	return IRQLevel(s.level.Swap(uintptr(MaxIRQLevel)))
}

func (s *SoftInterrupts) Restore(l IRQLevel) {
	s.level.Store(uintptr(l))
}

// Level reports the current mask level.
func (s *SoftInterrupts) Level() IRQLevel {
	return IRQLevel(s.level.Load())
}
