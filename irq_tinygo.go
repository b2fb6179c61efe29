//go:build tinygo

package xmem

import "runtime/interrupt"

type cpuInterrupts struct{}

func (cpuInterrupts) Disable() IRQLevel {
	return IRQLevel(interrupt.Disable())
}

func (cpuInterrupts) Restore(l IRQLevel) {
	interrupt.Restore(interrupt.State(l))
}

func defaultInterrupts() InterruptController {
	return cpuInterrupts{}
}
