//go:build !tinygo

package xmem

func defaultInterrupts() InterruptController {
	return &SoftInterrupts{}
}
