package xmem

import "github.com/pkg/errors"

var (
	// ErrEraseSize is returned by Erase when the size is not a whole number
	// of sectors.
	ErrEraseSize = errors.New("erase size is not a multiple of the sector size")

	// ErrEraseOffset is returned by Erase when the address is not sector
	// aligned.
	ErrEraseOffset = errors.New("erase address is not sector aligned")

	ErrOutOfRange     = errors.New("range exceeds flash address space")
	ErrUnresponsive   = errors.New("flash did not clear its busy flag")
	ErrNotInitialized = errors.New("flash driver is not initialized")
)
