package model

import "errors"

// Error taxonomy of the driver. Resource errors returned by the bus or the
// timer facility are wrapped so errors.Is matches both the taxonomy value and
// the underlying cause.
var (
	ErrUnknown  = errors.New("hd108: unknown error")
	ErrInvalid  = errors.New("hd108: invalid configuration")
	ErrBusInUse = errors.New("hd108: spi bus already in use")
	ErrNoDMA    = errors.New("hd108: no dma resource available")
	ErrNoMemory = errors.New("hd108: out of memory")
	ErrNoCS     = errors.New("hd108: no free chip select slot")
	ErrLength   = errors.New("hd108: strip length out of range")
	ErrIndex    = errors.New("hd108: pixel index out of range")
	ErrDataRate = errors.New("hd108: spi clock too slow for refresh rate")
	ErrHalted   = errors.New("hd108: halted")
)
