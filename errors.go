package hd108

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/coreman2200/hd108/model"
	"github.com/coreman2200/hd108/refresh"
)

var (
	ErrUnknown  = model.ErrUnknown
	ErrInvalid  = model.ErrInvalid
	ErrBusInUse = model.ErrBusInUse
	ErrNoDMA    = model.ErrNoDMA
	ErrNoMemory = model.ErrNoMemory
	ErrNoCS     = model.ErrNoCS
	ErrLength   = model.ErrLength
	ErrIndex    = model.ErrIndex
	ErrDataRate = model.ErrDataRate
	ErrHalted   = model.ErrHalted
)

// stage identifies which resource acquisition step of initialization failed.
type stage int

const (
	stageBus stage = iota
	stageDevice
	stageTimer
)

type mapping struct {
	cause error
	to    error
}

var translations = map[stage][]mapping{
	stageBus: {
		{syscall.EINVAL, ErrInvalid},
		{syscall.EBUSY, ErrBusInUse},
		{syscall.ENOENT, ErrNoDMA},
		{syscall.ENODEV, ErrNoDMA},
		{syscall.ENOMEM, ErrNoMemory},
	},
	stageDevice: {
		{syscall.EINVAL, ErrInvalid},
		{syscall.ENOENT, ErrNoCS},
		{syscall.ENODEV, ErrNoCS},
		{syscall.ENOMEM, ErrNoMemory},
	},
	stageTimer: {
		{refresh.ErrPeriod, ErrInvalid},
		{refresh.ErrArmed, ErrBusInUse},
		{refresh.ErrStopped, ErrBusInUse},
		{syscall.EINVAL, ErrInvalid},
		{syscall.EBUSY, ErrBusInUse},
		{syscall.ENOMEM, ErrNoMemory},
	},
}

// translate maps an error of the bus or timer facility to the driver's
// taxonomy. Unrecognized errors become ErrUnknown. The cause stays reachable
// through errors.Is and errors.As.
func translate(s stage, err error) error {
	if err == nil {
		return nil
	}
	for _, m := range translations[s] {
		if errors.Is(err, m.cause) {
			return fmt.Errorf("%w: %w", m.to, err)
		}
	}
	return fmt.Errorf("%w: %w", ErrUnknown, err)
}
