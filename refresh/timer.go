// Package refresh provides the periodic trigger that retransmits a strip.
package refresh

import (
	"errors"
	"time"
)

var (
	ErrArmed   = errors.New("refresh: timer already armed")
	ErrStopped = errors.New("refresh: timer stopped")
	ErrPeriod  = errors.New("refresh: period must be positive")
)

// Timer calls a function at a fixed period until stopped.
//
// Start registers fn and arms the timer. A Timer can be armed once; after Stop
// it stays stopped. Stop must wait for a running fn to return and must not be
// called from fn itself.
type Timer interface {
	Start(period time.Duration, fn func()) error
	Stop() error
}
