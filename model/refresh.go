package model

import (
	"fmt"
	"time"
)

// Refresh is the rate, in Hz, at which the whole strip is retransmitted.
type Refresh uint8

const (
	Refresh1Hz   Refresh = 1
	Refresh2Hz   Refresh = 2
	Refresh5Hz   Refresh = 5
	Refresh10Hz  Refresh = 10
	Refresh20Hz  Refresh = 20
	Refresh24Hz  Refresh = 24
	Refresh25Hz  Refresh = 25
	Refresh30Hz  Refresh = 30
	Refresh50Hz  Refresh = 50
	Refresh60Hz  Refresh = 60
	Refresh100Hz Refresh = 100
	Refresh120Hz Refresh = 120
)

var rates = []Refresh{
	Refresh1Hz, Refresh2Hz, Refresh5Hz, Refresh10Hz, Refresh20Hz, Refresh24Hz,
	Refresh25Hz, Refresh30Hz, Refresh50Hz, Refresh60Hz, Refresh100Hz, Refresh120Hz,
}

// Rates returns the supported refresh rates in ascending order.
func Rates() []Refresh {
	return append([]Refresh(nil), rates...)
}

// ParseRefresh maps a rate in Hz to a supported Refresh.
func ParseRefresh(hz int) (Refresh, error) {
	for _, r := range rates {
		if int(r) == hz {
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported refresh rate %dHz", ErrInvalid, hz)
}

// Valid reports whether r is one of the supported rates.
func (r Refresh) Valid() bool {
	for _, v := range rates {
		if v == r {
			return true
		}
	}
	return false
}

// Period is the time between two transmissions, truncated to the
// nanosecond.
func (r Refresh) Period() time.Duration {
	if r == 0 {
		return 0
	}
	return time.Second / time.Duration(r)
}

func (r Refresh) String() string {
	return fmt.Sprintf("%dHz", uint8(r))
}
