package model

import "periph.io/x/conn/v3/physic"

const (
	// MaxSpeed is the fastest clock the HD108 accepts.
	MaxSpeed = 40 * physic.MegaHertz

	// SafetyMargin multiplies the raw bit rate of a frame stream; half of the
	// bus bandwidth stays in reserve.
	SafetyMargin = 2
)

// DataRate returns the bus clock needed to send a strip of n pixels r times
// per second, SafetyMargin included.
func DataRate(n int, r Refresh) physic.Frequency {
	bits := int64(Size(n)) * 8
	return physic.Frequency(bits*int64(r)*SafetyMargin) * physic.Hertz
}

// Validate checks a strip configuration. Checks run in order and the first
// failure is returned.
func Validate(n int, speed physic.Frequency, r Refresh, hasUpdate bool) error {
	if n < MinCount || n > MaxCount {
		return ErrLength
	}
	if speed > MaxSpeed {
		return ErrInvalid
	}
	if !hasUpdate {
		return ErrInvalid
	}
	if !r.Valid() {
		return ErrInvalid
	}
	if DataRate(n, r) > speed {
		return ErrDataRate
	}
	return nil
}
