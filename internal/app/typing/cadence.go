package typing

import "time"

// Cadence holds the delay after each class of revealed rune.
// Space < Default < Newline < Pause < Stop.
type Cadence struct {
	Space   time.Duration
	Default time.Duration
	Newline time.Duration
	Pause   time.Duration // , ;
	Stop    time.Duration // . ! ?
}

func DefaultCadence() Cadence {
	return Cadence{
		Space:   8 * time.Millisecond,
		Default: 18 * time.Millisecond,
		Newline: 45 * time.Millisecond,
		Pause:   90 * time.Millisecond,
		Stop:    180 * time.Millisecond,
	}
}

// Scaled multiplies every delay by speed. A speed of 0 reveals instantly.
func (c Cadence) Scaled(speed float64) Cadence {
	if speed < 0 {
		speed = 0
	}
	scale := func(d time.Duration) time.Duration {
		return time.Duration(float64(d) * speed)
	}
	return Cadence{
		Space:   scale(c.Space),
		Default: scale(c.Default),
		Newline: scale(c.Newline),
		Pause:   scale(c.Pause),
		Stop:    scale(c.Stop),
	}
}

// Delay is the pause after r is revealed.
func (c Cadence) Delay(r rune) time.Duration {
	switch r {
	case ' ', '\t':
		return c.Space
	case '\n':
		return c.Newline
	case ',', ';':
		return c.Pause
	case '.', '!', '?':
		return c.Stop
	default:
		return c.Default
	}
}
