package pacing

import (
	"math"
	"time"
)

// Backoff computes capped exponential delays with symmetric jitter
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64 // fraction in [0,1]
}

// Delay returns the wait before retry number attempt (0-based).
// r is a uniform sample in [0,1).
func (b Backoff) Delay(attempt int, r float64) time.Duration {
	if b.Initial <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	d := float64(b.Initial) * math.Pow(2, float64(attempt))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}

	if b.Jitter > 0 {
		d *= 1 + b.Jitter*(2*r-1)
	}
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
