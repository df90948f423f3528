package realtime

import (
	"math"
	"time"
)

// ReconnectPolicy computes the delay before reconnect attempt n. Attempt 0 is
// the first retry after the initial failure. Implementations are stateless
// and safe for concurrent use.
type ReconnectPolicy interface {
	Delay(attempt int) time.Duration
}

// FixedDelay always returns the same delay regardless of attempt number.
// Room channels use it: rooms open and close as users navigate, so immediate
// responsiveness matters more than backoff discipline.
type FixedDelay struct {
	Interval time.Duration
}

func NewFixedDelay(interval time.Duration) *FixedDelay {
	return &FixedDelay{Interval: interval}
}

func (f *FixedDelay) Delay(_ int) time.Duration {
	return f.Interval
}

// ExponentialBackoff doubles the delay each attempt, capped at Max.
// Delay = min(Base * 2^attempt, Max). The user channel resets its attempt
// counter on every successful open.
type ExponentialBackoff struct {
	Base time.Duration
	Max  time.Duration
}

func NewExponentialBackoff(base, maxDelay time.Duration) *ExponentialBackoff {
	return &ExponentialBackoff{Base: base, Max: maxDelay}
}

func (e *ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := time.Duration(float64(e.Base) * math.Pow(2, float64(attempt)))
	if e.Max > 0 && (d > e.Max || d <= 0) {
		return e.Max
	}
	return d
}
