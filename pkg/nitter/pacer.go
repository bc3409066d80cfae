package nitter

import (
	"context"
	"math/rand/v2"
	"time"
)

// Pacer draws uniformly random courtesy delays between Min and Max.
// A nil Pacer never waits.
type Pacer struct {
	Min time.Duration
	Max time.Duration
}

// NewPacer returns a pacer for the given range. Inverted bounds are swapped.
func NewPacer(min, max time.Duration) *Pacer {
	if max < min {
		min, max = max, min
	}
	return &Pacer{Min: min, Max: max}
}

// Next returns the next delay.
func (p *Pacer) Next() time.Duration {
	if p == nil || p.Max <= 0 {
		return 0
	}
	if p.Max == p.Min {
		return p.Min
	}
	return p.Min + time.Duration(rand.Int64N(int64(p.Max-p.Min)+1))
}

// Wait sleeps for the next delay or until ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	d := p.Next()
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
