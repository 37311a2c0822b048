package bridge

import (
	"time"

	"github.com/sweeney/homekit-gate/internal/gpio"
)

// channel debounces one boolean input.
type channel struct {
	// Current stable (debounced) value
	stable bool
	// Pending value during debounce
	pending bool
	// Time when pending value was first observed
	pendingSince time.Time
	hasPending   bool
	baselined    bool
}

// update returns the stable value after observing v at now. The first
// sample becomes the baseline immediately.
func (c *channel) update(v bool, now time.Time, hold time.Duration) bool {
	if !c.baselined {
		c.stable = v
		c.baselined = true
		return c.stable
	}

	if v == c.stable {
		// No change from stable state, clear any pending
		c.hasPending = false
		return c.stable
	}

	if !c.hasPending || c.pending != v {
		c.pending = v
		c.pendingSince = now
		c.hasPending = true
	}

	if now.Sub(c.pendingSince) >= hold {
		c.stable = v
		c.hasPending = false
	}
	return c.stable
}

// debouncer filters the limit switch and lock sensor inputs. The
// obstruction beam and the fault line pass through unfiltered so the motor
// stops on the first sample that reports them.
type debouncer struct {
	hold   time.Duration
	open   channel
	closed channel
	locked channel
}

func (d *debouncer) filter(s gpio.SensorSnapshot, now time.Time) gpio.SensorSnapshot {
	if !s.Valid {
		return s
	}
	s.FullyOpen = d.open.update(s.FullyOpen, now, d.hold)
	s.FullyClosed = d.closed.update(s.FullyClosed, now, d.hold)
	if s.LockKnown {
		s.Locked = d.locked.update(s.Locked, now, d.hold)
	}
	return s
}
