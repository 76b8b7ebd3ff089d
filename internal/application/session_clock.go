package application

import (
	"sync"
	"time"

	"github.com/vayureader/vayu-cli/internal/ports"
)

// SessionClock owns at most one pending expiry action. Every Schedule call
// cancels whatever was pending before it.
type SessionClock struct {
	clock ports.Clock

	mu    sync.Mutex
	timer ports.Timer
	seq   uint64
}

func NewSessionClock(clock ports.Clock) *SessionClock {
	if clock == nil {
		clock = ports.SystemClock{}
	}
	return &SessionClock{clock: clock}
}

// Schedule arms onExpire for deadline. A nil deadline arms nothing and a
// deadline at or before now runs onExpire before Schedule returns.
func (c *SessionClock) Schedule(deadline *time.Time, onExpire func()) {
	c.mu.Lock()
	c.stopLocked()

	if deadline == nil {
		c.mu.Unlock()
		return
	}

	wait := deadline.Sub(c.clock.Now())
	if wait <= 0 {
		c.mu.Unlock()
		onExpire()
		return
	}

	seq := c.seq
	c.timer = c.clock.AfterFunc(wait, func() {
		c.mu.Lock()
		current := c.seq == seq
		if current {
			c.timer = nil
		}
		c.mu.Unlock()

		// A timer that lost the race with Stop must not fire.
		if current {
			onExpire()
		}
	})
	c.mu.Unlock()
}

func (c *SessionClock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *SessionClock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

func (c *SessionClock) stopLocked() {
	c.seq++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
