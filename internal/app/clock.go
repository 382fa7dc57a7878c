package app

import "time"

// sessionClock tracks wall-clock recording time minus time spent paused.
// It lives in the command layer and never touches the capture state cell.
type sessionClock struct {
	start       time.Time
	pausedAt    time.Time
	paused      bool
	totalPaused time.Duration
}

func newSessionClock(start time.Time) *sessionClock {
	return &sessionClock{start: start}
}

func (c *sessionClock) pause(now time.Time) {
	if c.paused {
		return
	}
	c.paused = true
	c.pausedAt = now
}

func (c *sessionClock) resume(now time.Time) {
	if !c.paused {
		return
	}
	c.totalPaused += now.Sub(c.pausedAt)
	c.paused = false
}

// elapsed is frozen at the moment of the pause while paused.
func (c *sessionClock) elapsed(now time.Time) time.Duration {
	if c.paused {
		now = c.pausedAt
	}
	d := now.Sub(c.start) - c.totalPaused
	if d < 0 {
		return 0
	}
	return d
}
