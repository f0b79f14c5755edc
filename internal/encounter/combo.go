package encounter

import (
	"math"
	"sort"
	"time"
)

// Combo counts kills made in quick succession.
type Combo struct {
	timeout  time.Duration
	steps    []ComboStep
	count    int
	best     int
	lastKill time.Time
}

// NewCombo creates an idle combo counter. Steps may be in any order.
func NewCombo(timeout time.Duration, steps []ComboStep) *Combo {
	s := append([]ComboStep(nil), steps...)
	sort.Slice(s, func(i, j int) bool { return s[i].MinCount > s[j].MinCount })
	return &Combo{timeout: timeout, steps: s}
}

// RegisterKill extends the combo when the previous kill was less than the
// timeout ago and restarts it at 1 otherwise. It returns the new count.
func (c *Combo) RegisterKill(now time.Time) int {
	if c.count > 0 && now.Sub(c.lastKill) < c.timeout {
		c.count++
	} else {
		c.count = 1
	}
	c.lastKill = now
	if c.count > c.best {
		c.best = c.count
	}
	return c.count
}

// Count is the current combo, 0 once the timeout has elapsed without a kill.
func (c *Combo) Count(now time.Time) int {
	if c.count == 0 || now.Sub(c.lastKill) >= c.timeout {
		return 0
	}
	return c.count
}

// Best is the longest combo reached.
func (c *Combo) Best() int { return c.best }

// Reset returns the counter to idle.
func (c *Combo) Reset() { c.count = 0 }

// Multiplier returns the XP multiplier for a combo count.
func (c *Combo) Multiplier(count int) float64 {
	for _, s := range c.steps {
		if count >= s.MinCount {
			return s.Multiplier
		}
	}
	return 1
}

// KillXP scales base by the multiplier for count, rounded down.
func (c *Combo) KillXP(base, count int) int {
	return int(math.Floor(float64(base) * c.Multiplier(count)))
}
