// ABOUTME: Per-group cooldown for advisory notices
// ABOUTME: Process-local, best-effort state that resets on restart

package moderation

import (
	"sync"
	"time"
)

// DefaultNoticeCooldown is the window during which at most one advisory
// notice is sent per group.
const DefaultNoticeCooldown = 10 * time.Minute

// Cooldown tracks the last advisory-notice timestamp per group. It is
// process-local mutable state: best-effort, no cross-process consistency,
// acceptable to reset on restart.
type Cooldown struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

// NewCooldown creates a cooldown with the given window. A window of zero
// or less falls back to the default.
func NewCooldown(window time.Duration) *Cooldown {
	if window <= 0 {
		window = DefaultNoticeCooldown
	}
	return &Cooldown{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether a notice may be sent for the group now, and if
// so, records the send. At most one call per group returns true within
// each window.
func (c *Cooldown) Allow(groupID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if last, ok := c.last[groupID]; ok && now.Sub(last) < c.window {
		return false
	}

	c.prune(now)
	c.last[groupID] = now
	return true
}

// prune drops expired entries so the map stays bounded by the number of
// groups active within one window. Must be called with mu held.
func (c *Cooldown) prune(now time.Time) {
	for group, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, group)
		}
	}
}
