package scheduler

import (
	"sync"
	"time"
)

// RateGate grants at most one acquisition per spacing window, however often
// it is asked.
type RateGate struct {
	mu          sync.Mutex
	lastGranted time.Time
	granted     bool
}

// TryAcquire grants when nothing was granted since the last Reset or when
// now is at least minSpacing after the last grant. A denial has no side effects.
func (g *RateGate) TryAcquire(now time.Time, minSpacing time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.granted && now.Sub(g.lastGranted) < minSpacing {
		return false
	}
	g.lastGranted = now
	g.granted = true
	return true
}

// Reset forgets the last grant so the next TryAcquire succeeds.
func (g *RateGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastGranted = time.Time{}
	g.granted = false
}
