// Package ordercode allocates the numeric order codes gateways key payments by.
package ordercode

import (
	"sync"
	"time"
)

// Generator hands out strictly increasing codes seeded from wall-clock
// milliseconds. Uniqueness across processes is enforced by the payments
// unique index; callers retry on a duplicate key after calling Observe.
type Generator struct {
	mu   sync.Mutex
	last int64
}

func New() *Generator {
	return &Generator{}
}

// Next returns max(now in ms, floor+1, previous+1).
func (g *Generator) Next(now time.Time, floor int64) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := now.UnixMilli()
	if floor >= code {
		code = floor + 1
	}
	if g.last >= code {
		code = g.last + 1
	}
	g.last = code
	return code
}

// Observe raises the floor after a collision with a code issued elsewhere.
func (g *Generator) Observe(code int64) {
	g.mu.Lock()
	if code > g.last {
		g.last = code
	}
	g.mu.Unlock()
}
