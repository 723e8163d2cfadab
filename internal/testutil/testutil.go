// Package testutil provides deterministic stand-ins for the engine's
// injection points: wall clock and run-id generation.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// FixedClock returns the same instant on every call, so recorded timestamps
// and content-derived version ids are reproducible across test runs.
type FixedClock struct {
	Instant time.Time
}

// Now implements the clock injection point.
func (c FixedClock) Now() time.Time {
	return c.Instant
}

// SequentialIDs generates "run-0001", "run-0002", ... with a configurable
// prefix. Unlike the production UUIDv7 generator, ids are stable across
// runs, which keeps store fixtures and golden output deterministic.
//
// Thread-safety: all methods are safe for concurrent use.
type SequentialIDs struct {
	Prefix string

	mu sync.Mutex
	n  int
}

// Next returns the next id in the sequence.
func (g *SequentialIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	prefix := g.Prefix
	if prefix == "" {
		prefix = "run"
	}
	return fmt.Sprintf("%s-%04d", prefix, g.n)
}

// Reset restarts the sequence. After Reset, Next returns "<prefix>-0001".
func (g *SequentialIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
