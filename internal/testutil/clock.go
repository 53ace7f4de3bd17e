package testutil

import (
	"strconv"
	"sync"
	"time"
)

// StubClock is a refile.Clock frozen at one instant, so UploadedAt and
// createdAt values are predictable in assertions.
type StubClock struct {
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock is frozen at 2024-01-15 10:30:00 UTC (Unix ms 1705314600000).
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC))
}

func (c *StubClock) Now() time.Time { return c.now }

// StubIDGenerator is a refile.IDGenerator returning "id-1", "id-2", ...
// Safe for concurrent use.
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return "id-" + strconv.Itoa(g.n)
}
