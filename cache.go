package sistema

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// metaSentinel and execIDSentinel are the comparable, unexported key
// types behind the Meta and ExecutionID well-known edges. A dedicated
// type (rather than a string) keeps them from ever colliding with a
// caller's own Parameter name.
type metaSentinel struct{}
type execIDSentinel struct{}

// Meta is a well-known edge key: a Node may DependsOn(sistema.Meta) to
// receive the run's *TimingsSink as an argument.
var Meta any = metaSentinel{}

// ExecutionID is a well-known edge key: a Node may
// DependsOn(sistema.ExecutionID) to receive the run's execution id
// (string) as an argument.
var ExecutionID any = execIDSentinel{}

// TimingsSink collects the Timing records produced over the course of
// one Run, in settlement order. It is the live value handed to any
// provider that depends on Meta — unlike the other edge kinds, its
// value keeps changing for as long as the run is in flight.
type TimingsSink struct {
	mu      sync.Mutex
	records []Timing
}

func newTimingsSink() *TimingsSink {
	return &TimingsSink{}
}

func (s *TimingsSink) append(t Timing) {
	s.mu.Lock()
	s.records = append(s.records, t)
	s.mu.Unlock()
}

// Snapshot returns a copy of the timings recorded so far.
func (s *TimingsSink) Snapshot() []Timing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Timing(nil), s.records...)
}

// cache is the per-execution mapping from node identity to a pending
// result, seeded with the caller's parameters/overrides plus the Meta
// and ExecutionID well-known entries, and filled in by the resolver as
// it visits real Nodes for the first time within this run.
type cache struct {
	mu          sync.Mutex
	futures     map[any]*future
	executionID string
	timings     *TimingsSink
}

// newCache seeds a cache from normalized params. A *Node key in params
// is treated as an override/mock: the resolver will return that value
// directly without ever invoking the node's provider or enrolling it
// in a Context (see resolver.visit).
func newCache(params map[any]any) *cache {
	c := &cache{
		futures: make(map[any]*future, len(params)+2),
		timings: newTimingsSink(),
	}

	for k, v := range params {
		c.futures[k] = resolvedFuture(v, nil)
	}

	if id, ok := params[ExecutionID].(string); ok && id != "" {
		c.executionID = id
	} else {
		c.executionID = uuid.NewString()
	}
	c.futures[ExecutionID] = resolvedFuture(c.executionID, nil)
	c.futures[Meta] = resolvedFuture(c.timings, nil)

	return c
}

// getOrCreate returns the existing future for key, or creates and
// installs a fresh, unresolved one if none exists yet. created reports
// whether the returned future is that freshly installed one — the
// caller uses this to decide whether it is responsible for resolving
// it (and, for real Nodes, for enrolling the node in a Context).
func (c *cache) getOrCreate(key any) (f *future, created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.futures[key]; ok {
		return existing, false
	}
	f = newFuture()
	c.futures[key] = f
	return f, true
}

func (c *cache) recordTiming(t Timing) {
	c.timings.append(t)
}

// defaultClock is the time source for Timing records unless a Run is
// given its own with WithClock.
var defaultClock = time.Now
