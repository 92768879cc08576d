package sistema

import (
	"context"
	"sync"
)

// Status is the lifecycle state tracked by a statusGate.
type Status int32

const (
	// StatusReady means the node's provider may be invoked.
	StatusReady Status = iota
	// StatusShutdown means the node has been torn down; new provider
	// invocations fail fast with ErrShutdown.
	StatusShutdown
)

func (s Status) String() string {
	if s == StatusShutdown {
		return "SHUTDOWN"
	}
	return "READY"
}

// statusGate is a single-slot cooperative state machine serializing
// lifecycle transitions on a node while permitting concurrent reads.
//
// At most one transition is ever in flight: a second caller to Change
// waits for the first to finish before starting its own work. Get never
// observes a half-applied transition — it blocks until the pending one
// has closed out and the new status is stored.
type statusGate struct {
	mu      sync.Mutex
	status  Status
	pending chan struct{}
}

func newStatusGate() *statusGate {
	return &statusGate{status: StatusReady}
}

// awaitIdle blocks the caller until no transition is in flight, then
// returns with mu held. The caller must unlock it.
func (g *statusGate) awaitIdle(ctx context.Context) error {
	g.mu.Lock()
	for g.pending != nil {
		ch := g.pending
		g.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.mu.Lock()
	}
	return nil
}

// peekStatus returns the current status without waiting for a pending
// transition to finish — a best-effort read for diagnostics (see
// Snapshot) where a point-in-time value is acceptable and blocking
// would defeat the purpose.
func (g *statusGate) peekStatus() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// Get returns the current status. If a transition is pending, it blocks
// until that transition has fully completed.
func (g *statusGate) Get(ctx context.Context) (Status, error) {
	if err := g.awaitIdle(ctx); err != nil {
		return 0, err
	}
	defer g.mu.Unlock()
	return g.status, nil
}

// Change waits for any prior pending transition, then runs work. Once
// work settles (success or failure), the status becomes newStatus and
// the gate is cleared — a failure of work still advances the status,
// since teardown must not leave the gate stuck. Change returns work's
// error to the caller.
func (g *statusGate) Change(ctx context.Context, newStatus Status, work func(context.Context) error) error {
	if err := g.awaitIdle(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	g.pending = done
	g.mu.Unlock()

	err := work(ctx)

	g.mu.Lock()
	g.status = newStatus
	g.pending = nil
	g.mu.Unlock()
	close(done)

	return err
}
