package sistema

import "context"

// future is a single-assignment pending result, the Go-native stand-in
// for the "pending handle" the base spec describes: a Cache entry (or a
// Resource's memo) is a future that every visitor of the same node
// awaits, so the provider runs at most once for however many dependents
// ask for it within one resolution.
type future struct {
	done chan struct{}
	val  any
	err  error
}

func newFuture() *future {
	return &future{done: make(chan struct{})}
}

// resolvedFuture returns an already-settled future, used to seed the
// cache with caller-supplied parameters and overrides.
func resolvedFuture(val any, err error) *future {
	f := newFuture()
	f.resolve(val, err)
	return f
}

// resolve settles the future exactly once. Calling it twice is a bug in
// the engine, not a caller error, and will panic via a closed-channel
// send-free close (close of a closed channel panics), which is the
// correct failure mode for a single-assignment primitive.
func (f *future) resolve(val any, err error) {
	f.val, f.err = val, err
	close(f.done)
}

// wait blocks until the future settles or ctx is done, whichever first.
func (f *future) wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
