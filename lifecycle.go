package sistema

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Shutdown tears c's member subgraph down in reverse-topological order:
// a node is only transitioned once every node that depends on it has
// already gone, mirroring ProcessReverseTopology's leaves-first walk
// but driven by inverse edges rather than a precomputed order, since
// membership (and therefore the frontier) can differ per Context.
//
// A node with more than one owning Context only actually tears down
// once every owning Context has called Shutdown: each call releases
// c's own claim unconditionally, but Node.transition still refuses the
// real teardown work while another Context's claim remains.
func (c *Context) Shutdown(ctx context.Context) error {
	return c.walk(ctx, StatusShutdown, SuccessShutdown, FailShutdown)
}

// Reset transitions c's member subgraph back to READY, in the same
// reverse-topological order as Shutdown. Like Shutdown, it releases
// c's membership of every node it walks, leaving c empty; a later Run
// under c enrolls the nodes it reaches again.
func (c *Context) Reset(ctx context.Context) error {
	return c.walk(ctx, StatusReady, SuccessReset, FailReset)
}

// walk drives every member of c to target, leaves (nodes with no
// remaining dependents within c) first. Each node is visited once,
// concurrently with any sibling leaf, via errgroup; a node's dependents
// must all finish before it is visited, so the recursion follows
// inverse edges rather than a flat frontier queue.
func (c *Context) walk(ctx context.Context, target Status, success, failure EventName) error {
	members := c.membersSnapshot()

	type result struct {
		once sync.Once
		err  error
	}
	results := make(map[*Node]*result, len(members))
	for _, n := range members {
		results[n] = &result{}
	}

	memberSet := make(map[*Node]struct{}, len(members))
	for _, n := range members {
		memberSet[n] = struct{}{}
	}

	eg, egCtx := errgroup.WithContext(ctx)

	// visit blocks until n's own result is settled, whether this call is
	// the one that computes it or a concurrent sibling dependent waiting
	// on the same node — sync.Once.Do does not return to ANY caller until
	// the first caller's function has finished running.
	var visit func(n *Node) error
	visit = func(n *Node) error {
		res := results[n]
		res.once.Do(func() {
			group, _ := errgroup.WithContext(egCtx)
			for _, dependent := range n.inverseEdgesSnapshot() {
				if _, inScope := memberSet[dependent]; !inScope {
					continue
				}
				dependent := dependent
				group.Go(func() error { return visit(dependent) })
			}
			if err := group.Wait(); err != nil {
				res.err = err
				return
			}

			// Release c's own claim before transitioning: Node.transition
			// refuses a shutdown while any context still holds the node, so
			// a shared node only ever actually tears down on the LAST
			// releasing context's call, and a context that has already
			// released must not keep blocking on its own stale membership.
			c.remove(n)

			// The group's derived context is cancelled as soon as
			// group.Wait returns, so the transition runs under the walk's
			// own ctx instead.
			start := defaultClock()
			transitioned, err := n.transition(ctx, target)
			c.emitTransition(n, target, transitioned, err, success, failure, start, defaultClock())
			if err != nil {
				res.err = err
				return
			}
		})
		return res.err
	}

	for _, n := range members {
		n := n
		eg.Go(func() error { return visit(n) })
	}

	return eg.Wait()
}

func (c *Context) emitTransition(n *Node, target Status, transitioned bool, err error, success, failure EventName, start, end time.Time) {
	if !transitioned {
		return
	}
	name := success
	if err != nil {
		name = failure
	}
	c.emit(Event{Dependency: n, Context: c, TimeStart: start, TimeEnd: end, Err: err}, name)
}
