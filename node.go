package sistema

import (
	"context"
	"fmt"
	"sync"
)

// Kind distinguishes the two real Node variants. Parameter placeholders
// are not a Kind — they are represented directly as strings (or the
// Meta/ExecutionID sentinels) wherever an edge is declared, never as a
// *Node, per the base spec's "pure placeholder" description.
type Kind int

const (
	// Transient nodes re-run their provider on every execution that
	// reaches them.
	Transient Kind = iota
	// Resource nodes memoize the first successful invocation and are
	// torn down via Disposes rather than simply recomputed.
	Resource
)

func (k Kind) String() string {
	if k == Resource {
		return "resource"
	}
	return "transient"
}

// ProviderFunc computes a Node's value from its edge-resolved
// dependencies, in declaration order.
type ProviderFunc func(ctx context.Context, args []any) (any, error)

// DisposeFunc tears down a Resource node's memoized value. Only
// meaningful on Resource nodes.
type DisposeFunc func(ctx context.Context, value any) error

// Node is a single executable unit in the graph: a Transient or
// Resource vertex carrying edges, a provider, and a lifecycle gate.
//
// Construct one with NewTransient or NewResource, wire its edges with
// DependsOn, and give it work with Provides. A Node is safe for
// concurrent use once built; DependsOn/Provides/Disposes are intended
// to be called once during graph construction, before the node is ever
// resolved, and are not themselves safe to race against getValue.
type Node struct {
	Name string
	kind Kind

	mu           sync.Mutex
	edges        []any // each is *Node, string, or a sentinel key
	inverseEdges map[*Node]struct{}
	provider     ProviderFunc
	dispose      DisposeFunc

	contextMembership map[*Context]struct{}
	inFlight          map[uint64]chan struct{}
	nextCallID        uint64

	gate *statusGate

	// memo holds the single pending/resolved future for a Resource
	// node's first (or in-progress) invocation. nil for Transient nodes
	// and for Resource nodes that have not yet been started.
	memo *future
}

// NewTransient creates a Node that re-runs its provider on every Run
// that reaches it.
func NewTransient(name string) *Node {
	return newNode(name, Transient)
}

// NewResource creates a Node whose provider runs at most once until the
// node is reset or shut down.
func NewResource(name string) *Node {
	return newNode(name, Resource)
}

func newNode(name string, kind Kind) *Node {
	return &Node{
		Name:              name,
		kind:              kind,
		inverseEdges:      make(map[*Node]struct{}),
		contextMembership: make(map[*Context]struct{}),
		inFlight:          make(map[uint64]chan struct{}),
		gate:              newStatusGate(),
	}
}

// Kind reports whether n is Transient or Resource.
func (n *Node) Kind() Kind { return n.kind }

// isValidEdge reports whether v is an acceptable edge token: a *Node, a
// string parameter name, or one of the Meta/ExecutionID sentinels.
func isValidEdge(v any) bool {
	switch v.(type) {
	case *Node, string, metaSentinel, execIDSentinel:
		return true
	default:
		return false
	}
}

// DependsOn replaces n's edges. Each edge must be another *Node, a
// string naming a Parameter, or one of the Meta/ExecutionID sentinels;
// any other type is a configuration error and panics immediately,
// matching the base spec's "raised eagerly, fatal to the call" policy
// for edge-type errors — there is no sensible recovery once the graph
// is malformed, and DependsOn has no error return to report it through.
func (n *Node) DependsOn(edges ...any) *Node {
	for _, e := range edges {
		if !isValidEdge(e) {
			panic(fmt.Errorf("%w: got %T", ErrInvalidEdge, e))
		}
	}

	n.mu.Lock()
	old := n.edges
	n.edges = append([]any(nil), edges...)
	n.mu.Unlock()

	for _, e := range old {
		if on, ok := e.(*Node); ok {
			on.removeInverse(n)
		}
	}
	for _, e := range edges {
		if on, ok := e.(*Node); ok {
			on.addInverse(n)
		}
	}
	return n
}

// Provides sets n's provider function.
func (n *Node) Provides(fn ProviderFunc) *Node {
	n.mu.Lock()
	n.provider = fn
	n.mu.Unlock()
	return n
}

// Disposes sets n's teardown function. Valid only on a Resource node;
// calling it on a Transient node panics, since a dispose hook that can
// never run is a configuration mistake, not a runtime condition.
func (n *Node) Disposes(fn DisposeFunc) *Node {
	if n.kind != Resource {
		panic(ErrDisposeOnTransient)
	}
	n.mu.Lock()
	n.dispose = fn
	n.mu.Unlock()
	return n
}

func (n *Node) edgesSnapshot() []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]any(nil), n.edges...)
}

func (n *Node) addInverse(dependent *Node) {
	n.mu.Lock()
	n.inverseEdges[dependent] = struct{}{}
	n.mu.Unlock()
}

func (n *Node) removeInverse(dependent *Node) {
	n.mu.Lock()
	delete(n.inverseEdges, dependent)
	n.mu.Unlock()
}

func (n *Node) inverseEdgesSnapshot() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Node, 0, len(n.inverseEdges))
	for s := range n.inverseEdges {
		out = append(out, s)
	}
	return out
}

func (n *Node) addContext(c *Context) {
	n.mu.Lock()
	n.contextMembership[c] = struct{}{}
	n.mu.Unlock()
}

func (n *Node) removeContext(c *Context) {
	n.mu.Lock()
	delete(n.contextMembership, c)
	n.mu.Unlock()
}

func (n *Node) contextCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.contextMembership)
}

// registerInFlight records a new pending provider invocation and
// returns a function that removes it again once the invocation settles.
func (n *Node) registerInFlight() (done func()) {
	n.mu.Lock()
	id := n.nextCallID
	n.nextCallID++
	ch := make(chan struct{})
	n.inFlight[id] = ch
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.inFlight, id)
		n.mu.Unlock()
		close(ch)
	}
}

// waitInFlight blocks until every provider invocation that was pending
// at the moment of the call has settled. Calls registered afterward are
// not waited on: getValue checks the gate before registering, so new
// calls are held off once a transition is pending, but a call that
// passed the gate check just before the transition began may still
// register after this snapshot.
func (n *Node) waitInFlight(ctx context.Context) {
	n.mu.Lock()
	pending := make([]chan struct{}, 0, len(n.inFlight))
	for _, ch := range n.inFlight {
		pending = append(pending, ch)
	}
	n.mu.Unlock()

	for _, ch := range pending {
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

// getValue is the internal entry point used by the resolver. It checks
// the gate, dispatches to the memoized path for Resource nodes, and
// otherwise invokes the provider directly.
func (n *Node) getValue(ctx context.Context, args []any) (any, error) {
	if n.kind == Resource {
		return n.resourceGetValue(ctx, args)
	}
	return n.invokeProvider(ctx, args)
}

// invokeProvider performs the Transient getValue contract: gate check,
// inFlight bookkeeping, then the provider call itself.
func (n *Node) invokeProvider(ctx context.Context, args []any) (any, error) {
	status, err := n.gate.Get(ctx)
	if err != nil {
		return nil, err
	}
	if status == StatusShutdown {
		return nil, fmt.Errorf("%s %q: %w", n.kind, n.Name, ErrShutdown)
	}

	done := n.registerInFlight()
	defer done()

	n.mu.Lock()
	provider := n.provider
	n.mu.Unlock()
	if provider == nil {
		return nil, fmt.Errorf("node %q has no provider", n.Name)
	}
	return provider(ctx, args)
}

// resourceGetValue implements the memoization contract in §4.3: a
// started Resource returns its memo directly, without creating a new
// invocation and without touching inFlight; an unstarted one creates
// the memo eagerly (so concurrent first callers dedupe onto the same
// future) and clears it again on failure so the next call retries.
func (n *Node) resourceGetValue(ctx context.Context, args []any) (any, error) {
	n.mu.Lock()
	if n.memo != nil {
		f := n.memo
		n.mu.Unlock()
		return f.wait(ctx)
	}
	f := newFuture()
	n.memo = f
	n.mu.Unlock()

	val, err := n.invokeProvider(ctx, args)
	if err != nil {
		n.mu.Lock()
		if n.memo == f {
			n.memo = nil
		}
		n.mu.Unlock()
	}
	f.resolve(val, err)
	return val, err
}

// transition implements the per-node lifecycle step described in §4.7:
// shutdown refuses while any context still holds the node, and is a
// no-op for a node that is already shut down; a Resource
// that was never started is a no-op that still advances the gate; a
// Resource that was started drains inFlight, clears memo, and disposes.
//
// transitioned reports whether real teardown work (waiting + dispose)
// actually ran, as opposed to a no-op that merely advanced the gate.
func (n *Node) transition(ctx context.Context, target Status) (transitioned bool, err error) {
	if target == StatusShutdown {
		if n.contextCount() > 0 {
			return false, nil
		}
		status, err := n.gate.Get(ctx)
		if err != nil {
			return false, err
		}
		if status == StatusShutdown {
			return false, nil
		}
	}

	if n.kind == Resource {
		n.mu.Lock()
		memo := n.memo
		n.mu.Unlock()
		if memo == nil {
			_ = n.gate.Change(ctx, target, func(context.Context) error { return nil })
			return false, nil
		}
	}

	err = n.gate.Change(ctx, target, func(ctx context.Context) error {
		n.waitInFlight(ctx)

		if n.kind != Resource {
			return nil
		}

		n.mu.Lock()
		memo := n.memo
		n.memo = nil
		dispose := n.dispose
		n.mu.Unlock()

		if memo == nil || dispose == nil {
			return nil
		}
		val, resolveErr := memo.wait(ctx)
		if resolveErr != nil {
			// The provider never produced a value to dispose of.
			return nil
		}
		return dispose(ctx, val)
	})
	transitioned = true
	return transitioned, err
}

// Shutdown transitions n to the SHUTDOWN state via the lifecycle
// coordinator. It is a thin façade; most callers should instead shut
// down the Context(s) tracking n so membership bookkeeping stays
// consistent.
func (n *Node) Shutdown(ctx context.Context) (bool, error) {
	return n.transition(ctx, StatusShutdown)
}

// Reset transitions n back to the READY state.
func (n *Node) Reset(ctx context.Context) (bool, error) {
	return n.transition(ctx, StatusReady)
}

// Run resolves n as the sole target of a new execution, a convenience
// wrapper over the package-level Run for callers who already have the
// Node in hand.
func (n *Node) Run(ctx context.Context, params Params, rc *Context, opts ...ResolverOption) (any, error) {
	return Run(ctx, n, params, rc, opts...)
}
