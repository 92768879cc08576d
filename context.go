package sistema

import "sync"

// Context tracks the set of Nodes brought into being by one or more
// Run/RunAll calls that named it, so their lifecycle can be driven
// together later — shut down the whole subgraph a request touched, or
// reset it for the next one. A Node stays a member of a Context until
// that Context releases it, and a Node with more than one owning
// Context is not eligible for shutdown until all of them have (see
// Node.transition and Context.Shutdown).
//
// A Context also fans event notifications out to any handlers
// registered with On, for callers that want observability into
// individual node runs and transitions rather than just the aggregate
// outcome.
type Context struct {
	Name string

	mu       sync.Mutex
	members  map[*Node]struct{}
	handlers map[EventName]EventHandler
}

// NewContext creates an empty, named Context. The name is for
// diagnostics only; Contexts are compared and looked up by identity.
func NewContext(name string) *Context {
	return &Context{
		Name:     name,
		members:  make(map[*Node]struct{}),
		handlers: make(map[EventName]EventHandler),
	}
}

// add enrolls n in c, unless it is already a member. Called only by the
// resolver, and only for the visit that actually creates a node's cache
// entry (see resolver.visitNode) — repeat visits within a run, and
// override/mock bypasses, never re-enroll.
func (c *Context) add(n *Node) {
	c.mu.Lock()
	_, already := c.members[n]
	if !already {
		c.members[n] = struct{}{}
	}
	c.mu.Unlock()
	if !already {
		n.addContext(c)
	}
}

// remove releases n from c without regard to whether n is otherwise
// referenced. Used internally by the lifecycle walk to release c's
// claim on a node just before transitioning it.
func (c *Context) remove(n *Node) {
	c.mu.Lock()
	delete(c.members, n)
	c.mu.Unlock()
	n.removeContext(c)
}

// Has reports whether n is currently a member of c.
func (c *Context) Has(n *Node) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.members[n]
	return ok
}

// Size returns the number of nodes currently enrolled in c.
func (c *Context) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

// membersSnapshot returns a snapshot of the currently enrolled nodes.
func (c *Context) membersSnapshot() []*Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Node, 0, len(c.members))
	for n := range c.members {
		out = append(out, n)
	}
	return out
}

// On registers handler to be called whenever an event of the given
// name fires against c. Registration holds at most one handler per
// event name — a later call to On replaces whatever was registered
// before it, rather than accumulating subscribers. Handlers run
// synchronously, on the goroutine that produced the event; a panicking
// handler is recovered and dropped so a bad listener cannot take down a
// run.
func (c *Context) On(name EventName, handler EventHandler) {
	c.mu.Lock()
	c.handlers[name] = handler
	c.mu.Unlock()
}

func (c *Context) emit(event Event, name EventName) {
	c.mu.Lock()
	handler := c.handlers[name]
	c.mu.Unlock()

	if handler != nil {
		callHandler(handler, event)
	}
}

func callHandler(h EventHandler, event Event) {
	defer func() { _ = recover() }()
	h(event)
}

// GetAdjacencyList returns every Node reachable from target's edges,
// including target itself if it is a *Node, deduplicated, in no
// particular order. It requires no Run and touches no lifecycle state —
// a pure structural walk of the graph as wired by DependsOn, usable
// before ever calling Run.
func GetAdjacencyList(target any) []*Node {
	n, ok := target.(*Node)
	if !ok {
		return nil
	}
	return reachableFrom([]*Node{n})
}

// GetAdjacencyList returns every Node reachable from c's currently
// enrolled members, deduplicated, in no particular order — the closure
// of what Shutdown/Reset would walk right now.
func (c *Context) GetAdjacencyList() []*Node {
	return reachableFrom(c.membersSnapshot())
}

func reachableFrom(roots []*Node) []*Node {
	seen := make(map[*Node]struct{})
	var walk func(*Node)
	walk = func(cur *Node) {
		if _, ok := seen[cur]; ok {
			return
		}
		seen[cur] = struct{}{}
		for _, e := range cur.edgesSnapshot() {
			if next, ok := e.(*Node); ok {
				walk(next)
			}
		}
	}
	for _, n := range roots {
		walk(n)
	}

	out := make([]*Node, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	return out
}
