package sistema

import "fmt"

// GraphSnapshot is a point-in-time, read-only description of the
// structure reachable from one or more targets, for logging, diffing,
// or visualizing a graph without running it. It supplements
// GetAdjacencyList with edge and lifecycle-state detail, modeled after
// the map-shaped vertex representation the pack's other DAG bindings
// export for the same purpose.
type GraphSnapshot struct {
	Nodes map[string]NodeSnapshot
}

// NodeSnapshot describes one Node's static shape and current gate
// status as of the moment Snapshot was called.
type NodeSnapshot struct {
	Name   string
	Kind   Kind
	Status Status
	Edges  []string
}

// Snapshot walks every Node reachable from targets and returns a
// structural description of the subgraph, keyed by node name. Names
// are assumed unique within the subgraph being snapshotted; a
// duplicate name overwrites its predecessor in the result.
func Snapshot(targets ...any) GraphSnapshot {
	seen := make(map[*Node]struct{})
	order := make([]*Node, 0)

	var walk func(*Node)
	walk = func(n *Node) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		order = append(order, n)
		for _, e := range n.edgesSnapshot() {
			if next, ok := e.(*Node); ok {
				walk(next)
			}
		}
	}
	for _, t := range targets {
		if n, ok := t.(*Node); ok {
			walk(n)
		}
	}

	out := GraphSnapshot{Nodes: make(map[string]NodeSnapshot, len(order))}
	for _, n := range order {
		status := n.gate.peekStatus()
		edgeNames := make([]string, 0, len(n.edgesSnapshot()))
		for _, e := range n.edgesSnapshot() {
			edgeNames = append(edgeNames, edgeLabel(e))
		}
		out.Nodes[n.Name] = NodeSnapshot{
			Name:   n.Name,
			Kind:   n.kind,
			Status: status,
			Edges:  edgeNames,
		}
	}
	return out
}

func edgeLabel(e any) string {
	switch v := e.(type) {
	case *Node:
		return v.Name
	case string:
		return v
	case metaSentinel:
		return "Meta"
	case execIDSentinel:
		return "ExecutionID"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CycleError reports a dependency cycle found by DetectCycles.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %v", e.Path)
}

// DetectCycles walks the subgraph reachable from target and reports
// the first cycle found, or nil if the subgraph is acyclic. Like
// GetAdjacencyList and Snapshot, this requires no Run — DependsOn
// allows wiring a cycle at construction time, and this is the
// construction-time check for it, since the engine itself has no
// other way to fail on one (visitNode's cache-based dedup would
// otherwise just deadlock a cyclic graph waiting on its own future).
func DetectCycles(target any) error {
	n, ok := target.(*Node)
	if !ok {
		return nil
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[*Node]int)
	var path []string

	var visit func(*Node) error
	visit = func(cur *Node) error {
		color[cur] = gray
		path = append(path, cur.Name)
		for _, e := range cur.edgesSnapshot() {
			next, ok := e.(*Node)
			if !ok {
				continue
			}
			switch color[next] {
			case white:
				if err := visit(next); err != nil {
					return err
				}
			case gray:
				cyclePath := append(append([]string(nil), path...), next.Name)
				return &CycleError{Path: cyclePath}
			}
		}
		path = path[:len(path)-1]
		color[cur] = black
		return nil
	}

	return visit(n)
}
