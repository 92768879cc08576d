package sistema

import "errors"

// Sentinel errors for the conditions callers are expected to check with
// errors.Is. Their wrapped message text is part of the public contract —
// the tests assert on the exact "Missing argument: <key>" string, not
// just the sentinel.
var (
	// ErrShutdown is returned when a node's provider is invoked while its
	// gate is in the SHUTDOWN state.
	ErrShutdown = errors.New("the dependency is now shut down")

	// ErrMissingArgument is returned when a Parameter placeholder is
	// resolved without a matching entry in the caller's params. Wrapped
	// as "Missing argument: <key>" — see resolver.visitKeyed.
	ErrMissingArgument = errors.New("Missing argument")

	// ErrInvalidParams is returned when the params argument to Run is
	// not a map, a slice of key/value pairs, or a struct.
	ErrInvalidParams = errors.New("params must be a map, a slice of key/value pairs, or a struct")

	// ErrInvalidEdge is returned (via panic, see Node.DependsOn) when an
	// edge is neither a *Node, a string, nor one of the well-known
	// sentinel keys (Meta, ExecutionID).
	ErrInvalidEdge = errors.New("a node can only depend on a *Node or a string")

	// ErrDisposeOnTransient is the panic value when Disposes is called
	// on a node that was not created with NewResource.
	ErrDisposeOnTransient = errors.New("disposes is only valid on a resource node")
)
