package sistema

import (
	"context"
	"fmt"
	"time"

	"github.com/sithmel/sistema/internal/ctxlog"
	"golang.org/x/sync/errgroup"
)

// ResolverOption configures a single Run/RunAll call.
type ResolverOption func(*resolverConfig)

type resolverConfig struct {
	goroutineLimit int
	clock          func() time.Time
}

// WithGoroutineLimit bounds how many of a node's edges are resolved
// concurrently; the bound applies per node, not across the whole run.
// The default, 0, is unbounded — "parallel fan-out along
// independent branches" with no cap, per the base spec. This option
// supplements that default for callers who want worker-pool-style
// backpressure without introducing priority or queuing semantics.
func WithGoroutineLimit(n int) ResolverOption {
	return func(c *resolverConfig) { c.goroutineLimit = n }
}

// WithClock overrides the time source used for Timing records, for
// deterministic tests.
func WithClock(now func() time.Time) ResolverOption {
	return func(c *resolverConfig) { c.clock = now }
}

func newResolverConfig(opts []ResolverOption) *resolverConfig {
	cfg := &resolverConfig{clock: defaultClock}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// resolver walks the DAG for a single Run/RunAll call.
type resolver struct {
	cache *cache
	rc    *Context
	cfg   *resolverConfig
}

// Run executes target (a *Node or a Parameter name) and returns its
// resolved value. params supplies Parameter values and, optionally,
// *Node overrides (see Params). If rc is non-nil, every real Node
// visited is enrolled in it, and lifecycle events fire against it.
func Run(ctx context.Context, target any, params Params, rc *Context, opts ...ResolverOption) (any, error) {
	results, err := RunAll(ctx, []any{target}, params, rc, opts...)
	if err != nil && results == nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, err
	}
	return results[0], err
}

// RunAll is the list form of Run: every target is resolved against the
// same cache, so shared dependencies across targets still run at most
// once.
func RunAll(ctx context.Context, targets []any, params Params, rc *Context, opts ...ResolverOption) ([]any, error) {
	normalized, err := normalizeParams(params)
	if err != nil {
		return nil, err
	}

	r := &resolver{
		cache: newCache(normalized),
		rc:    rc,
		cfg:   newResolverConfig(opts),
	}

	logger := ctxlog.FromContext(ctx).With("execution_id", r.cache.executionID)
	logger.Debug("resolver: starting run", "targets", len(targets))

	futures := make([]*future, len(targets))
	for i, t := range targets {
		futures[i] = r.visit(ctx, t)
	}

	results := make([]any, len(targets))
	var firstErr error
	for i, f := range futures {
		val, err := f.wait(ctx)
		results[i] = val
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	logger.Debug("resolver: run finished", "error", firstErr)
	return results, firstErr
}

// visit returns the pending future for target, creating it (and
// spawning the goroutine that fills it in) on first encounter within
// this run's cache. Repeated visits of the same target within one run
// — whether from sibling branches or a caller-supplied override —
// return the same future, giving the at-most-once-per-run guarantee.
func (r *resolver) visit(ctx context.Context, target any) *future {
	switch v := target.(type) {
	case string:
		return r.visitKeyed(v)
	case metaSentinel, execIDSentinel:
		return r.visitKeyed(v)
	case *Node:
		return r.visitNode(ctx, v)
	default:
		return resolvedFuture(nil, fmt.Errorf("%w: got %T", ErrInvalidEdge, target))
	}
}

// visitKeyed resolves a Parameter or well-known sentinel key purely
// through the cache: these have no edges and no lifecycle, so a miss
// simply means "not supplied".
func (r *resolver) visitKeyed(key any) *future {
	f, created := r.cache.getOrCreate(key)
	if created {
		name := key
		if s, ok := key.(string); ok {
			name = s
		}
		f.resolve(nil, fmt.Errorf("%w: %v", ErrMissingArgument, name))
	}
	return f
}

// visitNode resolves a real Node: edges first (in parallel, via
// errgroup), then the node's own getValue.
func (r *resolver) visitNode(ctx context.Context, n *Node) *future {
	f, created := r.cache.getOrCreate(n)
	if !created {
		return f
	}

	// Enrollment happens only for the visit that actually creates the
	// cache entry — an override pre-seeds the entry before resolution
	// starts, so it is never "created" here and never enrolled, per the
	// override-bypass invariant.
	if r.rc != nil {
		r.rc.add(n)
	}

	go r.resolveNode(ctx, n, f)
	return f
}

func (r *resolver) resolveNode(ctx context.Context, n *Node, f *future) {
	logger := ctxlog.FromContext(ctx).With("node", n.Name, "kind", n.kind.String())

	edges := n.edgesSnapshot()

	// Each edge is visited inside its errgroup member, so a goroutine
	// limit holds back the visit (and the start of that edge's
	// resolution) until a slot frees up.
	args := make([]any, len(edges))
	eg, egCtx := errgroup.WithContext(ctx)
	if r.cfg.goroutineLimit > 0 {
		eg.SetLimit(r.cfg.goroutineLimit)
	}
	for i, e := range edges {
		i, e := i, e
		eg.Go(func() error {
			val, err := r.visit(ctx, e).wait(egCtx)
			if err != nil {
				return err
			}
			args[i] = val
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		// n's own provider never started — nothing to time or to report
		// as this node's event, it simply never got its turn.
		logger.Debug("resolver: edge resolution failed", "error", err)
		f.resolve(nil, err)
		return
	}

	start := r.cfg.clock()
	val, err := n.getValue(ctx, args)
	end := r.cfg.clock()
	if err != nil {
		logger.Warn("resolver: provider failed", "error", err)
	} else {
		logger.Debug("resolver: provider succeeded")
	}
	r.settle(n, f, val, err, start, end)
}

func (r *resolver) settle(n *Node, f *future, val any, err error, start, end time.Time) {
	r.cache.recordTiming(Timing{Node: n, Context: r.rc, TimeStart: start, TimeEnd: end, Err: err})
	if r.rc != nil {
		event := SuccessRun
		if err != nil {
			event = FailRun
		}
		r.rc.emit(Event{Dependency: n, Context: r.rc, TimeStart: start, TimeEnd: end, ExecutionID: r.cache.executionID, Err: err}, event)
	}
	f.resolve(val, err)
}
