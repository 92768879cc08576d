package sistema

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_ResolvesParameter(t *testing.T) {
	greet := NewTransient("greet")
	greet.DependsOn("name")
	greet.Provides(func(_ context.Context, args []any) (any, error) {
		return "hello " + args[0].(string), nil
	})

	val, err := Run(context.Background(), greet, map[string]any{"name": "ada"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello ada", val)
}

func TestRun_MissingParameterFails(t *testing.T) {
	greet := NewTransient("greet")
	greet.DependsOn("name")
	greet.Provides(func(_ context.Context, args []any) (any, error) {
		return "hello " + args[0].(string), nil
	})

	_, err := Run(context.Background(), greet, nil, nil)
	assert.ErrorIs(t, err, ErrMissingArgument)
	assert.EqualError(t, err, "Missing argument: name")
}

func TestRun_DiamondDependencyRunsSharedNodeOnce(t *testing.T) {
	var calls int32
	shared := NewTransient("shared")
	shared.Provides(func(context.Context, []any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	})

	left := NewTransient("left")
	left.DependsOn(shared)
	left.Provides(func(_ context.Context, args []any) (any, error) { return "left:" + args[0].(string), nil })

	right := NewTransient("right")
	right.DependsOn(shared)
	right.Provides(func(_ context.Context, args []any) (any, error) { return "right:" + args[0].(string), nil })

	top := NewTransient("top")
	top.DependsOn(left, right)
	top.Provides(func(_ context.Context, args []any) (any, error) {
		return args[0].(string) + "+" + args[1].(string), nil
	})

	val, err := Run(context.Background(), top, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "left:v+right:v", val)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRun_FailurePropagatesToDependents(t *testing.T) {
	failing := NewTransient("failing")
	failing.Provides(func(context.Context, []any) (any, error) {
		return nil, assert.AnError
	})

	top := NewTransient("top")
	top.DependsOn(failing)
	top.Provides(func(_ context.Context, args []any) (any, error) {
		t.Fatal("provider must not run when a dependency failed")
		return nil, nil
	})

	_, err := Run(context.Background(), top, nil, nil)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRun_OverrideBypassesProviderAndContext(t *testing.T) {
	var providerCalled bool
	n := NewTransient("n")
	n.Provides(func(context.Context, []any) (any, error) {
		providerCalled = true
		return "real", nil
	})

	rc := NewContext("c")
	val, err := Run(context.Background(), n, map[any]any{n: "mocked"}, rc)
	require.NoError(t, err)
	assert.Equal(t, "mocked", val)
	assert.False(t, providerCalled)
	assert.False(t, rc.Has(n))
}

func TestRun_EnrollsRealNodesInContext(t *testing.T) {
	a := NewResource("a")
	a.Provides(func(context.Context, []any) (any, error) { return "a", nil })
	b := NewTransient("b")
	b.DependsOn(a)
	b.Provides(func(_ context.Context, args []any) (any, error) { return args[0], nil })

	rc := NewContext("c")
	_, err := Run(context.Background(), b, nil, rc)
	require.NoError(t, err)

	assert.True(t, rc.Has(a))
	assert.True(t, rc.Has(b))
}

func TestRunAll_SharesCacheAcrossTargets(t *testing.T) {
	var calls int32
	shared := NewTransient("shared")
	shared.Provides(func(context.Context, []any) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "v", nil
	})

	a := NewTransient("a")
	a.DependsOn(shared)
	a.Provides(func(_ context.Context, args []any) (any, error) { return "a:" + args[0].(string), nil })

	b := NewTransient("b")
	b.DependsOn(shared)
	b.Provides(func(_ context.Context, args []any) (any, error) { return "b:" + args[0].(string), nil })

	results, err := RunAll(context.Background(), []any{a, b}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []any{"a:v", "b:v"}, results)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRun_WithGoroutineLimitStillResolvesAllEdges(t *testing.T) {
	a := NewTransient("a")
	a.Provides(func(context.Context, []any) (any, error) { return 1, nil })
	b := NewTransient("b")
	b.Provides(func(context.Context, []any) (any, error) { return 2, nil })

	top := NewTransient("top")
	top.DependsOn(a, b)
	top.Provides(func(_ context.Context, args []any) (any, error) {
		return args[0].(int) + args[1].(int), nil
	})

	val, err := Run(context.Background(), top, nil, nil, WithGoroutineLimit(1))
	require.NoError(t, err)
	assert.Equal(t, 3, val)
}

func TestRun_WithClockDrivesTimingRecords(t *testing.T) {
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	n := NewTransient("n")
	n.DependsOn(Meta)
	var sink *TimingsSink
	n.Provides(func(_ context.Context, args []any) (any, error) {
		sink = args[0].(*TimingsSink)
		return "v", nil
	})

	_, err := Run(context.Background(), n, nil, nil, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)

	records := sink.Snapshot()
	require.Len(t, records, 1)
	assert.Same(t, n, records[0].Node)
	assert.Equal(t, fixed, records[0].TimeStart)
	assert.Equal(t, fixed, records[0].TimeEnd)
}
