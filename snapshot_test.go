package sistema

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_DescribesReachableNodes(t *testing.T) {
	a := NewResource("a")
	b := NewTransient("b")
	b.DependsOn(a, "param")

	snap := Snapshot(b)
	require.Len(t, snap.Nodes, 2)

	bSnap, ok := snap.Nodes["b"]
	require.True(t, ok)
	assert.Equal(t, Transient, bSnap.Kind)
	assert.ElementsMatch(t, []string{"a", "param"}, bSnap.Edges)

	aSnap, ok := snap.Nodes["a"]
	require.True(t, ok)
	assert.Equal(t, Resource, aSnap.Kind)
	assert.Equal(t, StatusReady, aSnap.Status)
}

func TestSnapshot_MatchesExpectedStructure(t *testing.T) {
	a := NewResource("a")
	b := NewTransient("b")
	b.DependsOn(a, "param")

	want := GraphSnapshot{
		Nodes: map[string]NodeSnapshot{
			"a": {Name: "a", Kind: Resource, Status: StatusReady, Edges: []string{}},
			"b": {Name: "b", Kind: Transient, Status: StatusReady, Edges: []string{"a", "param"}},
		},
	}

	got := Snapshot(b)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshot_ReflectsShutdownStatus(t *testing.T) {
	a := NewResource("a")
	a.Provides(func(context.Context, []any) (any, error) { return 1, nil })
	_, err := a.getValue(context.Background(), nil)
	require.NoError(t, err)
	_, err = a.transition(context.Background(), StatusShutdown)
	require.NoError(t, err)

	snap := Snapshot(a)
	assert.Equal(t, StatusShutdown, snap.Nodes["a"].Status)
}

func TestDetectCycles_AcyclicGraphReturnsNil(t *testing.T) {
	a := NewTransient("a")
	b := NewTransient("b")
	b.DependsOn(a)
	assert.NoError(t, DetectCycles(b))
}

func TestDetectCycles_FindsDirectCycle(t *testing.T) {
	a := NewTransient("a")
	b := NewTransient("b")
	b.DependsOn(a)
	a.DependsOn(b)

	err := DetectCycles(b)
	require.Error(t, err)
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
}

func TestDetectCycles_FindsSelfLoop(t *testing.T) {
	a := NewTransient("a")
	a.DependsOn(a)
	assert.Error(t, DetectCycles(a))
}
