package dag

import (
	"testing"

	"github.com/alexbckr/sdk/internal/stepmodel"
	"github.com/stretchr/testify/require"
)

func step(id string, deps ...string) *stepmodel.Step {
	return &stepmodel.Step{ID: id, Name: id, DependsOn: deps}
}

func TestBuild_LinearChain(t *testing.T) {
	g, err := Build([]*stepmodel.Step{
		step("A"),
		step("B", "A"),
		step("C", "B"),
	})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C"}, g.TopologicalOrder())
}

func TestBuild_Diamond(t *testing.T) {
	g, err := Build([]*stepmodel.Step{
		step("A"),
		step("B", "A"),
		step("C", "A"),
		step("D", "B", "C"),
	})
	require.NoError(t, err)
	order := g.TopologicalOrder()
	require.Equal(t, "A", order[0])
	require.Equal(t, "D", order[3])
}

func TestBuild_CycleRejected(t *testing.T) {
	_, err := Build([]*stepmodel.Step{
		step("A", "B"),
		step("B", "A"),
	})
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestBuild_UnknownDependency(t *testing.T) {
	_, err := Build([]*stepmodel.Step{
		step("A", "ghost"),
	})
	require.Error(t, err)
}

func TestGraph_CloneIsIndependent(t *testing.T) {
	g, err := Build([]*stepmodel.Step{
		step("A"),
		step("B", "A"),
	})
	require.NoError(t, err)

	clone := g.Clone()
	clone.Remove("A")

	require.Len(t, clone.Nodes, 1)
	require.Len(t, g.Nodes, 2, "removing from a clone must not affect the original graph")

	leaves := clone.Leaves()
	require.Len(t, leaves, 1)
	require.Equal(t, "B", leaves[0].ID)
}

func TestGraph_LeavesOfDisjointRoots(t *testing.T) {
	g, err := Build([]*stepmodel.Step{
		step("A"),
		step("B"),
		step("C", "A", "B"),
	})
	require.NoError(t, err)

	leaves := g.Leaves()
	require.Len(t, leaves, 2)
}
