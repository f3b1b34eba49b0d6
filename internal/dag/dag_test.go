package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
}

func TestAddNode(t *testing.T) {
	t.Parallel()

	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, "a", nodeA.id)

	g.AddNode("a") // idempotent
	assert.Equal(t, 1, g.Len())

	g.AddNode("b")
	assert.Equal(t, []string{"a", "b"}, g.Nodes())
	assert.True(t, g.HasNode("b"))
	assert.False(t, g.HasNode("c"))
}

func TestAddEdge(t *testing.T) {
	t.Parallel()

	t.Run("success case", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b")) // b depends on a

		deps, err := g.Dependencies("b")
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, deps)

		dependents, err := g.Dependents("a")
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddNode("a")

		assert.ErrorContains(t, g.AddEdge("dne", "a"), "source node not found")
		assert.ErrorContains(t, g.AddEdge("a", "dne"), "destination node not found")
		assert.ErrorContains(t, g.AddEdge("a", "a"), "self-referential edge")

		_, err := g.Dependencies("dne")
		assert.ErrorContains(t, err, "node not found")
		_, err = g.Dependents("dne")
		assert.ErrorContains(t, err, "node not found")
	})
}

func TestDetectCycles(t *testing.T) {
	t.Parallel()

	t.Run("empty graph has no cycles", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, New().DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		t.Parallel()
		g := New()
		for _, id := range []string{"a", "b", "c", "d"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "c"))
		require.NoError(t, g.AddEdge("a", "c"))
		require.NoError(t, g.AddEdge("c", "d"))
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		t.Parallel()
		g := New()
		for _, id := range []string{"a", "b", "x", "y", "z"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("x", "y"))
		require.NoError(t, g.AddEdge("y", "z"))
		require.NoError(t, g.AddEdge("z", "y"))
		assert.ErrorContains(t, g.DetectCycles(), "cycle detected")
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Parallel()

	t.Run("fan-in merge comes last", func(t *testing.T) {
		t.Parallel()
		g := New()
		for _, id := range []string{"merge", "single_b", "single_a", "single_c"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("single_b", "merge"))
		require.NoError(t, g.AddEdge("single_a", "merge"))
		require.NoError(t, g.AddEdge("single_c", "merge"))

		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"single_a", "single_b", "single_c", "merge"}, order)
	})

	t.Run("chains respect dependencies over names", func(t *testing.T) {
		t.Parallel()
		g := New()
		for _, id := range []string{"a", "b", "z"} {
			g.AddNode(id)
		}
		require.NoError(t, g.AddEdge("z", "a"))

		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "z", "a"}, order)
	})

	t.Run("cycle is an error", func(t *testing.T) {
		t.Parallel()
		g := New()
		g.AddNode("a")
		g.AddNode("b")
		require.NoError(t, g.AddEdge("a", "b"))
		require.NoError(t, g.AddEdge("b", "a"))

		_, err := g.TopologicalOrder()
		assert.ErrorContains(t, err, "2 of 2 nodes could not be ordered")
	})
}
