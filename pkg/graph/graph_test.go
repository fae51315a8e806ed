package graph

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tstromberg/framkalla/pkg/recipe"
)

func ids(ns []Node) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func node(id string) Node {
	n := NewNode(id, Serial)
	n.ID = id
	return n
}

func TestNewDefaultGraph(t *testing.T) {
	g := New()
	require.Len(t, g.Nodes, 3)
	require.Len(t, g.Connections, 2)

	order := g.Order()
	require.Len(t, order, 3)
	assert.Equal(t, Input, order[0].Type)
	assert.Equal(t, Serial, order[1].Type)
	assert.Equal(t, Output, order[2].Type)
	assert.False(t, g.Active())
}

func TestAddAssignsIDAndReplaces(t *testing.T) {
	g := &Graph{}
	id := g.Add(Node{Name: "grade"})
	assert.NotEmpty(t, id)

	n, err := g.Node(id)
	require.NoError(t, err)
	n.Name = "regrade"
	g.Add(n)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, "regrade", g.Nodes[0].Name)

	_, err = g.Node("missing")
	assert.Error(t, err)
}

func TestConnectIsIdempotent(t *testing.T) {
	g := &Graph{}
	g.Add(node("a"))
	g.Add(node("b"))
	g.Connect("a", "b")
	g.Connect("a", "b")
	assert.Len(t, g.Connections, 1)
}

func TestRemove(t *testing.T) {
	g := &Graph{}
	for _, id := range []string{"a", "b", "c"} {
		g.Add(node(id))
	}
	g.Connect("a", "b")
	g.Connect("b", "c")
	g.Remove("b")
	assert.Equal(t, []string{"a", "c"}, ids(g.Nodes))
	assert.Empty(t, g.Connections)
}

func TestOrderDiamond(t *testing.T) {
	g := &Graph{}
	for _, id := range []string{"out", "left", "right", "in"} {
		g.Add(node(id))
	}
	g.Connect("in", "left")
	g.Connect("in", "right")
	g.Connect("left", "out")
	g.Connect("right", "out")

	order := ids(g.Order())
	require.Len(t, order, 4)
	assertTopological(t, g, order)
	assert.Equal(t, "in", order[0])
	assert.Equal(t, "out", order[3])
}

func TestOrderTerminatesOnCycle(t *testing.T) {
	g := &Graph{}
	for _, id := range []string{"a", "b", "c", "d"} {
		g.Add(node(id))
	}
	g.Connect("a", "b")
	g.Connect("b", "c")
	g.Connect("c", "b")
	// d is only part of a closed loop
	g.Connect("d", "d")

	order := ids(g.Order())
	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, order)
}

func TestOrderIgnoresDanglingConnections(t *testing.T) {
	g := &Graph{}
	g.Add(node("a"))
	g.Connect("a", "ghost")
	g.Connect("ghost", "a")
	assert.Equal(t, []string{"a"}, ids(g.Order()))
}

func TestOrderRandomDAGs(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 50; iter++ {
		g := &Graph{}
		n := 2 + rng.Intn(12)
		names := make([]string, n)
		for i := range names {
			names[i] = string(rune('a' + i))
		}
		// declare nodes shuffled so declaration order is not a topological order
		perm := rng.Perm(n)
		for _, p := range perm {
			g.Add(node(names[p]))
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if rng.Float64() < 0.3 {
					g.Connect(names[i], names[j])
				}
			}
		}

		order := ids(g.Order())
		require.Len(t, order, n)
		assert.ElementsMatch(t, names, order)
		assertTopological(t, g, order)
	}
}

func assertTopological(t *testing.T, g *Graph, order []string) {
	t.Helper()
	pos := map[string]int{}
	for i, id := range order {
		pos[id] = i
	}
	for _, c := range g.Connections {
		assert.Less(t, pos[c.From], pos[c.To], "%s must precede %s", c.From, c.To)
	}
}

func TestDecodeNodeDefaults(t *testing.T) {
	in := `{
		"nodes": [
			{"id": "in", "type": "input"},
			{"id": "grade", "type": "serial"},
			{"id": "half", "type": "serial", "enabled": false, "opacity": 0.5, "blendMode": "screen",
			 "recipe": {"light": {"exposure": 1}}},
			{"id": "out", "type": "output"}
		],
		"connections": [{"from": "in", "to": "grade"}, {"from": "grade", "to": "half"}, {"from": "half", "to": "out"}]
	}`
	g := &Graph{}
	require.NoError(t, json.Unmarshal([]byte(in), g))
	require.Len(t, g.Nodes, 4)

	grade, err := g.Node("grade")
	require.NoError(t, err)
	assert.True(t, grade.Enabled)
	assert.Equal(t, 1.0, grade.Opacity)
	assert.Equal(t, Normal, grade.Blend)
	assert.True(t, grade.Recipe.Equal(recipe.New()))
	assert.False(t, g.Active())

	half, err := g.Node("half")
	require.NoError(t, err)
	assert.False(t, half.Enabled)
	assert.Equal(t, 0.5, half.Opacity)
	assert.Equal(t, Screen, half.Blend)
	assert.Equal(t, 1.0, half.Recipe.Light.Exposure)

	assert.Error(t, json.Unmarshal([]byte(`{"nodes": [{"opacity": "full"}]}`), &Graph{}))
}
