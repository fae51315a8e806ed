package graph

// Order returns nodes in processing order: a depth-first walk along outgoing
// connections, started from every node without incoming connections. A node
// is never visited twice, so cyclic graphs terminate. Nodes that are only
// reachable through a cycle are still emitted exactly once.
func (g *Graph) Order() []Node {
	byID := make(map[string]Node, len(g.Nodes))
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}

	out := map[string][]string{}
	incoming := map[string]int{}
	for _, c := range g.Connections {
		if _, ok := byID[c.From]; !ok {
			continue
		}
		if _, ok := byID[c.To]; !ok {
			continue
		}
		out[c.From] = append(out[c.From], c.To)
		incoming[c.To]++
	}

	visited := make(map[string]bool, len(g.Nodes))
	post := make([]string, 0, len(g.Nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, next := range out[id] {
			visit(next)
		}
		post = append(post, id)
	}

	for _, n := range g.Nodes {
		if incoming[n.ID] == 0 {
			visit(n.ID)
		}
	}
	for _, n := range g.Nodes {
		visit(n.ID)
	}

	// reverse postorder puts every node after its predecessors
	order := make([]Node, 0, len(post))
	for i := len(post) - 1; i >= 0; i-- {
		order = append(order, byID[post[i]])
	}
	return order
}
