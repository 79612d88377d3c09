package dag

import (
	"errors"
	"slices"

	"github.com/dukex/dagstudio/pkg/models"
)

// ErrCycle is returned by TopologicalSort when the edges induce a cycle.
var ErrCycle = errors.New("dag: graph contains a cycle")

// graph is an adjacency view over a node and edge list, built once per validation.
type graph struct {
	order      []string
	duplicates []string
	nodes      map[string]struct{}
	adj        map[string][]string
	inDegree   map[string]int
}

func newGraph(nodes []models.Node, edges []models.Edge) *graph {
	g := &graph{
		order:    make([]string, 0, len(nodes)),
		nodes:    make(map[string]struct{}, len(nodes)),
		adj:      make(map[string][]string, len(nodes)),
		inDegree: make(map[string]int, len(nodes)),
	}

	for _, n := range nodes {
		if _, dup := g.nodes[n.ID]; dup {
			if !slices.Contains(g.duplicates, n.ID) {
				g.duplicates = append(g.duplicates, n.ID)
			}

			continue
		}

		g.nodes[n.ID] = struct{}{}
		g.order = append(g.order, n.ID)
	}

	for _, e := range edges {
		g.adj[e.Source] = append(g.adj[e.Source], e.Target)
		g.inDegree[e.Target]++
	}

	return g
}

// hasCycle runs a depth-first search from every unvisited node, tracking the
// current path in onStack. The traversal keeps an explicit stack so deep
// graphs do not grow the goroutine stack.
func (g *graph) hasCycle() bool {
	visited := make(map[string]bool, len(g.order))
	onStack := make(map[string]bool)

	type frame struct {
		id   string
		next int
	}

	roots := g.order
	// Edges may name nodes outside the node set; cycles through them still count.
	for src := range g.adj {
		if _, ok := g.nodes[src]; !ok {
			roots = append(roots, src)
		}
	}

	for _, root := range roots {
		if visited[root] {
			continue
		}

		stack := []frame{{id: root}}
		visited[root] = true
		onStack[root] = true

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			neighbors := g.adj[top.id]

			if top.next == len(neighbors) {
				onStack[top.id] = false
				stack = stack[:len(stack)-1]

				continue
			}

			next := neighbors[top.next]
			top.next++

			if onStack[next] {
				return true
			}

			if !visited[next] {
				visited[next] = true
				onStack[next] = true
				stack = append(stack, frame{id: next})
			}
		}
	}

	return false
}

// reachesAny reports whether a directed path leads from src to any node in targets.
func (g *graph) reachesAny(src string, targets map[string]struct{}) bool {
	if len(targets) == 0 {
		return false
	}

	if _, ok := targets[src]; ok {
		return true
	}

	visited := map[string]bool{src: true}
	queue := []string{src}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.adj[current] {
			if _, ok := targets[next]; ok {
				return true
			}

			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	return false
}

// TopologicalSort orders node ids so every edge points forward, using Kahn's
// algorithm seeded in node order. Edges to unknown nodes are ignored.
func TopologicalSort(nodes []models.Node, edges []models.Edge) ([]string, error) {
	g := newGraph(nodes, nil)

	inDegree := make(map[string]int, len(g.order))
	for _, e := range edges {
		_, srcOK := g.nodes[e.Source]
		_, dstOK := g.nodes[e.Target]

		if !srcOK || !dstOK {
			continue
		}

		g.adj[e.Source] = append(g.adj[e.Source], e.Target)
		inDegree[e.Target]++
	}

	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(g.order))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, next := range g.adj[current] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.order) {
		return nil, ErrCycle
	}

	return order, nil
}
