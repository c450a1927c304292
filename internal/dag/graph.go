package dag

import (
	"fmt"
	"sort"

	"github.com/alexbckr/sdk/internal/stepmodel"
)

// ConfigError is a fatal configuration error: an invalid dependency graph
// (cycle, or a dependsOn naming an unknown step), reported before any
// execution happens.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Node is a vertex in the dependency graph: one step plus its resolved
// predecessor (Deps) and successor (Dependents) links.
type Node struct {
	ID         string
	Step       *stepmodel.Step
	Deps       map[string]*Node
	Dependents map[string]*Node
}

// Graph is the step dependency DAG. The Graph returned by Build is treated
// as immutable and shared for the lifetime of a run; the scheduler works
// against a Clone of it so it can remove nodes as they dispatch without
// disturbing the original.
type Graph struct {
	Nodes map[string]*Node
	order []string
}

// Build constructs a complete, validated dependency graph from a set of
// steps. It adds each step as a node, then adds edges for each dependsOn,
// and computes a topological order; failure to produce one (cycle, or a
// dependsOn naming an unknown step) is a fatal configuration error.
func Build(steps []*stepmodel.Step) (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*Node, len(steps))}
	indexOf := make(map[string]int, len(steps))

	for i, s := range steps {
		if _, exists := g.Nodes[s.ID]; exists {
			return nil, &ConfigError{Msg: fmt.Sprintf("duplicate step id %q", s.ID)}
		}
		g.Nodes[s.ID] = &Node{
			ID:         s.ID,
			Step:       s,
			Deps:       make(map[string]*Node),
			Dependents: make(map[string]*Node),
		}
		indexOf[s.ID] = i
	}

	for _, s := range steps {
		node := g.Nodes[s.ID]
		for _, depID := range s.DependsOn {
			depNode, ok := g.Nodes[depID]
			if !ok {
				return nil, &ConfigError{Msg: fmt.Sprintf("step %q depends on unknown step %q", s.ID, depID)}
			}
			node.Deps[depID] = depNode
			depNode.Dependents[s.ID] = node
		}
	}

	order, err := topologicalOrder(g, indexOf)
	if err != nil {
		return nil, err
	}
	g.order = order
	return g, nil
}

// topologicalOrder computes a stable topological order via Kahn's
// algorithm, breaking ties by original step enumeration order so that
// result ordering (and ready-queue insertion order) is deterministic.
func topologicalOrder(g *Graph, indexOf map[string]int) ([]string, error) {
	indegree := make(map[string]int, len(g.Nodes))
	for id, n := range g.Nodes {
		indegree[id] = len(n.Deps)
	}

	byIndex := func(ids []string) {
		sort.Slice(ids, func(i, j int) bool { return indexOf[ids[i]] < indexOf[ids[j]] })
	}

	var ready []string
	for id, d := range indegree {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	byIndex(ready)

	order := make([]string, 0, len(g.Nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var newlyReady []string
		for depID := range g.Nodes[id].Dependents {
			indegree[depID]--
			if indegree[depID] == 0 {
				newlyReady = append(newlyReady, depID)
			}
		}
		byIndex(newlyReady)
		ready = append(ready, newlyReady...)
		byIndex(ready)
	}

	if len(order) != len(g.Nodes) {
		return nil, &ConfigError{Msg: "cycle detected in step dependency graph"}
	}
	return order, nil
}

// TopologicalOrder returns the step ids in the order computed at Build
// time. Results are always emitted in this order, regardless of execution
// order.
func (g *Graph) TopologicalOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Clone returns an independent copy of the graph whose nodes may be
// removed (via Remove) without affecting the original. Step pointers are
// shared; Deps/Dependents maps are not.
func (g *Graph) Clone() *Graph {
	clone := &Graph{Nodes: make(map[string]*Node, len(g.Nodes)), order: append([]string(nil), g.order...)}
	for id, n := range g.Nodes {
		clone.Nodes[id] = &Node{
			ID:         id,
			Step:       n.Step,
			Deps:       make(map[string]*Node, len(n.Deps)),
			Dependents: make(map[string]*Node, len(n.Dependents)),
		}
	}
	for id, n := range g.Nodes {
		cn := clone.Nodes[id]
		for depID := range n.Deps {
			cn.Deps[depID] = clone.Nodes[depID]
		}
		for depID := range n.Dependents {
			cn.Dependents[depID] = clone.Nodes[depID]
		}
	}
	return clone
}

// Leaves returns the nodes with no remaining dependencies in this graph,
// in topological-order-stable enumeration.
func (g *Graph) Leaves() []*Node {
	var leaves []*Node
	for _, id := range g.order {
		n, ok := g.Nodes[id]
		if ok && len(n.Deps) == 0 {
			leaves = append(leaves, n)
		}
	}
	return leaves
}

// Remove detaches a node from the working graph: it is removed from every
// dependent's Deps set (so those dependents can eventually become leaves)
// and dropped from Nodes entirely.
func (g *Graph) Remove(id string) {
	n, ok := g.Nodes[id]
	if !ok {
		return
	}
	for depID, dependent := range n.Dependents {
		delete(dependent.Deps, id)
		_ = depID
	}
	for depID, dep := range n.Deps {
		delete(dep.Dependents, id)
		_ = depID
	}
	delete(g.Nodes, id)
}
