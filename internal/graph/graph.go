package graph

import (
	"fmt"
	"sort"
	"strings"
)

// CircularDependencyError reports that the dependency graph contains a cycle.
// Cycle lists the task ids along the cycle in forward order, with the
// starting id repeated at the end.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency: %s", strings.Join(e.Cycle, " -> "))
}

// New constructs a Graph from task and dependency records without checking
// for cycles. Edges referencing unknown tasks are dropped; duplicate edges
// between the same pair collapse to the first seen. Adjacency lists are
// sorted for deterministic traversal.
func New(tasks []*Task, deps []*Dependency) (*Graph, error) {
	g := &Graph{
		Tasks: make(map[string]*Task, len(tasks)),
		Preds: make(map[string][]Edge),
		Succs: make(map[string][]Edge),
	}

	for _, t := range tasks {
		if t.Duration < 0 {
			return nil, fmt.Errorf("task %s: negative duration %g", t.ID, t.Duration)
		}
		if t.Progress < 0 || t.Progress > 100 {
			return nil, fmt.Errorf("task %s: progress %g outside [0,100]", t.ID, t.Progress)
		}
		g.Tasks[t.ID] = t
	}

	seen := make(map[[2]string]bool)
	for _, d := range deps {
		if !d.Type.Valid() {
			return nil, fmt.Errorf("dependency %s: unknown type %q", d.ID, d.Type)
		}
		if d.PredecessorID == d.SuccessorID {
			return nil, fmt.Errorf("dependency %s: task %s depends on itself", d.ID, d.PredecessorID)
		}
		if _, ok := g.Tasks[d.PredecessorID]; !ok {
			continue
		}
		if _, ok := g.Tasks[d.SuccessorID]; !ok {
			continue
		}
		key := [2]string{d.PredecessorID, d.SuccessorID}
		if seen[key] {
			continue
		}
		seen[key] = true
		g.Succs[d.PredecessorID] = append(g.Succs[d.PredecessorID], Edge{TaskID: d.SuccessorID, Type: d.Type, Lag: d.Lag})
		g.Preds[d.SuccessorID] = append(g.Preds[d.SuccessorID], Edge{TaskID: d.PredecessorID, Type: d.Type, Lag: d.Lag})
	}

	for k := range g.Succs {
		sortEdges(g.Succs[k])
	}
	for k := range g.Preds {
		sortEdges(g.Preds[k])
	}

	for id := range g.Tasks {
		if len(g.Preds[id]) == 0 {
			g.Roots = append(g.Roots, id)
		}
		if len(g.Succs[id]) == 0 {
			g.Leaves = append(g.Leaves, id)
		}
	}
	sort.Strings(g.Roots)
	sort.Strings(g.Leaves)

	return g, nil
}

// Build constructs a Graph and verifies it is acyclic. Returns a
// *CircularDependencyError naming the cycle if one exists.
func Build(tasks []*Task, deps []*Dependency) (*Graph, error) {
	g, err := New(tasks, deps)
	if err != nil {
		return nil, err
	}
	if cycle := g.DetectCycle(); cycle != nil {
		return nil, &CircularDependencyError{Cycle: cycle}
	}
	return g, nil
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool { return edges[i].TaskID < edges[j].TaskID })
}

// TaskCount returns the number of tasks in the graph.
func (g *Graph) TaskCount() int {
	return len(g.Tasks)
}

// TopoSort returns the task ids in topological order using Kahn's algorithm,
// with lexicographic tie-breaking for determinism. Fails if the graph has a
// cycle.
func (g *Graph) TopoSort() ([]string, error) {
	inDegree := make(map[string]int, len(g.Tasks))
	for id := range g.Tasks {
		inDegree[id] = len(g.Preds[id])
	}

	var queue []string
	for id := range g.Tasks {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(g.Tasks))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		order = append(order, node)

		var newReady []string
		for _, e := range g.Succs[node] {
			inDegree[e.TaskID]--
			if inDegree[e.TaskID] == 0 {
				newReady = append(newReady, e.TaskID)
			}
		}
		sort.Strings(newReady)
		queue = append(queue, newReady...)
	}

	if len(order) != len(g.Tasks) {
		if cycle := g.DetectCycle(); cycle != nil {
			return nil, &CircularDependencyError{Cycle: cycle}
		}
		return nil, fmt.Errorf("topological sort failed: %d of %d tasks sorted", len(order), len(g.Tasks))
	}

	return order, nil
}

// DetectCycle returns the cycle path if one exists, or nil for acyclic
// graphs. Depth-first search with white/gray/black coloring, driven by an
// explicit stack so arbitrarily deep graphs cannot exhaust goroutine stacks.
func (g *Graph) DetectCycle() []string {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make(map[string]int, len(g.Tasks))
	parent := make(map[string]string)

	type frame struct {
		node string
		next int
	}

	ids := make([]string, 0, len(g.Tasks))
	for id := range g.Tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, start := range ids {
		if color[start] != white {
			continue
		}
		color[start] = gray
		stack := []frame{{node: start}}

		for len(stack) > 0 {
			f := &stack[len(stack)-1]
			edges := g.Succs[f.node]

			if f.next >= len(edges) {
				color[f.node] = black
				stack = stack[:len(stack)-1]
				continue
			}

			next := edges[f.next].TaskID
			f.next++

			switch color[next] {
			case gray:
				// Reconstruct the cycle by walking parents back to next.
				cycle := []string{next, f.node}
				cur := f.node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, cur)
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			case white:
				color[next] = gray
				parent[next] = f.node
				stack = append(stack, frame{node: next})
			}
		}
	}
	return nil
}
