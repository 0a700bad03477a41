// Package depgraph validates proposed dependency edges before they are written.
package depgraph

import (
	"fmt"
	"strings"
)

// Edge is a proposed dependency: Source must complete before Target.
// Labels are only used to render diagnostics.
type Edge struct {
	SourceID    string
	TargetID    string
	SourceLabel string
	TargetLabel string
}

// IsSelfReference reports whether the edge points at its own source
func (e Edge) IsSelfReference() bool {
	return e.SourceID == e.TargetID
}

// FilterSelfReferences drops edges whose source equals their target and
// returns one warning per dropped edge.
func FilterSelfReferences(edges []Edge) ([]Edge, []string) {
	valid := make([]Edge, 0, len(edges))
	var warnings []string
	for _, e := range edges {
		if e.IsSelfReference() {
			warnings = append(warnings, fmt.Sprintf("skipped self-referential dependency on %q", labelOr(e.SourceLabel, e.SourceID)))
			continue
		}
		valid = append(valid, e)
	}
	return valid, warnings
}

// DetectCircularDependencies returns one description per back-edge found by
// a depth-first search over the edge set, e.g. "A -> B -> C -> A".
// Each node is visited once, so the search is O(V+E).
func DetectCircularDependencies(edges []Edge) []string {
	var nodes []string
	adj := make(map[string][]string)
	labels := make(map[string]string)
	seen := make(map[string]bool)

	addNode := func(id, label string) {
		if !seen[id] {
			seen[id] = true
			nodes = append(nodes, id)
		}
		if _, ok := labels[id]; !ok && label != "" {
			labels[id] = label
		}
	}
	for _, e := range edges {
		addNode(e.SourceID, e.SourceLabel)
		addNode(e.TargetID, e.TargetLabel)
		adj[e.SourceID] = append(adj[e.SourceID], e.TargetID)
	}

	type frame struct {
		id   string
		next int
	}

	visited := make(map[string]bool, len(nodes))
	onStack := make(map[string]int) // node -> position in path
	var cycles []string

	for _, start := range nodes {
		if visited[start] {
			continue
		}
		visited[start] = true
		onStack[start] = 0
		path := []string{start}
		stack := []frame{{id: start}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(adj[top.id]) {
				next := adj[top.id][top.next]
				top.next++

				if pos, ok := onStack[next]; ok {
					cycles = append(cycles, describeCycle(path[pos:], next, labels))
					continue
				}
				if visited[next] {
					continue
				}
				visited[next] = true
				onStack[next] = len(path)
				path = append(path, next)
				stack = append(stack, frame{id: next})
				continue
			}

			delete(onStack, top.id)
			path = path[:len(path)-1]
			stack = stack[:len(stack)-1]
		}
	}

	return cycles
}

// Validate filters self references and rejects the whole batch if any cycle
// remains. On success it returns the edges that may be written.
func Validate(edges []Edge) ([]Edge, []string, error) {
	valid, warnings := FilterSelfReferences(edges)
	if cycles := DetectCircularDependencies(valid); len(cycles) > 0 {
		return nil, warnings, &CycleError{Cycles: cycles}
	}
	return valid, warnings, nil
}

func describeCycle(path []string, closing string, labels map[string]string) string {
	parts := make([]string, 0, len(path)+1)
	for _, id := range path {
		parts = append(parts, labelOr(labels[id], id))
	}
	parts = append(parts, labelOr(labels[closing], closing))
	return strings.Join(parts, " -> ")
}

func labelOr(label, id string) string {
	if label != "" {
		return label
	}
	return id
}
