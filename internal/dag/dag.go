// SPDX-License-Identifier: MPL-2.0

// Package dag orders the nodes of a dependency graph so that every node
// comes after the nodes it depends on. The engine uses it to load artifacts
// after the artifacts their manifests require.
package dag

import (
	"fmt"
	"strings"
)

type (
	// CycleError lists the nodes left unordered because they sit on or behind
	// a cycle.
	CycleError[K comparable] struct {
		Nodes []K
	}

	// Graph is a directed graph. An edge from A to B means A must be ordered
	// before B. The zero value is not usable; call New.
	Graph[K comparable] struct {
		edges map[K][]K
		// nodes keeps insertion order so results are deterministic.
		nodes []K
		seen  map[K]bool
	}
)

func (e *CycleError[K]) Error() string {
	parts := make([]string, len(e.Nodes))
	for i, n := range e.Nodes {
		parts[i] = fmt.Sprint(n)
	}
	return "dependency cycle between " + strings.Join(parts, ", ")
}

// New creates an empty Graph.
func New[K comparable]() *Graph[K] {
	return &Graph[K]{
		edges: make(map[K][]K),
		seen:  make(map[K]bool),
	}
}

// AddNode adds n. Adding a node twice is a no-op.
func (g *Graph[K]) AddNode(n K) {
	if g.seen[n] {
		return
	}
	g.seen[n] = true
	g.nodes = append(g.nodes, n)
}

// AddEdge records that before must be ordered ahead of after. Duplicate
// edges are ignored.
func (g *Graph[K]) AddEdge(before, after K) {
	g.AddNode(before)
	g.AddNode(after)
	for _, n := range g.edges[before] {
		if n == after {
			return
		}
	}
	g.edges[before] = append(g.edges[before], after)
}

// Len returns the number of nodes.
func (g *Graph[K]) Len() int { return len(g.nodes) }

// Sort returns the nodes in dependency order (Kahn's algorithm). Nodes that
// are free at the same time keep their insertion order.
func (g *Graph[K]) Sort() ([]K, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[K]int, len(g.nodes))
	for _, targets := range g.edges {
		for _, n := range targets {
			inDegree[n]++
		}
	}

	queue := make([]K, 0, len(g.nodes))
	for _, n := range g.nodes {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]K, 0, len(g.nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, next := range g.edges[n] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.nodes) {
		var stuck []K
		for _, n := range g.nodes {
			if inDegree[n] > 0 {
				stuck = append(stuck, n)
			}
		}
		return nil, &CycleError[K]{Nodes: stuck}
	}
	return order, nil
}

// Index returns each node's position in Sort order.
func (g *Graph[K]) Index() (map[K]int, error) {
	order, err := g.Sort()
	if err != nil {
		return nil, err
	}
	idx := make(map[K]int, len(order))
	for i, n := range order {
		idx[n] = i
	}
	return idx, nil
}
