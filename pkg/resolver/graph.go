package resolver

import (
	"fmt"
	"sort"
	"strings"
)

// Graph is the dependency DAG over a plan's descriptors.
type Graph struct {
	// Nodes maps descriptor IDs to their graph nodes.
	Nodes map[string]*GraphNode `json:"nodes"`

	// Edges lists all dependency edges.
	Edges []GraphEdge `json:"edges"`

	// Roots are the descriptor IDs with no dependencies.
	Roots []string `json:"roots"`

	// Depth is the number of topological levels.
	Depth int `json:"depth"`
}

// GraphNode is one descriptor's position in the DAG.
type GraphNode struct {
	// ID is the descriptor ID.
	ID string `json:"id"`

	// Level is the topological level (depth from roots).
	Level int `json:"level"`

	// Dependencies are the descriptor IDs this node depends on.
	Dependencies []string `json:"dependencies"`

	// Dependents are the descriptor IDs depending on this node.
	Dependents []string `json:"dependents"`
}

// GraphEdge is a "To depends on From" edge.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// graphBuilder constructs and validates the descriptor DAG.
type graphBuilder struct {
	descriptors map[string]*Descriptor
	adjacency   map[string][]string // id -> dependents
	reverse     map[string][]string // id -> dependencies
	inDegree    map[string]int
	levels      [][]string
}

// BuildGraph constructs the dependency graph for a descriptor set, rejecting
// duplicate IDs, dangling references, and cycles.
func BuildGraph(descriptors []Descriptor) (*Graph, error) {
	b := &graphBuilder{
		descriptors: make(map[string]*Descriptor),
		adjacency:   make(map[string][]string),
		reverse:     make(map[string][]string),
		inDegree:    make(map[string]int),
	}

	if len(descriptors) == 0 {
		return &Graph{Nodes: map[string]*GraphNode{}, Edges: []GraphEdge{}, Roots: []string{}}, nil
	}
	if err := b.initialize(descriptors); err != nil {
		return nil, err
	}
	if err := b.detectCycles(); err != nil {
		return nil, err
	}
	if err := b.computeLevels(); err != nil {
		return nil, err
	}
	return b.build(), nil
}

func (b *graphBuilder) initialize(descriptors []Descriptor) error {
	for i := range descriptors {
		d := &descriptors[i]
		if d.ID == "" {
			return NewInternalError("descriptor has empty ID", nil)
		}
		if _, exists := b.descriptors[d.ID]; exists {
			return NewInternalError(fmt.Sprintf("duplicate descriptor ID: %s", d.ID), nil)
		}
		b.descriptors[d.ID] = d
		b.adjacency[d.ID] = nil
		b.reverse[d.ID] = nil
		b.inDegree[d.ID] = 0
	}

	for _, d := range b.descriptors {
		for _, dep := range d.DependsOn {
			if _, exists := b.descriptors[dep]; !exists {
				return NewInternalError(
					fmt.Sprintf("descriptor %s depends on non-existent descriptor %s", d.ID, dep),
					nil,
				).WithDescriptor(d.ID)
			}
			b.adjacency[dep] = append(b.adjacency[dep], d.ID)
			b.reverse[d.ID] = append(b.reverse[d.ID], dep)
			b.inDegree[d.ID]++
		}
	}
	return nil
}

func (b *graphBuilder) detectCycles() error {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	for id := range b.descriptors {
		if !visited[id] {
			if cycle := b.visit(id, visited, recStack, nil); cycle != nil {
				return NewInternalError(
					fmt.Sprintf("dependency cycle detected: %s", strings.Join(cycle, " -> ")),
					nil,
				)
			}
		}
	}
	return nil
}

func (b *graphBuilder) visit(id string, visited, recStack map[string]bool, path []string) []string {
	visited[id] = true
	recStack[id] = true
	path = append(path, id)

	for _, dependent := range b.adjacency[id] {
		if !visited[dependent] {
			if cycle := b.visit(dependent, visited, recStack, path); cycle != nil {
				return cycle
			}
		} else if recStack[dependent] {
			for i, p := range path {
				if p == dependent {
					return append(path[i:], dependent)
				}
			}
		}
	}

	recStack[id] = false
	return nil
}

// computeLevels assigns topological levels via Kahn's algorithm. IDs within
// a level are sorted so the graph is deterministic for a given plan.
func (b *graphBuilder) computeLevels() error {
	inDegree := make(map[string]int, len(b.inDegree))
	for id, deg := range b.inDegree {
		inDegree[id] = deg
	}

	var current []string
	for id, deg := range inDegree {
		if deg == 0 {
			current = append(current, id)
		}
	}
	if len(current) == 0 {
		return NewInternalError("no root descriptors found", nil)
	}

	processed := 0
	for len(current) > 0 {
		sort.Strings(current)
		b.levels = append(b.levels, current)
		processed += len(current)

		var next []string
		for _, id := range current {
			for _, dependent := range b.adjacency[id] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if processed != len(b.descriptors) {
		return NewInternalError("failed to order all descriptors", nil)
	}
	return nil
}

func (b *graphBuilder) build() *Graph {
	g := &Graph{
		Nodes: make(map[string]*GraphNode, len(b.descriptors)),
		Edges: make([]GraphEdge, 0),
		Roots: make([]string, 0),
		Depth: len(b.levels),
	}

	for level, ids := range b.levels {
		for _, id := range ids {
			g.Nodes[id] = &GraphNode{
				ID:           id,
				Level:        level,
				Dependencies: b.reverse[id],
				Dependents:   b.adjacency[id],
			}
			if level == 0 {
				g.Roots = append(g.Roots, id)
			}
		}
	}

	ids := make([]string, 0, len(b.descriptors))
	for id := range b.descriptors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, dep := range b.descriptors[id].DependsOn {
			g.Edges = append(g.Edges, GraphEdge{From: dep, To: id})
		}
	}
	return g
}

// TopologicalOrder returns descriptor IDs level by level.
func (g *Graph) TopologicalOrder() []string {
	byLevel := make([][]string, g.Depth)
	for id, node := range g.Nodes {
		byLevel[node.Level] = append(byLevel[node.Level], id)
	}
	var out []string
	for _, level := range byLevel {
		sort.Strings(level)
		out = append(out, level...)
	}
	return out
}

// IsTopological reports whether the given descriptor sequence satisfies
// every DependsOn edge.
func IsTopological(descriptors []Descriptor) bool {
	position := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		position[d.ID] = i
	}
	for i, d := range descriptors {
		for _, dep := range d.DependsOn {
			j, ok := position[dep]
			if !ok || j >= i {
				return false
			}
		}
	}
	return true
}
