package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDependencyCycle is returned by TopologicalSort when the graph has a cycle
var ErrDependencyCycle = errors.New("dependency cycle")

// DependencyGraph is the directed graph of entity types where an edge runs from
// a dependent type to the principal type of one of its foreign keys
type DependencyGraph struct {
	nodes []string
	edges map[string][]string // dependent -> principals
}

// NewDependencyGraph builds the graph from every foreign key accepted by include.
// A nil include accepts all foreign keys.
func NewDependencyGraph(m *Model, include func(*ForeignKey) bool) *DependencyGraph {
	graph := &DependencyGraph{
		edges: make(map[string][]string),
	}

	for _, et := range m.GetEntityTypes() {
		graph.nodes = append(graph.nodes, et.name)
		for _, fk := range et.foreignKeys {
			if include != nil && !include(fk) {
				continue
			}
			graph.addEdge(et.name, fk.principalEntityType.name)
		}
	}
	for node := range graph.edges {
		sort.Strings(graph.edges[node])
	}
	return graph
}

func (g *DependencyGraph) addEdge(from, to string) {
	for _, existing := range g.edges[from] {
		if existing == to {
			return
		}
	}
	g.edges[from] = append(g.edges[from], to)
}

// GetDependencies returns the principals the given type depends on
func (g *DependencyGraph) GetDependencies(name string) []string {
	return append([]string(nil), g.edges[name]...)
}

// GetDependents returns the types that depend on the given type
func (g *DependencyGraph) GetDependents(name string) []string {
	var dependents []string
	for _, node := range g.nodes {
		for _, dep := range g.edges[node] {
			if dep == name {
				dependents = append(dependents, node)
				break
			}
		}
	}
	return dependents
}

// DetectCycles returns the cycles found by a depth-first walk, at least one per
// strongly connected component that has a cycle. It does not enumerate every
// elementary cycle. Each cycle starts at its lexically smallest member;
// results are sorted.
func (g *DependencyGraph) DetectCycles() [][]string {
	var cycles [][]string
	seen := make(map[string]bool)
	visited := make(map[string]bool)
	recursionStack := make(map[string]bool)

	var dfs func(node string, path []string)
	dfs = func(node string, path []string) {
		visited[node] = true
		recursionStack[node] = true
		path = append(path, node)

		for _, neighbor := range g.edges[node] {
			if recursionStack[neighbor] {
				cycleStart := -1
				for i, n := range path {
					if n == neighbor {
						cycleStart = i
						break
					}
				}
				if cycleStart >= 0 {
					cycle := rotateToSmallest(path[cycleStart:])
					key := strings.Join(cycle, "\x00")
					if !seen[key] {
						seen[key] = true
						cycles = append(cycles, cycle)
					}
				}
			} else if !visited[neighbor] {
				dfs(neighbor, path)
			}
		}

		recursionStack[node] = false
	}

	for _, node := range g.nodes {
		if !visited[node] {
			dfs(node, nil)
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return strings.Join(cycles[i], " ") < strings.Join(cycles[j], " ")
	})
	return cycles
}

func rotateToSmallest(cycle []string) []string {
	smallest := 0
	for i, n := range cycle {
		if n < cycle[smallest] {
			smallest = i
		}
	}
	rotated := make([]string, 0, len(cycle))
	rotated = append(rotated, cycle[smallest:]...)
	rotated = append(rotated, cycle[:smallest]...)
	return rotated
}

// TopologicalSort returns types with principals before their dependents.
// Self references are ignored. Ties are broken by name.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	outDegree := make(map[string]int, len(g.nodes))
	reverseEdges := make(map[string][]string)
	for _, node := range g.nodes {
		for _, target := range g.edges[node] {
			if target == node {
				continue
			}
			outDegree[node]++
			reverseEdges[target] = append(reverseEdges[target], node)
		}
	}

	var queue []string
	for _, node := range g.nodes {
		if outDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		var ready []string
		for _, dependent := range reverseEdges[node] {
			outDegree[dependent]--
			if outDegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(result) != len(g.nodes) {
		cycles := g.DetectCycles()
		if len(cycles) > 0 {
			return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, FormatCycle(cycles[0]))
		}
		return nil, ErrDependencyCycle
	}
	return result, nil
}

// FormatCycle renders a cycle as A -> B -> C -> A
func FormatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return ""
	}
	return strings.Join(cycle, " -> ") + " -> " + cycle[0]
}
