package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chainModel creates types with an int Id key and a required FK from each
// name to the next, closing the loop when cyclic is set
func chainModel(t *testing.T, names []string, cyclic bool) *Model {
	t.Helper()
	m := NewModel()
	types := make([]*EntityType, len(names))
	keys := make([]*Key, len(names))
	for i, name := range names {
		et, err := m.AddEntityType(name)
		require.NoError(t, err)
		id, err := et.AddProperty("Id", TypeInt)
		require.NoError(t, err)
		keys[i], err = et.SetPrimaryKey(id)
		require.NoError(t, err)
		types[i] = et
	}

	links := len(names) - 1
	if cyclic {
		links = len(names)
	}
	for i := 0; i < links; i++ {
		next := (i + 1) % len(names)
		fkProp, err := types[i].AddProperty(names[next]+"Id", TypeInt)
		require.NoError(t, err)
		_, err = types[i].AddForeignKey([]*Property{fkProp}, keys[next], types[next])
		require.NoError(t, err)
	}
	return m
}

func TestDependencyGraph_TopologicalSort(t *testing.T) {
	m := chainModel(t, []string{"Comment", "Post", "User"}, false)
	graph := NewDependencyGraph(m, nil)

	assert.Equal(t, []string{"Post"}, graph.GetDependencies("Comment"))
	assert.Equal(t, []string{"Comment"}, graph.GetDependents("Post"))

	order, err := graph.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"User", "Post", "Comment"}, order)
	assert.Empty(t, graph.DetectCycles())
}

func TestDependencyGraph_DetectCycles(t *testing.T) {
	m := chainModel(t, []string{"B", "C", "A"}, true)
	graph := NewDependencyGraph(m, nil)

	cycles := graph.DetectCycles()
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A", "B", "C"}, cycles[0])
	assert.Equal(t, "A -> B -> C -> A", FormatCycle(cycles[0]))

	_, err := graph.TopologicalSort()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDependencyCycle))
	assert.Contains(t, err.Error(), "A -> B -> C")
}

func TestDependencyGraph_DetectCyclesReportsOnePerComponent(t *testing.T) {
	graph := &DependencyGraph{
		nodes: []string{"A", "B", "C"},
		edges: map[string][]string{
			"A": {"B", "C"},
			"B": {"C"},
			"C": {"A"},
		},
	}

	// A -> C -> A shares a component with A -> B -> C -> A
	assert.Equal(t, [][]string{{"A", "B", "C"}}, graph.DetectCycles())
}

func TestDependencyGraph_IncludeFilter(t *testing.T) {
	m := chainModel(t, []string{"A", "B"}, true)

	graph := NewDependencyGraph(m, func(fk *ForeignKey) bool {
		return fk.DeclaringEntityType().Name() != "B"
	})
	assert.Empty(t, graph.DetectCycles())

	order, err := graph.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, order)
}

func TestDependencyGraph_SelfReferenceIgnoredBySort(t *testing.T) {
	m := NewModel()
	emp, _ := m.AddEntityType("Employee")
	id, _ := emp.AddProperty("Id", TypeInt)
	key, _ := emp.SetPrimaryKey(id)
	manager, _ := emp.AddProperty("ManagerId", TypeInt, Nullable())
	_, err := emp.AddForeignKey([]*Property{manager}, key, emp)
	require.NoError(t, err)

	graph := NewDependencyGraph(m, nil)
	order, err := graph.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"Employee"}, order)
	assert.Equal(t, [][]string{{"Employee"}}, graph.DetectCycles())
}
