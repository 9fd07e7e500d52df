package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/visibility-engine/internal/state"
)

func noopStage(context.Context, *state.State) (state.Update, error) {
	return state.Update{}, nil
}

func noopWorker(context.Context, Payload) (state.Update, error) {
	return state.Update{}, nil
}

func noopRouter(*state.State) (Route, error) {
	return FanOut(), nil
}

func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *Graph)
		want  error
	}{
		{
			name:  "no entry",
			build: func(g *Graph) { require.NoError(t, g.AddStage("a", noopStage)) },
			want:  ErrNoEntry,
		},
		{
			name: "missing edge",
			build: func(g *Graph) {
				require.NoError(t, g.AddStage("a", noopStage))
				require.NoError(t, g.SetEntry("a"))
			},
			want: ErrMissingEdge,
		},
		{
			name: "unreachable",
			build: func(g *Graph) {
				require.NoError(t, g.AddStage("a", noopStage))
				require.NoError(t, g.AddStage("b", noopStage))
				require.NoError(t, g.AddEdge("a", End))
				require.NoError(t, g.AddEdge("b", End))
				require.NoError(t, g.SetEntry("a"))
			},
			want: ErrUnreachable,
		},
		{
			name: "unknown worker",
			build: func(g *Graph) {
				require.NoError(t, g.AddFanOut("fan", noopRouter, "ghost"))
				require.NoError(t, g.AddEdge("fan", End))
				require.NoError(t, g.SetEntry("fan"))
			},
			want: ErrUnknownWorker,
		},
		{
			name: "fan-out targets a stage",
			build: func(g *Graph) {
				require.NoError(t, g.AddStage("a", noopStage))
				require.NoError(t, g.AddFanOut("fan", noopRouter, "a"))
				require.NoError(t, g.AddEdge("a", "fan"))
				require.NoError(t, g.AddEdge("fan", End))
				require.NoError(t, g.SetEntry("a"))
			},
			want: ErrUnknownWorker,
		},
		{
			name: "valid",
			build: func(g *Graph) {
				require.NoError(t, g.AddStage("a", noopStage, state.FieldPerspectives, state.FieldMessages))
				require.NoError(t, g.AddInterrupt("review"))
				require.NoError(t, g.AddWorker("w", noopWorker, state.FieldPrompts, state.FieldMessages))
				require.NoError(t, g.AddFanOut("fan", noopRouter, "w"))
				require.NoError(t, g.AddStage("b", noopStage, state.FieldBrandDescription, state.FieldMessages))
				require.NoError(t, g.AddEdge("a", "review"))
				require.NoError(t, g.AddEdge("review", "fan"))
				require.NoError(t, g.AddEdge("fan", "b"))
				require.NoError(t, g.AddEdge("b", End))
				require.NoError(t, g.SetEntry("a"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGraph("test")
			tt.build(g)
			err := g.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGraphBuilderErrors(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddStage("a", noopStage))

	assert.ErrorIs(t, g.AddStage("a", noopStage), ErrNodeExists)
	assert.ErrorIs(t, g.AddEdge("missing", "a"), ErrNodeNotFound)
	assert.ErrorIs(t, g.AddEdge("a", "missing"), ErrNodeNotFound)
	assert.ErrorIs(t, g.SetEntry("missing"), ErrNodeNotFound)
	assert.Error(t, g.AddStage("nil", nil))

	require.NoError(t, g.AddEdge("a", End))
	assert.Error(t, g.AddEdge("a", End), "second edge from the same node")
}

func TestWorkersCannotDeclareScalars(t *testing.T) {
	g := NewGraph("test")
	err := g.AddWorker("w", noopWorker, state.FieldPrompts, state.FieldBrandDescription)
	assert.ErrorIs(t, err, state.ErrScalarInBranch)
}

func TestWorkersHaveNoEdges(t *testing.T) {
	g := NewGraph("test")
	require.NoError(t, g.AddWorker("w", noopWorker, state.FieldPrompts))
	assert.Error(t, g.AddEdge("w", End))
}

func TestGraphAccessors(t *testing.T) {
	g := NewGraph("brand")
	require.NoError(t, g.AddStage("a", noopStage))
	require.NoError(t, g.AddStage("b", noopStage))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.SetEntry("a"))

	assert.Equal(t, "brand", g.Name())
	assert.Equal(t, "a", g.Entry())
	assert.Equal(t, []string{"a", "b"}, g.Nodes())

	next, ok := g.Next("a")
	assert.True(t, ok)
	assert.Equal(t, "b", next)
	_, ok = g.Next("b")
	assert.False(t, ok)
}
