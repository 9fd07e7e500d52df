package state

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/visibility-engine/pkg/types"
)

func prompt(text string) types.Prompt {
	return types.Prompt{Text: text}
}

func newState() *State {
	return New("run-1", types.BrandInfo{CompanyName: "Acme", Website: "acme.com"}, Tunables{
		NumberOfPerspectives: 2,
		NumberOfPrompts:      1,
		NumberOfResponses:    1,
	})
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		field Field
		want  Strategy
	}{
		{FieldBrandDescription, LastWriterWins},
		{FieldCompetitors, LastWriterWins},
		{FieldPerspectives, LastWriterWins},
		{FieldCounters, LastWriterWins},
		{FieldPrompts, ConcatInOrder},
		{FieldResponses, ConcatInOrder},
		{FieldMessages, ConcatInOrder},
	}
	for _, tt := range tests {
		t.Run(string(tt.field), func(t *testing.T) {
			got, ok := StrategyOf(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want == ConcatInOrder, IsAccumulator(tt.field))
		})
	}

	_, ok := StrategyOf("human_feedback")
	assert.False(t, ok)
}

func TestUpdateFields(t *testing.T) {
	var empty Update
	assert.True(t, empty.IsEmpty())

	u := Update{
		BrandDescription: Set("desc"),
		Competitors:      Set([]types.Competitor{}),
		Prompts:          []types.Prompt{prompt("a")},
	}
	assert.Equal(t, []Field{FieldBrandDescription, FieldCompetitors, FieldPrompts}, u.Fields())
}

func TestEmptyListIsAWrite(t *testing.T) {
	s := newState()
	s.Competitors = []types.Competitor{{Name: "Old"}}

	require.NoError(t, s.Apply(Update{Competitors: Set([]types.Competitor{})}))
	assert.Empty(t, s.Competitors)
}

func TestCheckWrites(t *testing.T) {
	u := Update{BrandDescription: Set("x"), Messages: []types.Message{{Role: types.RoleAI}}}

	assert.NoError(t, u.CheckWrites([]Field{FieldBrandDescription, FieldMessages}))
	assert.ErrorIs(t, u.CheckWrites([]Field{FieldBrandDescription}), ErrUndeclaredWrite)
}

func TestApplyLastWriterWins(t *testing.T) {
	s := newState()
	require.NoError(t, s.Apply(Update{BrandDescription: Set("raw")}))
	require.NoError(t, s.Apply(Update{BrandDescription: Set("refined")}))

	assert.Equal(t, "refined", s.BrandDescription)
	assert.Equal(t, int64(2), s.Version)
}

func TestApplyCounters(t *testing.T) {
	s := newState()
	require.NoError(t, s.Apply(Update{Competitors: Set([]types.Competitor{{Name: "Globex"}, {Name: "Initech"}})}))

	require.NoError(t, s.Apply(Update{Counters: Set(Counters{Brand: 3, Competitors: []int{1, 2}})}))
	assert.Equal(t, 3, s.BrandMentions)
	assert.Equal(t, 1, s.Competitors[0].Mentions)
	assert.Equal(t, 2, s.Competitors[1].Mentions)

	err := s.Apply(Update{Counters: Set(Counters{Brand: 1, Competitors: []int{1}})})
	assert.ErrorIs(t, err, ErrCounterMismatch)
	assert.Equal(t, 3, s.BrandMentions, "rejected update must not apply")
}

func TestMergeBranchesPreservesInvocationOrder(t *testing.T) {
	s := newState()

	deltas := []Update{
		{Prompts: []types.Prompt{prompt("a")}},
		{Prompts: []types.Prompt{prompt("b"), prompt("c")}},
		{},
	}
	require.NoError(t, s.MergeBranches(deltas))

	want := []types.Prompt{prompt("a"), prompt("b"), prompt("c")}
	if diff := cmp.Diff(want, s.Prompts); diff != "" {
		t.Errorf("merged prompts mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeBranchesAppendsToExisting(t *testing.T) {
	s := newState()
	s.Responses = []types.Response{{Response: "first"}}

	require.NoError(t, s.MergeBranches([]Update{
		{Responses: []types.Response{{Response: "second"}}},
	}))
	assert.Len(t, s.Responses, 2)
	assert.Equal(t, "second", s.Responses[1].Response)
}

func TestMergeBranchesRejectsScalarWrites(t *testing.T) {
	s := newState()

	err := s.MergeBranches([]Update{
		{Prompts: []types.Prompt{prompt("a")}},
		{BrandDescription: Set("hijacked")},
	})
	require.ErrorIs(t, err, ErrScalarInBranch)
	assert.Empty(t, s.Prompts, "no partial merge on contract violation")
	assert.Empty(t, s.BrandDescription)
	assert.Zero(t, s.Version)
}

func TestMergeBranchesZeroBranches(t *testing.T) {
	s := newState()
	require.NoError(t, s.MergeBranches(nil))
	assert.Empty(t, s.Prompts)
}

func TestFeedbackFor(t *testing.T) {
	s := newState()
	_, ok := s.FeedbackFor("review_perspectives")
	assert.False(t, ok)

	s.SetFeedback(types.Feedback{Node: "review_perspectives", Text: "focus on students"})
	fb, ok := s.FeedbackFor("review_perspectives")
	require.True(t, ok)
	assert.Equal(t, "focus on students", fb.Text)
	assert.False(t, fb.SubmittedAt.IsZero())

	_, ok = s.FeedbackFor("review_prompts")
	assert.False(t, ok)
}

func TestCloneIsDeep(t *testing.T) {
	s := newState()
	s.Competitors = []types.Competitor{{Name: "Globex"}}
	s.Prompts = []types.Prompt{prompt("a")}
	s.SetFeedback(types.Feedback{Node: "n", Text: "t"})

	c := s.Clone()
	c.Competitors[0].Mentions = 9
	c.Prompts[0].Text = "changed"
	c.HumanFeedback.Text = "changed"

	assert.Zero(t, s.Competitors[0].Mentions)
	assert.Equal(t, "a", s.Prompts[0].Text)
	assert.Equal(t, "t", s.HumanFeedback.Text)
	assert.Nil(t, (*State)(nil).Clone())
}

func TestRecordFailures(t *testing.T) {
	s := newState()
	s.RecordFailures(nil)
	assert.Zero(t, s.Version)

	s.RecordFailures([]types.BranchFailure{{Node: "dispatch", Index: 1, Error: "boom"}})
	assert.Len(t, s.Failures, 1)
	assert.Equal(t, int64(1), s.Version)
}
