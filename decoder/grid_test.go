package decoder

import (
	"container/heap"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanfordnlp/phrasal-sub010/coverage"
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

func mkRule(n, start int, source, target []string, isolation float64) *tm.ConcreteRule {
	return &tm.ConcreteRule{
		Rule:           &tm.Rule{Source: source, Target: target},
		SourcePosition: start,
		Coverage:       coverage.Span(n, start, start+len(source)),
		IsolationScore: isolation,
	}
}

func TestRuleGrid_GetSortsAndLimits(t *testing.T) {
	n := 3
	r1 := mkRule(n, 0, []string{"a"}, []string{"X"}, -2)
	r2 := mkRule(n, 0, []string{"a"}, []string{"W"}, -1)
	r3 := mkRule(n, 0, []string{"a"}, []string{"V"}, -3)
	r4 := mkRule(n, 1, []string{"b", "c"}, []string{"Y", "Z", "Q"}, -1)

	g := NewRuleGrid([]*tm.ConcreteRule{r1, r2, r3, r4}, n, 2)
	assert.Equal(t, []*tm.ConcreteRule{r2, r1}, g.Get(0, 1))
	assert.Equal(t, []*tm.ConcreteRule{r4}, g.Get(1, 3))
	assert.Empty(t, g.Get(1, 2))
	assert.Nil(t, g.Get(2, 5))
	assert.Nil(t, g.Get(2, 2))

	assert.True(t, g.IsCoverageComplete())
	assert.Equal(t, 3, g.Dimension())
	assert.Equal(t, 4, g.Size())
	assert.Equal(t, 2, g.MaxSourceLength())
	assert.Equal(t, 3, g.MaxTargetLength())
	assert.Contains(t, g.String(), "## 0-1")
}

func TestRuleGrid_IncompleteCoverage(t *testing.T) {
	g := NewRuleGrid([]*tm.ConcreteRule{mkRule(3, 0, []string{"a"}, []string{"X"}, 0)}, 3, -1)
	assert.False(t, g.IsCoverageComplete())
	assert.Equal(t, []int{0}, g.Coverage().Positions())
}

func TestHyperedgeBundle_NextSuccessors(t *testing.T) {
	items := []*Derivation{{ID: 1}, {ID: 2}}
	rules := []*tm.ConcreteRule{
		mkRule(2, 0, []string{"a"}, []string{"X"}, 0),
		mkRule(2, 0, []string{"a"}, []string{"Y"}, -1),
	}
	b := NewHyperedgeBundle(items, rules)

	seed := b.NextSuccessors(nil)
	require.Len(t, seed, 1)
	assert.Equal(t, 0, seed[0].RuleIdx)
	assert.Equal(t, 0, seed[0].ItemIdx)
	assert.Empty(t, b.NextSuccessors(nil), "the seed cell is returned once")

	next := b.NextSuccessors(seed[0])
	require.Len(t, next, 2)
	assert.Equal(t, [2]int{1, 0}, [2]int{next[0].RuleIdx, next[0].ItemIdx})
	assert.Equal(t, [2]int{0, 1}, [2]int{next[1].RuleIdx, next[1].ItemIdx})

	// (1,1) is reachable from both neighbors but returned only once.
	assert.Len(t, b.NextSuccessors(next[0]), 1)
	assert.Empty(t, b.NextSuccessors(next[1]))
}

func TestItemQueue_ForbiddenAfterRealizedAtEqualRank(t *testing.T) {
	pq := &itemQueue{}
	heap.Push(pq, &gridItem{rank: -1, seq: 1})
	realized := &gridItem{derivation: &Derivation{ID: 1}, rank: -1, seq: 2}
	heap.Push(pq, realized)
	heap.Push(pq, &gridItem{derivation: &Derivation{ID: 2}, rank: -3, seq: 3})
	best := &gridItem{rank: 0, seq: 4}
	heap.Push(pq, best)

	assert.Same(t, best, heap.Pop(pq))
	assert.Same(t, realized, heap.Pop(pq))
	assert.True(t, heap.Pop(pq).(*gridItem).forbidden())
	assert.False(t, heap.Pop(pq).(*gridItem).forbidden())
}

func TestIsolatedPhraseHeuristic(t *testing.T) {
	source := []string{"a", "b", "c"}
	rules := []*tm.ConcreteRule{
		mkRule(3, 0, []string{"a"}, []string{"X"}, -1),
		mkRule(3, 1, []string{"b"}, []string{"Y"}, -2),
		mkRule(3, 0, []string{"a", "b"}, []string{"Z"}, -1.5),
		mkRule(3, 2, []string{"c"}, []string{"W"}, -4),
	}
	e := IsolatedPhraseHeuristic{}.Initialize(source, rules, nil, 0)

	assert.InDelta(t, -5.5, e.Estimate(coverage.New(3)), 1e-9)
	assert.InDelta(t, -6.0, e.Estimate(coverage.Span(3, 0, 1)), 1e-9)
	assert.InDelta(t, -1.0, e.Estimate(coverage.Span(3, 1, 3)), 1e-9)

	gapped := coverage.New(3)
	gapped.Set(1)
	assert.InDelta(t, -5.0, e.Estimate(gapped), 1e-9)
	assert.Equal(t, 0.0, e.Estimate(coverage.Span(3, 0, 3)))

	assert.Equal(t, 0.0, NullHeuristic{}.Initialize(source, rules, nil, 0).Estimate(coverage.New(3)))
}

func TestIsolatedPhraseHeuristic_UncoveredWordsAreFree(t *testing.T) {
	rules := []*tm.ConcreteRule{mkRule(2, 0, []string{"a"}, []string{"X"}, -1)}
	e := IsolatedPhraseHeuristic{}.Initialize([]string{"a", "q"}, rules, nil, 0)
	h := e.Estimate(coverage.New(2))
	assert.False(t, math.IsInf(h, 0))
	assert.InDelta(t, -1.0, h, 1e-9)
}

func TestNewSearchHeuristic(t *testing.T) {
	h, err := NewSearchHeuristic("null")
	require.NoError(t, err)
	assert.IsType(t, NullHeuristic{}, h)
	_, err = NewSearchHeuristic("astar")
	assert.Error(t, err)
}

func TestConstrainedOutputSpace(t *testing.T) {
	space := NewConstrainedOutputSpace([]string{"W", "Y"})
	n := 2
	w := mkRule(n, 0, []string{"a"}, []string{"W"}, 0)
	x := mkRule(n, 0, []string{"a"}, []string{"X"}, 0)
	y := mkRule(n, 1, []string{"b"}, []string{"Y"}, 0)
	wy := mkRule(n, 0, []string{"a", "b"}, []string{"W", "Y"}, 0)
	w2 := mkRule(n, 0, []string{"a", "b"}, []string{"W"}, 0)

	assert.Equal(t, []*tm.ConcreteRule{w, y, wy, w2}, space.Filter([]*tm.ConcreteRule{w, x, y, wy, w2}))

	root := &Derivation{Coverage: coverage.New(n), Untranslated: 2}
	assert.True(t, space.AllowableContinuation(root, w))
	assert.True(t, space.AllowableContinuation(root, wy))
	assert.False(t, space.AllowableContinuation(root, x))
	assert.False(t, space.AllowableContinuation(root, y), "Y cannot start the reference")
	assert.False(t, space.AllowableContinuation(root, w2), "source would be used up before the reference")

	afterW := &Derivation{Coverage: coverage.Span(n, 0, 1), Untranslated: 1, Target: []string{"W"}, Rule: w}
	assert.True(t, space.AllowableContinuation(afterW, y))
	assert.True(t, space.AllowableFinal(&Derivation{Target: []string{"W", "Y"}, Rule: y}))
	assert.False(t, space.AllowableFinal(afterW))
	assert.False(t, space.AllowableFinal(nil))
}

func TestUnconstrainedOutputSpace(t *testing.T) {
	var space UnconstrainedOutputSpace
	root := &Derivation{}
	assert.True(t, space.AllowableContinuation(root, nil))
	assert.False(t, space.AllowableFinal(root))
	assert.False(t, space.AllowableFinal(nil))
	assert.True(t, space.AllowableFinal(&Derivation{Rule: mkRule(1, 0, []string{"a"}, []string{"X"}, 0)}))
}
