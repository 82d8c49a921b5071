package decoder

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// abTable is the two-word example: Z alone outscores X followed by Y.
func abTable() *tm.PhraseTable {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	pt.Add([]string{"b"}, []string{"Y"}, -1)
	pt.Add([]string{"a", "b"}, []string{"Z"}, -0.5)
	return pt
}

func newTestDecoder(t *testing.T, pt *tm.PhraseTable, configure ...func(*Builder)) *CubePruningDecoder {
	t.Helper()
	scorer := feat.NewLinearScorer()
	scorer.Weights["TM"] = 1
	scorer.Weights[tm.FeatureUnknownWord] = 1
	scorer.Weights[feat.FeatureLinearDistortion] = 1

	b := NewBuilder()
	b.BeamSize = 10
	b.Model = pt
	b.Scorer = scorer
	b.Logger = quietLogger()
	for _, c := range configure {
		c(b)
	}
	d, err := b.Build()
	require.NoError(t, err)
	return d
}

func words(s string) []string { return strings.Fields(s) }

func withDistortion(b *Builder) {
	b.Featurizer = feat.NewCombinedFeaturizer(feat.LinearDistortion{})
}

func TestTranslate_PrefersBetterPhrase(t *testing.T) {
	d := newTestDecoder(t, abTable())
	tr, ok := d.Translate(words("a b"), 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "Z", tr.String())
	assert.InDelta(t, -0.5, tr.Score, 1e-9)
	assert.True(t, tr.Derivation.IsDone())
	assert.Equal(t, []feat.FeatureValue{{Name: "TM", Value: -0.5}}, tr.Features)
}

type mergeAll struct{}

func (mergeAll) Hash(*Derivation) uint64          { return 0 }
func (mergeAll) Combinable(_, _ *Derivation) bool { return true }

func TestTranslate_CapacityOneStillCompletes(t *testing.T) {
	d := newTestDecoder(t, abTable(), func(b *Builder) {
		b.BeamSize = 1
		b.Filter = mergeAll{}
	})
	tr, ok := d.Translate(words("a b"), 0, nil, nil, nil)
	require.True(t, ok)
	assert.True(t, tr.Derivation.IsDone())
	assert.Equal(t, "Z", tr.String())
}

// forbidAfterFirst rejects every rule applied after a derivation covering
// exactly position 0, and accepts only complete derivations as final.
type forbidAfterFirst struct{}

func (forbidAfterFirst) SetSourceSequence([]string) {}

func (forbidAfterFirst) Filter(rules []*tm.ConcreteRule) []*tm.ConcreteRule { return rules }

func (forbidAfterFirst) AllowableContinuation(partial *Derivation, _ *tm.ConcreteRule) bool {
	return !(partial.Coverage.Cardinality() == 1 && partial.Coverage.Get(0))
}

func (forbidAfterFirst) AllowableFinal(d *Derivation) bool {
	return d != nil && !d.IsRoot() && d.IsDone()
}

func TestTranslate_ForbiddenContinuationFails(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	pt.Add([]string{"b"}, []string{"Y"}, -1)
	d := newTestDecoder(t, pt, func(b *Builder) { b.MaxDistortion = 0 })

	assert.NotPanics(t, func() {
		tr, ok := d.Translate(words("a b"), 3, nil, forbidAfterFirst{}, nil)
		assert.False(t, ok)
		assert.Nil(t, tr)

		list, ok := d.NBest(words("a b"), 3, nil, forbidAfterFirst{}, nil, 5, true)
		assert.False(t, ok)
		assert.Empty(t, list)
	})

	// Without the constraint the same decoder succeeds.
	tr, ok := d.Translate(words("a b"), 3, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "X Y", tr.String())
}

func TestTranslate_BacksOffToPartialCoverage(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	pt.Add([]string{"b"}, []string{"Y"}, -1)
	d := newTestDecoder(t, pt, func(b *Builder) { b.MaxDistortion = 0 })

	space := constrainedAfterFirst{}
	tr, ok := d.Translate(words("a b"), 0, nil, space, nil)
	require.True(t, ok)
	assert.Equal(t, "X", tr.String())
	assert.False(t, tr.Derivation.IsDone())
}

func TestTranslate_FailureWarningsReportBeamStats(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	pt.Add([]string{"b"}, []string{"Y"}, -1)
	var buf bytes.Buffer
	d := newTestDecoder(t, pt, func(b *Builder) {
		b.MaxDistortion = 0
		b.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	})

	_, ok := d.Translate(words("a b"), 0, nil, constrainedAfterFirst{}, nil)
	require.True(t, ok)
	out := buf.String()
	assert.Contains(t, out, "backed off")
	assert.Contains(t, out, "coverage=1")
	assert.Contains(t, out, "beam.size=1")
	assert.Contains(t, out, "beam.best=")
	assert.Contains(t, out, "beam.stddev=0")

	buf.Reset()
	_, ok = d.Translate(words("a b"), 1, nil, forbidAfterFirst{}, nil)
	require.False(t, ok)
	out = buf.String()
	assert.Contains(t, out, "decoder failure")
	assert.NotContains(t, out, "backed off")
	assert.Contains(t, out, "deepest=1")
	assert.Contains(t, out, "beam.size=1")
	assert.Contains(t, out, "beam.worst=")

	// Debug records are dropped by the default handler level.
	assert.NotContains(t, out, "beam filled")
}

// constrainedAfterFirst forbids continuing from {0} but accepts partial
// results, so the decoder backs off to the last non-empty beam.
type constrainedAfterFirst struct{ forbidAfterFirst }

func (constrainedAfterFirst) AllowableFinal(d *Derivation) bool {
	return UnconstrainedOutputSpace{}.AllowableFinal(d)
}

func TestTranslate_ForcedDecoding(t *testing.T) {
	pt := abTable()
	pt.Add([]string{"a"}, []string{"W"}, -3)
	d := newTestDecoder(t, pt)

	tr, ok := d.Translate(words("a b"), 0, nil, NewConstrainedOutputSpace(words("W Y")), nil)
	require.True(t, ok)
	assert.Equal(t, "W Y", tr.String())
	assert.InDelta(t, -4.0, tr.Score, 1e-9)

	_, ok = d.Translate(words("a b"), 0, nil, NewConstrainedOutputSpace(words("Q")), nil)
	assert.False(t, ok)
}

// unfilteredSpace checks continuations against the references but keeps
// every rule, so forbidden cells reach the queue.
type unfilteredSpace struct{ *ConstrainedOutputSpace }

func (unfilteredSpace) Filter(rules []*tm.ConcreteRule) []*tm.ConcreteRule { return rules }

func TestTranslate_ForbiddenPopsDoNotStarveBeam(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	for i, w := range words("X1 X2 X3") {
		pt.Add([]string{"a"}, []string{w}, -0.1*float64(i+1))
	}
	pt.Add([]string{"a"}, []string{"W"}, -3)
	pt.Add([]string{"b"}, []string{"Y"}, -1)
	d := newTestDecoder(t, pt, func(b *Builder) { b.BeamSize = 1 })

	// The three best cells for "a" are forbidden; W is only reached after
	// more forbidden pops than the beam capacity.
	space := unfilteredSpace{NewConstrainedOutputSpace(words("W Y"))}
	tr, ok := d.Translate(words("a b"), 0, nil, space, nil)
	require.True(t, ok)
	assert.Equal(t, "W Y", tr.String())
}

func TestTranslate_UnknownWords(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)

	d := newTestDecoder(t, pt, withDistortion)
	tr, ok := d.Translate(words("a q ."), 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "X q .", tr.String())
	assert.InDelta(t, -2.0, tr.Score, 1e-9)

	filtering := newTestDecoder(t, pt, func(b *Builder) { b.FilterUnknownWords = true })
	tr, ok = filtering.Translate(words("a q"), 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "X", tr.String())
	assert.Equal(t, []string{"a"}, tr.Derivation.Source)

	_, ok = filtering.Translate(words("q r"), 0, nil, nil, nil)
	assert.False(t, ok, "nothing is left after filtering")
}

func TestTranslate_EmptySourceFails(t *testing.T) {
	d := newTestDecoder(t, abTable())
	tr, ok := d.Translate(nil, 0, nil, nil, nil)
	assert.False(t, ok)
	assert.Nil(t, tr)
}

func TestTranslate_NonFiniteRulesAreDropped(t *testing.T) {
	pt := abTable()
	pt.Add([]string{"a", "b"}, []string{"BAD"}, math.Inf(1))
	pt.Add([]string{"a", "b"}, []string{"NAN"}, math.NaN())
	d := newTestDecoder(t, pt)

	tr, ok := d.Translate(words("a b"), 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "Z", tr.String())
}

func TestTranslate_DistortionLimitProperty(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	pt.Add([]string{"b"}, []string{"Y"}, -1)
	// A negative distortion weight rewards jumps, so unlimited search reorders.
	d := newTestDecoder(t, pt, withDistortion, func(b *Builder) {
		b.Scorer.(*feat.LinearScorer).Weights[feat.FeatureLinearDistortion] = -1
	})

	tr, ok := d.Translate(words("a b"), 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "Y X", tr.String())
	assert.InDelta(t, 1.0, tr.Score, 1e-9)

	tr, ok = d.Translate(words("a b"), 0, tm.InputProperties{DistortionLimit: 0}, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "X Y", tr.String())
}

// richTable gives every word of "a b c d" two translations plus a few
// multi-word phrases.
func richTable() *tm.PhraseTable {
	pt := tm.NewPhraseTable("TM")
	for i, w := range words("a b c d") {
		pt.Add([]string{w}, []string{strings.ToUpper(w)}, -1-0.1*float64(i))
		pt.Add([]string{w}, []string{strings.ToUpper(w) + "'"}, -1.5-0.1*float64(i))
	}
	pt.Add(words("a b"), words("AB"), -1.7)
	pt.Add(words("b c"), words("BC"), -2.5)
	pt.Add(words("c d"), words("CD"), -1.9)
	pt.Add(words("a b c"), words("ABC"), -3.2)
	return pt
}

func TestDecode_CapacityAndCoverageInvariants(t *testing.T) {
	for _, capacity := range []int{1, 2, 3, 50} {
		t.Run(fmt.Sprintf("capacity=%d", capacity), func(t *testing.T) {
			d := newTestDecoder(t, richTable(), func(b *Builder) {
				b.BeamSize = capacity
				b.Featurizer = feat.NewCombinedFeaturizer(feat.LinearDistortion{})
			})
			source := words("a b c d")
			res := d.decode(source, 0, nil, UnconstrainedOutputSpace{}, nil, d.scorer, NewRecombinationHistory())
			require.NotNil(t, res)
			require.False(t, res.backoff)

			for i, b := range res.beams {
				assert.LessOrEqual(t, b.Size(), capacity, "beam %d", i)
				for _, der := range b.Derivations() {
					assert.Equal(t, i, der.Coverage.Cardinality())
					for _, p := range der.Coverage.Positions() {
						assert.Less(t, p, len(source))
					}
				}
			}
			for _, der := range res.goal.Derivations() {
				assert.True(t, der.IsDone())
				assert.Equal(t, len(source), der.Coverage.Cardinality())
			}
		})
	}
}

func TestDecode_RecombinationSoundness(t *testing.T) {
	d := newTestDecoder(t, richTable(), func(b *Builder) {
		b.BeamSize = 4
		b.Filter = SourceCoverage{}
	})
	history := NewRecombinationHistory()
	res := d.decode(words("a b c d"), 0, nil, UnconstrainedOutputSpace{}, nil, d.scorer, history)
	require.NotNil(t, res)
	require.Positive(t, history.Len())

	for rep, absorbed := range history.absorbed {
		for _, a := range absorbed {
			assert.GreaterOrEqual(t, rep.Score(), a.Score())
		}
	}
}

func TestNBest_OrderingAndDistinctness(t *testing.T) {
	d := newTestDecoder(t, richTable(), withDistortion, func(b *Builder) { b.BeamSize = 20 })
	source := words("a b c d")

	list, ok := d.NBest(source, 0, nil, nil, nil, 15, true)
	require.True(t, ok)
	require.NotEmpty(t, list)
	assert.LessOrEqual(t, len(list), 15)

	seen := map[string]bool{}
	for i, tr := range list {
		assert.Equal(t, i, tr.NBestID)
		assert.True(t, tr.Derivation.IsDone())
		assert.False(t, seen[tr.String()], "duplicate %q", tr)
		seen[tr.String()] = true
		if i > 0 {
			assert.GreaterOrEqual(t, list[i-1].Score, tr.Score)
		}
	}

	best, ok := d.Translate(source, 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, best.String(), list[0].String())
	assert.InDelta(t, best.Score, list[0].Score, 1e-9)
}

func TestNBest_SizeOneMatchesTranslate(t *testing.T) {
	d := newTestDecoder(t, richTable(), withDistortion)
	source := words("a b c d")

	best, ok := d.Translate(source, 0, nil, nil, nil)
	require.True(t, ok)
	list, ok := d.NBest(source, 0, nil, nil, nil, 1, false)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, best.Target, list[0].Target)
	assert.InDelta(t, best.Score, list[0].Score, 1e-9)
}

func TestNBest_RecoversRecombinedDerivations(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	pt.Add([]string{"a"}, []string{"X"}, -2)
	d := newTestDecoder(t, pt)

	all, ok := d.NBest(words("a"), 0, nil, nil, nil, 5, false)
	require.True(t, ok)
	require.Len(t, all, 2)
	assert.InDelta(t, -1.0, all[0].Score, 1e-9)
	assert.InDelta(t, -2.0, all[1].Score, 1e-9)

	distinct, ok := d.NBest(words("a"), 0, nil, nil, nil, 5, true)
	require.True(t, ok)
	require.Len(t, distinct, 1)
	assert.Equal(t, "X", distinct[0].String())
}

func TestNBest_RecoversDerivationsAbsorbedBeforeGoal(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	pt.Add([]string{"a"}, []string{"W"}, -2)
	pt.Add([]string{"b"}, []string{"Y"}, -1)
	// W is merged into X on coverage {0}, so W Y only exists through the
	// history of the first beam.
	d := newTestDecoder(t, pt, func(b *Builder) {
		b.Filter = SourceCoverage{}
		b.MaxDistortion = 0
	})

	best, ok := d.Translate(words("a b"), 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "X Y", best.String())

	list, ok := d.NBest(words("a b"), 0, nil, nil, nil, 5, false)
	require.True(t, ok)
	require.Len(t, list, 2)
	assert.Equal(t, "X Y", list[0].String())
	assert.InDelta(t, -2.0, list[0].Score, 1e-9)
	assert.Equal(t, "W Y", list[1].String())
	assert.InDelta(t, -3.0, list[1].Score, 1e-9)

	parent := list[1].Derivation.Parent
	require.NotNil(t, parent)
	assert.Equal(t, []string{"W"}, parent.Target)
	assert.Equal(t, 1, parent.Coverage.Cardinality())
}

func TestNBest_TerminatesWithFewDistinctOutputs(t *testing.T) {
	pt := tm.NewPhraseTable("TM")
	pt.Add([]string{"a"}, []string{"X"}, -1)
	d := newTestDecoder(t, pt)

	list, ok := d.NBest(words("a"), 0, nil, nil, nil, 100, true)
	require.True(t, ok)
	assert.Len(t, list, 1)
}

func TestTranslate_Idempotent(t *testing.T) {
	d := newTestDecoder(t, richTable(), func(b *Builder) {
		b.BeamSize = 3
		b.Featurizer = feat.NewCombinedFeaturizer(feat.LinearDistortion{})
	})
	source := words("a b c d")
	first, ok := d.Translate(source, 0, nil, nil, nil)
	require.True(t, ok)

	var wg sync.WaitGroup
	results := make([]*Translation, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = d.Translate(source, i, nil, nil, nil)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		require.NotNil(t, r)
		assert.Equal(t, first.Target, r.Target)
		assert.Equal(t, first.Score, r.Score)
	}
}

func TestBuilder_Errors(t *testing.T) {
	valid := func() *Builder {
		b := NewBuilder()
		b.Model = abTable()
		b.Scorer = feat.NewLinearScorer()
		b.Logger = quietLogger()
		return b
	}

	tests := []struct {
		name      string
		configure func(*Builder)
		err       error
	}{
		{"zero beam", func(b *Builder) { b.BeamSize = 0 }, ErrInvalidBeamSize},
		{"negative beam", func(b *Builder) { b.BeamSize = -3 }, ErrInvalidBeamSize},
		{"itg", func(b *Builder) { b.UseITGConstraints = true }, ErrUnsupportedITG},
		{"tree beam", func(b *Builder) { b.BeamType = BeamTypeTree }, ErrUnsupportedBeamType},
		{"no model", func(b *Builder) { b.Model = nil }, ErrNoTranslationModel},
		{"no scorer", func(b *Builder) { b.Scorer = nil }, ErrNoScorer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.configure(b)
			_, err := b.Build()
			assert.ErrorIs(t, err, tt.err)
		})
	}

	b := valid()
	d1, err := b.Build()
	require.NoError(t, err)
	d2, err := b.Build()
	require.NoError(t, err)
	assert.Equal(t, 0, d1.ID())
	assert.Equal(t, 1, d2.ID())
}

func TestTranslateWithScorer(t *testing.T) {
	d := newTestDecoder(t, abTable(), withDistortion)
	// Flipping the TM weight makes the worst-scoring split win.
	flipped := feat.NewLinearScorer()
	flipped.Weights["TM"] = -1
	flipped.Weights[feat.FeatureLinearDistortion] = 1

	tr, ok := d.TranslateWithScorer(flipped, words("a b"), 0, nil, nil, nil)
	require.True(t, ok)
	assert.Equal(t, "X Y", tr.String())
	assert.InDelta(t, 2.0, tr.Score, 1e-9)

	list, ok := d.NBestWithScorer(flipped, words("a b"), 0, nil, nil, nil, 1, false)
	require.True(t, ok)
	assert.Equal(t, tr.Score, list[0].Score)
}

func TestDump(t *testing.T) {
	d := newTestDecoder(t, abTable())
	tr, ok := d.Translate(words("a b"), 0, nil, nil, nil)
	require.True(t, ok)

	var first, second bytes.Buffer
	require.NoError(t, Dump(&first, tr.Derivation))
	require.NoError(t, Dump(&second, tr.Derivation))
	assert.Equal(t, first.String(), second.String())

	lines := strings.Split(strings.TrimSpace(first.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "# a b", lines[0])
	assert.Contains(t, lines[1], "a b => Z")
	assert.Contains(t, lines[1], "TM=-0.5")
	assert.True(t, strings.HasPrefix(lines[2], "= Z"))
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	d := newTestDecoder(t, abTable(), func(b *Builder) { b.Metrics = m })

	_, ok := d.Translate(words("a b"), 0, nil, nil, nil)
	require.True(t, ok)
	_, ok = d.Translate(nil, 1, nil, nil, nil)
	require.False(t, ok)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodes.WithLabelValues(resultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decodes.WithLabelValues(resultFailure)))
	assert.Positive(t, testutil.ToFloat64(m.generated))
}
