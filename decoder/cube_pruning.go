package decoder

import (
	"container/heap"
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/stanfordnlp/phrasal-sub010/coverage"
	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

const (
	DefaultBeamSize      = 1200
	DefaultMaxDistortion = -1

	// DistortionLimit is the input property overriding the decoder's
	// distortion limit for one input. Its value is an int.
	DistortionLimit = "DistortionLimit"

	// Forbidden pops may exceed the capacity by at most this factor.
	maxForbiddenFactor = 10
)

// CubePruningDecoder is a phrase-based decoder that fills one beam per
// source coverage cardinality by cube pruning. It holds no per-call state
// and is safe for concurrent use.
type CubePruningDecoder struct {
	id                 int
	beamCapacity       int
	maxDistortion      int
	ruleQueryLimit     int
	filterUnknownWords bool

	model      tm.TranslationModel
	unknown    *tm.UnknownWordModel
	featurizer *feat.CombinedFeaturizer
	scorer     feat.Scorer
	heuristic  SearchHeuristic
	filter     RecombinationFilter

	logger  *slog.Logger
	metrics *Metrics
}

// gridItem is a queued cell. A nil derivation marks a cell the output space
// forbids; it is still queued so its neighbors stay reachable.
type gridItem struct {
	derivation *Derivation
	consequent *Consequent
	rank       float64
	seq        int
}

func (it *gridItem) forbidden() bool {
	return it.derivation == nil
}

type itemQueue []*gridItem

func (q itemQueue) Len() int { return len(q) }

func (q itemQueue) Less(i, j int) bool {
	a, b := q[i], q[j]
	if a.rank != b.rank {
		return a.rank > b.rank
	}
	if a.forbidden() != b.forbidden() {
		return !a.forbidden()
	}
	return a.seq < b.seq
}

func (q itemQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *itemQueue) Push(x any) { *q = append(*q, x.(*gridItem)) }

func (q *itemQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// searchResult is everything a decode call leaves behind for 1-best or
// n-best extraction.
type searchResult struct {
	state   *searchState
	beams   []*BundleBeam
	goal    *BundleBeam
	backoff bool
	history *RecombinationHistory
	stats   SearchStats
}

// decode runs the search. It returns nil when no beam holds an allowable
// final derivation. history may be nil.
func (d *CubePruningDecoder) decode(source []string, inputID int, props tm.InputProperties,
	space OutputSpace, targets [][]string, scorer feat.Scorer, history *RecombinationHistory) *searchResult {
	start := time.Now()
	log := d.logger.With("decoder", d.id, "input", inputID)

	maxDistortion := d.maxDistortion
	if v, ok := props[DistortionLimit].(int); ok {
		log.Debug("changing distortion limit", "from", d.maxDistortion, "to", v)
		maxDistortion = v
	}

	source, rules := d.getRules(source, props, targets, inputID, scorer)
	if len(source) == 0 {
		log.Warn("decoder failure: empty source")
		d.metrics.observe(resultFailure, SearchStats{Duration: time.Since(start)})
		return nil
	}
	n := len(source)

	rules = space.Filter(rules)
	grid := NewRuleGrid(rules, n, d.ruleQueryLimit)
	if !grid.IsCoverageComplete() {
		log.Warn("incomplete coverage", "covered", grid.Coverage().Cardinality(), "length", n)
	}
	d.featurizer.Initialize(inputID, tm.Views(rules), source)

	st := &searchState{
		inputID:    inputID,
		source:     source,
		featurizer: d.featurizer,
		scorer:     scorer,
		estimator:  d.heuristic.Initialize(source, rules, scorer, inputID),
	}

	beams := make([]*BundleBeam, n+1)
	for i := range beams {
		beams[i] = NewBundleBeam(d.beamCapacity, d.filter, grid, history, maxDistortion, i)
	}
	beams[0].Put(st.root())

	maxPhraseLength := max(grid.MaxSourceLength(), 1)
	forbiddenTotal := 0
	for i := 1; i <= n; i++ {
		seq := 0
		pq := &itemQueue{}
		enqueue := func(cs []*Consequent) {
			for _, c := range cs {
				seq++
				heap.Push(pq, d.materialize(st, space, c, seq))
			}
		}

		for j := max(0, i-maxPhraseLength); j < i; j++ {
			for _, b := range beams[j].BundlesForConsequentSize(i) {
				enqueue(b.NextSuccessors(nil))
			}
		}

		newBeam := beams[i]
		need := min(d.beamCapacity, max(1, n-i))
		realized, forbidden := 0, 0
		for pq.Len() > 0 && realized < d.beamCapacity {
			it := heap.Pop(pq).(*gridItem)
			if it.forbidden() {
				forbidden++
				if forbidden > d.beamCapacity &&
					(newBeam.Size() >= need || forbidden > maxForbiddenFactor*d.beamCapacity) {
					break
				}
			} else {
				newBeam.Put(it.derivation)
				realized++
			}
			enqueue(it.consequent.Bundle.NextSuccessors(it.consequent))
		}
		forbiddenTotal += forbidden

		if log.Enabled(context.Background(), slog.LevelDebug) {
			log.Debug("beam filled", "cardinality", i, "beam", Stats(newBeam),
				"popped", realized, "forbidden", forbidden)
		}
	}

	stats := SearchStats{
		Generated: st.generated,
		Forbidden: forbiddenTotal,
		Discarded: st.discarded,
		Duration:  time.Since(start),
	}
	for _, b := range beams {
		stats.Recombined += b.Recombined()
		stats.Pruned += b.Pruned()
		stats.Discarded += b.PreinsertionDiscarded()
	}
	log.Debug("search done", "generated", stats.Generated, "recombined", stats.Recombined,
		"pruned", stats.Pruned, "forbidden", stats.Forbidden, "elapsed", stats.Duration)

	res := &searchResult{state: st, beams: beams, history: history, stats: stats}
	for i := n; i >= 0; i-- {
		best := beams[i].Best()
		if best == nil {
			continue
		}
		if space.AllowableFinal(best) {
			res.goal = beams[i]
			res.backoff = i != n
			break
		}
	}

	switch {
	case res.goal == nil:
		deepest := deepestBeam(beams)
		log.Warn("decoder failure", "deepest", deepest.Cardinality(), "length", n, "beam", Stats(deepest))
		d.metrics.observe(resultFailure, stats)
		return nil
	case res.backoff:
		log.Warn("decoder failure, backed off", "coverage", res.goal.Cardinality(), "length", n,
			"beam", Stats(res.goal))
		d.metrics.observe(resultBackoff, stats)
	default:
		d.metrics.observe(resultSuccess, stats)
	}
	return res
}

// deepestBeam returns the non-empty beam with the highest cardinality.
func deepestBeam(beams []*BundleBeam) *BundleBeam {
	for i := len(beams) - 1; i > 0; i-- {
		if beams[i].Size() > 0 {
			return beams[i]
		}
	}
	return beams[0]
}

// materialize turns a grid cell into a queue item, building the derivation
// unless the output space forbids it or its score is not finite.
func (d *CubePruningDecoder) materialize(st *searchState, space OutputSpace, c *Consequent, seq int) *gridItem {
	it := &gridItem{consequent: c, seq: seq}
	if space.AllowableContinuation(c.Antecedent, c.Rule) {
		it.derivation = st.extend(c.Antecedent, c.Rule)
	}
	if it.derivation != nil {
		it.rank = it.derivation.Score()
	} else {
		it.rank = c.Antecedent.Score() + c.Rule.IsolationScore
		if !isFinite(it.rank) {
			it.rank = math.Inf(-1)
		}
	}
	return it
}

// getRules queries the translation model. If some source words have no
// rule, they are either dropped from the source and the model is queried
// again, or given pass-through rules by the unknown word model.
func (d *CubePruningDecoder) getRules(source []string, props tm.InputProperties, targets [][]string,
	inputID int, scorer feat.Scorer) ([]string, []*tm.ConcreteRule) {
	if len(source) == 0 {
		return source, nil
	}
	rules := d.model.Rules(source, props, targets, inputID, scorer)
	cov := coverage.New(len(source))
	for _, r := range rules {
		cov.SetRange(r.SourcePosition, r.End())
	}
	if cov.Cardinality() == len(source) {
		return source, rules
	}

	if d.filterUnknownWords {
		var filtered []string
		for i, w := range source {
			if cov.Get(i) {
				filtered = append(filtered, w)
			}
		}
		d.logger.Debug("filtered unknown words", "input", inputID, "from", len(source), "to", len(filtered))
		if len(filtered) == 0 {
			return filtered, nil
		}
		return filtered, d.model.Rules(filtered, props, targets, inputID, scorer)
	}

	if d.unknown != nil {
		for i := range source {
			if !cov.Get(i) {
				rules = append(rules, d.unknown.Rules(source, i, inputID, scorer)...)
			}
		}
	}
	return source, rules
}
