package decoder

import (
	"fmt"
	"math"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/coverage"
	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

// Heuristic names accepted by NewSearchHeuristic.
const (
	HeuristicNull     = "null"
	HeuristicIsolated = "isolated"
)

// SearchHeuristic prepares a future-cost estimator for one input. The
// heuristic itself is shared between calls; the Estimator is not.
type SearchHeuristic interface {
	Initialize(source []string, rules []*tm.ConcreteRule, scorer feat.Scorer, inputID int) Estimator
}

// Estimator scores the work left for a given coverage.
type Estimator interface {
	Estimate(cov coverage.Set) float64
}

// NewSearchHeuristic builds a named heuristic.
func NewSearchHeuristic(name string) (SearchHeuristic, error) {
	switch strings.ToLower(name) {
	case HeuristicNull:
		return NullHeuristic{}, nil
	case HeuristicIsolated, "":
		return IsolatedPhraseHeuristic{}, nil
	}
	return nil, fmt.Errorf("unknown search heuristic %q", name)
}

// NullHeuristic estimates zero everywhere.
type NullHeuristic struct{}

func (NullHeuristic) Initialize([]string, []*tm.ConcreteRule, feat.Scorer, int) Estimator {
	return zeroEstimator{}
}

type zeroEstimator struct{}

func (zeroEstimator) Estimate(coverage.Set) float64 { return 0 }

// IsolatedPhraseHeuristic estimates the cost of each uncovered gap from the
// best isolation scores of the rules that tile it. It ignores reordering
// and language model context, so it is not admissible.
type IsolatedPhraseHeuristic struct{}

func (IsolatedPhraseHeuristic) Initialize(source []string, rules []*tm.ConcreteRule, _ feat.Scorer, _ int) Estimator {
	n := len(source)
	best := make([][]float64, n+1)
	for i := range best {
		best[i] = make([]float64, n+1)
		for j := range best[i] {
			best[i][j] = math.Inf(-1)
		}
	}
	for _, r := range rules {
		s, e := r.SourcePosition, r.End()
		if s < 0 || e > n || !isFinite(r.IsolationScore) {
			continue
		}
		best[s][e] = math.Max(best[s][e], r.IsolationScore)
	}

	// future[i][j] is the best tiling score for [i, j).
	future := make([][]float64, n+1)
	for i := range future {
		future[i] = make([]float64, n+1)
	}
	for length := 1; length <= n; length++ {
		for i := 0; i+length <= n; i++ {
			j := i + length
			v := best[i][j]
			for k := i + 1; k < j; k++ {
				v = math.Max(v, future[i][k]+future[k][j])
			}
			if math.IsInf(v, -1) {
				// No rule tiles this span; leave it uncosted.
				v = 0
			}
			future[i][j] = v
		}
	}
	return &isolatedEstimator{n: n, future: future}
}

type isolatedEstimator struct {
	n      int
	future [][]float64
}

// Estimate sums the future cost of every maximal uncovered gap.
func (e *isolatedEstimator) Estimate(cov coverage.Set) float64 {
	h := 0.0
	for start := cov.NextClear(0); start < e.n; {
		end := cov.NextSet(start)
		if end < 0 || end > e.n {
			end = e.n
		}
		h += e.future[start][end]
		if end >= e.n {
			break
		}
		start = cov.NextClear(end)
	}
	return h
}
