package decoder

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/coverage"
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

// RuleGrid indexes the rules of one input by source span. It is built once
// per decode call.
type RuleGrid struct {
	grid       [][]*tm.ConcreteRule
	sorted     []bool
	n          int
	queryLimit int
	coverage   coverage.Set
	size       int

	maxSourceLength int
	maxTargetLength int
}

// NewRuleGrid indexes rules over a source of length n. Each span returns at
// most queryLimit rules; a negative limit means no limit.
func NewRuleGrid(rules []*tm.ConcreteRule, n, queryLimit int) *RuleGrid {
	g := &RuleGrid{
		grid:       make([][]*tm.ConcreteRule, n*n),
		sorted:     make([]bool, n*n),
		n:          n,
		queryLimit: queryLimit,
		coverage:   coverage.New(n),
	}
	for _, r := range rules {
		g.Add(r)
	}
	return g
}

// Add inserts one rule. Rules outside the source are ignored.
func (g *RuleGrid) Add(r *tm.ConcreteRule) {
	start, end := r.SourcePosition, r.End()
	idx := g.index(start, end)
	if idx < 0 {
		return
	}
	g.grid[idx] = append(g.grid[idx], r)
	g.sorted[idx] = false
	g.coverage.SetRange(start, end)
	g.size++
	g.maxSourceLength = max(g.maxSourceLength, len(r.Rule.Source))
	g.maxTargetLength = max(g.maxTargetLength, len(r.Rule.Target))
}

func (g *RuleGrid) index(start, end int) int {
	if start < 0 || end <= start || end > g.n {
		return -1
	}
	return start*g.n + end - 1
}

// Get returns the rules covering exactly [start, end), best isolation score
// first.
func (g *RuleGrid) Get(start, end int) []*tm.ConcreteRule {
	idx := g.index(start, end)
	if idx < 0 {
		return nil
	}
	if !g.sorted[idx] {
		rules := g.grid[idx]
		sort.SliceStable(rules, func(i, j int) bool {
			return rules[i].IsolationScore > rules[j].IsolationScore
		})
		if g.queryLimit >= 0 && len(rules) > g.queryLimit {
			g.grid[idx] = rules[:g.queryLimit]
		}
		g.sorted[idx] = true
	}
	return g.grid[idx]
}

// IsCoverageComplete reports whether every source word has a rule.
func (g *RuleGrid) IsCoverageComplete() bool {
	return g.coverage.Cardinality() == g.n
}

// Coverage is the union of all rule spans.
func (g *RuleGrid) Coverage() coverage.Set { return g.coverage }

// Dimension is the source length.
func (g *RuleGrid) Dimension() int { return g.n }

// Size is the number of rules added.
func (g *RuleGrid) Size() int { return g.size }

func (g *RuleGrid) MaxSourceLength() int { return g.maxSourceLength }
func (g *RuleGrid) MaxTargetLength() int { return g.maxTargetLength }

func (g *RuleGrid) String() string {
	var sb strings.Builder
	for i := 0; i < g.n; i++ {
		for j := i + 1; j <= g.n; j++ {
			rules := g.Get(i, j)
			if len(rules) == 0 {
				continue
			}
			fmt.Fprintf(&sb, "## %d-%d\n", i, j)
			for _, r := range rules {
				sb.WriteString(r.String())
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}
