package decoder

import (
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

// HyperedgeBundle is the implicit grid of rules x antecedents for one
// coverage group and one successor span. Both axes are sorted best first.
type HyperedgeBundle struct {
	items    []*Derivation
	rules    []*tm.ConcreteRule
	expanded map[[2]int]bool
}

// NewHyperedgeBundle creates a bundle. items and rules must already be
// sorted best first.
func NewHyperedgeBundle(items []*Derivation, rules []*tm.ConcreteRule) *HyperedgeBundle {
	return &HyperedgeBundle{
		items:    items,
		rules:    rules,
		expanded: make(map[[2]int]bool),
	}
}

// Consequent is one cell of a bundle.
type Consequent struct {
	Bundle     *HyperedgeBundle
	Rule       *tm.ConcreteRule
	Antecedent *Derivation
	RuleIdx    int
	ItemIdx    int
}

// NextSuccessors returns the cells that become reachable after c was
// popped. A nil c seeds the bundle with its top-left cell. Each cell is
// returned at most once.
func (b *HyperedgeBundle) NextSuccessors(c *Consequent) []*Consequent {
	if c == nil {
		return b.cells([2]int{0, 0})
	}
	return b.cells([2]int{c.RuleIdx + 1, c.ItemIdx}, [2]int{c.RuleIdx, c.ItemIdx + 1})
}

func (b *HyperedgeBundle) cells(positions ...[2]int) []*Consequent {
	var out []*Consequent
	for _, p := range positions {
		r, i := p[0], p[1]
		if r >= len(b.rules) || i >= len(b.items) || b.expanded[p] {
			continue
		}
		b.expanded[p] = true
		out = append(out, &Consequent{
			Bundle:     b,
			Rule:       b.rules[r],
			Antecedent: b.items[i],
			RuleIdx:    r,
			ItemIdx:    i,
		})
	}
	return out
}

// Size is the number of cells in the grid.
func (b *HyperedgeBundle) Size() int {
	return len(b.items) * len(b.rules)
}
