package decoder

import (
	"container/heap"
	"sort"
	"strings"
)

// latticePath is a suffix of a derivation path, from node to the goal.
// Paths share suffixes, so extending one never copies it.
type latticePath struct {
	node *Derivation
	next *latticePath
	// Partial-score increments of the suffix after node.
	delta float64
}

type pathItem struct {
	path     *latticePath
	priority float64
	seq      int
}

type pathQueue []*pathItem

func (q pathQueue) Len() int { return len(q) }

func (q pathQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q pathQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *pathQueue) Push(x any) { *q = append(*q, x.(*pathItem)) }

func (q *pathQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

// extractNBest enumerates complete paths through the search lattice, best
// first. At each step back toward the root, every derivation recombined
// into the parent is tried in its place. Paths are rebuilt rule by rule so
// the returned derivations carry their true scores.
func extractNBest(res *searchResult, size int, distinct bool) []*Derivation {
	if res == nil || res.goal == nil || size <= 0 {
		return nil
	}
	maxPaths := -1
	if distinct {
		maxPaths = size * 5
	}

	pq := &pathQueue{}
	seq := 0
	push := func(p *latticePath) {
		seq++
		heap.Push(pq, &pathItem{path: p, priority: p.delta + p.node.PartialScore, seq: seq})
	}
	for _, g := range res.goal.Derivations() {
		for _, alt := range res.history.Alternatives(g) {
			push(&latticePath{node: alt})
		}
	}

	cardinality := res.goal.Cardinality()
	seen := make(map[string]bool)
	var out []*Derivation
	paths := 0
	for pq.Len() > 0 && len(out) < size && (maxPaths < 0 || paths < maxPaths) {
		p := heap.Pop(pq).(*pathItem).path
		if !p.node.IsRoot() {
			parent := p.node.Parent
			step := p.node.PartialScore - parent.PartialScore
			for _, alt := range res.history.Alternatives(parent) {
				push(&latticePath{node: alt, next: p, delta: p.delta + step})
			}
			continue
		}

		paths++
		d := rebuild(res.state, p)
		if d == nil || d.IsRoot() || d.Coverage.Cardinality() != cardinality {
			continue
		}
		if distinct {
			key := strings.Join(d.Target, " ")
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PartialScore > out[j].PartialScore
	})
	return out
}

// rebuild replays the rules of a complete path from its root.
func rebuild(st *searchState, p *latticePath) *Derivation {
	d := p.node
	for q := p.next; q != nil; q = q.next {
		if d = st.extend(d, q.node.Rule); d == nil {
			return nil
		}
	}
	return d
}
