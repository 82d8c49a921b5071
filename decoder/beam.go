package decoder

import (
	"container/heap"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// BeamType selects the beam implementation.
type BeamType int

const (
	// BeamTypeBundle groups derivations by exact coverage for cube pruning.
	BeamTypeBundle BeamType = iota
	// BeamTypeTree is a plain bounded beam.
	BeamTypeTree
)

func (t BeamType) String() string {
	switch t {
	case BeamTypeBundle:
		return "bundle"
	case BeamTypeTree:
		return "tree"
	}
	return fmt.Sprintf("BeamType(%d)", int(t))
}

// ParseBeamType accepts the names printed by BeamType.String.
func ParseBeamType(s string) (BeamType, error) {
	switch strings.ToLower(s) {
	case "bundle", "":
		return BeamTypeBundle, nil
	case "tree":
		return BeamTypeTree, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedBeamType, s)
}

// Beam is a bounded set of derivations with recombination.
type Beam interface {
	// Put inserts d. It returns the derivation that left the beam as a
	// result: d itself if it was absorbed or pruned, a former member if it
	// was displaced, or nil.
	Put(d *Derivation) *Derivation
	// Derivations returns the representatives, best first.
	Derivations() []*Derivation
	Best() *Derivation
	Size() int
	Capacity() int
	Recombined() int
	Pruned() int
	PreinsertionDiscarded() int
}

// TreeBeam keeps at most capacity representatives, evicting the worst.
type TreeBeam struct {
	capacity int
	recomb   *RecombinationHash
	history  *RecombinationHistory
	items    worstFirst
	sorted   []*Derivation

	recombined int
	pruned     int
	discarded  int
}

// NewTreeBeam creates an empty beam. history may be nil.
func NewTreeBeam(capacity int, filter RecombinationFilter, history *RecombinationHistory) *TreeBeam {
	return &TreeBeam{
		capacity: capacity,
		recomb:   NewRecombinationHash(filter),
		history:  history,
		items:    worstFirst{index: make(map[*Derivation]int)},
	}
}

func (b *TreeBeam) Put(d *Derivation) *Derivation {
	if !isFinite(d.Score()) {
		b.discarded++
		return d
	}
	status, other := b.recomb.Update(d)
	switch status {
	case StatusSelf:
		return nil
	case StatusCombinable:
		b.recombined++
		b.history.Log(other, d)
		return d
	case StatusBetter:
		b.recombined++
		b.history.Log(d, other)
		b.remove(other)
		b.push(d)
		return other
	}

	b.push(d)
	if b.items.Len() <= b.capacity {
		return nil
	}
	worst := heap.Pop(&b.items).(*Derivation)
	b.sorted = nil
	b.recomb.Remove(worst)
	b.pruned++
	return worst
}

func (b *TreeBeam) push(d *Derivation) {
	heap.Push(&b.items, d)
	b.sorted = nil
}

func (b *TreeBeam) remove(d *Derivation) {
	if i, ok := b.items.index[d]; ok {
		heap.Remove(&b.items, i)
		b.sorted = nil
	}
}

func (b *TreeBeam) Derivations() []*Derivation {
	if b.sorted == nil {
		b.sorted = make([]*Derivation, len(b.items.list))
		copy(b.sorted, b.items.list)
		sort.Slice(b.sorted, func(i, j int) bool { return b.sorted[i].Better(b.sorted[j]) })
	}
	return b.sorted
}

func (b *TreeBeam) Best() *Derivation {
	var best *Derivation
	for _, d := range b.items.list {
		if best == nil || d.Better(best) {
			best = d
		}
	}
	return best
}

func (b *TreeBeam) Size() int                  { return b.items.Len() }
func (b *TreeBeam) Capacity() int              { return b.capacity }
func (b *TreeBeam) Recombined() int            { return b.recombined }
func (b *TreeBeam) Pruned() int                { return b.pruned }
func (b *TreeBeam) PreinsertionDiscarded() int { return b.discarded }

func (b *TreeBeam) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "size %d/%d recombined %d pruned %d\n", b.Size(), b.capacity, b.recombined, b.pruned)
	for i, d := range b.Derivations() {
		fmt.Fprintf(&sb, "%d %s\n", i, d)
	}
	return sb.String()
}

// worstFirst is a heap with the lowest scoring derivation on top.
type worstFirst struct {
	list  []*Derivation
	index map[*Derivation]int
}

func (h worstFirst) Len() int           { return len(h.list) }
func (h worstFirst) Less(i, j int) bool { return h.list[j].Better(h.list[i]) }

func (h worstFirst) Swap(i, j int) {
	h.list[i], h.list[j] = h.list[j], h.list[i]
	h.index[h.list[i]] = i
	h.index[h.list[j]] = j
}

func (h *worstFirst) Push(x any) {
	d := x.(*Derivation)
	h.index[d] = len(h.list)
	h.list = append(h.list, d)
}

func (h *worstFirst) Pop() any {
	n := len(h.list)
	d := h.list[n-1]
	h.list[n-1] = nil
	h.list = h.list[:n-1]
	delete(h.index, d)
	return d
}

// BeamStats summarizes the scores held by a beam.
type BeamStats struct {
	Size   int
	Mean   float64
	StdDev float64
	Best   float64
	Worst  float64
}

// Stats computes score statistics over b's representatives.
func Stats(b Beam) BeamStats {
	ds := b.Derivations()
	st := BeamStats{Size: len(ds)}
	if len(ds) == 0 {
		return st
	}
	scores := make([]float64, len(ds))
	for i, d := range ds {
		scores[i] = d.Score()
	}
	st.Best, st.Worst = scores[0], scores[len(scores)-1]
	if len(scores) == 1 {
		st.Mean = scores[0]
		return st
	}
	st.Mean, st.StdDev = stat.MeanStdDev(scores, nil)
	return st
}

// LogValue groups the statistics under one log attribute.
func (s BeamStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("size", s.Size),
		slog.Float64("best", s.Best),
		slog.Float64("worst", s.Worst),
		slog.Float64("mean", s.Mean),
		slog.Float64("stddev", s.StdDev),
	)
}
