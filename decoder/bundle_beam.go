package decoder

import (
	"fmt"
)

// BundleBeam holds derivations of one coverage cardinality and groups them
// into hyperedge bundles for the next cube-pruning steps.
type BundleBeam struct {
	*TreeBeam

	grid            *RuleGrid
	distortionLimit int
	cardinality     int

	// Keyed by the number of source words a successor rule covers.
	bundles map[int][]*HyperedgeBundle
}

// NewBundleBeam creates a beam for derivations covering exactly cardinality
// source words. A negative distortionLimit disables the reordering limit.
func NewBundleBeam(capacity int, filter RecombinationFilter, grid *RuleGrid,
	history *RecombinationHistory, distortionLimit, cardinality int) *BundleBeam {
	return &BundleBeam{
		TreeBeam:        NewTreeBeam(capacity, filter, history),
		grid:            grid,
		distortionLimit: distortionLimit,
		cardinality:     cardinality,
	}
}

// Put panics if d does not cover exactly the beam's cardinality.
func (b *BundleBeam) Put(d *Derivation) *Derivation {
	if c := d.Coverage.Cardinality(); c != b.cardinality {
		panic(fmt.Sprintf("derivation cardinality %d does not match beam cardinality %d", c, b.cardinality))
	}
	b.bundles = nil
	return b.TreeBeam.Put(d)
}

// Cardinality is the number of source words every member covers.
func (b *BundleBeam) Cardinality() int {
	return b.cardinality
}

// BundlesForConsequentSize returns the bundles whose consequents cover n
// source words. Bundles are built on the first call after the last Put.
func (b *BundleBeam) BundlesForConsequentSize(n int) []*HyperedgeBundle {
	if b.bundles == nil {
		b.groupBundles()
	}
	return b.bundles[n-b.cardinality]
}

func (b *BundleBeam) groupBundles() {
	b.bundles = make(map[int][]*HyperedgeBundle)
	if b.grid == nil {
		return
	}

	groups := make(map[string][]*Derivation)
	var keys []string
	for _, d := range b.Derivations() {
		k := d.Coverage.Key()
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], d)
	}
	// Derivations are sorted, so keys are ordered by each group's best member.
	for _, k := range keys {
		items := groups[k]
		for _, r := range b.ranges(items[0]) {
			rules := b.grid.Get(r.start, r.end)
			if len(rules) == 0 {
				continue
			}
			size := r.end - r.start
			b.bundles[size] = append(b.bundles[size], NewHyperedgeBundle(items, rules))
		}
	}
}

type span struct {
	start, end int
}

// ranges lists the uncovered spans a successor rule may translate: every
// gap-free span starting at or after the first gap, bounded by the
// distortion limit once past the last covered word.
func (b *BundleBeam) ranges(d *Derivation) []span {
	n := b.grid.Dimension()
	cov := d.Coverage
	firstGap := cov.NextClear(0)
	var out []span
	for start := firstGap; start < n; start++ {
		endMax := cov.NextSet(start)
		if endMax < 0 {
			endMax = n
			if b.distortionLimit >= 0 {
				endMax = min(firstGap+b.distortionLimit+1, n)
			}
		}
		for end := start + 1; end <= endMax; end++ {
			out = append(out, span{start, end})
		}
	}
	return out
}

func (b *BundleBeam) String() string {
	return fmt.Sprintf("cardinality: %d  %s", b.cardinality, b.TreeBeam.String())
}
