package decoder

import (
	"fmt"
	"math"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/coverage"
	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

// Derivation is one node of the search tree. It is never mutated after
// construction; children share their parent.
type Derivation struct {
	// Call-scoped creation order, used to break score ties.
	ID           int
	PartialScore float64
	H            float64

	Coverage     coverage.Set
	Untranslated int
	Depth        int
	// Signed jump from the previous rule to this one.
	LinearDistortion int

	Parent *Derivation
	// Nil only for the root.
	Rule *tm.ConcreteRule

	Source        []string
	Target        []string
	LocalFeatures []feat.FeatureValue
}

// Score is the search ordering key: model score plus heuristic estimate.
func (d *Derivation) Score() float64 {
	return d.PartialScore + d.H
}

// Length is the number of target tokens produced so far.
func (d *Derivation) Length() int {
	return len(d.Target)
}

// IsDone reports whether every source position is covered.
func (d *Derivation) IsDone() bool {
	return d.Untranslated == 0
}

// IsRoot reports whether d is the empty hypothesis.
func (d *Derivation) IsRoot() bool {
	return d.Rule == nil
}

// Better orders derivations by descending Score, then by creation order.
func (d *Derivation) Better(o *Derivation) bool {
	if d.Score() != o.Score() {
		return d.Score() > o.Score()
	}
	return d.ID < o.ID
}

// Features sums the local features of d and all of its ancestors.
func (d *Derivation) Features() []feat.FeatureValue {
	var lists [][]feat.FeatureValue
	for n := d; n != nil; n = n.Parent {
		lists = append(lists, n.LocalFeatures)
	}
	return feat.Combine(lists...)
}

// Rules returns the applied rules from the first to the last.
func (d *Derivation) Rules() []*tm.ConcreteRule {
	var rules []*tm.ConcreteRule
	for n := d; n != nil && n.Rule != nil; n = n.Parent {
		rules = append(rules, n.Rule)
	}
	for i, j := 0, len(rules)-1; i < j; i, j = i+1, j-1 {
		rules[i], rules[j] = rules[j], rules[i]
	}
	return rules
}

func (d *Derivation) String() string {
	target := "<NONE>"
	if !d.IsRoot() {
		target = strings.Join(d.Target, " ")
	}
	return fmt.Sprintf("%s  %s [%.3f h: %.3f]", target, d.Coverage, d.Score(), d.H)
}

// searchState holds everything one decode call needs to build derivations.
// It is owned by a single call and never shared.
type searchState struct {
	inputID    int
	source     []string
	featurizer *feat.CombinedFeaturizer
	scorer     feat.Scorer
	estimator  Estimator

	nextID    int
	generated int
	discarded int
}

func (s *searchState) root() *Derivation {
	s.nextID++
	cov := coverage.New(len(s.source))
	return &Derivation{
		ID:           s.nextID,
		H:            s.estimator.Estimate(cov),
		Coverage:     cov,
		Untranslated: len(s.source),
		Source:       s.source,
	}
}

// extend applies rule to base. It returns nil when the spans overlap or the
// resulting score is not finite.
func (s *searchState) extend(base *Derivation, rule *tm.ConcreteRule) *Derivation {
	if base.Coverage.Intersects(rule.Coverage) {
		return nil
	}
	s.generated++
	cov := base.Coverage.Or(rule.Coverage)
	untranslated := len(s.source) - cov.Cardinality()
	target := append(base.Target[:len(base.Target):len(base.Target)], rule.Rule.Target...)
	distortion := rule.SourcePosition
	if base.Rule != nil {
		distortion = base.Rule.LinearDistortion(rule)
	}

	f := &feat.Featurizable{
		InputID:          s.inputID,
		Source:           s.source,
		TargetPrefix:     target,
		TargetPosition:   len(base.Target),
		RuleSource:       rule.Rule.Source,
		RuleTarget:       rule.Rule.Target,
		SourceStart:      rule.SourcePosition,
		SourceEnd:        rule.End(),
		LinearDistortion: distortion,
		NumUntranslated:  untranslated,
		Done:             untranslated == 0,
	}
	var local []feat.FeatureValue
	if s.featurizer != nil {
		local = s.featurizer.Featurize(f)
	}
	local = append(local, rule.Features...)

	score := base.PartialScore + s.scorer.IncrementalScore(local)
	h := base.H
	if !math.IsInf(base.H, 0) {
		h = s.estimator.Estimate(cov)
	}
	if !isFinite(score) || !isFinite(score+h) {
		s.discarded++
		return nil
	}

	s.nextID++
	return &Derivation{
		ID:               s.nextID,
		PartialScore:     score,
		H:                h,
		Coverage:         cov,
		Untranslated:     untranslated,
		Depth:            base.Depth + 1,
		LinearDistortion: distortion,
		Parent:           base,
		Rule:             rule,
		Source:           s.source,
		Target:           target,
		LocalFeatures:    local,
	}
}

func isFinite(x float64) bool {
	return !math.IsInf(x, 0) && !math.IsNaN(x)
}
