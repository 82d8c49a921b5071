package decoder

import (
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/tm"
)

// OutputSpace restricts the translations the decoder may produce.
// A space may hold per-input state, so callers pass a fresh one per call
// unless it is stateless.
type OutputSpace interface {
	SetSourceSequence(source []string)
	// Filter drops rules that can never take part in an allowed output.
	Filter(rules []*tm.ConcreteRule) []*tm.ConcreteRule
	AllowableContinuation(partial *Derivation, rule *tm.ConcreteRule) bool
	AllowableFinal(d *Derivation) bool
}

// UnconstrainedOutputSpace allows everything except the empty hypothesis
// as a final result.
type UnconstrainedOutputSpace struct{}

func (UnconstrainedOutputSpace) SetSourceSequence([]string) {}

func (UnconstrainedOutputSpace) Filter(rules []*tm.ConcreteRule) []*tm.ConcreteRule {
	return rules
}

func (UnconstrainedOutputSpace) AllowableContinuation(*Derivation, *tm.ConcreteRule) bool {
	return true
}

func (UnconstrainedOutputSpace) AllowableFinal(d *Derivation) bool {
	return d != nil && !d.IsRoot()
}

// ConstrainedOutputSpace forces the decoder to produce one of a fixed set of
// reference translations.
type ConstrainedOutputSpace struct {
	References [][]string
}

// NewConstrainedOutputSpace creates a space accepting exactly refs.
func NewConstrainedOutputSpace(refs ...[]string) *ConstrainedOutputSpace {
	return &ConstrainedOutputSpace{References: refs}
}

func (s *ConstrainedOutputSpace) SetSourceSequence([]string) {}

// Filter keeps rules whose target occurs somewhere in a reference.
func (s *ConstrainedOutputSpace) Filter(rules []*tm.ConcreteRule) []*tm.ConcreteRule {
	out := make([]*tm.ConcreteRule, 0, len(rules))
	for _, r := range rules {
		for _, ref := range s.References {
			if containsTokens(ref, r.Rule.Target) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// AllowableContinuation accepts rule if partial's target extended by the
// rule's target is a prefix of some reference, and the reference is used up
// exactly when the source is.
func (s *ConstrainedOutputSpace) AllowableContinuation(partial *Derivation, rule *tm.ConcreteRule) bool {
	prefix := partial.Target
	phrase := rule.Rule.Target
	for _, ref := range s.References {
		if len(prefix)+len(phrase) > len(ref) {
			continue
		}
		if !hasPrefixTokens(ref, prefix) || !hasPrefixTokens(ref[len(prefix):], phrase) {
			continue
		}
		tMissing := len(ref) - len(prefix) - len(phrase)
		fMissing := partial.Untranslated - len(rule.Rule.Source)
		if (fMissing == 0) != (tMissing == 0) {
			continue
		}
		return true
	}
	return false
}

// AllowableFinal accepts d if its target equals a reference.
func (s *ConstrainedOutputSpace) AllowableFinal(d *Derivation) bool {
	if d == nil {
		return false
	}
	for _, ref := range s.References {
		if equalTokens(ref, d.Target) {
			return true
		}
	}
	return false
}

func (s *ConstrainedOutputSpace) String() string {
	var sb strings.Builder
	sb.WriteString("Allowable sequences:\n")
	for _, ref := range s.References {
		sb.WriteString("\t")
		sb.WriteString(strings.Join(ref, " "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func hasPrefixTokens(seq, prefix []string) bool {
	return len(prefix) <= len(seq) && equalTokens(seq[:len(prefix)], prefix)
}

func containsTokens(seq, sub []string) bool {
	for i := 0; i+len(sub) <= len(seq); i++ {
		if equalTokens(seq[i:i+len(sub)], sub) {
			return true
		}
	}
	return false
}
