package tm

import (
	"fmt"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/coverage"
	"github.com/stanfordnlp/phrasal-sub010/feat"
)

// InputProperties carries per-input decoding options, e.g. a distortion limit.
type InputProperties map[string]any

// Rule is an abstract source->target phrase pair with its model scores.
type Rule struct {
	Source     []string
	Target     []string
	Scores     []float64
	ScoreNames []string
}

// ConcreteRule is a Rule bound to a source span of one input.
// It is read-only once constructed.
type ConcreteRule struct {
	Rule           *Rule
	SourcePosition int
	Coverage       coverage.Set
	// Rule scores plus rule-level featurizer output.
	Features       []feat.FeatureValue
	IsolationScore float64
}

// NewConcreteRule binds rule to source[start:start+len(rule.Source)] and
// computes its cached features and isolation score. rf may be nil.
func NewConcreteRule(rule *Rule, start int, source []string, inputID int,
	rf feat.RuleFeaturizer, scorer feat.Scorer) *ConcreteRule {
	end := start + len(rule.Source)
	cr := &ConcreteRule{
		Rule:           rule,
		SourcePosition: start,
		Coverage:       coverage.Span(len(source), start, end),
	}

	for i, s := range rule.Scores {
		name := fmt.Sprintf("TM.%d", i)
		if i < len(rule.ScoreNames) {
			name = rule.ScoreNames[i]
		}
		cr.Features = append(cr.Features, feat.FeatureValue{Name: name, Value: s})
	}
	if rf != nil {
		cr.Features = append(cr.Features, rf.RuleFeaturize(&feat.Featurizable{
			InputID:      inputID,
			Source:       source,
			TargetPrefix: rule.Target,
			RuleSource:   rule.Source,
			RuleTarget:   rule.Target,
			SourceStart:  start,
			SourceEnd:    end,
		})...)
	}
	if scorer != nil {
		cr.IsolationScore = scorer.IncrementalScore(cr.Features)
	}
	return cr
}

// End returns the exclusive end of the source span.
func (r *ConcreteRule) End() int {
	return r.SourcePosition + len(r.Rule.Source)
}

// LinearDistortion returns the signed jump from the end of r to next.
func (r *ConcreteRule) LinearDistortion(next *ConcreteRule) int {
	return next.SourcePosition - r.End()
}

// View returns the featurizer-facing view of the rule.
func (r *ConcreteRule) View() feat.RuleView {
	return feat.RuleView{
		Source: r.Rule.Source,
		Target: r.Rule.Target,
		Start:  r.SourcePosition,
		End:    r.End(),
	}
}

func (r *ConcreteRule) String() string {
	return fmt.Sprintf("%s => %s [%d,%d) %.4f",
		strings.Join(r.Rule.Source, " "), strings.Join(r.Rule.Target, " "),
		r.SourcePosition, r.End(), r.IsolationScore)
}

// Views converts a rule list for feat.Featurizer.Initialize.
func Views(rules []*ConcreteRule) []feat.RuleView {
	out := make([]feat.RuleView, len(rules))
	for i, r := range rules {
		out[i] = r.View()
	}
	return out
}
