package tm

import (
	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/util"
)

const FeatureUnknownWord = "UnknownWord"

// UnknownWordModel copies a source token to the target unchanged.
// Punctuation is copied without the unknown-word penalty.
type UnknownWordModel struct {
	Featurizer feat.RuleFeaturizer
}

// Rules returns the pass-through rule for source[pos].
func (m *UnknownWordModel) Rules(source []string, pos int, inputID int, scorer feat.Scorer) []*ConcreteRule {
	word := source[pos]
	rule := &Rule{
		Source:     []string{word},
		Target:     []string{word},
		Scores:     []float64{-1},
		ScoreNames: []string{FeatureUnknownWord},
	}
	if util.IsPunctuation(word) {
		rule.Scores[0] = 0
	}
	return []*ConcreteRule{NewConcreteRule(rule, pos, source, inputID, m.Featurizer, scorer)}
}
