package feat

import "sort"

// FeatureValue is a named feature with its value for one rule application.
type FeatureValue struct {
	Name  string
	Value float64
}

// Featurizable is the view of a rule application that featurizers score.
// For rule-level featurization only the Rule* fields and Source are set.
type Featurizable struct {
	InputID int
	Source  []string

	// Full target after the rule has been applied.
	TargetPrefix []string
	// Index in TargetPrefix where the rule's target phrase begins.
	TargetPosition int

	RuleSource []string
	RuleTarget []string
	// Source span of the rule, [SourceStart, SourceEnd).
	SourceStart int
	SourceEnd   int

	// Signed jump from the end of the previous rule to SourceStart.
	LinearDistortion int
	NumUntranslated  int
	Done             bool
}

// RuleView is the read-only rule information handed to Initialize.
type RuleView struct {
	Source []string
	Target []string
	Start  int
	End    int
}

// Featurizer scores a rule in the context of the derivation it extends.
type Featurizer interface {
	// Initialize is called once per decode call before search starts.
	// Implementations must tolerate repeated calls with different inputs.
	Initialize(inputID int, rules []RuleView, source []string)
	Featurize(f *Featurizable) []FeatureValue
}

// RuleFeaturizer scores a rule independent of any derivation context.
// Its output is cached on the rule and counted once per application.
type RuleFeaturizer interface {
	RuleFeaturize(f *Featurizable) []FeatureValue
}

// Combine sums feature values by name and returns them sorted by name.
func Combine(lists ...[]FeatureValue) []FeatureValue {
	sums := make(map[string]float64)
	for _, l := range lists {
		for _, fv := range l {
			sums[fv.Name] += fv.Value
		}
	}
	out := make([]FeatureValue, 0, len(sums))
	for name, v := range sums {
		out = append(out, FeatureValue{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
