package feat

const (
	FeatureWordPenalty      = "WordPenalty"
	FeaturePhrasePenalty    = "PhrasePenalty"
	FeatureLinearDistortion = "LinearDistortion"
	FeatureLM               = "LM"
)

// CombinedFeaturizer runs a fixed list of featurizers.
// It holds no per-call state and can be shared between decoders.
type CombinedFeaturizer struct {
	featurizers     []Featurizer
	ruleFeaturizers []RuleFeaturizer
}

// NewCombinedFeaturizer sorts each argument into the derivation-level
// and/or rule-level lists depending on which interfaces it implements.
func NewCombinedFeaturizer(fs ...any) *CombinedFeaturizer {
	c := &CombinedFeaturizer{}
	for _, f := range fs {
		if df, ok := f.(Featurizer); ok {
			c.featurizers = append(c.featurizers, df)
		}
		if rf, ok := f.(RuleFeaturizer); ok {
			c.ruleFeaturizers = append(c.ruleFeaturizers, rf)
		}
	}
	return c
}

// Initialize forwards to every derivation-level featurizer.
func (c *CombinedFeaturizer) Initialize(inputID int, rules []RuleView, source []string) {
	for _, f := range c.featurizers {
		f.Initialize(inputID, rules, source)
	}
}

// Featurize concatenates the output of every derivation-level featurizer.
func (c *CombinedFeaturizer) Featurize(f *Featurizable) []FeatureValue {
	var out []FeatureValue
	for _, fz := range c.featurizers {
		out = append(out, fz.Featurize(f)...)
	}
	return out
}

// RuleFeaturize concatenates the output of every rule-level featurizer.
func (c *CombinedFeaturizer) RuleFeaturize(f *Featurizable) []FeatureValue {
	var out []FeatureValue
	for _, fz := range c.ruleFeaturizers {
		out = append(out, fz.RuleFeaturize(f)...)
	}
	return out
}

// WordPenalty counts target words.
type WordPenalty struct{}

func (WordPenalty) RuleFeaturize(f *Featurizable) []FeatureValue {
	return []FeatureValue{{Name: FeatureWordPenalty, Value: -float64(len(f.RuleTarget))}}
}

// PhrasePenalty counts rule applications.
type PhrasePenalty struct{}

func (PhrasePenalty) RuleFeaturize(f *Featurizable) []FeatureValue {
	return []FeatureValue{{Name: FeaturePhrasePenalty, Value: -1}}
}

// LinearDistortion penalizes the source jump between consecutive rules.
type LinearDistortion struct{}

func (LinearDistortion) Initialize(int, []RuleView, []string) {}

func (LinearDistortion) Featurize(f *Featurizable) []FeatureValue {
	d := f.LinearDistortion
	if d < 0 {
		d = -d
	}
	if d == 0 {
		return nil
	}
	return []FeatureValue{{Name: FeatureLinearDistortion, Value: -float64(d)}}
}

// LMFeaturizer scores the target words a rule appends with an n-gram model.
type LMFeaturizer struct {
	LM *LanguageModel
}

func (LMFeaturizer) Initialize(int, []RuleView, []string) {}

func (l LMFeaturizer) Featurize(f *Featurizable) []FeatureValue {
	if l.LM == nil {
		return nil
	}
	ctxStart := f.TargetPosition - (l.LM.Order - 1)
	if ctxStart < 0 {
		ctxStart = 0
	}
	context := make([]string, 0, l.LM.Order)
	if f.TargetPosition-ctxStart < l.LM.Order-1 {
		context = append(context, StartToken)
	}
	context = append(context, f.TargetPrefix[ctxStart:f.TargetPosition]...)

	words := f.TargetPrefix[f.TargetPosition:]
	if f.Done {
		words = append(words[:len(words):len(words)], EndToken)
	}
	return []FeatureValue{{Name: FeatureLM, Value: l.LM.Score(context, words)}}
}
