package decoder

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/tm"
)

// Inferer translates source sentences. A false return means the decoder
// failed for that input; callers should skip it and carry on.
type Inferer interface {
	Translate(source []string, inputID int, props tm.InputProperties, space OutputSpace,
		targets [][]string) (*Translation, bool)
	TranslateWithScorer(scorer feat.Scorer, source []string, inputID int, props tm.InputProperties,
		space OutputSpace, targets [][]string) (*Translation, bool)
	NBest(source []string, inputID int, props tm.InputProperties, space OutputSpace,
		targets [][]string, size int, distinct bool) ([]*Translation, bool)
	NBestWithScorer(scorer feat.Scorer, source []string, inputID int, props tm.InputProperties,
		space OutputSpace, targets [][]string, size int, distinct bool) ([]*Translation, bool)
}

var _ Inferer = (*CubePruningDecoder)(nil)

// Translation is one decoder output.
type Translation struct {
	Target     []string
	Score      float64
	Features   []feat.FeatureValue
	Derivation *Derivation
	// Rank within an n-best list, zero for 1-best results.
	NBestID int
}

func (t *Translation) String() string {
	return strings.Join(t.Target, " ")
}

func newTranslation(d *Derivation, rank int) *Translation {
	return &Translation{
		Target:     d.Target,
		Score:      d.PartialScore,
		Features:   d.Features(),
		Derivation: d,
		NBestID:    rank,
	}
}

// Builder configures a CubePruningDecoder. Start from NewBuilder; nil
// collaborators other than Model and Scorer get defaults in Build.
type Builder struct {
	BeamSize           int
	BeamType           BeamType
	MaxDistortion      int
	RuleQueryLimit     int
	FilterUnknownWords bool
	UseITGConstraints  bool

	Model       tm.TranslationModel
	UnknownWord *tm.UnknownWordModel
	Featurizer  *feat.CombinedFeaturizer
	Scorer      feat.Scorer
	Heuristic   SearchHeuristic
	Filter      RecombinationFilter

	Logger  *slog.Logger
	Metrics *Metrics

	decoderID int
}

// NewBuilder returns a builder with the default beam size, no distortion
// limit and no rule query limit.
func NewBuilder() *Builder {
	return &Builder{
		BeamSize:       DefaultBeamSize,
		BeamType:       BeamTypeBundle,
		MaxDistortion:  DefaultMaxDistortion,
		RuleQueryLimit: -1,
		decoderID:      -1,
	}
}

// Build validates the configuration and creates a decoder. Every call
// creates a decoder with a new id.
func (b *Builder) Build() (*CubePruningDecoder, error) {
	if b.BeamSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBeamSize, b.BeamSize)
	}
	if b.UseITGConstraints {
		return nil, ErrUnsupportedITG
	}
	if b.BeamType != BeamTypeBundle {
		return nil, fmt.Errorf("%w: cube pruning requires %v beams, got %v",
			ErrUnsupportedBeamType, BeamTypeBundle, b.BeamType)
	}
	if b.Model == nil {
		return nil, ErrNoTranslationModel
	}
	if b.Scorer == nil {
		return nil, ErrNoScorer
	}

	b.decoderID++
	d := &CubePruningDecoder{
		id:                 b.decoderID,
		beamCapacity:       b.BeamSize,
		maxDistortion:      b.MaxDistortion,
		ruleQueryLimit:     b.RuleQueryLimit,
		filterUnknownWords: b.FilterUnknownWords,
		model:              b.Model,
		unknown:            b.UnknownWord,
		featurizer:         b.Featurizer,
		scorer:             b.Scorer,
		heuristic:          b.Heuristic,
		filter:             b.Filter,
		logger:             b.Logger,
		metrics:            b.Metrics,
	}
	if d.featurizer == nil {
		d.featurizer = feat.NewCombinedFeaturizer()
	}
	if d.unknown == nil {
		d.unknown = &tm.UnknownWordModel{Featurizer: d.featurizer}
	}
	if d.heuristic == nil {
		d.heuristic = IsolatedPhraseHeuristic{}
	}
	if d.filter == nil {
		d.filter = ClassicFilter(3)
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	if d.maxDistortion != -1 {
		d.logger.Info("cube pruning decoder", "id", d.id, "distortion_limit", d.maxDistortion)
	} else {
		d.logger.Info("cube pruning decoder", "id", d.id, "distortion_limit", "none")
	}
	return d, nil
}

// ID identifies the decoder in log output.
func (d *CubePruningDecoder) ID() int { return d.id }

func (d *CubePruningDecoder) Translate(source []string, inputID int, props tm.InputProperties,
	space OutputSpace, targets [][]string) (*Translation, bool) {
	return d.TranslateWithScorer(d.scorer, source, inputID, props, space, targets)
}

// TranslateWithScorer decodes with scorer in place of the configured one.
func (d *CubePruningDecoder) TranslateWithScorer(scorer feat.Scorer, source []string, inputID int,
	props tm.InputProperties, space OutputSpace, targets [][]string) (*Translation, bool) {
	if scorer == nil {
		scorer = d.scorer
	}
	space = bindSpace(space, source)
	res := d.decode(source, inputID, props, space, targets, scorer, nil)
	if res == nil {
		return nil, false
	}
	best := res.goal.Best()
	if best == nil {
		return nil, false
	}
	return newTranslation(best, 0), true
}

func (d *CubePruningDecoder) NBest(source []string, inputID int, props tm.InputProperties,
	space OutputSpace, targets [][]string, size int, distinct bool) ([]*Translation, bool) {
	return d.NBestWithScorer(d.scorer, source, inputID, props, space, targets, size, distinct)
}

// NBestWithScorer returns up to size translations ordered by score. With
// distinct set, no two share a target string.
func (d *CubePruningDecoder) NBestWithScorer(scorer feat.Scorer, source []string, inputID int,
	props tm.InputProperties, space OutputSpace, targets [][]string, size int, distinct bool) ([]*Translation, bool) {
	if scorer == nil {
		scorer = d.scorer
	}
	space = bindSpace(space, source)
	res := d.decode(source, inputID, props, space, targets, scorer, NewRecombinationHistory())
	if res == nil {
		return nil, false
	}
	derivations := extractNBest(res, size, distinct)
	if len(derivations) == 0 {
		d.logger.Warn("n-best extraction found no complete derivation", "decoder", d.id, "input", inputID)
		return nil, false
	}
	out := make([]*Translation, len(derivations))
	for i, der := range derivations {
		out[i] = newTranslation(der, i)
	}
	return out, true
}

func bindSpace(space OutputSpace, source []string) OutputSpace {
	if space == nil {
		space = UnconstrainedOutputSpace{}
	}
	space.SetSourceSequence(source)
	return space
}
