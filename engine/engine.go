// Package engine loads the models named by a config.Config and wires them
// into a decoder. An Engine is immutable once loaded; reloading builds a
// new one.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stanfordnlp/phrasal-sub010/config"
	"github.com/stanfordnlp/phrasal-sub010/decoder"
	"github.com/stanfordnlp/phrasal-sub010/feat"
	"github.com/stanfordnlp/phrasal-sub010/tm"
	"github.com/stanfordnlp/phrasal-sub010/util"
)

// ErrNoPhraseTable is returned when the config names no phrase table.
var ErrNoPhraseTable = errors.New("phrase_table not set")

type Engine struct {
	Config      *config.Config
	PhraseTable *tm.PhraseTable
	LM          *feat.LanguageModel // nil when no language model is configured
	Scorer      *feat.LinearScorer
	Decoder     *decoder.CubePruningDecoder
	LoadedAt    time.Time
}

// Load reads the phrase table, language model and weights named by cfg and
// builds a decoder over them. metrics may be nil; it is shared across
// reloads because its collectors can only be registered once.
func Load(cfg *config.Config, logger *slog.Logger, metrics *decoder.Metrics) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PhraseTable == "" {
		return nil, ErrNoPhraseTable
	}

	pt := tm.NewPhraseTable(cfg.ScoreNames...)
	if err := pt.Load(cfg.PhraseTable); err != nil {
		return nil, err
	}
	logger.Info("loaded phrase table", "path", cfg.PhraseTable, "sources", len(pt.Entries), "max_source_len", pt.MaxLen)

	var lm *feat.LanguageModel
	if cfg.LanguageModel != "" && cfg.HasFeaturizer(config.FeaturizerLM) {
		lm = feat.NewLanguageModel(cfg.NgramOrder)
		if err := lm.Load(cfg.LanguageModel); err != nil {
			return nil, err
		}
		logger.Info("loaded language model", "path", cfg.LanguageModel, "order", lm.Order)
	}

	scorer := feat.NewLinearScorer()
	if cfg.Weights != "" {
		if err := scorer.Load(cfg.Weights); err != nil {
			return nil, err
		}
	} else {
		defaultWeights(scorer, pt)
		logger.Warn("no weights file, using uniform weights")
	}

	var ruleFeaturizers, derivationFeaturizers []any
	if cfg.HasFeaturizer(config.FeaturizerWordPenalty) {
		ruleFeaturizers = append(ruleFeaturizers, feat.WordPenalty{})
	}
	if cfg.HasFeaturizer(config.FeaturizerPhrasePenalty) {
		ruleFeaturizers = append(ruleFeaturizers, feat.PhrasePenalty{})
	}
	if cfg.HasFeaturizer(config.FeaturizerLinearDistortion) {
		derivationFeaturizers = append(derivationFeaturizers, feat.LinearDistortion{})
	}
	if lm != nil {
		derivationFeaturizers = append(derivationFeaturizers, feat.LMFeaturizer{LM: lm})
	}
	ruleFeaturizer := feat.NewCombinedFeaturizer(ruleFeaturizers...)
	pt.Featurizer = ruleFeaturizer

	beamType, err := decoder.ParseBeamType(cfg.BeamType)
	if err != nil {
		return nil, err
	}
	filter, err := decoder.NewRecombinationFilter(cfg.Recombination, cfg.NgramOrder)
	if err != nil {
		return nil, err
	}
	heuristic, err := decoder.NewSearchHeuristic(cfg.Heuristic)
	if err != nil {
		return nil, err
	}

	b := decoder.NewBuilder()
	b.BeamSize = cfg.BeamSize
	b.BeamType = beamType
	b.MaxDistortion = cfg.MaxDistortion
	b.RuleQueryLimit = cfg.RuleQueryLimit
	b.FilterUnknownWords = cfg.FilterUnknownWords
	b.Model = pt
	b.UnknownWord = &tm.UnknownWordModel{Featurizer: ruleFeaturizer}
	b.Featurizer = feat.NewCombinedFeaturizer(derivationFeaturizers...)
	b.Scorer = scorer
	b.Heuristic = heuristic
	b.Filter = filter
	b.Logger = logger
	b.Metrics = metrics

	d, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}
	return &Engine{
		Config:      cfg,
		PhraseTable: pt,
		LM:          lm,
		Scorer:      scorer,
		Decoder:     d,
		LoadedAt:    time.Now(),
	}, nil
}

// defaultWeights gives every phrase table score and the language model a
// weight of one, and penalizes length and reordering lightly.
func defaultWeights(s *feat.LinearScorer, pt *tm.PhraseTable) {
	columns := 0
	for _, rules := range pt.Entries {
		for _, r := range rules {
			columns = max(columns, len(r.Scores))
		}
	}
	for i := 0; i < columns; i++ {
		name := fmt.Sprintf("TM.%d", i)
		if i < len(pt.ScoreNames) {
			name = pt.ScoreNames[i]
		}
		s.Weights[name] = 1
	}
	s.Weights[tm.FeatureUnknownWord] = 1
	s.Weights[feat.FeatureLM] = 1
	s.Weights[feat.FeatureLinearDistortion] = 0.3
	s.Weights[feat.FeatureWordPenalty] = 0.1
	s.Weights[feat.FeaturePhrasePenalty] = 0.1
}

// Translate tokenizes line and returns the 1-best translation.
func (e *Engine) Translate(line string, inputID int) (*decoder.Translation, bool) {
	source := util.Tokenize(line)
	return e.Decoder.Translate(source, inputID, nil, nil, nil)
}

// NBest tokenizes line and returns up to size ranked outputs.
func (e *Engine) NBest(line string, inputID, size int, distinct bool) ([]*decoder.Translation, bool) {
	source := util.Tokenize(line)
	return e.Decoder.NBest(source, inputID, nil, nil, nil, size, distinct)
}

// Force decodes line constrained to produce one of the references.
func (e *Engine) Force(line string, inputID int, references ...string) (*decoder.Translation, bool) {
	refs := make([][]string, 0, len(references))
	for _, r := range references {
		refs = append(refs, util.Tokenize(r))
	}
	source := util.Tokenize(line)
	return e.Decoder.Translate(source, inputID, nil, decoder.NewConstrainedOutputSpace(refs...), refs)
}
