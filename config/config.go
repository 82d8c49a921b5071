package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/stanfordnlp/phrasal-sub010/decoder"
)

// Environment variables that override the file.
const (
	EnvBeamSize      = "PHRASAL_BEAM_SIZE"
	EnvMaxDistortion = "PHRASAL_MAX_DISTORTION"
	EnvLogLevel      = "PHRASAL_LOG_LEVEL"
)

// Featurizer names accepted in the featurizers list.
const (
	FeaturizerWordPenalty      = "word_penalty"
	FeaturizerPhrasePenalty    = "phrase_penalty"
	FeaturizerLinearDistortion = "linear_distortion"
	FeaturizerLM               = "lm"
)

type Config struct {
	BeamSize           int    `yaml:"beam_size"`
	BeamType           string `yaml:"beam_type"`
	MaxDistortion      int    `yaml:"max_distortion"`
	Recombination      string `yaml:"recombination"`
	NgramOrder         int    `yaml:"ngram_order"`
	Heuristic          string `yaml:"heuristic"`
	FilterUnknownWords bool   `yaml:"filter_unknown_words"`
	RuleQueryLimit     int    `yaml:"rule_query_limit"`

	PhraseTable   string   `yaml:"phrase_table"`
	ScoreNames    []string `yaml:"score_names"` // names of the phrase table score columns
	LanguageModel string   `yaml:"language_model"`
	Weights       string   `yaml:"weights"`
	Featurizers   []string `yaml:"featurizers"`

	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used for keys missing from the file.
func Default() *Config {
	return &Config{
		BeamSize:       decoder.DefaultBeamSize,
		BeamType:       decoder.BeamTypeBundle.String(),
		MaxDistortion:  decoder.DefaultMaxDistortion,
		Recombination:  decoder.RecombineClassic,
		NgramOrder:     3,
		Heuristic:      decoder.HeuristicIsolated,
		RuleQueryLimit: -1,
		Featurizers: []string{
			FeaturizerWordPenalty,
			FeaturizerPhrasePenalty,
			FeaturizerLinearDistortion,
			FeaturizerLM,
		},
		LogLevel: "info",
	}
}

// Load reads .env if present, then the YAML file at path (skipped when path
// is empty), then the PHRASAL_* environment variables, and validates the
// result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvBeamSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvBeamSize, err)
		}
		cfg.BeamSize = n
	}
	if v := os.Getenv(EnvMaxDistortion); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", EnvMaxDistortion, err)
		}
		cfg.MaxDistortion = n
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the decoder builder would fail on later.
func (c *Config) Validate() error {
	if c.BeamSize <= 0 {
		return fmt.Errorf("beam_size %d: %w", c.BeamSize, decoder.ErrInvalidBeamSize)
	}
	bt, err := decoder.ParseBeamType(c.BeamType)
	if err != nil {
		return fmt.Errorf("beam_type: %w", err)
	}
	if bt != decoder.BeamTypeBundle {
		return fmt.Errorf("beam_type %q: %w: the cube pruning decoder needs %v beams",
			c.BeamType, decoder.ErrUnsupportedBeamType, decoder.BeamTypeBundle)
	}
	if c.NgramOrder < 1 {
		return fmt.Errorf("ngram_order must be at least 1, got %d", c.NgramOrder)
	}
	if _, err := decoder.NewRecombinationFilter(c.Recombination, c.NgramOrder); err != nil {
		return fmt.Errorf("recombination: %w", err)
	}
	if _, err := decoder.NewSearchHeuristic(c.Heuristic); err != nil {
		return fmt.Errorf("heuristic: %w", err)
	}
	for _, f := range c.Featurizers {
		switch strings.ToLower(f) {
		case FeaturizerWordPenalty, FeaturizerPhrasePenalty, FeaturizerLinearDistortion, FeaturizerLM:
		default:
			return fmt.Errorf("unknown featurizer %q", f)
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses log_level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// HasFeaturizer reports whether name is enabled.
func (c *Config) HasFeaturizer(name string) bool {
	for _, f := range c.Featurizers {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}
