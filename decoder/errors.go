package decoder

import "errors"

// Configuration errors returned by Builder.Build.
var (
	ErrInvalidBeamSize     = errors.New("beam size must be positive")
	ErrUnsupportedITG      = errors.New("ITG constraints are not supported by the cube pruning decoder")
	ErrUnsupportedBeamType = errors.New("unsupported beam type")
	ErrNoScorer            = errors.New("no scorer configured")
	ErrNoTranslationModel  = errors.New("no translation model configured")
)
