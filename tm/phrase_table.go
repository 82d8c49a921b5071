package tm

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/stanfordnlp/phrasal-sub010/feat"
)

const fieldSep = "|||"

// TranslationModel returns the rules applicable to a source sentence.
// Implementations are shared between concurrent decode calls and must not
// be mutated while decoding.
type TranslationModel interface {
	Rules(source []string, props InputProperties, targets [][]string, inputID int, scorer feat.Scorer) []*ConcreteRule
	MaxLengthSource() int
	MaxLengthTarget() int
}

// PhraseTable is an in-memory phrase table keyed by source phrase.
type PhraseTable struct {
	ScoreNames   []string
	Entries      map[string][]*Rule
	MaxLen       int
	MaxTargetLen int
	Loaded       bool
	// Rule-level featurizer applied to every concrete rule. May be nil.
	Featurizer feat.RuleFeaturizer
}

// NewPhraseTable creates an empty phrase table.
func NewPhraseTable(scoreNames ...string) *PhraseTable {
	return &PhraseTable{
		ScoreNames: scoreNames,
		Entries:    make(map[string][]*Rule),
	}
}

// Load reads rules from a file.
// File format: source ||| target ||| score1 score2 ...
// Scores are used as given (typically log probabilities).
func (pt *PhraseTable) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open phrase table %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, fieldSep)
		if len(parts) < 2 {
			return fmt.Errorf("phrase table %s:%d: missing %q separator", path, lineNo, fieldSep)
		}
		source := strings.Fields(parts[0])
		target := strings.Fields(parts[1])
		if len(source) == 0 {
			return fmt.Errorf("phrase table %s:%d: empty source phrase", path, lineNo)
		}
		var scores []float64
		if len(parts) >= 3 {
			for _, f := range strings.Fields(parts[2]) {
				s, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return fmt.Errorf("phrase table %s:%d: %w", path, lineNo, err)
				}
				scores = append(scores, s)
			}
		}
		pt.Add(source, target, scores...)
	}
	pt.Loaded = true
	return scanner.Err()
}

// Add inserts a rule.
func (pt *PhraseTable) Add(source, target []string, scores ...float64) {
	key := strings.Join(source, " ")
	pt.Entries[key] = append(pt.Entries[key], &Rule{
		Source:     source,
		Target:     target,
		Scores:     scores,
		ScoreNames: pt.ScoreNames,
	})
	if len(source) > pt.MaxLen {
		pt.MaxLen = len(source)
	}
	if len(target) > pt.MaxTargetLen {
		pt.MaxTargetLen = len(target)
	}
}

// Contains checks if a source phrase has any rule.
func (pt *PhraseTable) Contains(source []string) bool {
	_, ok := pt.Entries[strings.Join(source, " ")]
	return ok
}

// Rules enumerates every source span up to MaxLen and binds its rules.
func (pt *PhraseTable) Rules(source []string, props InputProperties, targets [][]string,
	inputID int, scorer feat.Scorer) []*ConcreteRule {
	var out []*ConcreteRule
	n := len(source)
	for i := 0; i < n; i++ {
		for j := i + 1; j <= n && j-i <= pt.MaxLen; j++ {
			for _, rule := range pt.Entries[strings.Join(source[i:j], " ")] {
				out = append(out, NewConcreteRule(rule, i, source, inputID, pt.Featurizer, scorer))
			}
		}
	}
	return out
}

func (pt *PhraseTable) MaxLengthSource() int { return pt.MaxLen }

func (pt *PhraseTable) MaxLengthTarget() int { return pt.MaxTargetLen }
