package feat

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Scorer maps a list of feature values to a model score.
// Implementations must be pure and safe for concurrent use.
type Scorer interface {
	IncrementalScore(features []FeatureValue) float64
}

// LinearScorer is a dot product between feature values and weights.
type LinearScorer struct {
	// Weights[feature_name] = weight
	Weights map[string]float64
}

// NewLinearScorer creates a scorer with no weights.
func NewLinearScorer() *LinearScorer {
	return &LinearScorer{Weights: make(map[string]float64)}
}

// IncrementalScore returns the weighted sum of features.
// Features without a weight contribute nothing.
func (s *LinearScorer) IncrementalScore(features []FeatureValue) float64 {
	score := 0.0
	for _, fv := range features {
		if w, ok := s.Weights[fv.Name]; ok {
			score += w * fv.Value
		}
	}
	return score
}

// Load reads a weights file.
// Format lines:
// feature_name weight
// Blank lines and lines starting with # are skipped.
func (s *LinearScorer) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open weights %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			return fmt.Errorf("weights %s:%d: expected 2 fields, got %d", path, lineNo, len(parts))
		}
		w, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return fmt.Errorf("weights %s:%d: %w", path, lineNo, err)
		}
		s.Weights[parts[0]] = w
	}
	return scanner.Err()
}

// Save writes the weights sorted by feature name.
func (s *LinearScorer) Save(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	writer := bufio.NewWriter(file)

	names := make([]string, 0, len(s.Weights))
	for name := range s.Weights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if s.Weights[name] != 0 {
			fmt.Fprintf(writer, "%s %g\n", name, s.Weights[name])
		}
	}
	return writer.Flush()
}

// UpdateWeight adds delta to a weight, dropping it when it reaches zero.
func (s *LinearScorer) UpdateWeight(name string, delta float64) {
	s.Weights[name] += delta
	if s.Weights[name] == 0 {
		delete(s.Weights, name)
	}
}
