package feat

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	StartToken = "<s>"
	EndToken   = "</s>"

	// unknownLogProb is the score for a word never seen as a unigram.
	unknownLogProb = -20.0
	backoffPenalty = -0.916290731874155 // log(0.4)
)

// LanguageModel is a count-based n-gram model scored with stupid backoff.
type LanguageModel struct {
	Order  int
	Total  float64
	Counts map[string]float64
	Loaded bool
}

// NewLanguageModel creates an empty model of the given order.
func NewLanguageModel(order int) *LanguageModel {
	if order < 1 {
		order = 1
	}
	return &LanguageModel{
		Order:  order,
		Counts: make(map[string]float64),
	}
}

// Load reads n-gram counts from a file.
// File format: space separated n-gram tokens followed by a count.
// N-grams longer than Order are ignored.
func (lm *LanguageModel) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open language model %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 1024*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		count, err := strconv.ParseFloat(parts[len(parts)-1], 64)
		if err != nil {
			continue
		}
		lm.Add(parts[:len(parts)-1], count)
	}
	lm.Loaded = true
	return scanner.Err()
}

// Add records count occurrences of an n-gram.
func (lm *LanguageModel) Add(ngram []string, count float64) {
	if len(ngram) == 0 || len(ngram) > lm.Order {
		return
	}
	lm.Counts[strings.Join(ngram, " ")] += count
	if len(ngram) == 1 {
		lm.Total += count
	}
}

// LogProbability returns log P(word | context) using the last Order-1
// context tokens.
func (lm *LanguageModel) LogProbability(context []string, word string) float64 {
	if len(context) > lm.Order-1 {
		context = context[len(context)-(lm.Order-1):]
	}
	penalty := 0.0
	for len(context) > 0 {
		ctxKey := strings.Join(context, " ")
		if ctxCount, ok := lm.Counts[ctxKey]; ok && ctxCount > 0 {
			if c, ok := lm.Counts[ctxKey+" "+word]; ok && c > 0 {
				return penalty + math.Log(c/ctxCount)
			}
		}
		penalty += backoffPenalty
		context = context[1:]
	}
	if lm.Total <= 0 {
		return unknownLogProb
	}
	c, ok := lm.Counts[word]
	if !ok || c <= 0 {
		return unknownLogProb
	}
	return penalty + math.Log(c/lm.Total)
}

// Score returns the log probability of words following context.
func (lm *LanguageModel) Score(context, words []string) float64 {
	hist := make([]string, 0, len(context)+len(words))
	hist = append(hist, context...)
	total := 0.0
	for _, w := range words {
		total += lm.LogProbability(hist, w)
		hist = append(hist, w)
	}
	return total
}

// AddSentence counts every n-gram up to Order in words padded with the
// sentence boundary tokens.
func (lm *LanguageModel) AddSentence(words []string) {
	padded := make([]string, 0, len(words)+2)
	padded = append(padded, StartToken)
	padded = append(padded, words...)
	padded = append(padded, EndToken)
	for n := 1; n <= lm.Order; n++ {
		for i := 0; i+n <= len(padded); i++ {
			lm.Add(padded[i:i+n], 1)
		}
	}
}

// Save writes the counts in the format Load reads, shorter n-grams first
// and by descending count within an order.
func (lm *LanguageModel) Save(path string) error {
	type entry struct {
		ngram string
		order int
		count float64
	}
	entries := make([]entry, 0, len(lm.Counts))
	for k, c := range lm.Counts {
		entries = append(entries, entry{k, strings.Count(k, " ") + 1, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.order != b.order {
			return a.order < b.order
		}
		if a.count != b.count {
			return a.count > b.count
		}
		return a.ngram < b.ngram
	})

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create language model %s: %w", path, err)
	}
	defer file.Close()
	writer := bufio.NewWriter(file)
	for _, e := range entries {
		if _, err := fmt.Fprintf(writer, "%s %g\n", e.ngram, e.count); err != nil {
			return err
		}
	}
	return writer.Flush()
}
