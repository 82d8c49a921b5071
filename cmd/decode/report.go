package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffReport compares hypotheses with references word by word and keeps
// running totals.
type diffReport struct {
	diffMatch *diffmatchpatch.DiffMatchPatch
	sentences int
	exact     int
	refWords  int
	edits     int
}

func newDiffReport() *diffReport {
	return &diffReport{diffMatch: diffmatchpatch.New()}
}

// wordDiff diffs two sentences treating each word as one symbol.
// edits is the word-level edit distance.
func (r *diffReport) wordDiff(ref, hyp string) (diffs []diffmatchpatch.Diff, edits int) {
	refLines := strings.Join(strings.Fields(ref), "\n") + "\n"
	hypLines := strings.Join(strings.Fields(hyp), "\n") + "\n"
	a, b, words := r.diffMatch.DiffLinesToChars(refLines, hypLines)
	diffs = r.diffMatch.DiffMain(a, b, false)
	edits = r.diffMatch.DiffLevenshtein(diffs)
	diffs = r.diffMatch.DiffCharsToLines(diffs, words)
	return diffs, edits
}

// Add records one pair and writes a diff line to w when they differ.
func (r *diffReport) Add(w io.Writer, id int, ref, hyp string) {
	diffs, edits := r.wordDiff(ref, hyp)
	r.sentences++
	r.refWords += len(strings.Fields(ref))
	r.edits += edits
	if edits == 0 {
		r.exact++
		return
	}
	fmt.Fprintf(w, "%d\t%s\n", id, formatDiff(diffs))
}

// Summary reports exact matches and the word error rate.
func (r *diffReport) Summary() string {
	rate := 0.0
	if r.refWords > 0 {
		rate = float64(r.edits) / float64(r.refWords)
	}
	return fmt.Sprintf("%d/%d exact, %d word edits over %d reference words (WER %.4f)",
		r.exact, r.sentences, r.edits, r.refWords, rate)
}

// formatDiff marks reference-only words as [-w-] and hypothesis-only words
// as {+w+}.
func formatDiff(diffs []diffmatchpatch.Diff) string {
	var parts []string
	for _, d := range diffs {
		for _, word := range strings.Fields(d.Text) {
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				parts = append(parts, word)
			case diffmatchpatch.DiffDelete:
				parts = append(parts, "[-"+word+"-]")
			case diffmatchpatch.DiffInsert:
				parts = append(parts, "{+"+word+"+}")
			}
		}
	}
	return strings.Join(parts, " ")
}
