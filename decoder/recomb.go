package decoder

import (
	"fmt"
	"hash/fnv"
	"strings"
)

// RecombinationFilter partitions derivations into equivalence classes.
// Two derivations may be merged only if they hash equally and Combinable
// returns true. Implementations are stateless.
type RecombinationFilter interface {
	Hash(d *Derivation) uint64
	Combinable(a, b *Derivation) bool
}

// Filter names accepted by NewRecombinationFilter.
const (
	RecombineNone                = "norecombination"
	RecombineTranslationIdentity = "translationidentity"
	RecombineSourceCoverage      = "sourcecoverage"
	RecombineLinearDistortion    = "lineardistortion"
	RecombineTranslationNgram    = "translationngram"
	RecombineClassic             = "classic"
)

// NewRecombinationFilter builds a named filter. ngramOrder sizes the target
// context kept by the n-gram filters.
func NewRecombinationFilter(name string, ngramOrder int) (RecombinationFilter, error) {
	switch strings.ToLower(name) {
	case RecombineNone:
		return NoRecombination{}, nil
	case RecombineTranslationIdentity:
		return TranslationIdentity{}, nil
	case RecombineSourceCoverage:
		return SourceCoverage{}, nil
	case RecombineLinearDistortion:
		return LinearDistortionFilter{}, nil
	case RecombineTranslationNgram:
		return TranslationNgram{Order: ngramOrder}, nil
	case RecombineClassic, "":
		return ClassicFilter(ngramOrder), nil
	}
	return nil, fmt.Errorf("unknown recombination filter %q", name)
}

// ClassicFilter merges derivations with the same coverage, the same last
// source position and the same language model state.
func ClassicFilter(ngramOrder int) RecombinationFilter {
	return CombinedFilter{
		SourceCoverage{},
		LinearDistortionFilter{},
		TranslationNgram{Order: ngramOrder},
	}
}

// NoRecombination never merges.
type NoRecombination struct{}

func (NoRecombination) Hash(d *Derivation) uint64       { return uint64(d.ID) }
func (NoRecombination) Combinable(a, b *Derivation) bool { return a == b }

// TranslationIdentity merges derivations with identical target prefixes.
type TranslationIdentity struct{}

func (TranslationIdentity) Hash(d *Derivation) uint64 {
	return hashTokens(d.Target)
}

func (TranslationIdentity) Combinable(a, b *Derivation) bool {
	return equalTokens(a.Target, b.Target)
}

// SourceCoverage merges derivations covering the same source positions.
type SourceCoverage struct{}

func (SourceCoverage) Hash(d *Derivation) uint64 {
	return d.Coverage.Hash()
}

func (SourceCoverage) Combinable(a, b *Derivation) bool {
	return a.Coverage.Equal(b.Coverage)
}

// LinearDistortionFilter merges derivations whose last rule ends at the same
// source position, so future distortion costs agree.
type LinearDistortionFilter struct{}

func (LinearDistortionFilter) Hash(d *Derivation) uint64 {
	return uint64(lastEnd(d) + 1)
}

func (LinearDistortionFilter) Combinable(a, b *Derivation) bool {
	return lastEnd(a) == lastEnd(b)
}

func lastEnd(d *Derivation) int {
	if d.Rule == nil {
		return -1
	}
	return d.Rule.End()
}

// TranslationNgram merges derivations sharing the last Order-1 target
// tokens. Completed derivations are compared on the full boundary context,
// which is the same test.
type TranslationNgram struct {
	Order int
}

func (f TranslationNgram) context(d *Derivation) []string {
	n := f.Order - 1
	if n < 0 {
		n = 0
	}
	if len(d.Target) <= n {
		return d.Target
	}
	return d.Target[len(d.Target)-n:]
}

func (f TranslationNgram) Hash(d *Derivation) uint64 {
	ctx := f.context(d)
	return hashTokens(ctx) ^ uint64(len(ctx))
}

func (f TranslationNgram) Combinable(a, b *Derivation) bool {
	return equalTokens(f.context(a), f.context(b))
}

// CombinedFilter merges only when every member filter agrees.
type CombinedFilter []RecombinationFilter

func (c CombinedFilter) Hash(d *Derivation) uint64 {
	var h uint64 = 17
	for _, f := range c {
		h = h*31 + f.Hash(d)
	}
	return h
}

func (c CombinedFilter) Combinable(a, b *Derivation) bool {
	for _, f := range c {
		if !f.Combinable(a, b) {
			return false
		}
	}
	return true
}

func hashTokens(tokens []string) uint64 {
	h := fnv.New64a()
	for _, t := range tokens {
		h.Write([]byte(t))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func equalTokens(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RecombinationStatus is the outcome of RecombinationHash.Update.
type RecombinationStatus int

const (
	// No class-mate existed; the derivation now represents its class.
	StatusNovel RecombinationStatus = iota
	// A better class-mate exists; the derivation was absorbed.
	StatusCombinable
	// The derivation was already present.
	StatusSelf
	// The derivation replaced a worse representative.
	StatusBetter
)

func (s RecombinationStatus) String() string {
	switch s {
	case StatusNovel:
		return "novel"
	case StatusCombinable:
		return "combinable"
	case StatusSelf:
		return "self"
	case StatusBetter:
		return "better"
	}
	return "unknown"
}

type hashEntry struct {
	rep *Derivation
}

// RecombinationHash tracks the representative of each equivalence class.
type RecombinationHash struct {
	filter  RecombinationFilter
	buckets map[uint64][]*hashEntry
	size    int
}

// NewRecombinationHash creates an empty hash over filter.
func NewRecombinationHash(filter RecombinationFilter) *RecombinationHash {
	return &RecombinationHash{
		filter:  filter,
		buckets: make(map[uint64][]*hashEntry),
	}
}

// Update places d into its class. For StatusCombinable and StatusBetter the
// second return value is the other class member: the incumbent that absorbed
// d, or the former representative d replaced.
func (h *RecombinationHash) Update(d *Derivation) (RecombinationStatus, *Derivation) {
	key := h.filter.Hash(d)
	for _, e := range h.buckets[key] {
		if e.rep == d {
			return StatusSelf, nil
		}
		if !h.filter.Combinable(e.rep, d) {
			continue
		}
		if d.Better(e.rep) {
			old := e.rep
			e.rep = d
			return StatusBetter, old
		}
		return StatusCombinable, e.rep
	}
	h.buckets[key] = append(h.buckets[key], &hashEntry{rep: d})
	h.size++
	return StatusNovel, nil
}

// Remove drops d if it is currently a representative.
func (h *RecombinationHash) Remove(d *Derivation) bool {
	key := h.filter.Hash(d)
	bucket := h.buckets[key]
	for i, e := range bucket {
		if e.rep == d {
			h.buckets[key] = append(bucket[:i], bucket[i+1:]...)
			if len(h.buckets[key]) == 0 {
				delete(h.buckets, key)
			}
			h.size--
			return true
		}
	}
	return false
}

// Size is the number of live classes.
func (h *RecombinationHash) Size() int {
	return h.size
}
