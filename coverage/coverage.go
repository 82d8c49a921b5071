package coverage

import (
	"math/bits"
	"strconv"
	"strings"
)

const wordBits = 64

// Set is a bitset over source positions.
// The zero value is an empty set that grows on demand.
type Set struct {
	words []uint64
}

// New creates an empty set sized for n positions.
func New(n int) Set {
	return Set{words: make([]uint64, (n+wordBits-1)/wordBits)}
}

// Span creates a set with positions [start, end) set.
func Span(n, start, end int) Set {
	s := New(n)
	s.SetRange(start, end)
	return s
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	w := make([]uint64, len(s.words))
	copy(w, s.words)
	return Set{words: w}
}

func (s *Set) grow(i int) {
	need := i/wordBits + 1
	if need > len(s.words) {
		w := make([]uint64, need)
		copy(w, s.words)
		s.words = w
	}
}

// Set marks position i.
func (s *Set) Set(i int) {
	s.grow(i)
	s.words[i/wordBits] |= 1 << uint(i%wordBits)
}

// SetRange marks positions [start, end).
func (s *Set) SetRange(start, end int) {
	for i := start; i < end; i++ {
		s.Set(i)
	}
}

// Get reports whether position i is set.
func (s Set) Get(i int) bool {
	if i < 0 || i/wordBits >= len(s.words) {
		return false
	}
	return s.words[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// Cardinality returns the number of set positions.
func (s Set) Cardinality() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Or returns the union of s and o.
func (s Set) Or(o Set) Set {
	n := len(s.words)
	if len(o.words) > n {
		n = len(o.words)
	}
	w := make([]uint64, n)
	copy(w, s.words)
	for i, x := range o.words {
		w[i] |= x
	}
	return Set{words: w}
}

// Intersects reports whether s and o share any position.
func (s Set) Intersects(o Set) bool {
	n := len(s.words)
	if len(o.words) < n {
		n = len(o.words)
	}
	for i := 0; i < n; i++ {
		if s.words[i]&o.words[i] != 0 {
			return true
		}
	}
	return false
}

// Equal reports whether both sets hold the same positions.
func (s Set) Equal(o Set) bool {
	a, b := s.words, o.words
	if len(a) < len(b) {
		a, b = b, a
	}
	for i := range a {
		var y uint64
		if i < len(b) {
			y = b[i]
		}
		if a[i] != y {
			return false
		}
	}
	return true
}

// NextClear returns the first unset position >= from.
func (s Set) NextClear(from int) int {
	for i := from; ; i++ {
		if !s.Get(i) {
			return i
		}
	}
}

// NextSet returns the first set position >= from, or -1.
func (s Set) NextSet(from int) int {
	if from < 0 {
		from = 0
	}
	for wi := from / wordBits; wi < len(s.words); wi++ {
		w := s.words[wi]
		if wi == from/wordBits {
			w &= ^uint64(0) << uint(from%wordBits)
		}
		if w != 0 {
			return wi*wordBits + bits.TrailingZeros64(w)
		}
	}
	return -1
}

// Key returns a string usable as a map key. Trailing zero words are ignored.
func (s Set) Key() string {
	n := len(s.words)
	for n > 0 && s.words[n-1] == 0 {
		n--
	}
	var sb strings.Builder
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteByte(':')
		}
		sb.WriteString(strconv.FormatUint(s.words[i], 16))
	}
	return sb.String()
}

// Hash returns an FNV-1a hash of the set contents.
func (s Set) Hash() uint64 {
	n := len(s.words)
	for n > 0 && s.words[n-1] == 0 {
		n--
	}
	h := uint64(14695981039346656037)
	for i := 0; i < n; i++ {
		h ^= s.words[i]
		h *= 1099511628211
	}
	return h
}

// Positions lists the set positions in ascending order.
func (s Set) Positions() []int {
	var out []int
	for i := s.NextSet(0); i >= 0; i = s.NextSet(i + 1) {
		out = append(out, i)
	}
	return out
}

func (s Set) String() string {
	pos := s.Positions()
	parts := make([]string, len(pos))
	for i, p := range pos {
		parts[i] = strconv.Itoa(p)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
