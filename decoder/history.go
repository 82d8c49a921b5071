package decoder

// RecombinationHistory maps each representative to the derivations it
// absorbed. A nil history records nothing, which is what 1-best decoding
// uses.
type RecombinationHistory struct {
	absorbed map[*Derivation][]*Derivation
}

// NewRecombinationHistory creates an empty history.
func NewRecombinationHistory() *RecombinationHistory {
	return &RecombinationHistory{absorbed: make(map[*Derivation][]*Derivation)}
}

// Log records that best absorbed redundant.
func (h *RecombinationHistory) Log(best, redundant *Derivation) {
	if h == nil || best == nil || redundant == nil || best == redundant {
		return
	}
	h.absorbed[best] = append(h.absorbed[best], redundant)
}

// Absorbed returns the derivations directly absorbed by d, in log order.
func (h *RecombinationHistory) Absorbed(d *Derivation) []*Derivation {
	if h == nil {
		return nil
	}
	return h.absorbed[d]
}

// Alternatives returns d followed by everything it absorbed, directly or
// through a derivation it absorbed.
func (h *RecombinationHistory) Alternatives(d *Derivation) []*Derivation {
	out := []*Derivation{d}
	if h == nil {
		return out
	}
	seen := map[*Derivation]bool{d: true}
	for i := 0; i < len(out); i++ {
		for _, a := range h.absorbed[out[i]] {
			if !seen[a] {
				seen[a] = true
				out = append(out, a)
			}
		}
	}
	return out
}

// Len is the number of representatives with at least one absorbed member.
func (h *RecombinationHistory) Len() int {
	if h == nil {
		return 0
	}
	return len(h.absorbed)
}
