package util

import (
	"unicode"
)

// cjkSymbols covers the CJK Symbols and Punctuation block and the
// half-width and full-width forms.
var cjkSymbols = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x3000, Hi: 0x303F, Stride: 1},
		{Lo: 0xFF00, Hi: 0xFFEF, Stride: 1},
	},
}

// IsPunctuation reports whether a token is made only of punctuation or
// symbols. Such tokens pass through the unknown-word model unpenalized.
func IsPunctuation(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isPunct(r) {
			return false
		}
	}
	return true
}

func isPunct(r rune) bool {
	return unicode.In(r, unicode.P, unicode.S, cjkSymbols)
}
