package util

import (
	"os"
	"strings"
	"unicode"
)

// Tokenize splits a line on whitespace and detaches leading and trailing
// punctuation from each word, so "hello, world." becomes
// [hello , world .].
func Tokenize(line string) []string {
	var out []string
	for _, field := range strings.Fields(line) {
		runes := []rune(field)
		start, end := 0, len(runes)
		for start < end && isPunct(runes[start]) {
			start++
		}
		for end > start && isPunct(runes[end-1]) {
			end--
		}
		if start == end {
			out = append(out, field)
			continue
		}
		for _, r := range runes[:start] {
			out = append(out, string(r))
		}
		out = append(out, string(runes[start:end]))
		for _, r := range runes[end:] {
			out = append(out, string(r))
		}
	}
	return out
}

// Detokenize joins tokens with spaces, attaching closing punctuation to the
// previous token.
func Detokenize(tokens []string) string {
	var sb strings.Builder
	for i, tok := range tokens {
		if i > 0 && !attachesLeft(tok) {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

func attachesLeft(tok string) bool {
	r := []rune(tok)
	if len(r) != 1 {
		return false
	}
	return unicode.In(r[0], unicode.Pe, unicode.Pf) || strings.ContainsRune(".,;:!?%", r[0])
}

// FileExists reports whether path names a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
