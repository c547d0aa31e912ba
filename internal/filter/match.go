package filter

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ContainsKeyword reports whether the lowercase keyword occurs in the
// lowercase text. Keywords with a period or hyphen ("next.js", "zero-day")
// match as plain substrings. Every other keyword must sit between word
// boundaries, so "go" does not match inside "google".
func ContainsKeyword(text, keyword string) bool {
	if keyword == "" {
		return false
	}
	if strings.ContainsAny(keyword, ".-") {
		return strings.Contains(text, keyword)
	}

	first, _ := utf8.DecodeRuneInString(keyword)
	last, _ := utf8.DecodeLastRuneInString(keyword)

	offset := 0
	for offset <= len(text) {
		idx := strings.Index(text[offset:], keyword)
		if idx < 0 {
			return false
		}
		start := offset + idx
		end := start + len(keyword)

		if boundaryBefore(text, start, first) && boundaryAfter(text, end, last) {
			return true
		}

		_, width := utf8.DecodeRuneInString(text[start:])
		offset = start + width
	}
	return false
}

// boundaryBefore mirrors a regexp \b placed in front of the keyword.
func boundaryBefore(text string, start int, first rune) bool {
	prevWord := false
	if start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		prevWord = isWordRune(prev)
	}
	return prevWord != isWordRune(first)
}

// boundaryAfter mirrors a regexp \b placed after the keyword.
func boundaryAfter(text string, end int, last rune) bool {
	nextWord := false
	if end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		nextWord = isWordRune(next)
	}
	return isWordRune(last) != nextWord
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}
