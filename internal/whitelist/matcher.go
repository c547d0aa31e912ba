// Package whitelist decides whether a product name extracted from model
// output refers to something on the configured whitelist.
package whitelist

import (
	"strings"
	"unicode"
)

// entry is one whitelist name with its token set.
type entry struct {
	name   string
	tokens map[string]struct{}
}

// Matcher checks product names against whitelist entries in configured
// order. When entries overlap ("spring" and "spring boot") the first one
// that matches is reported.
type Matcher struct {
	entries []entry
}

// NewMatcher lowercases and trims entries. Blank and repeated entries are
// dropped; order is kept.
func NewMatcher(names []string) *Matcher {
	m := &Matcher{}
	seen := make(map[string]struct{}, len(names))
	for _, raw := range names {
		name := normalize(raw)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		m.entries = append(m.entries, entry{name: name, tokens: tokenSet(name)})
	}
	return m
}

// Len returns the number of usable entries.
func (m *Matcher) Len() int {
	return len(m.entries)
}

// IsRelevant reports whether product matches any entry.
func (m *Matcher) IsRelevant(product string) bool {
	_, ok := m.Match(product)
	return ok
}

// Match returns the first entry matching product. A product is matched
// by an entry when
//
//	the names are equal,
//	the entry is one of the product's tokens,
//	the entry has several tokens and all of them are product tokens, or
//	the whole product is one of the entry's tokens.
//
// An empty product or "none" never matches.
func (m *Matcher) Match(product string) (string, bool) {
	name := normalize(product)
	if name == "" || name == "none" {
		return "", false
	}
	productTokens := tokenSet(name)

	for _, e := range m.entries {
		if e.name == name {
			return e.name, true
		}
		if _, ok := productTokens[e.name]; ok {
			return e.name, true
		}
		if len(e.tokens) > 1 && subset(e.tokens, productTokens) {
			return e.name, true
		}
		if _, ok := e.tokens[name]; ok {
			return e.name, true
		}
	}
	return "", false
}

// IsRelevant is a one-shot helper over an ad hoc whitelist.
func IsRelevant(product string, whitelist []string) bool {
	return NewMatcher(whitelist).IsRelevant(product)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// tokenSet splits on hyphen, underscore and whitespace. Empty tokens from
// repeated separators are discarded.
func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || unicode.IsSpace(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func subset(small, large map[string]struct{}) bool {
	for tok := range small {
		if _, ok := large[tok]; !ok {
			return false
		}
	}
	return true
}
