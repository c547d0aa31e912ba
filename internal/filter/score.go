package filter

import (
	"regexp"

	"AdvisoryScanner/internal/domain"
)

// Rule names, also used as keys of ScoreOutcome.Breakdown and of the
// scoring.weights configuration.
const (
	RuleCVEPattern      = "cve_pattern"
	RuleCriticalKeyword = "critical_keyword"
	RuleHighKeyword     = "high_keyword"
	RuleUrgentKeyword   = "urgent_keyword"
)

// DefaultWeights are used for every rule missing from the configured weights.
var DefaultWeights = map[string]int{
	RuleCVEPattern:      3,
	RuleCriticalKeyword: 2,
	RuleHighKeyword:     2,
	RuleUrgentKeyword:   1,
}

var cvePattern = regexp.MustCompile(`(?i)cve-\d{4}-\d+`)

// rule contributes its weight at most once per item.
type rule struct {
	name   string
	weight int
	match  func(text string) (string, bool)
}

// ScoreCalculator scores an item with an ordered list of independent rules.
type ScoreCalculator struct {
	rules []rule
}

// NewScoreCalculator builds the rules from the "critical", "high" and
// "urgent" keyword groups.
func NewScoreCalculator(keywords domain.KeywordGroups, weights map[string]int) *ScoreCalculator {
	weight := func(name string) int {
		if w, ok := weights[name]; ok {
			return w
		}
		return DefaultWeights[name]
	}

	return &ScoreCalculator{rules: []rule{
		{name: RuleCVEPattern, weight: weight(RuleCVEPattern), match: matchCVE},
		{name: RuleCriticalKeyword, weight: weight(RuleCriticalKeyword), match: firstKeyword(keywords.Get("critical"))},
		{name: RuleHighKeyword, weight: weight(RuleHighKeyword), match: firstKeyword(keywords.Get("high"))},
		{name: RuleUrgentKeyword, weight: weight(RuleUrgentKeyword), match: firstKeyword(keywords.Get("urgent"))},
	}}
}

// Evaluate applies every rule in order.
func (c *ScoreCalculator) Evaluate(item domain.Item) domain.ScoreOutcome {
	text := item.Haystack()

	outcome := domain.ScoreOutcome{Breakdown: make(map[string]int)}
	for _, r := range c.rules {
		hit, ok := r.match(text)
		if !ok {
			continue
		}
		outcome.Score += r.weight
		outcome.Breakdown[r.name] = r.weight
		outcome.MatchedKeywords = append(outcome.MatchedKeywords, hit)
	}
	return outcome
}

func matchCVE(text string) (string, bool) {
	if cvePattern.MatchString(text) {
		return "CVE", true
	}
	return "", false
}

// firstKeyword returns a matcher reporting the first keyword, in configured
// order, found in the text.
func firstKeyword(keywords []string) func(string) (string, bool) {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw = normalizeKeyword(kw); kw != "" {
			normalized = append(normalized, kw)
		}
	}

	return func(text string) (string, bool) {
		for _, kw := range normalized {
			if ContainsKeyword(text, kw) {
				return kw, true
			}
		}
		return "", false
	}
}
