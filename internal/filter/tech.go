package filter

import "AdvisoryScanner/internal/domain"

// TechFilter tells whether an item mentions anything in the tech stack.
type TechFilter struct {
	keywords   []string
	categories map[string]string
}

// NewTechFilter flattens the category groups into a keyword -> category
// lookup. A keyword listed under several categories belongs to the last one;
// its evaluation position stays where it first appeared.
func NewTechFilter(groups domain.KeywordGroups) *TechFilter {
	f := &TechFilter{categories: make(map[string]string)}
	for _, group := range groups {
		for _, raw := range group.Keywords {
			kw := normalizeKeyword(raw)
			if kw == "" {
				continue
			}
			if _, seen := f.categories[kw]; !seen {
				f.keywords = append(f.keywords, kw)
			}
			f.categories[kw] = group.Name
		}
	}
	return f
}

// Keywords lists every configured keyword in evaluation order.
func (f *TechFilter) Keywords() []string {
	out := make([]string, len(f.keywords))
	copy(out, f.keywords)
	return out
}

// Category returns the category owning keyword.
func (f *TechFilter) Category(keyword string) (string, bool) {
	c, ok := f.categories[normalizeKeyword(keyword)]
	return c, ok
}

// Evaluate matches every keyword against the item's title and description.
func (f *TechFilter) Evaluate(item domain.Item) domain.FilterOutcome {
	text := item.Haystack()

	var outcome domain.FilterOutcome
	seenCategory := make(map[string]struct{})
	for _, kw := range f.keywords {
		if !ContainsKeyword(text, kw) {
			continue
		}
		outcome.MatchedKeywords = append(outcome.MatchedKeywords, kw)

		category := f.categories[kw]
		if _, ok := seenCategory[category]; !ok {
			seenCategory[category] = struct{}{}
			outcome.MatchedCategories = append(outcome.MatchedCategories, category)
		}
	}
	outcome.Matched = len(outcome.MatchedKeywords) > 0
	return outcome
}
