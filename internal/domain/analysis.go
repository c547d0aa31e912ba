package domain

// FilterOutcome is the tech filter verdict for one item.
type FilterOutcome struct {
	Matched           bool
	MatchedKeywords   []string
	MatchedCategories []string
}

// ScoreOutcome is the rule-based score of one item. Score always equals the
// sum of Breakdown.
type ScoreOutcome struct {
	Score           int
	Breakdown       map[string]int
	MatchedKeywords []string
}

// Severity returns the tier derived from the score.
func (s ScoreOutcome) Severity() Severity {
	return SeverityForScore(s.Score)
}

// Analysis is the parsed answer of the relevance model.
type Analysis struct {
	Product        string
	Severity       Severity
	Summary        string
	Relevant       bool
	ActionRequired bool
	Raw            string
}

// Alert is handed to notifiers. Formatting and delivery are theirs.
type Alert struct {
	Item           Item
	Relevant       bool
	Severity       Severity
	Product        string
	Summary        string
	ActionRequired bool
	Score          int
}

// RunStats counts what happened during one pipeline run.
type RunStats struct {
	RunID       string
	Collected   int
	Malformed   int
	New         int
	Candidates  int
	Analyzed    int
	ModelErrors int
	Relevant    int
	AlertsSent  int
	Swept       int
}
