package filter

import "AdvisoryScanner/internal/domain"

// DefaultMinScore is the score an item needs before it is sent to the model.
const DefaultMinScore = 3

// Evaluation is the combined tech filter and score verdict for one item.
type Evaluation struct {
	Item   domain.Item
	Filter domain.FilterOutcome
	Score  domain.ScoreOutcome
}

// Severity is the tier implied by the rule score.
func (e Evaluation) Severity() domain.Severity {
	return e.Score.Severity()
}

// Stats aggregates a batch of evaluations. The severity histogram only
// counts items that passed the tech filter.
type Stats struct {
	Total            int
	PassedTechFilter int
	Candidates       int
	FilteredOut      int
	Severity         map[domain.Severity]int
}

// Pipeline runs the tech filter and the score calculator over a batch.
type Pipeline struct {
	tech     *TechFilter
	scorer   *ScoreCalculator
	minScore int
}

// NewPipeline wires both evaluators with the candidate threshold.
func NewPipeline(tech *TechFilter, scorer *ScoreCalculator, minScore int) *Pipeline {
	return &Pipeline{tech: tech, scorer: scorer, minScore: minScore}
}

// Evaluate scores a single item.
func (p *Pipeline) Evaluate(item domain.Item) Evaluation {
	return Evaluation{
		Item:   item,
		Filter: p.tech.Evaluate(item),
		Score:  p.scorer.Evaluate(item),
	}
}

// EvaluateBatch scores items, preserving input order.
func (p *Pipeline) EvaluateBatch(items []domain.Item) []Evaluation {
	out := make([]Evaluation, 0, len(items))
	for _, item := range items {
		out = append(out, p.Evaluate(item))
	}
	return out
}

// ShouldAnalyze reports whether e passed the tech filter and met the threshold.
func (p *Pipeline) ShouldAnalyze(e Evaluation) bool {
	return e.Filter.Matched && e.Score.Score >= p.minScore
}

// Partition splits items into model candidates and rejected items. Both
// slices keep input order and together hold every input item exactly once.
func (p *Pipeline) Partition(items []domain.Item) (candidates, rejected []Evaluation) {
	for _, e := range p.EvaluateBatch(items) {
		if p.ShouldAnalyze(e) {
			candidates = append(candidates, e)
		} else {
			rejected = append(rejected, e)
		}
	}
	return candidates, rejected
}

// Stats summarizes evaluations.
func (p *Pipeline) Stats(evals []Evaluation) Stats {
	stats := Stats{
		Total:    len(evals),
		Severity: make(map[domain.Severity]int, len(domain.Severities)),
	}
	for _, sev := range domain.Severities {
		stats.Severity[sev] = 0
	}

	for _, e := range evals {
		if p.ShouldAnalyze(e) {
			stats.Candidates++
		}
		if !e.Filter.Matched {
			continue
		}
		stats.PassedTechFilter++
		stats.Severity[e.Severity()]++
	}
	stats.FilteredOut = stats.Total - stats.PassedTechFilter
	return stats
}
