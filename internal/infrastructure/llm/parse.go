package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"AdvisoryScanner/internal/domain"
)

// ErrNoJSON is returned when the model answer holds no JSON object.
var ErrNoJSON = errors.New("model answer contains no JSON object")

var (
	fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	flatObject = regexp.MustCompile(`\{[^{}]*\}`)
)

// Extraction is the raw structured part of a model answer.
type Extraction struct {
	Product  string
	Severity string
	Summary  string
}

type extractionPayload struct {
	AffectedProduct any `json:"affected_product"`
	Severity        any `json:"severity"`
	Summary         any `json:"summary"`
}

// ParseAnswer pulls the JSON object out of a model answer: a ```json fenced
// block when present, otherwise the first brace-delimited object.
func ParseAnswer(answer string) (Extraction, error) {
	var payload string
	if m := fencedJSON.FindStringSubmatch(answer); m != nil {
		payload = m[1]
	} else if m := flatObject.FindString(answer); m != "" {
		payload = m
	} else {
		return Extraction{}, ErrNoJSON
	}

	var raw extractionPayload
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Extraction{}, fmt.Errorf("decode model answer: %w", err)
	}

	severity := strings.ToLower(strings.TrimSpace(stringify(raw.Severity)))
	if severity == "" {
		severity = domain.SeverityLow.String()
	}

	return Extraction{
		Product:  strings.ToLower(strings.TrimSpace(stringify(raw.AffectedProduct))),
		Severity: severity,
		Summary:  strings.TrimSpace(stringify(raw.Summary)),
	}, nil
}

// stringify renders scalar JSON values the way they would print; null is
// empty.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
