package dedup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"AdvisoryScanner/internal/domain"
)

// Document is the on-disk ledger layout shared with every other tool that
// reads the ledger file:
//
//	{"processed_items": {"<id>": {"first_seen": ts, "source": s, "title": t}}, "last_updated": ts|null}
type Document struct {
	ProcessedItems map[string]DocumentRecord `json:"processed_items"`
	LastUpdated    *Timestamp                `json:"last_updated"`
}

// DocumentRecord is one processed_items entry.
type DocumentRecord struct {
	FirstSeen Timestamp `json:"first_seen"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
}

// naive ISO-8601 layouts carry no offset and are read in local time.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Timestamp reads RFC 3339 as well as offset-less ISO-8601 and always writes
// RFC 3339 with nanoseconds. An unreadable value decodes to the zero time.
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses s with every accepted layout.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, _ := ParseTimestamp(raw)
	t.Time = parsed
	return nil
}

// DecodeDocument parses a ledger document. Entries whose first_seen cannot be
// read start aging at loadedAt.
func DecodeDocument(data []byte, loadedAt time.Time) (*domain.Ledger, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode ledger document: %w", err)
	}

	ledger := domain.NewLedger()
	for id, rec := range doc.ProcessedItems {
		firstSeen := rec.FirstSeen.Time
		if firstSeen.IsZero() {
			firstSeen = loadedAt
		}
		ledger.Items[id] = domain.ProcessedRecord{
			ID:        id,
			FirstSeen: firstSeen,
			Source:    rec.Source,
			Title:     rec.Title,
		}
	}
	if doc.LastUpdated != nil && !doc.LastUpdated.IsZero() {
		updated := doc.LastUpdated.Time
		ledger.LastUpdated = &updated
	}

	return ledger, nil
}

// EncodeDocument renders ledger as an indented ledger document.
func EncodeDocument(ledger *domain.Ledger) ([]byte, error) {
	doc := Document{ProcessedItems: make(map[string]DocumentRecord)}
	if ledger != nil {
		for id, rec := range ledger.Items {
			doc.ProcessedItems[id] = DocumentRecord{
				FirstSeen: Timestamp{rec.FirstSeen},
				Source:    rec.Source,
				Title:     rec.Title,
			}
		}
		if ledger.LastUpdated != nil {
			doc.LastUpdated = &Timestamp{*ledger.LastUpdated}
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode ledger document: %w", err)
	}
	return buf.Bytes(), nil
}
