package domain

import "time"

// ProcessedRecord is created the first time an item is evaluated and is only
// removed by a retention sweep.
type ProcessedRecord struct {
	ID        string
	FirstSeen time.Time
	Source    string
	Title     string
}

// NewProcessedRecord snapshots the identifying fields of item.
func NewProcessedRecord(item Item, firstSeen time.Time) ProcessedRecord {
	return ProcessedRecord{
		ID:        item.ID,
		FirstSeen: firstSeen,
		Source:    item.Source,
		Title:     item.Title,
	}
}

// Ledger maps item ids to their processed records.
type Ledger struct {
	Items       map[string]ProcessedRecord
	LastUpdated *time.Time
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{Items: make(map[string]ProcessedRecord)}
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{Items: make(map[string]ProcessedRecord, len(l.Items))}
	for id, rec := range l.Items {
		out.Items[id] = rec
	}
	if l.LastUpdated != nil {
		stamp := *l.LastUpdated
		out.LastUpdated = &stamp
	}
	return out
}

// LedgerStats summarizes the ledger for operators.
type LedgerStats struct {
	TotalItems  int
	LastUpdated *time.Time
	Storage     string
}
