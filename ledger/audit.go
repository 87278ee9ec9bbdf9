/*
audit.go - Queries over the append-only change history

The trail is written only from inside ledger mutations (see record in
ledger.go). It is independent of current state: superseded values, cleared
entries and deactivated employees all remain explainable from here.
*/
package ledger

import (
	"context"
	"iter"
	"slices"
	"time"
)

// HistoryFilter narrows a history query. Zero fields match everything.
type HistoryFilter struct {
	EmployeeID string
	EntryDate  *Date
	EntryRange DateRange // entry-scoped records whose day falls in the range
	Actions    []ActionKind
	From       time.Time // inclusive, on Timestamp
	To         time.Time // inclusive, on Timestamp
	Limit      int       // 0 means no limit
}

// Matches reports whether h passes the filter, ignoring Limit.
func (f HistoryFilter) Matches(h ChangeHistoryEntry) bool {
	if f.EmployeeID != "" && h.EmployeeID != f.EmployeeID {
		return false
	}
	if f.EntryDate != nil && (h.EntryDate == nil || !h.EntryDate.Equal(*f.EntryDate)) {
		return false
	}
	if !f.EntryRange.IsOpen() && (h.EntryDate == nil || !f.EntryRange.Contains(*h.EntryDate)) {
		return false
	}
	if len(f.Actions) > 0 && !slices.Contains(f.Actions, h.Action) {
		return false
	}
	if !f.From.IsZero() && h.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && h.Timestamp.After(f.To) {
		return false
	}
	return true
}

// History returns matching audit records, most recent first. The store is
// queried each time the sequence is ranged over.
func (l *Ledger) History(ctx context.Context, filter HistoryFilter) iter.Seq2[ChangeHistoryEntry, error] {
	return func(yield func(ChangeHistoryEntry, error) bool) {
		rows, err := l.store.LoadHistory(ctx, filter)
		if err != nil {
			yield(ChangeHistoryEntry{}, err)
			return
		}
		emitted := 0
		for i := len(rows) - 1; i >= 0; i-- {
			if filter.Limit > 0 && emitted == filter.Limit {
				return
			}
			if !yield(rows[i], nil) {
				return
			}
			emitted++
		}
	}
}

// RecordExport appends a global export record. Exports read the ledger
// without changing it, so this is the only write they cause.
func (l *Ledger) RecordExport(ctx context.Context, description string) error {
	return l.commit(ctx, func(tx Tx) error {
		return l.record(ctx, tx, ChangeHistoryEntry{
			Action:      ActionExport,
			Description: description,
		}, l.now())
	})
}
