package ledger

import (
	"context"
	"time"
)

// Snapshot is the read model handed to export formatters. It carries no
// knowledge of file formats.
type Snapshot struct {
	Month       YearMonth
	GeneratedAt time.Time
	Sheets      []EmployeeSheet
}

// EmployeeSheet is one employee's month: entries ordered by date plus the
// computed summary.
type EmployeeSheet struct {
	Employee Employee
	Entries  []TimeEntry
	Summary  MonthSummary
}

// Snapshot collects every employee with entries in month, plus all active
// employees, ordered like ListEmployees.
func (l *Ledger) Snapshot(ctx context.Context, month YearMonth) (Snapshot, error) {
	employees, err := l.store.ListEmployees(ctx, true)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{Month: month, GeneratedAt: l.now()}
	for _, emp := range employees {
		entries, err := l.store.LoadEntries(ctx, emp.ID, month.Range())
		if err != nil {
			return Snapshot{}, err
		}
		if !emp.Active && len(entries) == 0 {
			continue
		}
		snap.Sheets = append(snap.Sheets, EmployeeSheet{
			Employee: emp,
			Entries:  entries,
			Summary:  Summarize(emp.ID, month, entries),
		})
	}
	return snap, nil
}
