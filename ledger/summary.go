package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONTH SUMMARY - Derived on demand, never stored
// =============================================================================

type MonthSummary struct {
	EmployeeID string
	Month      YearMonth
	Hours      map[Status]decimal.Decimal // every status present, zero when absent
	Days       int                        // days with a non-cleared entry
}

// Total sums all statuses.
func (s MonthSummary) Total() decimal.Decimal {
	total := decimal.Zero
	for _, st := range Statuses {
		total = total.Add(s.Hours[st])
	}
	return total
}

// Of returns the hours for one status.
func (s MonthSummary) Of(st Status) decimal.Decimal {
	if v, ok := s.Hours[st]; ok {
		return v
	}
	return decimal.Zero
}

// Summarize folds entries into a summary for month. Entries outside the
// month and cleared entries contribute nothing.
func Summarize(employeeID string, month YearMonth, entries []TimeEntry) MonthSummary {
	s := MonthSummary{
		EmployeeID: employeeID,
		Month:      month,
		Hours:      make(map[Status]decimal.Decimal, len(Statuses)),
	}
	for _, st := range Statuses {
		s.Hours[st] = decimal.Zero
	}
	for _, e := range entries {
		if e.EmployeeID != employeeID || e.Cleared || !month.Contains(e.Date) {
			continue
		}
		s.Hours[e.Status] = s.Hours[e.Status].Add(e.Hours)
		s.Days++
	}
	return s
}

// MonthSummary computes per-status totals for one employee from current
// ledger state.
func (l *Ledger) MonthSummary(ctx context.Context, employeeID string, month YearMonth) (MonthSummary, error) {
	entries, err := Collect(l.ListEntries(ctx, employeeID, month.Range()))
	if err != nil {
		return MonthSummary{}, err
	}
	return Summarize(employeeID, month, entries), nil
}
