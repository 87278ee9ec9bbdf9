/*
Package export renders a ledger.Snapshot into spreadsheet formats.

Formatters only read the snapshot. Recording the export in the audit trail
is the caller's job (see ledger.RecordExport).

LAYOUT (both formats):
  - Entries: one row per non-cleared entry, grouped by employee, by date.
  - Summary: one row per employee with the four status totals, the total
    and the number of days with hours.
*/
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/warp/crewtime/ledger"
)

// Format names a supported output format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx".
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", &ledger.ValidationError{Field: "format", Value: s, Reason: "must be csv or xlsx"}
}

// ContentType returns the MIME type served for f.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename is the suggested download name for a month.
func (f Format) Filename(month ledger.YearMonth) string {
	return fmt.Sprintf("crewtime-%s.%s", month, f)
}

// Write renders snap in format f.
func Write(w io.Writer, f Format, snap ledger.Snapshot) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, snap)
	case FormatXLSX:
		return WriteXLSX(w, snap)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

var (
	entryHeader   = []string{"employee_id", "name", "position", "date", "status", "hours"}
	summaryHeader = []string{"employee_id", "name", "position", "work", "sick", "vacation", "force-majeure", "total", "days"}
)

// WriteCSV writes the entries section, a blank line, then the summary
// section.
func WriteCSV(w io.Writer, snap ledger.Snapshot) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(entryHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range entryRows(snap) {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	if err := cw.Write(nil); err != nil {
		return fmt.Errorf("failed to write csv separator: %w", err)
	}

	if err := cw.Write(summaryHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, row := range summaryRows(snap) {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}

func entryRows(snap ledger.Snapshot) [][]string {
	var rows [][]string
	for _, sheet := range snap.Sheets {
		emp := sheet.Employee
		for _, e := range sheet.Entries {
			if e.Cleared {
				continue
			}
			rows = append(rows, []string{emp.ID, emp.Name, emp.Position, e.Date.String(), e.Status.String(), e.Hours.String()})
		}
	}
	return rows
}

func summaryRows(snap ledger.Snapshot) [][]string {
	rows := make([][]string, 0, len(snap.Sheets))
	for _, sheet := range snap.Sheets {
		emp, sum := sheet.Employee, sheet.Summary
		row := []string{emp.ID, emp.Name, emp.Position}
		for _, st := range ledger.Statuses {
			row = append(row, sum.Of(st).String())
		}
		row = append(row, sum.Total().String(), strconv.Itoa(sum.Days))
		rows = append(rows, row)
	}
	return rows
}
