package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/crewtime/ledger"
)

const (
	SummarySheet = "Summary"
	EntriesSheet = "Entries"
)

// WriteXLSX writes a workbook with a Summary sheet followed by an Entries
// sheet. Hours are numeric cells.
func WriteXLSX(w io.Writer, snap ledger.Snapshot) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SummarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if _, err := f.NewSheet(EntriesSheet); err != nil {
		return fmt.Errorf("failed to add entries sheet: %w", err)
	}

	summary := [][]any{toRow(summaryHeader)}
	for _, sheet := range snap.Sheets {
		emp, sum := sheet.Employee, sheet.Summary
		row := []any{emp.ID, emp.Name, emp.Position}
		for _, st := range ledger.Statuses {
			row = append(row, sum.Of(st).InexactFloat64())
		}
		row = append(row, sum.Total().InexactFloat64(), sum.Days)
		summary = append(summary, row)
	}
	if err := writeRows(f, SummarySheet, summary); err != nil {
		return err
	}

	entries := [][]any{toRow(entryHeader)}
	for _, sheet := range snap.Sheets {
		emp := sheet.Employee
		for _, e := range sheet.Entries {
			if e.Cleared {
				continue
			}
			entries = append(entries, []any{emp.ID, emp.Name, emp.Position, e.Date.String(), e.Status.String(), e.Hours.InexactFloat64()})
		}
	}
	if err := writeRows(f, EntriesSheet, entries); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func toRow(header []string) []any {
	row := make([]any, len(header))
	for i, h := range header {
		row[i] = h
	}
	return row
}
