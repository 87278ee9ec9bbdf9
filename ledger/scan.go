package ledger

import (
	"context"
	"fmt"
)

// ScanFields are best-effort guesses read from a scanned delivery slip.
// Any field may be missing.
type ScanFields struct {
	CandidateDate  *Date
	CandidateHours *float64
	CandidateText  string
}

// FieldExtractor is the OCR boundary.
type FieldExtractor interface {
	ExtractFields(ctx context.Context, image []byte) (ScanFields, error)
}

// ScanRequest names what the scan is applied to. FallbackDate is used when
// the slip carries no readable date.
type ScanRequest struct {
	EmployeeID   string
	Status       Status
	FallbackDate Date
	Image        []byte
}

type ScanResult struct {
	Fields ScanFields
	Date   Date
	Prior  *TimeEntry
}

// ApplyScan runs OCR on the image and feeds the proposal through
// UpsertEntry. OCR output gets no more trust than any other input.
func (l *Ledger) ApplyScan(ctx context.Context, extractor FieldExtractor, req ScanRequest) (ScanResult, error) {
	if len(req.Image) == 0 {
		return ScanResult{}, &ValidationError{Field: "image", Reason: "is empty"}
	}
	fields, err := extractor.ExtractFields(ctx, req.Image)
	if err != nil {
		return ScanResult{}, fmt.Errorf("extract fields: %w", err)
	}

	result := ScanResult{Fields: fields, Date: req.FallbackDate}
	if fields.CandidateDate != nil && !fields.CandidateDate.IsZero() {
		result.Date = *fields.CandidateDate
	}
	if result.Date.IsZero() {
		return result, &ValidationError{Field: "date", Reason: "not found on scan and no fallback given"}
	}
	if fields.CandidateHours == nil {
		return result, &ValidationError{Field: "hours", Reason: "not found on scan"}
	}

	prior, err := l.UpsertEntry(ctx, req.EmployeeID, result.Date, *fields.CandidateHours, req.Status)
	if err != nil {
		return result, err
	}
	result.Prior = prior
	return result, nil
}
