package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crewtime/ledger"
)

type fakeExtractor struct {
	fields ledger.ScanFields
	err    error
}

func (f fakeExtractor) ExtractFields(context.Context, []byte) (ledger.ScanFields, error) {
	return f.fields, f.err
}

func ptr[T any](v T) *T { return &v }

func TestApplyScan_UsesCandidateFields(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")
	ocr := fakeExtractor{fields: ledger.ScanFields{CandidateDate: ptr(march(12)), CandidateHours: ptr(9.5), CandidateText: "WZ 12/03"}}

	res, err := l.ApplyScan(ctx, ocr, ledger.ScanRequest{EmployeeID: jan.ID, Status: ledger.StatusWork, FallbackDate: march(1), Image: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, march(12), res.Date)

	entry, err := l.Entry(ctx, jan.ID, march(12))
	require.NoError(t, err)
	assert.True(t, hours(9.5).Equal(entry.Hours))
}

func TestApplyScan_FallbackDate(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")
	ocr := fakeExtractor{fields: ledger.ScanFields{CandidateHours: ptr(8.0)}}

	res, err := l.ApplyScan(ctx, ocr, ledger.ScanRequest{EmployeeID: jan.ID, Status: ledger.StatusWork, FallbackDate: march(3), Image: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, march(3), res.Date)
}

func TestApplyScan_GoesThroughValidation(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")
	before := mem.HistoryLen()

	tests := []struct {
		name string
		ocr  fakeExtractor
	}{
		{"hours out of range", fakeExtractor{fields: ledger.ScanFields{CandidateDate: ptr(march(2)), CandidateHours: ptr(80.0)}}},
		{"no hours", fakeExtractor{fields: ledger.ScanFields{CandidateDate: ptr(march(2)), CandidateText: "illegible"}}},
		{"no date", fakeExtractor{fields: ledger.ScanFields{CandidateHours: ptr(8.0)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.ApplyScan(ctx, tt.ocr, ledger.ScanRequest{EmployeeID: jan.ID, Status: ledger.StatusWork, Image: []byte("png")})
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
	assert.Equal(t, before, mem.HistoryLen())
}

func TestApplyScan_ExtractorError(t *testing.T) {
	l, _ := newTestLedger(t)
	jan := addEmployee(t, l, "Jan Kowalski")
	boom := errors.New("ocr down")

	_, err := l.ApplyScan(context.Background(), fakeExtractor{err: boom}, ledger.ScanRequest{EmployeeID: jan.ID, Status: ledger.StatusWork, Image: []byte("png")})
	assert.ErrorIs(t, err, boom)
}
