package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crewtime/ledger"
)

func TestMonthSummary_OnlyDaysOfTheMonth(t *testing.T) {
	// GIVEN: Entries on Feb 29, March 1, March 31 and April 1
	// WHEN: Summarizing March
	// THEN: Only the two March days count

	l, _ := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")

	writes := []struct {
		date   ledger.Date
		hours  float64
		status ledger.Status
	}{
		{ledger.NewDate(2024, time.February, 29), 8, ledger.StatusWork},
		{ledger.NewDate(2024, time.March, 1), 7.5, ledger.StatusWork},
		{ledger.NewDate(2024, time.March, 31), 8, ledger.StatusVacation},
		{ledger.NewDate(2024, time.April, 1), 8, ledger.StatusWork},
	}
	for _, w := range writes {
		_, err := l.UpsertEntry(ctx, jan.ID, w.date, w.hours, w.status)
		require.NoError(t, err)
	}

	s, err := l.MonthSummary(ctx, jan.ID, ledger.YearMonth{Year: 2024, Month: time.March})
	require.NoError(t, err)

	assert.True(t, hours(7.5).Equal(s.Of(ledger.StatusWork)))
	assert.True(t, hours(8).Equal(s.Of(ledger.StatusVacation)))
	assert.True(t, s.Of(ledger.StatusSick).IsZero(), "absent status yields zero")
	assert.True(t, s.Of(ledger.StatusForceMajeure).IsZero())
	assert.True(t, hours(15.5).Equal(s.Total()))
	assert.Equal(t, 2, s.Days)
	assert.Len(t, s.Hours, len(ledger.Statuses))
}

func TestMonthSummary_TotalEqualsSumOfStatuses(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")

	statuses := ledger.Statuses
	for day := 1; day <= 28; day++ {
		_, err := l.UpsertEntry(ctx, jan.ID, ledger.NewDate(2023, time.February, day), float64(day%9)+0.25, statuses[day%len(statuses)])
		require.NoError(t, err)
	}

	s, err := l.MonthSummary(ctx, jan.ID, ledger.YearMonth{Year: 2023, Month: time.February})
	require.NoError(t, err)

	entries, err := ledger.Collect(l.ListEntries(ctx, jan.ID, ledger.YearMonth{Year: 2023, Month: time.February}.Range()))
	require.NoError(t, err)
	total := hours(0)
	for _, e := range entries {
		total = total.Add(e.Hours)
	}
	assert.True(t, total.Equal(s.Total()), "total %s vs %s", total, s.Total())
}

func TestMonthSummary_ClearedContributesNothing(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")
	_, err := l.UpsertEntry(ctx, jan.ID, march(5), 8, ledger.StatusWork)
	require.NoError(t, err)
	_, err = l.ClearEntry(ctx, jan.ID, march(5))
	require.NoError(t, err)

	s, err := l.MonthSummary(ctx, jan.ID, ledger.YearMonth{Year: 2024, Month: time.March})
	require.NoError(t, err)
	assert.True(t, s.Total().IsZero())
	assert.Equal(t, 0, s.Days)
}

func TestMonthSummary_NotCached(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")
	month := ledger.YearMonth{Year: 2024, Month: time.March}

	_, err := l.UpsertEntry(ctx, jan.ID, march(5), 8, ledger.StatusWork)
	require.NoError(t, err)
	s1, err := l.MonthSummary(ctx, jan.ID, month)
	require.NoError(t, err)

	_, err = l.UpsertEntry(ctx, jan.ID, march(5), 2, ledger.StatusWork)
	require.NoError(t, err)
	s2, err := l.MonthSummary(ctx, jan.ID, month)
	require.NoError(t, err)

	assert.True(t, hours(8).Equal(s1.Total()))
	assert.True(t, hours(2).Equal(s2.Total()))
}

func TestMonthSummary_UnknownEmployee(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.MonthSummary(context.Background(), "ghost", ledger.YearMonth{Year: 2024, Month: time.March})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSnapshot_ReadOnly(t *testing.T) {
	l, mem := newTestLedger(t)
	ctx := context.Background()
	jan := addEmployee(t, l, "Jan Kowalski")
	gone := addEmployee(t, l, "Zenon Gone")
	idle := addEmployee(t, l, "Adam Idle")
	_, err := l.UpsertEntry(ctx, jan.ID, march(5), 8, ledger.StatusWork)
	require.NoError(t, err)
	_, err = l.UpsertEntry(ctx, jan.ID, march(4), 6, ledger.StatusSick)
	require.NoError(t, err)
	_, err = l.DeactivateEmployee(ctx, gone.ID)
	require.NoError(t, err)
	before := mem.HistoryLen()

	snap, err := l.Snapshot(ctx, ledger.YearMonth{Year: 2024, Month: time.March})
	require.NoError(t, err)

	assert.Equal(t, before, mem.HistoryLen(), "snapshot does not write")
	require.Len(t, snap.Sheets, 2, "inactive employee without entries is skipped")
	assert.Equal(t, idle.ID, snap.Sheets[0].Employee.ID)
	assert.Equal(t, jan.ID, snap.Sheets[1].Employee.ID)
	require.Len(t, snap.Sheets[1].Entries, 2)
	assert.Equal(t, 4, snap.Sheets[1].Entries[0].Date.Day())
	assert.True(t, hours(14).Equal(snap.Sheets[1].Summary.Total()))
}
