package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/store/sqlite"
)

func march(day int) ledger.Date { return ledger.NewDate(2024, time.March, day) }

func newMemoryStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_ReplaceSemantics(t *testing.T) {
	// GIVEN: Jan Kowalski with 8h work on 2024-03-05
	// WHEN: The same day is written again as 4h sick
	// THEN: One entry (4h sick) and two history records remain

	s := newMemoryStore(t)
	l := ledger.New(s)
	ctx := context.Background()

	jan, err := l.AddEmployee(ctx, "Jan Kowalski", "Bricklayer")
	require.NoError(t, err)
	_, err = l.UpsertEntry(ctx, jan.ID, march(5), 8, ledger.StatusWork)
	require.NoError(t, err)
	prior, err := l.UpsertEntry(ctx, jan.ID, march(5), 4, ledger.StatusSick)
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, ledger.StatusWork, prior.Status)

	entries, err := s.LoadEntries(ctx, jan.ID, ledger.DateRange{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "4", entries[0].Hours.String())
	assert.Equal(t, ledger.StatusSick, entries[0].Status)

	history, err := s.LoadHistory(ctx, ledger.HistoryFilter{EmployeeID: jan.ID, EntryDate: ptr(march(5))})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, ledger.ActionAddHours, history[0].Action)
	assert.Equal(t, ledger.ActionEditHours, history[1].Action)
	assert.Less(t, history[0].Seq, history[1].Seq)
}

func ptr[T any](v T) *T { return &v }

func TestStore_HistoryEntryRange(t *testing.T) {
	s := newMemoryStore(t)
	l := ledger.New(s)
	ctx := context.Background()

	jan, err := l.AddEmployee(ctx, "Jan Kowalski", "Bricklayer")
	require.NoError(t, err)
	for _, day := range []int{4, 5, 20} {
		_, err = l.UpsertEntry(ctx, jan.ID, march(day), 8, ledger.StatusWork)
		require.NoError(t, err)
	}

	history, err := s.LoadHistory(ctx, ledger.HistoryFilter{EntryRange: ledger.DateRange{From: march(5), To: march(19)}})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, march(5), *history[0].EntryDate)
}

func TestStore_SurvivesRestart(t *testing.T) {
	// GIVEN: A ledger with employees, entries, a cleared day, an export
	//        record, a pending set and an advanced cursor
	// WHEN: The database is closed and reopened
	// THEN: Every piece of state reads back identically

	path := filepath.Join(t.TempDir(), "crewtime.db")
	ctx := context.Background()
	clock := time.Date(2024, 3, 10, 18, 30, 0, 123456789, time.UTC)
	now := func() time.Time { return clock }

	s, err := sqlite.New(path)
	require.NoError(t, err)
	l := ledger.New(s, ledger.WithClock(now))

	jan, err := l.AddEmployee(ctx, "Jan Kowalski", "Bricklayer")
	require.NoError(t, err)
	piotr, err := l.AddEmployee(ctx, "Piotr Nowak", "Carpenter")
	require.NoError(t, err)
	_, err = l.UpsertEntry(ctx, jan.ID, march(4), 7.75, ledger.StatusWork)
	require.NoError(t, err)
	_, err = l.UpsertEntry(ctx, jan.ID, march(5), 8, ledger.StatusForceMajeure)
	require.NoError(t, err)
	_, err = l.ClearEntry(ctx, jan.ID, march(5))
	require.NoError(t, err)
	_, err = l.DeactivateEmployee(ctx, piotr.ID)
	require.NoError(t, err)
	require.NoError(t, l.RecordExport(ctx, "exported 2024-03 as csv"))
	require.NoError(t, l.AdvanceSyncCursor(ctx, 42))
	device, err := s.EnsureDeviceID(ctx, "")
	require.NoError(t, err)

	wantEmployees, err := s.ListEmployees(ctx, true)
	require.NoError(t, err)
	wantEntries, err := s.LoadEntries(ctx, jan.ID, ledger.DateRange{})
	require.NoError(t, err)
	wantHistory, err := s.LoadHistory(ctx, ledger.HistoryFilter{})
	require.NoError(t, err)
	wantPending, err := s.PendingChanges(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	gotEmployees, err := reopened.ListEmployees(ctx, true)
	require.NoError(t, err)
	require.Len(t, gotEmployees, len(wantEmployees))
	for i := range wantEmployees {
		assert.Equal(t, wantEmployees[i].ID, gotEmployees[i].ID)
		assert.Equal(t, wantEmployees[i].Name, gotEmployees[i].Name)
		assert.Equal(t, wantEmployees[i].Position, gotEmployees[i].Position)
		assert.Equal(t, wantEmployees[i].Active, gotEmployees[i].Active)
		assert.Equal(t, wantEmployees[i].Revision, gotEmployees[i].Revision)
		assert.True(t, clock.Equal(gotEmployees[i].UpdatedAt))
	}

	gotEntries, err := reopened.LoadEntries(ctx, jan.ID, ledger.DateRange{})
	require.NoError(t, err)
	require.Len(t, gotEntries, 2)
	for i := range wantEntries {
		assert.Equal(t, wantEntries[i].Date, gotEntries[i].Date)
		assert.True(t, wantEntries[i].Hours.Equal(gotEntries[i].Hours))
		assert.Equal(t, wantEntries[i].Status, gotEntries[i].Status)
		assert.Equal(t, wantEntries[i].Cleared, gotEntries[i].Cleared)
		assert.Equal(t, wantEntries[i].Revision, gotEntries[i].Revision)
	}
	assert.True(t, gotEntries[1].Cleared, "cleared stays distinguishable from absent")

	gotHistory, err := reopened.LoadHistory(ctx, ledger.HistoryFilter{})
	require.NoError(t, err)
	require.Len(t, gotHistory, len(wantHistory))
	for i := range wantHistory {
		assert.Equal(t, wantHistory[i].Seq, gotHistory[i].Seq)
		assert.Equal(t, wantHistory[i].ID, gotHistory[i].ID)
		assert.Equal(t, wantHistory[i].Action, gotHistory[i].Action)
		assert.Equal(t, wantHistory[i].Description, gotHistory[i].Description)
		assert.Equal(t, wantHistory[i].EntryDate, gotHistory[i].EntryDate)
		assert.True(t, wantHistory[i].Timestamp.Equal(gotHistory[i].Timestamp))
	}

	gotPending, err := reopened.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, gotPending, len(wantPending))
	for i := range wantPending {
		assert.Equal(t, wantPending[i].Key, gotPending[i].Key)
		assert.Equal(t, wantPending[i].Revision, gotPending[i].Revision)
	}

	cursor, err := reopened.SyncCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cursor)

	again, err := reopened.EnsureDeviceID(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, device, again)

	// The revision clock continues where it stopped.
	l2 := ledger.New(reopened)
	_, err = l2.UpsertEntry(ctx, jan.ID, march(6), 8, ledger.StatusWork)
	require.NoError(t, err)
	e, err := l2.Entry(ctx, jan.ID, march(6))
	require.NoError(t, err)
	assert.Greater(t, e.Revision, wantPending[len(wantPending)-1].Revision)
}

func TestStore_WithTxRollsBack(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.PutEmployee(ctx, ledger.Employee{ID: "e1", Name: "Jan", Position: "Bricklayer", Active: true, Revision: 1}))
		_, err := tx.AppendHistory(ctx, ledger.ChangeHistoryEntry{ID: "h1", Action: ledger.ActionAddEmployee, EmployeeID: "e1", Description: "added"})
		require.NoError(t, err)
		_, err = tx.NextRevision(ctx)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, found, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.False(t, found)
	history, err := s.LoadHistory(ctx, ledger.HistoryFilter{})
	require.NoError(t, err)
	assert.Empty(t, history)

	err = s.WithTx(ctx, func(tx ledger.Tx) error {
		rev, err := tx.NextRevision(ctx)
		assert.Equal(t, int64(1), rev, "clock change was rolled back")
		return err
	})
	require.NoError(t, err)
}

func TestStore_ClockAndCursorOnlyMoveForward(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.ObserveRevision(ctx, 10))
		require.NoError(t, tx.ObserveRevision(ctx, 3))
		rev, err := tx.NextRevision(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(11), rev)

		require.NoError(t, tx.SetSyncCursor(ctx, 7))
		return tx.SetSyncCursor(ctx, 2)
	})
	require.NoError(t, err)

	cursor, err := s.SyncCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cursor)
}

func TestStore_ChangeKeysDoNotCollide(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx ledger.Tx) error {
		require.NoError(t, tx.PutChange(ctx, ledger.Change{Key: ledger.EmployeeKey("e1"), Revision: 1, State: ledger.SyncPending}))
		require.NoError(t, tx.PutChange(ctx, ledger.Change{Key: ledger.EntryKey("e1", march(1)), Revision: 2, State: ledger.SyncPending}))
		require.NoError(t, tx.PutChange(ctx, ledger.Change{Key: ledger.EntryKey("e1", march(2)), Revision: 3, State: ledger.SyncSynced}))
		return tx.PutChange(ctx, ledger.Change{Key: ledger.EntryKey("e1", march(1)), Revision: 4, State: ledger.SyncPending})
	})
	require.NoError(t, err)

	pending, err := s.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, ledger.EmployeeKey("e1"), pending[0].Key)
	assert.Equal(t, ledger.EntryKey("e1", march(1)), pending[1].Key)
	assert.Equal(t, int64(4), pending[1].Revision)

	ch, found, err := s.GetChange(ctx, ledger.EntryKey("e1", march(2)))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ledger.SyncSynced, ch.State)
}

func TestStore_EnsureDeviceIDPrefersConfigured(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	generated, err := s.EnsureDeviceID(ctx, "")
	require.NoError(t, err)
	assert.NotEmpty(t, generated)

	configured, err := s.EnsureDeviceID(ctx, "tablet-7")
	require.NoError(t, err)
	assert.Equal(t, "tablet-7", configured)

	stored, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tablet-7", stored)
}
