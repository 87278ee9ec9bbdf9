/*
syncstate.go - Ledger hooks used by the sync reconciler

PURPOSE:
  The reconciler decides how a remote record merges with local state, but
  the decision and the resulting write must happen inside one ledger
  transaction. Resolve hands the reconciler a consistent view of one key and
  commits whatever it returns, with audit, under the single writer.

  Remote writes never mark keys dirty: they are already remote state.

SEE ALSO:
  - reconcile/reconciler.go: The caller
*/
package ledger

import (
	"context"
	"fmt"
)

// KeyState is the local view of one key at resolution time.
type KeyState struct {
	Key      ChangeKey
	Change   *Change // nil when the key was never written locally
	Entry    *TimeEntry
	Employee *Employee
}

// Revision returns the revision of the current local value, 0 when absent.
func (ks KeyState) Revision() int64 {
	switch ks.Key.Kind {
	case KindEntry:
		if ks.Entry != nil {
			return ks.Entry.Revision
		}
	case KindEmployee:
		if ks.Employee != nil {
			return ks.Employee.Revision
		}
	}
	return 0
}

// Pending returns the local change when it has not been pushed yet.
func (ks KeyState) Pending() *Change {
	if ks.Change != nil && ks.Change.State == SyncPending {
		return ks.Change
	}
	return nil
}

// Resolution is the outcome a resolver asks the ledger to commit.
type Resolution struct {
	// Observe raises the revision clock so later local writes sort after
	// what was seen remotely.
	Observe int64

	// Entry or Employee, when set, becomes current state as-is.
	Entry    *TimeEntry
	Employee *Employee

	// ChangeState, when set, replaces the state of the local change.
	ChangeState SyncState

	Actor string
	Note  string
}

// Resolve loads the state of key, passes it to fn and commits the returned
// resolution atomically. It returns the state fn saw.
func (l *Ledger) Resolve(ctx context.Context, key ChangeKey, fn func(KeyState) (Resolution, error)) (KeyState, error) {
	var state KeyState
	err := l.commit(ctx, func(tx Tx) error {
		var err error
		state, err = loadKeyState(ctx, tx, key)
		if err != nil {
			return err
		}
		res, err := fn(state)
		if err != nil {
			return err
		}
		return l.applyResolution(ctx, tx, state, res)
	})
	return state, err
}

func loadKeyState(ctx context.Context, tx Tx, key ChangeKey) (KeyState, error) {
	state := KeyState{Key: key}
	if ch, ok, err := tx.GetChange(ctx, key); err != nil {
		return state, err
	} else if ok {
		state.Change = &ch
	}
	if emp, ok, err := tx.GetEmployee(ctx, key.EmployeeID); err != nil {
		return state, err
	} else if ok {
		state.Employee = &emp
	}
	if key.Kind == KindEntry {
		if e, ok, err := tx.GetEntry(ctx, key.EmployeeID, key.Date); err != nil {
			return state, err
		} else if ok {
			state.Entry = &e
		}
	}
	return state, nil
}

func (l *Ledger) applyResolution(ctx context.Context, tx Tx, state KeyState, res Resolution) error {
	if res.Observe > 0 {
		if err := tx.ObserveRevision(ctx, res.Observe); err != nil {
			return err
		}
	}
	now := l.now()
	h := ChangeHistoryEntry{EmployeeID: state.Key.EmployeeID, Actor: res.Actor}

	switch {
	case res.Entry != nil:
		entry := *res.Entry
		entry.UpdatedAt = now
		if err := tx.PutEntry(ctx, entry); err != nil {
			return err
		}
		name := entry.EmployeeID
		if state.Employee != nil {
			name = state.Employee.Name
		}
		h.EntryDate = &entry.Date
		h.Action = ActionAddHours
		h.Description = fmt.Sprintf("%s on %s: %s", name, entry.Date, entry.Describe())
		if state.Entry != nil {
			h.Action = ActionEditHours
			h.Description = fmt.Sprintf("%s on %s: %s → %s", name, entry.Date, state.Entry.Describe(), entry.Describe())
		}
	case res.Employee != nil:
		emp := *res.Employee
		emp.UpdatedAt = now
		emp.CreatedAt = now
		if state.Employee != nil && !state.Employee.CreatedAt.IsZero() {
			emp.CreatedAt = state.Employee.CreatedAt
		}
		if err := tx.PutEmployee(ctx, emp); err != nil {
			return err
		}
		h.Action = ActionAddEmployee
		h.Description = fmt.Sprintf("added %s (%s)", emp.Name, emp.Position)
		switch {
		case state.Employee != nil && state.Employee.Active && !emp.Active:
			h.Action = ActionDeleteEmployee
			h.Description = fmt.Sprintf("deactivated %s (%s)", emp.Name, emp.Position)
		case state.Employee != nil:
			h.Description = fmt.Sprintf("updated %s (%s)", emp.Name, emp.Position)
		}
	}

	if h.Action != "" {
		if res.Note != "" {
			h.Description += "; " + res.Note
		}
		if err := l.record(ctx, tx, h, now); err != nil {
			return err
		}
	}

	if res.ChangeState != "" && state.Change != nil {
		ch := *state.Change
		ch.State = res.ChangeState
		ch.UpdatedAt = now
		if err := tx.PutChange(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

// PendingChanges returns the keys waiting to be pushed.
func (l *Ledger) PendingChanges(ctx context.Context) ([]Change, error) {
	return l.store.PendingChanges(ctx)
}

// MarkSynced flips the change for key to synced if it still carries rev.
// A key rewritten since the push stays pending. It reports whether the
// change was updated.
func (l *Ledger) MarkSynced(ctx context.Context, key ChangeKey, rev int64) (bool, error) {
	updated := false
	err := l.commit(ctx, func(tx Tx) error {
		ch, ok, err := tx.GetChange(ctx, key)
		if err != nil || !ok {
			return err
		}
		if ch.Revision != rev || ch.State != SyncPending {
			return nil
		}
		ch.State = SyncSynced
		ch.UpdatedAt = l.now()
		updated = true
		return tx.PutChange(ctx, ch)
	})
	return updated, err
}

// SyncCursor returns the last remote sequence fully applied locally.
func (l *Ledger) SyncCursor(ctx context.Context) (int64, error) {
	return l.store.SyncCursor(ctx)
}

// AdvanceSyncCursor stores cursor if it is beyond the current one.
func (l *Ledger) AdvanceSyncCursor(ctx context.Context, cursor int64) error {
	return l.commit(ctx, func(tx Tx) error {
		return tx.SetSyncCursor(ctx, cursor)
	})
}
