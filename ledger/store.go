/*
store.go - Persistence interface for the ledger

PURPOSE:
  Defines the boundary between ledger rules and storage. The ledger never
  writes outside a transaction: entry, audit record, dirty mark and revision
  clock change together or not at all.

KEY INTERFACES:
  Reader: Committed-state queries
  Tx:     Writes inside one transaction (plus reads of the same snapshot)
  Store:  Reader + WithTx

APPEND-ONLY CONTRACT:
  Tx has AppendHistory but no way to update or remove history rows.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory store with snapshot rollback
  - store/sqlite/sqlite.go: Local persisted store

SEE ALSO:
  - ledger.go: The only writer
*/
package ledger

import "context"

// Reader exposes committed state.
type Reader interface {
	GetEmployee(ctx context.Context, id string) (Employee, bool, error)

	// ListEmployees returns employees ordered by name, then id.
	ListEmployees(ctx context.Context, includeInactive bool) ([]Employee, error)

	GetEntry(ctx context.Context, employeeID string, date Date) (TimeEntry, bool, error)

	// LoadEntries returns entries in the inclusive range, ordered by date.
	LoadEntries(ctx context.Context, employeeID string, r DateRange) ([]TimeEntry, error)

	// LoadHistory returns matching history in insertion order (ascending Seq).
	LoadHistory(ctx context.Context, filter HistoryFilter) ([]ChangeHistoryEntry, error)

	// PendingChanges returns changes in state pending, oldest revision first.
	PendingChanges(ctx context.Context) ([]Change, error)

	GetChange(ctx context.Context, key ChangeKey) (Change, bool, error)

	SyncCursor(ctx context.Context) (int64, error)
}

// Tx is a single atomic unit of work.
type Tx interface {
	GetEmployee(ctx context.Context, id string) (Employee, bool, error)
	GetEntry(ctx context.Context, employeeID string, date Date) (TimeEntry, bool, error)
	GetChange(ctx context.Context, key ChangeKey) (Change, bool, error)

	PutEmployee(ctx context.Context, e Employee) error
	PutEntry(ctx context.Context, e TimeEntry) error

	// AppendHistory stores h and returns it with Seq assigned.
	AppendHistory(ctx context.Context, h ChangeHistoryEntry) (ChangeHistoryEntry, error)

	// NextRevision advances and returns the logical clock.
	NextRevision(ctx context.Context) (int64, error)

	// ObserveRevision raises the clock to at least rev.
	ObserveRevision(ctx context.Context, rev int64) error

	// PutChange inserts or replaces the change for c.Key.
	PutChange(ctx context.Context, c Change) error

	// SetSyncCursor raises the sync cursor to at least cursor.
	SetSyncCursor(ctx context.Context, cursor int64) error
}

// Store is the persistence used by Ledger.
type Store interface {
	Reader

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back.
	WithTx(ctx context.Context, fn func(Tx) error) error
}
