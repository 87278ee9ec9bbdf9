/*
Package sqlite provides SQLite-backed stores.

PURPOSE:
  Store persists the local ledger of one device: employees, time entries,
  the audit trail, the pending-change set, the revision clock, the sync
  cursor and the device id. Everything survives a restart and reads back
  exactly as written.

  Hub (hub.go) persists the remote source of truth served to devices.

INTERFACES IMPLEMENTED:
  ledger.Store:     Store
  reconcile.Remote: Hub

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on change_history
  - No DELETE statements on change_history
  - time_entries rows are replaced, never deleted (cleared is a row)

KEY TABLES:
  employees:      Crew members
  time_entries:   One row per (employee_id, date)
  change_history: Immutable audit trail, seq defines total order
  sync_changes:   One row per dirty key
  meta:           Revision clock, sync cursor, device id

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite allows a single writer, and
  the ledger serializes its mutations on top of that.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/crewtime.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  l := ledger.New(store)

MIGRATION:
  Schema is migrated on New() with golang-migrate from the embedded
  migrations/local directory.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/crewtime/ledger"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	metaClock    = "revision_clock"
	metaCursor   = "sync_cursor"
	metaDeviceID = "device_id"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, "local"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = "id, name, position, active, revision, created_at, updated_at"

func (s *Store) GetEmployee(ctx context.Context, id string) (ledger.Employee, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func (s *Store) ListEmployees(ctx context.Context, includeInactive bool) ([]ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + employeeColumns + " FROM employees"
	if !includeInactive {
		query += " WHERE active = 1"
	}
	query += " ORDER BY name, id"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []ledger.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

func getEmployee(ctx context.Context, q queryer, id string) (ledger.Employee, bool, error) {
	row := q.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Employee{}, false, nil
	}
	if err != nil {
		return ledger.Employee{}, false, err
	}
	return e, true, nil
}

func putEmployee(ctx context.Context, q queryer, e ledger.Employee) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO employees (id, name, position, active, revision, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			position = excluded.position,
			active = excluded.active,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, e.ID, e.Name, e.Position, e.Active, e.Revision, formatTime(e.CreatedAt), formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (ledger.Employee, error) {
	var (
		e                    ledger.Employee
		createdAt, updatedAt string
	)
	if err := row.Scan(&e.ID, &e.Name, &e.Position, &e.Active, &e.Revision, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan employee: %w", err)
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

const entryColumns = "employee_id, date, hours, status, cleared, revision, updated_at"

func (s *Store) GetEntry(ctx context.Context, employeeID string, date ledger.Date) (ledger.TimeEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEntry(ctx, s.db, employeeID, date)
}

func (s *Store) LoadEntries(ctx context.Context, employeeID string, r ledger.DateRange) ([]ledger.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + entryColumns + " FROM time_entries WHERE employee_id = ?"
	args := []any{employeeID}
	if !r.From.IsZero() {
		query += " AND date >= ?"
		args = append(args, r.From.String())
	}
	if !r.To.IsZero() {
		query += " AND date <= ?"
		args = append(args, r.To.String())
	}
	query += " ORDER BY date ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.TimeEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func getEntry(ctx context.Context, q queryer, employeeID string, date ledger.Date) (ledger.TimeEntry, bool, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+entryColumns+" FROM time_entries WHERE employee_id = ? AND date = ?",
		employeeID, date.String(),
	)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TimeEntry{}, false, nil
	}
	if err != nil {
		return ledger.TimeEntry{}, false, err
	}
	return e, true, nil
}

func putEntry(ctx context.Context, q queryer, e ledger.TimeEntry) error {
	status, err := e.Status.MarshalText()
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO time_entries (employee_id, date, hours, status, cleared, revision, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, date) DO UPDATE SET
			hours = excluded.hours,
			status = excluded.status,
			cleared = excluded.cleared,
			revision = excluded.revision,
			updated_at = excluded.updated_at
	`, e.EmployeeID, e.Date.String(), e.Hours.String(), string(status), e.Cleared, e.Revision, formatTime(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save entry: %w", err)
	}
	return nil
}

func scanEntry(row scanner) (ledger.TimeEntry, error) {
	var (
		e                             ledger.TimeEntry
		date, hours, status, updateAt string
	)
	if err := row.Scan(&e.EmployeeID, &date, &hours, &status, &e.Cleared, &e.Revision, &updateAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return e, err
		}
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}

	var err error
	if e.Date, err = ledger.ParseDate(date); err != nil {
		return e, fmt.Errorf("corrupt entry date %q: %w", date, err)
	}
	if e.Hours, err = decimal.NewFromString(hours); err != nil {
		return e, fmt.Errorf("corrupt entry hours %q: %w", hours, err)
	}
	if err := e.Status.UnmarshalText([]byte(status)); err != nil {
		return e, fmt.Errorf("corrupt entry status %q: %w", status, err)
	}
	e.UpdatedAt = parseTime(updateAt)
	return e, nil
}

// =============================================================================
// CHANGE HISTORY
// =============================================================================

// LoadHistory narrows by employee and entry day in SQL and applies the
// remaining filter fields in Go.
func (s *Store) LoadHistory(ctx context.Context, filter ledger.HistoryFilter) ([]ledger.ChangeHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT seq, id, action, employee_id, entry_date, description, timestamp, actor FROM change_history WHERE 1 = 1"
	var args []any
	if filter.EmployeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, filter.EmployeeID)
	}
	if filter.EntryDate != nil {
		query += " AND entry_date = ?"
		args = append(args, filter.EntryDate.String())
	}
	if !filter.EntryRange.From.IsZero() {
		query += " AND entry_date >= ?"
		args = append(args, filter.EntryRange.From.String())
	}
	if !filter.EntryRange.To.IsZero() {
		query += " AND entry_date <= ?"
		args = append(args, filter.EntryRange.To.String())
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var history []ledger.ChangeHistoryEntry
	for rows.Next() {
		var (
			h         ledger.ChangeHistoryEntry
			entryDate sql.NullString
			action    string
			timestamp string
		)
		if err := rows.Scan(&h.Seq, &h.ID, &action, &h.EmployeeID, &entryDate, &h.Description, &timestamp, &h.Actor); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		h.Action = ledger.ActionKind(action)
		h.Timestamp = parseTime(timestamp)
		if entryDate.Valid && entryDate.String != "" {
			d, err := ledger.ParseDate(entryDate.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt history date %q: %w", entryDate.String, err)
			}
			h.EntryDate = &d
		}
		if filter.Matches(h) {
			history = append(history, h)
		}
	}
	return history, rows.Err()
}

func appendHistory(ctx context.Context, q queryer, h ledger.ChangeHistoryEntry) (ledger.ChangeHistoryEntry, error) {
	var entryDate sql.NullString
	if h.EntryDate != nil {
		entryDate = sql.NullString{String: h.EntryDate.String(), Valid: true}
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO change_history (id, action, employee_id, entry_date, description, timestamp, actor)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, h.ID, string(h.Action), h.EmployeeID, entryDate, h.Description, formatTime(h.Timestamp), h.Actor)
	if err != nil {
		return h, fmt.Errorf("failed to append history: %w", err)
	}
	if h.Seq, err = res.LastInsertId(); err != nil {
		return h, fmt.Errorf("failed to read history seq: %w", err)
	}
	return h, nil
}

// =============================================================================
// SYNC BOOKKEEPING
// =============================================================================

func (s *Store) PendingChanges(ctx context.Context) ([]ledger.Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, employee_id, date, revision, state, updated_at
		FROM sync_changes
		WHERE state = ?
		ORDER BY revision ASC
	`, string(ledger.SyncPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending changes: %w", err)
	}
	defer rows.Close()

	var changes []ledger.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func (s *Store) GetChange(ctx context.Context, key ledger.ChangeKey) (ledger.Change, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getChange(ctx, s.db, key)
}

func (s *Store) SyncCursor(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMetaInt(ctx, s.db, metaCursor)
}

func changeDate(key ledger.ChangeKey) string {
	if key.Kind == ledger.KindEntry {
		return key.Date.String()
	}
	return ""
}

func getChange(ctx context.Context, q queryer, key ledger.ChangeKey) (ledger.Change, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT kind, employee_id, date, revision, state, updated_at
		FROM sync_changes
		WHERE kind = ? AND employee_id = ? AND date = ?
	`, string(key.Kind), key.EmployeeID, changeDate(key))
	c, err := scanChange(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Change{}, false, nil
	}
	if err != nil {
		return ledger.Change{}, false, err
	}
	return c, true, nil
}

func putChange(ctx context.Context, q queryer, c ledger.Change) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_changes (kind, employee_id, date, revision, state, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, employee_id, date) DO UPDATE SET
			revision = excluded.revision,
			state = excluded.state,
			updated_at = excluded.updated_at
	`, string(c.Key.Kind), c.Key.EmployeeID, changeDate(c.Key), c.Revision, string(c.State), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save change: %w", err)
	}
	return nil
}

func scanChange(row scanner) (ledger.Change, error) {
	var (
		c                            ledger.Change
		kind, date, state, updatedAt string
	)
	if err := row.Scan(&kind, &c.Key.EmployeeID, &date, &c.Revision, &state, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan change: %w", err)
	}
	c.Key.Kind = ledger.ChangeKind(kind)
	if date != "" {
		d, err := ledger.ParseDate(date)
		if err != nil {
			return c, fmt.Errorf("corrupt change date %q: %w", date, err)
		}
		c.Key.Date = d
	}
	c.State = ledger.SyncState(state)
	c.UpdatedAt = parseTime(updatedAt)
	return c, nil
}

// =============================================================================
// META
// =============================================================================

func getMeta(ctx context.Context, q queryer, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func setMeta(ctx context.Context, q queryer, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func getMetaInt(ctx context.Context, q queryer, key string) (int64, error) {
	value, ok, err := getMeta(ctx, q, key)
	if err != nil || !ok {
		return 0, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt %s %q: %w", key, value, err)
	}
	return n, nil
}

// raiseMetaInt stores value if it is greater than the current one and
// returns the resulting value.
func raiseMetaInt(ctx context.Context, q queryer, key string, value int64) (int64, error) {
	current, err := getMetaInt(ctx, q, key)
	if err != nil {
		return 0, err
	}
	if value <= current {
		return current, nil
	}
	return value, setMeta(ctx, q, key, strconv.FormatInt(value, 10))
}

// DeviceID returns the persisted device id, or "" if none was stored.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, _, err := getMeta(ctx, s.db, metaDeviceID)
	return id, err
}

// EnsureDeviceID returns the device id used as sync origin. A non-empty
// preferred id is stored and returned. Otherwise the stored id is reused,
// or a new one is generated and stored on first use.
func (s *Store) EnsureDeviceID(ctx context.Context, preferred string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		return preferred, setMeta(ctx, s.db, metaDeviceID, preferred)
	}
	id, ok, err := getMeta(ctx, s.db, metaDeviceID)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = uuid.NewString()
	return id, setMeta(ctx, s.db, metaDeviceID, id)
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.Store interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore reads and writes through the open transaction only.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetEmployee(ctx context.Context, id string) (ledger.Employee, bool, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) GetEntry(ctx context.Context, employeeID string, date ledger.Date) (ledger.TimeEntry, bool, error) {
	return getEntry(ctx, ts.tx, employeeID, date)
}

func (ts *txStore) GetChange(ctx context.Context, key ledger.ChangeKey) (ledger.Change, bool, error) {
	return getChange(ctx, ts.tx, key)
}

func (ts *txStore) PutEmployee(ctx context.Context, e ledger.Employee) error {
	return putEmployee(ctx, ts.tx, e)
}

func (ts *txStore) PutEntry(ctx context.Context, e ledger.TimeEntry) error {
	return putEntry(ctx, ts.tx, e)
}

func (ts *txStore) AppendHistory(ctx context.Context, h ledger.ChangeHistoryEntry) (ledger.ChangeHistoryEntry, error) {
	return appendHistory(ctx, ts.tx, h)
}

func (ts *txStore) NextRevision(ctx context.Context) (int64, error) {
	current, err := getMetaInt(ctx, ts.tx, metaClock)
	if err != nil {
		return 0, err
	}
	next := current + 1
	return next, setMeta(ctx, ts.tx, metaClock, strconv.FormatInt(next, 10))
}

func (ts *txStore) ObserveRevision(ctx context.Context, rev int64) error {
	_, err := raiseMetaInt(ctx, ts.tx, metaClock, rev)
	return err
}

func (ts *txStore) PutChange(ctx context.Context, c ledger.Change) error {
	return putChange(ctx, ts.tx, c)
}

func (ts *txStore) SetSyncCursor(ctx context.Context, cursor int64) error {
	_, err := raiseMetaInt(ctx, ts.tx, metaCursor, cursor)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
