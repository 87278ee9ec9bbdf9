/*
ledger.go - Time-entry ledger with replace-on-write semantics

PURPOSE:
  The Ledger is the single writer for one local store. It validates input,
  enforces the one-entry-per-day invariant and commits every mutation as one
  unit together with its audit record and sync bookkeeping.

CRITICAL INVARIANTS:
  1. REPLACE, NOT APPEND: a write to (employee, date) overwrites the entry.
  2. SINGLE WRITER: mutations are serialized by the Ledger mutex, so audit
     records have a total order.
  3. AUDITED: a mutation whose audit record cannot be stored is rolled back
     and reported as AuditWriteError.
  4. DIRTY ON WRITE: every local write marks its key pending for sync with a
     fresh revision.

CLEAR POLICY:
  "Never entered" means the key is absent. "Cleared" is an explicit record
  with Cleared=true, zero hours and no status. ListEntries returns cleared
  records, so both states stay distinguishable.

EXAMPLE FLOW:
  1. UpsertEntry(jan, 2024-03-05, 8, work)  -> add-hours, prior nil
  2. UpsertEntry(jan, 2024-03-05, 4, sick)  -> edit-hours, prior {8 work}
  Ledger holds {4 sick}; history holds both records.

SEE ALSO:
  - store.go: Tx boundary
  - bulk.go: Crew-wide writes built on writeEntry
  - syncstate.go: Hooks used by the reconciler
*/
package ledger

import (
	"context"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store Store
	now   func() time.Time
	newID func() string

	// mu serializes every mutation on this ledger instance.
	mu sync.Mutex
}

type Option func(*Ledger)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// WithIDGenerator overrides how employee and history ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) {
		if fn != nil {
			l.newID = fn
		}
	}
}

func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Store returns the underlying store for read-only consumers.
func (l *Ledger) Store() Reader { return l.store }

// commit runs fn as one serialized transaction.
func (l *Ledger) commit(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.WithTx(ctx, fn)
}

// record appends h inside tx. A failure aborts the surrounding mutation.
func (l *Ledger) record(ctx context.Context, tx Tx, h ChangeHistoryEntry, at time.Time) error {
	h.ID = l.newID()
	h.Timestamp = at
	if h.Actor == "" {
		h.Actor = ActorFromContext(ctx)
	}
	if _, err := tx.AppendHistory(ctx, h); err != nil {
		return &AuditWriteError{Action: h.Action, Err: err}
	}
	return nil
}

func markDirty(ctx context.Context, tx Tx, key ChangeKey, rev int64, at time.Time) error {
	return tx.PutChange(ctx, Change{Key: key, Revision: rev, State: SyncPending, UpdatedAt: at})
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateHours converts hours into a decimal within [0, MaxHours].
func ValidateHours(hours float64) (decimal.Decimal, error) {
	text := strconv.FormatFloat(hours, 'g', -1, 64)
	if math.IsNaN(hours) || math.IsInf(hours, 0) {
		return decimal.Zero, &ValidationError{Field: "hours", Value: text, Reason: "must be a finite number"}
	}
	value := decimal.NewFromFloat(hours)
	if value.IsNegative() || value.GreaterThan(MaxHours) {
		return decimal.Zero, &ValidationError{Field: "hours", Value: text, Reason: "must be between 0 and 24"}
	}
	return value, nil
}

func validateEntryInput(date Date, hours float64, status Status) (decimal.Decimal, error) {
	value, err := ValidateHours(hours)
	if err != nil {
		return decimal.Zero, err
	}
	if !status.Valid() {
		return decimal.Zero, &ValidationError{Field: "status", Value: status.String(), Reason: "must be one of work, sick, vacation, force-majeure"}
	}
	if date.IsZero() {
		return decimal.Zero, &ValidationError{Field: "date", Reason: "is required"}
	}
	return value, nil
}

func requireActive(emp Employee) error {
	if !emp.Active {
		return &ValidationError{Field: "employee", Value: emp.ID, Reason: "employee is inactive"}
	}
	return nil
}

// =============================================================================
// ENTRY OPERATIONS
// =============================================================================

// UpsertEntry writes hours and status for one employee and day, replacing any
// existing entry. It returns the prior entry, or nil when the key was new.
func (l *Ledger) UpsertEntry(ctx context.Context, employeeID string, date Date, hours float64, status Status) (*TimeEntry, error) {
	value, err := validateEntryInput(date, hours, status)
	if err != nil {
		return nil, err
	}
	return l.writeEntry(ctx, employeeID, date, value, status)
}

func (l *Ledger) writeEntry(ctx context.Context, employeeID string, date Date, hours decimal.Decimal, status Status) (*TimeEntry, error) {
	var prior *TimeEntry
	err := l.commit(ctx, func(tx Tx) error {
		emp, ok, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		if !ok {
			return employeeNotFound(employeeID)
		}
		if err := requireActive(emp); err != nil {
			return err
		}

		existing, found, err := tx.GetEntry(ctx, employeeID, date)
		if err != nil {
			return err
		}

		rev, err := tx.NextRevision(ctx)
		if err != nil {
			return err
		}
		now := l.now()
		entry := TimeEntry{
			EmployeeID: employeeID,
			Date:       date,
			Hours:      hours,
			Status:     status,
			Revision:   rev,
			UpdatedAt:  now,
		}
		if err := tx.PutEntry(ctx, entry); err != nil {
			return err
		}

		h := ChangeHistoryEntry{
			Action:      ActionAddHours,
			EmployeeID:  employeeID,
			EntryDate:   &date,
			Description: fmt.Sprintf("%s on %s: %s", emp.Name, date, entry.Describe()),
		}
		if found {
			prior = &existing
			h.Action = ActionEditHours
			h.Description = fmt.Sprintf("%s on %s: %s → %s", emp.Name, date, existing.Describe(), entry.Describe())
		}
		if err := l.record(ctx, tx, h, now); err != nil {
			return err
		}
		return markDirty(ctx, tx, EntryKey(employeeID, date), rev, now)
	})
	if err != nil {
		return nil, err
	}
	return prior, nil
}

// ClearEntry resets an existing entry to the cleared state and returns the
// entry as it was before. It fails with NotFoundError when the key was never
// entered and with ValidationError when the employee is inactive. Clearing a
// cleared entry is a no-op that returns the cleared entry.
func (l *Ledger) ClearEntry(ctx context.Context, employeeID string, date Date) (TimeEntry, error) {
	var prior TimeEntry
	err := l.commit(ctx, func(tx Tx) error {
		emp, ok, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		if !ok {
			return employeeNotFound(employeeID)
		}
		if err := requireActive(emp); err != nil {
			return err
		}
		existing, found, err := tx.GetEntry(ctx, employeeID, date)
		if err != nil {
			return err
		}
		if !found {
			return &NotFoundError{Kind: "entry", Key: EntryKey(employeeID, date).String()}
		}
		prior = existing
		if existing.Cleared {
			return nil
		}

		rev, err := tx.NextRevision(ctx)
		if err != nil {
			return err
		}
		now := l.now()
		cleared := TimeEntry{
			EmployeeID: employeeID,
			Date:       date,
			Hours:      decimal.Zero,
			Status:     StatusNone,
			Cleared:    true,
			Revision:   rev,
			UpdatedAt:  now,
		}
		if err := tx.PutEntry(ctx, cleared); err != nil {
			return err
		}
		if err := l.record(ctx, tx, ChangeHistoryEntry{
			Action:      ActionEditHours,
			EmployeeID:  employeeID,
			EntryDate:   &date,
			Description: fmt.Sprintf("%s on %s: %s → cleared", emp.Name, date, existing.Describe()),
		}, now); err != nil {
			return err
		}
		return markDirty(ctx, tx, EntryKey(employeeID, date), rev, now)
	})
	if err != nil {
		return TimeEntry{}, err
	}
	return prior, nil
}

// Entry returns the entry for one key.
func (l *Ledger) Entry(ctx context.Context, employeeID string, date Date) (TimeEntry, error) {
	e, ok, err := l.store.GetEntry(ctx, employeeID, date)
	if err != nil {
		return TimeEntry{}, err
	}
	if !ok {
		return TimeEntry{}, &NotFoundError{Kind: "entry", Key: EntryKey(employeeID, date).String()}
	}
	return e, nil
}

// ListEntries returns the entries of one employee in r ordered by date.
// The store is queried each time the sequence is ranged over.
func (l *Ledger) ListEntries(ctx context.Context, employeeID string, r DateRange) iter.Seq2[TimeEntry, error] {
	return func(yield func(TimeEntry, error) bool) {
		if err := r.Validate(); err != nil {
			yield(TimeEntry{}, err)
			return
		}
		if _, err := l.Employee(ctx, employeeID); err != nil {
			yield(TimeEntry{}, err)
			return
		}
		entries, err := l.store.LoadEntries(ctx, employeeID, r)
		if err != nil {
			yield(TimeEntry{}, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

// =============================================================================
// EMPLOYEE OPERATIONS
// =============================================================================

// AddEmployee creates an active employee with a fresh id.
func (l *Ledger) AddEmployee(ctx context.Context, name, position string) (Employee, error) {
	name = strings.TrimSpace(name)
	position = strings.TrimSpace(position)
	if name == "" {
		return Employee{}, &ValidationError{Field: "name", Reason: "is required"}
	}
	if position == "" {
		return Employee{}, &ValidationError{Field: "position", Reason: "is required"}
	}

	var emp Employee
	err := l.commit(ctx, func(tx Tx) error {
		rev, err := tx.NextRevision(ctx)
		if err != nil {
			return err
		}
		now := l.now()
		emp = Employee{
			ID:        l.newID(),
			Name:      name,
			Position:  position,
			Active:    true,
			Revision:  rev,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.PutEmployee(ctx, emp); err != nil {
			return err
		}
		if err := l.record(ctx, tx, ChangeHistoryEntry{
			Action:      ActionAddEmployee,
			EmployeeID:  emp.ID,
			Description: fmt.Sprintf("added %s (%s)", emp.Name, emp.Position),
		}, now); err != nil {
			return err
		}
		return markDirty(ctx, tx, EmployeeKey(emp.ID), rev, now)
	})
	if err != nil {
		return Employee{}, err
	}
	return emp, nil
}

// DeactivateEmployee soft-deletes an employee. Historical entries stay.
func (l *Ledger) DeactivateEmployee(ctx context.Context, id string) (Employee, error) {
	var emp Employee
	err := l.commit(ctx, func(tx Tx) error {
		existing, ok, err := tx.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return employeeNotFound(id)
		}
		emp = existing
		if !existing.Active {
			return nil
		}

		rev, err := tx.NextRevision(ctx)
		if err != nil {
			return err
		}
		now := l.now()
		emp.Active = false
		emp.Revision = rev
		emp.UpdatedAt = now
		if err := tx.PutEmployee(ctx, emp); err != nil {
			return err
		}
		if err := l.record(ctx, tx, ChangeHistoryEntry{
			Action:      ActionDeleteEmployee,
			EmployeeID:  id,
			Description: fmt.Sprintf("deactivated %s (%s)", emp.Name, emp.Position),
		}, now); err != nil {
			return err
		}
		return markDirty(ctx, tx, EmployeeKey(id), rev, now)
	})
	if err != nil {
		return Employee{}, err
	}
	return emp, nil
}

// Employee returns one employee, active or not.
func (l *Ledger) Employee(ctx context.Context, id string) (Employee, error) {
	emp, ok, err := l.store.GetEmployee(ctx, id)
	if err != nil {
		return Employee{}, err
	}
	if !ok {
		return Employee{}, employeeNotFound(id)
	}
	return emp, nil
}

// Employees lists employees. Inactive ones are included only on request.
func (l *Ledger) Employees(ctx context.Context, includeInactive bool) ([]Employee, error) {
	return l.store.ListEmployees(ctx, includeInactive)
}

// =============================================================================
// HELPERS
// =============================================================================

// Collect drains a sequence, stopping at the first error.
func Collect[T any](seq iter.Seq2[T, error]) ([]T, error) {
	var out []T
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}
