/*
Package ledger provides the crew time-entry ledger.

PURPOSE:
  This package owns the authoritative per-employee, per-day record of hours
  and absence status for a construction crew. Every write goes through one
  transactional boundary that commits the entry, its audit record and its
  sync bookkeeping together.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: Closed set of day statuses (work, sick, vacation, force-majeure)
  - Employee: Crew member, soft-deleted through the Active flag
  - TimeEntry: One (employee, date) record, replaced on every write
  - ChangeHistoryEntry: Immutable audit record of a mutation
  - Change: One dirty key in the pending-change set used by sync

INVARIANTS:
  1. At most one TimeEntry per (EmployeeID, Date). A write REPLACES.
  2. Entries are never physically deleted. Clearing writes a Cleared record.
  3. The audit trail is append-only and insertion-ordered.
  4. Every local write carries a fresh logical Revision.

USAGE:
  l := ledger.New(store.NewMemory())
  emp, _ := l.AddEmployee(ctx, "Jan Kowalski", "Bricklayer")
  prior, err := l.UpsertEntry(ctx, emp.ID, ledger.NewDate(2024, 3, 5), 8, ledger.StatusWork)

SEE ALSO:
  - ledger.go: Single-entry and employee operations
  - bulk.go: Crew-wide writes
  - audit.go: History queries
  - summary.go: Monthly aggregates
  - store.go: Persistence interface
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS - Closed set of day categories
// =============================================================================

// Status classifies the hours of one day. The zero value means "no status"
// and is only valid on cleared entries.
type Status int

const (
	StatusNone Status = iota
	StatusWork
	StatusSick
	StatusVacation
	StatusForceMajeure
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusWork, StatusSick, StatusVacation, StatusForceMajeure}

var statusNames = map[Status]string{
	StatusWork:         "work",
	StatusSick:         "sick",
	StatusVacation:     "vacation",
	StatusForceMajeure: "force-majeure",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	if s == StatusNone {
		return "none"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Valid reports whether s is one of the four day statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// ParseStatus converts the text form of a status. Anything outside the
// closed set is rejected.
func ParseStatus(text string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	for s, name := range statusNames {
		if name == normalized {
			return s, nil
		}
	}
	return StatusNone, &ValidationError{Field: "status", Value: text, Reason: "must be one of work, sick, vacation, force-majeure"}
}

func (s Status) MarshalText() ([]byte, error) {
	if s == StatusNone {
		return []byte(""), nil
	}
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = StatusNone
		return nil
	}
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// =============================================================================
// HOURS
// =============================================================================

// MaxHours is the upper bound of hours that fit in one calendar day.
var MaxHours = decimal.NewFromInt(24)

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID        string
	Name      string
	Position  string
	Active    bool
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// TIME ENTRY - One record per (employee, date)
// =============================================================================

type TimeEntry struct {
	EmployeeID string
	Date       Date
	Hours      decimal.Decimal
	Status     Status
	// Cleared marks an entry that existed and was explicitly reset. A key
	// that was never entered has no TimeEntry at all.
	Cleared   bool
	Revision  int64
	UpdatedAt time.Time
}

// Describe renders the value part of the entry for audit descriptions.
func (e TimeEntry) Describe() string {
	if e.Cleared {
		return "cleared"
	}
	return fmt.Sprintf("%sh %s", e.Hours.String(), e.Status)
}

// =============================================================================
// CHANGE HISTORY - Audit records
// =============================================================================

type ActionKind string

const (
	ActionAddEmployee    ActionKind = "add-employee"
	ActionDeleteEmployee ActionKind = "delete-employee"
	ActionAddHours       ActionKind = "add-hours"
	ActionEditHours      ActionKind = "edit-hours"
	ActionExport         ActionKind = "export"
)

// ChangeHistoryEntry is immutable once appended.
type ChangeHistoryEntry struct {
	Seq         int64 // assigned by the store, defines total order
	ID          string
	Action      ActionKind
	EmployeeID  string // empty for global actions
	EntryDate   *Date  // set when the action targets a single entry
	Description string
	Timestamp   time.Time
	Actor       string
}

// =============================================================================
// SYNC BOOKKEEPING - Pending-change set
// =============================================================================

type ChangeKind string

const (
	KindEmployee ChangeKind = "employee"
	KindEntry    ChangeKind = "entry"
)

// ChangeKey identifies a record shared with the remote store. Date is zero
// for employee records.
type ChangeKey struct {
	Kind       ChangeKind
	EmployeeID string
	Date       Date
}

func EmployeeKey(employeeID string) ChangeKey {
	return ChangeKey{Kind: KindEmployee, EmployeeID: employeeID}
}

func EntryKey(employeeID string, date Date) ChangeKey {
	return ChangeKey{Kind: KindEntry, EmployeeID: employeeID, Date: date}
}

func (k ChangeKey) String() string {
	if k.Kind == KindEntry {
		return fmt.Sprintf("entry:%s@%s", k.EmployeeID, k.Date)
	}
	return fmt.Sprintf("employee:%s", k.EmployeeID)
}

type SyncState string

const (
	SyncPending    SyncState = "pending"
	SyncSynced     SyncState = "synced"
	SyncConflicted SyncState = "conflicted"
)

// Change is the sync state of one dirty key. Repeated writes to the same key
// collapse into one Change carrying the latest revision.
type Change struct {
	Key       ChangeKey
	Revision  int64
	State     SyncState
	UpdatedAt time.Time
}
