/*
Package reconcile synchronizes a local ledger with a remote source of truth.

PURPOSE:
  The device works offline. Every local write lands in the pending-change
  set (see ledger/syncstate.go). A sync run pushes that set to the remote
  store, pulls what other devices wrote since the last run and merges both
  directions with last-writer-wins on the logical revision.

KEY CONCEPTS:
  - Record: Wire form of one employee or entry, shared by all remotes
  - Outcome: Remote verdict on one pushed record
  - Page: One slice of the remote change feed, ordered by Seq
  - Remote: The remote store boundary

REVISIONS VS SEQUENCES:
  Revision is a Lamport clock carried by the record itself and decides who
  wins. Seq is assigned by the remote on every accepted write and only
  drives the pull cursor.

SEE ALSO:
  - reconciler.go: The push/pull/merge cycle
  - scheduler.go: Periodic runs with backoff
  - remote/: In-memory hub and HTTP client
  - store/sqlite/hub.go: Persistent hub
*/
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/crewtime/ledger"
)

// =============================================================================
// RECORD - Wire form of a shared key
// =============================================================================

// Record is the remote representation of one employee or one time entry.
// Employee fields are set for KindEmployee, entry fields for KindEntry.
type Record struct {
	Kind       ledger.ChangeKind `json:"kind"`
	EmployeeID string            `json:"employee_id"`
	Date       ledger.Date       `json:"date,omitzero"`

	Name     string `json:"name,omitempty"`
	Position string `json:"position,omitempty"`
	Active   bool   `json:"active,omitempty"`

	Hours   decimal.Decimal `json:"hours"`
	Status  ledger.Status   `json:"status,omitzero"`
	Cleared bool            `json:"cleared,omitempty"`

	Revision  int64     `json:"revision"`
	Origin    string    `json:"origin"`
	Seq       int64     `json:"seq,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the ledger key the record describes.
func (r Record) Key() ledger.ChangeKey {
	if r.Kind == ledger.KindEntry {
		return ledger.EntryKey(r.EmployeeID, r.Date)
	}
	return ledger.EmployeeKey(r.EmployeeID)
}

// Validate checks the shape of a record received from a peer.
func (r Record) Validate() error {
	if r.EmployeeID == "" {
		return &ledger.ValidationError{Field: "employee_id", Reason: "is required"}
	}
	if r.Revision <= 0 {
		return &ledger.ValidationError{Field: "revision", Value: fmt.Sprint(r.Revision), Reason: "must be positive"}
	}
	switch r.Kind {
	case ledger.KindEmployee:
		if r.Name == "" {
			return &ledger.ValidationError{Field: "name", Reason: "is required"}
		}
	case ledger.KindEntry:
		if r.Date.IsZero() {
			return &ledger.ValidationError{Field: "date", Reason: "is required"}
		}
		if r.Cleared {
			return nil
		}
		if !r.Status.Valid() {
			return &ledger.ValidationError{Field: "status", Value: r.Status.String(), Reason: "must be one of work, sick, vacation, force-majeure"}
		}
		if r.Hours.IsNegative() || r.Hours.GreaterThan(ledger.MaxHours) {
			return &ledger.ValidationError{Field: "hours", Value: r.Hours.String(), Reason: "must be between 0 and 24"}
		}
	default:
		return &ledger.ValidationError{Field: "kind", Value: string(r.Kind), Reason: "must be employee or entry"}
	}
	return nil
}

// Describe renders the value part of the record for logs and audit notes.
func (r Record) Describe() string {
	if r.Kind == ledger.KindEmployee {
		return fmt.Sprintf("%s (%s) active=%t", r.Name, r.Position, r.Active)
	}
	return r.Entry().Describe()
}

// Entry converts an entry record to ledger form.
func (r Record) Entry() ledger.TimeEntry {
	e := ledger.TimeEntry{
		EmployeeID: r.EmployeeID,
		Date:       r.Date,
		Hours:      r.Hours,
		Status:     r.Status,
		Cleared:    r.Cleared,
		Revision:   r.Revision,
	}
	if e.Cleared {
		e.Hours = decimal.Zero
		e.Status = ledger.StatusNone
	}
	return e
}

// Employee converts an employee record to ledger form.
func (r Record) Employee() ledger.Employee {
	return ledger.Employee{
		ID:       r.EmployeeID,
		Name:     r.Name,
		Position: r.Position,
		Active:   r.Active,
		Revision: r.Revision,
	}
}

// EntryRecord builds the wire form of a local entry.
func EntryRecord(e ledger.TimeEntry, origin string) Record {
	return Record{
		Kind:       ledger.KindEntry,
		EmployeeID: e.EmployeeID,
		Date:       e.Date,
		Hours:      e.Hours,
		Status:     e.Status,
		Cleared:    e.Cleared,
		Revision:   e.Revision,
		Origin:     origin,
		UpdatedAt:  e.UpdatedAt,
	}
}

// EmployeeRecord builds the wire form of a local employee.
func EmployeeRecord(e ledger.Employee, origin string) Record {
	return Record{
		Kind:       ledger.KindEmployee,
		EmployeeID: e.ID,
		Name:       e.Name,
		Position:   e.Position,
		Active:     e.Active,
		Revision:   e.Revision,
		Origin:     origin,
		UpdatedAt:  e.UpdatedAt,
	}
}

// =============================================================================
// REMOTE BOUNDARY
// =============================================================================

// Outcome is the remote verdict on one pushed record. When the push is
// rejected, Current holds the record the remote kept.
type Outcome struct {
	Key      ledger.ChangeKey `json:"-"`
	Accepted bool             `json:"accepted"`
	Seq      int64            `json:"seq,omitempty"`
	Current  *Record          `json:"current,omitempty"`
}

// Page is a slice of the remote change feed. Cursor is the highest Seq in
// Records, or the request cursor when the page is empty.
type Page struct {
	Records []Record `json:"records"`
	Cursor  int64    `json:"cursor"`
	More    bool     `json:"more"`
}

// Remote is the remote source of truth. Outcomes are returned in the order
// of the pushed records.
type Remote interface {
	Upsert(ctx context.Context, records []Record) ([]Outcome, error)
	ListSince(ctx context.Context, cursor int64, limit int) (Page, error)
}

// Accepts is the last-writer-wins rule every remote applies: a newer
// revision replaces the stored record, and a retry of the stored write is
// accepted again without effect.
func Accepts(current *Record, incoming Record) bool {
	if current == nil {
		return true
	}
	if incoming.Revision > current.Revision {
		return true
	}
	return incoming.Revision == current.Revision && incoming.Origin == current.Origin
}

// =============================================================================
// RUN STATE & REPORT
// =============================================================================

type State string

const (
	StateIdle        State = "idle"
	StatePushing     State = "pushing"
	StatePulling     State = "pulling"
	StateReconciling State = "reconciling"
	StateFailed      State = "failed"
)

// ConflictResolved describes a key where local and remote both changed.
// It is informational, the merge already happened.
type ConflictResolved struct {
	Key            ledger.ChangeKey
	LocalRevision  int64
	RemoteRevision int64
	Winner         string // "remote" or "local"
	Superseded     string // description of the losing value
}

// Report summarizes one sync run.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Pushed     int // records accepted by the remote
	Rejected   int // records the remote refused
	Pulled     int // records received from the feed
	Applied    int // remote records written locally
	Skipped    int // remote records already reflected locally
	Cursor     int64
	Conflicts  []ConflictResolved
}
