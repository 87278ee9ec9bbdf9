/*
reconciler.go - Push, pull and merge against the remote store

PURPOSE:
  One Run drains the pending-change set to the remote and merges the remote
  change feed back into the ledger. Every local write the run causes goes
  through ledger.Resolve, so it is audited and atomic like any other
  ledger mutation.

STATE MACHINE:
  idle -> pushing -> pulling -> reconciling -> idle
  any active state -> failed on error; the next run may start from failed.

MERGE RULE (remote record r against local key state):
  pending local change:
    - r is the echo of our own write (same origin and revision) -> synced
    - r.Revision >= local revision -> remote wins, change conflicted
    - otherwise local wins and stays pending for the next push
  no pending change:
    - r.Revision > local revision -> apply
    - otherwise skip

CANCELLATION:
  A change is marked synced only after the remote accepted it, and the pull
  cursor advances only after its page was merged. A cancelled run leaves
  everything else for the next one.

SEE ALSO:
  - ledger/syncstate.go: Resolve, MarkSynced, cursor
  - scheduler.go: Periodic runs
*/
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/warp/crewtime/ledger"
)

const DefaultBatchSize = 100

// Reconciler syncs one ledger with one remote.
type Reconciler struct {
	ledger    *ledger.Ledger
	remote    Remote
	origin    string
	batchSize int
	now       func() time.Time

	running atomic.Bool

	mu      sync.Mutex
	state   State
	last    *Report
	lastErr error
}

type Option func(*Reconciler)

// WithBatchSize sets how many records are pushed or pulled per call.
func WithBatchSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithClock overrides the time source used for reports.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a reconciler. origin identifies this device on the remote.
func New(l *ledger.Ledger, remote Remote, origin string, opts ...Option) *Reconciler {
	r := &Reconciler{
		ledger:    l,
		remote:    remote,
		origin:    origin,
		batchSize: DefaultBatchSize,
		now:       func() time.Time { return time.Now().UTC() },
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Origin returns the device id written into pushed records.
func (r *Reconciler) Origin() string { return r.origin }

// State returns the current run state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Status is a point-in-time view for the API.
type Status struct {
	State     State
	Pending   int
	Cursor    int64
	LastRun   *Report
	LastError string
}

func (r *Reconciler) Status(ctx context.Context) (Status, error) {
	pending, err := r.ledger.PendingChanges(ctx)
	if err != nil {
		return Status{}, err
	}
	cursor, err := r.ledger.SyncCursor(ctx)
	if err != nil {
		return Status{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	st := Status{State: r.state, Pending: len(pending), Cursor: cursor}
	if r.last != nil {
		report := *r.last
		st.LastRun = &report
	}
	if r.lastErr != nil {
		st.LastError = r.lastErr.Error()
	}
	return st, nil
}

// =============================================================================
// RUN
// =============================================================================

// Run executes one full sync cycle. It fails fast with ErrSyncInProgress if
// another run is active.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	if !r.running.CompareAndSwap(false, true) {
		return Report{}, ErrSyncInProgress
	}
	defer r.running.Store(false)

	report := Report{StartedAt: r.now()}
	err := r.push(ctx, &report)
	if err == nil {
		err = r.pull(ctx, &report)
	}
	report.FinishedAt = r.now()

	r.mu.Lock()
	r.last = &report
	r.lastErr = err
	r.state = StateIdle
	if err != nil {
		r.state = StateFailed
	}
	r.mu.Unlock()

	if err != nil {
		log.Printf("[Sync] Failed after pushing %d, pulling %d: %v", report.Pushed, report.Pulled, err)
		return report, err
	}
	log.Printf("[Sync] Completed: pushed=%d rejected=%d pulled=%d applied=%d conflicts=%d cursor=%d",
		report.Pushed, report.Rejected, report.Pulled, report.Applied, len(report.Conflicts), report.Cursor)
	return report, nil
}

// push sends pending changes in batches, oldest revision first.
func (r *Reconciler) push(ctx context.Context, report *Report) error {
	r.setState(StatePushing)

	changes, err := r.ledger.PendingChanges(ctx)
	if err != nil {
		return fmt.Errorf("load pending changes: %w", err)
	}

	for start := 0; start < len(changes); start += r.batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		batch := changes[start:min(start+r.batchSize, len(changes))]

		records, err := r.buildRecords(ctx, batch)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			continue
		}

		outcomes, err := r.remote.Upsert(ctx, records)
		if err != nil {
			return asTransportError("upsert", err)
		}
		if len(outcomes) != len(records) {
			return &TransportError{Op: "upsert", Err: fmt.Errorf("got %d outcomes for %d records", len(outcomes), len(records))}
		}

		for i, o := range outcomes {
			rec := records[i]
			if o.Accepted {
				if _, err := r.ledger.MarkSynced(ctx, rec.Key(), rec.Revision); err != nil {
					return err
				}
				report.Pushed++
				continue
			}
			report.Rejected++
			if o.Current == nil {
				continue
			}
			if err := r.merge(ctx, *o.Current, report); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildRecords reads the current value of each changed key.
func (r *Reconciler) buildRecords(ctx context.Context, changes []ledger.Change) ([]Record, error) {
	store := r.ledger.Store()
	records := make([]Record, 0, len(changes))
	for _, ch := range changes {
		switch ch.Key.Kind {
		case ledger.KindEmployee:
			emp, ok, err := store.GetEmployee(ctx, ch.Key.EmployeeID)
			if err != nil {
				return nil, err
			}
			if ok {
				records = append(records, EmployeeRecord(emp, r.origin))
			}
		case ledger.KindEntry:
			entry, ok, err := store.GetEntry(ctx, ch.Key.EmployeeID, ch.Key.Date)
			if err != nil {
				return nil, err
			}
			if ok {
				records = append(records, EntryRecord(entry, r.origin))
			}
		}
	}
	return records, nil
}

// pull merges the remote feed page by page from the persisted cursor.
func (r *Reconciler) pull(ctx context.Context, report *Report) error {
	r.setState(StatePulling)

	cursor, err := r.ledger.SyncCursor(ctx)
	if err != nil {
		return fmt.Errorf("load sync cursor: %w", err)
	}
	report.Cursor = cursor

	for {
		page, err := r.remote.ListSince(ctx, cursor, r.batchSize)
		if err != nil {
			return asTransportError("list", err)
		}

		r.setState(StateReconciling)
		for _, rec := range page.Records {
			if err := r.merge(ctx, rec, report); err != nil {
				return err
			}
			report.Pulled++
		}

		if page.Cursor > cursor {
			if err := r.ledger.AdvanceSyncCursor(ctx, page.Cursor); err != nil {
				return err
			}
			cursor = page.Cursor
			report.Cursor = cursor
		}
		if !page.More || len(page.Records) == 0 {
			return nil
		}
		r.setState(StatePulling)
	}
}

// =============================================================================
// MERGE
// =============================================================================

type mergeResult int

const (
	mergeSkipped mergeResult = iota
	mergeApplied
	mergeEcho
)

// merge resolves one remote record against local state in one ledger
// transaction.
func (r *Reconciler) merge(ctx context.Context, rec Record, report *Report) error {
	if err := rec.Validate(); err != nil {
		log.Printf("[Sync] Skipping malformed remote record %s: %v", rec.Key(), err)
		report.Skipped++
		return nil
	}

	var (
		result   mergeResult
		conflict *ConflictResolved
	)
	_, err := r.ledger.Resolve(ctx, rec.Key(), func(ks ledger.KeyState) (ledger.Resolution, error) {
		result, conflict = mergeSkipped, nil
		res := ledger.Resolution{Observe: rec.Revision, Actor: "sync:" + rec.Origin}
		local := ks.Revision()

		if ch := ks.Pending(); ch != nil {
			if rec.Origin == r.origin && rec.Revision == ch.Revision {
				res.ChangeState = ledger.SyncSynced
				result = mergeEcho
				return res, nil
			}
			conflict = &ConflictResolved{
				Key:            ks.Key,
				LocalRevision:  local,
				RemoteRevision: rec.Revision,
			}
			if rec.Revision >= local {
				conflict.Winner = "remote"
				conflict.Superseded = describeLocal(ks)
				setValue(&res, rec)
				res.ChangeState = ledger.SyncConflicted
				res.Note = fmt.Sprintf("conflict: remote rev %d replaced local rev %d (%s)", rec.Revision, local, conflict.Superseded)
				result = mergeApplied
				return res, nil
			}
			conflict.Winner = "local"
			conflict.Superseded = rec.Describe()
			return res, nil
		}

		if rec.Revision <= local {
			return res, nil
		}
		setValue(&res, rec)
		result = mergeApplied
		return res, nil
	})
	if err != nil {
		return fmt.Errorf("merge %s: %w", rec.Key(), err)
	}

	switch result {
	case mergeApplied:
		report.Applied++
	default:
		report.Skipped++
	}
	if conflict != nil {
		report.Conflicts = append(report.Conflicts, *conflict)
		log.Printf("[Sync] Conflict on %s: %s wins (local rev %d, remote rev %d)",
			conflict.Key, conflict.Winner, conflict.LocalRevision, conflict.RemoteRevision)
	}
	return nil
}

func setValue(res *ledger.Resolution, rec Record) {
	switch rec.Kind {
	case ledger.KindEntry:
		e := rec.Entry()
		res.Entry = &e
	case ledger.KindEmployee:
		e := rec.Employee()
		res.Employee = &e
	}
}

func describeLocal(ks ledger.KeyState) string {
	switch {
	case ks.Key.Kind == ledger.KindEntry && ks.Entry != nil:
		return ks.Entry.Describe()
	case ks.Key.Kind == ledger.KindEmployee && ks.Employee != nil:
		return fmt.Sprintf("%s (%s) active=%t", ks.Employee.Name, ks.Employee.Position, ks.Employee.Active)
	}
	return "absent"
}

func asTransportError(op string, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return NewTransportError(op, err)
}
