/*
Package remote provides reconcile.Remote implementations.

IMPLEMENTATIONS:
  - Memory: In-process hub for tests and single-binary setups
  - Client: HTTP client for a hub served by api.HubRouter

Both apply the same last-writer-wins rule (reconcile.Accepts) so a device
sees identical outcomes regardless of transport.
*/
package remote

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/reconcile"
)

// =============================================================================
// MEMORY HUB
// =============================================================================

// Memory is an in-memory remote store. The zero value is not usable, use
// NewMemory.
type Memory struct {
	mu      sync.Mutex
	records map[ledger.ChangeKey]reconcile.Record
	seq     int64
	now     func() time.Time

	// failWith, when set, is returned by every call until cleared.
	failWith error
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[ledger.ChangeKey]reconcile.Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FailWith makes every following call return err. Pass nil to recover.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Upsert applies records in order with last-writer-wins. A batch holding a
// malformed record is rejected whole.
func (m *Memory) Upsert(ctx context.Context, records []reconcile.Record) ([]reconcile.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, reconcile.NewTransportError("upsert", err)
	}
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.Key(), err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	outcomes := make([]reconcile.Outcome, len(records))
	for i, rec := range records {
		outcomes[i] = m.put(rec)
	}
	return outcomes, nil
}

// Put stores one record as if written by another device. It skips
// validation so tests can seed malformed records.
func (m *Memory) Put(rec reconcile.Record) reconcile.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(rec)
}

func (m *Memory) put(rec reconcile.Record) reconcile.Outcome {
	key := normalize(rec.Key())
	out := reconcile.Outcome{Key: key}

	if current, ok := m.records[key]; ok && !reconcile.Accepts(&current, rec) {
		out.Current = &current
		return out
	} else if ok && current.Revision == rec.Revision {
		// Retry of the stored write.
		out.Accepted = true
		out.Seq = current.Seq
		return out
	}

	m.seq++
	rec.Seq = m.seq
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = m.now()
	}
	m.records[key] = rec
	out.Accepted = true
	out.Seq = rec.Seq
	return out
}

// ListSince returns records with Seq greater than cursor in Seq order.
func (m *Memory) ListSince(ctx context.Context, cursor int64, limit int) (reconcile.Page, error) {
	if err := ctx.Err(); err != nil {
		return reconcile.Page{}, reconcile.NewTransportError("list", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return reconcile.Page{}, m.failWith
	}

	var newer []reconcile.Record
	for _, rec := range m.records {
		if rec.Seq > cursor {
			newer = append(newer, rec)
		}
	}
	sort.Slice(newer, func(i, j int) bool { return newer[i].Seq < newer[j].Seq })
	return pageOf(newer, cursor, limit), nil
}

// Get returns the record stored for key.
func (m *Memory) Get(key ledger.ChangeKey) (reconcile.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[normalize(key)]
	return rec, ok
}

// Len returns the number of stored records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// pageOf cuts sorted records to limit and computes the next cursor.
func pageOf(sorted []reconcile.Record, cursor int64, limit int) reconcile.Page {
	page := reconcile.Page{Records: sorted, Cursor: cursor}
	if limit > 0 && len(sorted) > limit {
		page.Records = sorted[:limit]
		page.More = true
	}
	if n := len(page.Records); n > 0 {
		page.Cursor = page.Records[n-1].Seq
	}
	return page
}

func normalize(k ledger.ChangeKey) ledger.ChangeKey {
	if k.Kind != ledger.KindEntry {
		k.Date = ledger.Date{}
	}
	return k
}
