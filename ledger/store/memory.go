// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/warp/crewtime/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	employees map[string]ledger.Employee
	entries   map[entryKey]ledger.TimeEntry
	history   []ledger.ChangeHistoryEntry
	changes   map[ledger.ChangeKey]ledger.Change
	clock     int64
	cursor    int64
}

type entryKey struct {
	EmployeeID string
	Date       string
}

func keyOf(employeeID string, date ledger.Date) entryKey {
	return entryKey{EmployeeID: employeeID, Date: date.String()}
}

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[string]ledger.Employee),
		entries:   make(map[entryKey]ledger.TimeEntry),
		changes:   make(map[ledger.ChangeKey]ledger.Change),
	}
}

// =============================================================================
// READER
// =============================================================================

func (m *Memory) GetEmployee(_ context.Context, id string) (ledger.Employee, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[id]
	return e, ok, nil
}

func (m *Memory) ListEmployees(_ context.Context, includeInactive bool) ([]ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		if e.Active || includeInactive {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) GetEntry(_ context.Context, employeeID string, date ledger.Date) (ledger.TimeEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[keyOf(employeeID, date)]
	return e, ok, nil
}

func (m *Memory) LoadEntries(_ context.Context, employeeID string, r ledger.DateRange) ([]ledger.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.TimeEntry
	for k, e := range m.entries {
		if k.EmployeeID == employeeID && r.Contains(e.Date) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *Memory) LoadHistory(_ context.Context, filter ledger.HistoryFilter) ([]ledger.ChangeHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.ChangeHistoryEntry
	for _, h := range m.history {
		if filter.Matches(h) {
			result = append(result, h)
		}
	}
	return result, nil
}

func (m *Memory) PendingChanges(_ context.Context) ([]ledger.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Change
	for _, c := range m.changes {
		if c.State == ledger.SyncPending {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Revision < result[j].Revision })
	return result, nil
}

func (m *Memory) GetChange(_ context.Context, key ledger.ChangeKey) (ledger.Change, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.changes[normalizeKey(key)]
	return c, ok, nil
}

func (m *Memory) SyncCursor(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cursor, nil
}

// HistoryLen returns the number of audit records (for tests).
func (m *Memory) HistoryLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// normalizeKey keeps map keys comparable regardless of how Date was built.
func normalizeKey(k ledger.ChangeKey) ledger.ChangeKey {
	if k.Kind == ledger.KindEntry {
		d, _ := ledger.ParseDate(k.Date.String())
		k.Date = d
	} else {
		k.Date = ledger.Date{}
	}
	return k
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	employees map[string]ledger.Employee
	entries   map[entryKey]ledger.TimeEntry
	history   int
	changes   map[ledger.ChangeKey]ledger.Change
	clock     int64
	cursor    int64
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		employees: maps.Clone(m.employees),
		entries:   maps.Clone(m.entries),
		history:   len(m.history),
		changes:   maps.Clone(m.changes),
		clock:     m.clock,
		cursor:    m.cursor,
	}
}

// restore rolls back to s. History is append-only, so truncating to the
// recorded length undoes exactly the rows added by the failed transaction.
func (m *Memory) restore(s memorySnapshot) {
	m.employees = s.employees
	m.entries = s.entries
	m.history = m.history[:s.history]
	m.changes = s.changes
	m.clock = s.clock
	m.cursor = s.cursor
}

// txView operates on the parent with its write lock already held.
type txView struct {
	parent *Memory
}

func (tv *txView) GetEmployee(_ context.Context, id string) (ledger.Employee, bool, error) {
	e, ok := tv.parent.employees[id]
	return e, ok, nil
}

func (tv *txView) GetEntry(_ context.Context, employeeID string, date ledger.Date) (ledger.TimeEntry, bool, error) {
	e, ok := tv.parent.entries[keyOf(employeeID, date)]
	return e, ok, nil
}

func (tv *txView) GetChange(_ context.Context, key ledger.ChangeKey) (ledger.Change, bool, error) {
	c, ok := tv.parent.changes[normalizeKey(key)]
	return c, ok, nil
}

func (tv *txView) PutEmployee(_ context.Context, e ledger.Employee) error {
	tv.parent.employees[e.ID] = e
	return nil
}

func (tv *txView) PutEntry(_ context.Context, e ledger.TimeEntry) error {
	tv.parent.entries[keyOf(e.EmployeeID, e.Date)] = e
	return nil
}

func (tv *txView) AppendHistory(_ context.Context, h ledger.ChangeHistoryEntry) (ledger.ChangeHistoryEntry, error) {
	h.Seq = int64(len(tv.parent.history) + 1)
	tv.parent.history = append(tv.parent.history, h)
	return h, nil
}

func (tv *txView) NextRevision(_ context.Context) (int64, error) {
	tv.parent.clock++
	return tv.parent.clock, nil
}

func (tv *txView) ObserveRevision(_ context.Context, rev int64) error {
	tv.parent.clock = max(tv.parent.clock, rev)
	return nil
}

func (tv *txView) PutChange(_ context.Context, c ledger.Change) error {
	c.Key = normalizeKey(c.Key)
	tv.parent.changes[c.Key] = c
	return nil
}

func (tv *txView) SetSyncCursor(_ context.Context, cursor int64) error {
	tv.parent.cursor = max(tv.parent.cursor, cursor)
	return nil
}
