package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/reconcile"
)

// =============================================================================
// HUB - Persistent remote source of truth
// =============================================================================

// Hub stores the records shared by all devices and serves the change feed.
// It applies reconcile.Accepts to every write, so devices may retry pushes
// freely.
type Hub struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewHub opens (and migrates) a hub database.
func NewHub(dbPath string) (*Hub, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(db, "hub"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate hub database: %w", err)
	}
	return &Hub{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (h *Hub) Close() error {
	return h.db.Close()
}

// Upsert applies records in order within one transaction.
func (h *Hub) Upsert(ctx context.Context, records []reconcile.Record) ([]reconcile.Outcome, error) {
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.Key(), err)
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	outcomes := make([]reconcile.Outcome, len(records))
	for i, rec := range records {
		if outcomes[i], err = h.put(ctx, tx, rec); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit hub records: %w", err)
	}
	return outcomes, nil
}

func (h *Hub) put(ctx context.Context, tx *sql.Tx, rec reconcile.Record) (reconcile.Outcome, error) {
	key := rec.Key()
	out := reconcile.Outcome{Key: key}

	current, found, err := getHubRecord(ctx, tx, key)
	if err != nil {
		return out, err
	}
	if found && !reconcile.Accepts(&current, rec) {
		out.Current = &current
		return out, nil
	}
	if found && current.Revision == rec.Revision {
		out.Accepted = true
		out.Seq = current.Seq
		return out, nil
	}

	seq, err := nextHubSeq(ctx, tx)
	if err != nil {
		return out, err
	}
	rec.Seq = seq
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = h.now()
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return out, fmt.Errorf("failed to encode record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO hub_records (kind, employee_id, date, seq, revision, origin, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, employee_id, date) DO UPDATE SET
			seq = excluded.seq,
			revision = excluded.revision,
			origin = excluded.origin,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, string(key.Kind), key.EmployeeID, changeDate(key), rec.Seq, rec.Revision, rec.Origin, string(payload), formatTime(rec.UpdatedAt))
	if err != nil {
		return out, fmt.Errorf("failed to save hub record: %w", err)
	}

	out.Accepted = true
	out.Seq = rec.Seq
	return out, nil
}

// ListSince returns records with seq greater than cursor, ascending.
func (h *Hub) ListSince(ctx context.Context, cursor int64, limit int) (reconcile.Page, error) {
	query := "SELECT payload FROM hub_records WHERE seq > ? ORDER BY seq ASC"
	args := []any{cursor}
	if limit > 0 {
		// One extra row tells whether another page exists.
		query += " LIMIT ?"
		args = append(args, limit+1)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return reconcile.Page{}, fmt.Errorf("failed to query hub records: %w", err)
	}
	defer rows.Close()

	page := reconcile.Page{Cursor: cursor}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return reconcile.Page{}, fmt.Errorf("failed to scan hub record: %w", err)
		}
		if limit > 0 && len(page.Records) == limit {
			page.More = true
			break
		}
		var rec reconcile.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return reconcile.Page{}, fmt.Errorf("corrupt hub record: %w", err)
		}
		page.Records = append(page.Records, rec)
		page.Cursor = rec.Seq
	}
	return page, rows.Err()
}

// Get returns the stored record for key.
func (h *Hub) Get(ctx context.Context, key ledger.ChangeKey) (reconcile.Record, bool, error) {
	return getHubRecord(ctx, h.db, key)
}

func getHubRecord(ctx context.Context, q queryer, key ledger.ChangeKey) (reconcile.Record, bool, error) {
	var payload string
	err := q.QueryRowContext(ctx,
		"SELECT payload FROM hub_records WHERE kind = ? AND employee_id = ? AND date = ?",
		string(key.Kind), key.EmployeeID, changeDate(key),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return reconcile.Record{}, false, nil
	}
	if err != nil {
		return reconcile.Record{}, false, fmt.Errorf("failed to read hub record: %w", err)
	}
	var rec reconcile.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return reconcile.Record{}, false, fmt.Errorf("corrupt hub record: %w", err)
	}
	return rec, true, nil
}

func nextHubSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO hub_meta (key, value) VALUES ('seq', 1)
		ON CONFLICT(key) DO UPDATE SET value = value + 1
		RETURNING value
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to advance hub seq: %w", err)
	}
	return seq, nil
}
