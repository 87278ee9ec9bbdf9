package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/reconcile"
	"github.com/warp/crewtime/store/sqlite"
)

func newHub(t *testing.T) *sqlite.Hub {
	t.Helper()
	h, err := sqlite.NewHub(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func entryRecord(rev int64, origin string, hours int64) reconcile.Record {
	return reconcile.Record{
		Kind:       ledger.KindEntry,
		EmployeeID: "jan",
		Date:       march(10),
		Hours:      decimal.NewFromInt(hours),
		Status:     ledger.StatusWork,
		Revision:   rev,
		Origin:     origin,
	}
}

func TestHub_LastWriterWins(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	out, err := h.Upsert(ctx, []reconcile.Record{entryRecord(7, "tablet", 6)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, out[0].Accepted)

	// Older revision from another device is rejected with the kept record.
	out, err = h.Upsert(ctx, []reconcile.Record{entryRecord(5, "phone", 8)})
	require.NoError(t, err)
	require.False(t, out[0].Accepted)
	require.NotNil(t, out[0].Current)
	assert.Equal(t, int64(7), out[0].Current.Revision)
	assert.True(t, decimal.NewFromInt(6).Equal(out[0].Current.Hours))

	// Same revision from another device loses too.
	out, err = h.Upsert(ctx, []reconcile.Record{entryRecord(7, "phone", 8)})
	require.NoError(t, err)
	assert.False(t, out[0].Accepted)

	// A retry of the stored write is accepted without a new feed entry.
	out, err = h.Upsert(ctx, []reconcile.Record{entryRecord(7, "tablet", 6)})
	require.NoError(t, err)
	assert.True(t, out[0].Accepted)

	page, err := h.ListSince(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(1), page.Records[0].Seq)

	// Newer revision replaces and moves to the end of the feed.
	out, err = h.Upsert(ctx, []reconcile.Record{entryRecord(9, "phone", 3)})
	require.NoError(t, err)
	assert.True(t, out[0].Accepted)
	assert.Equal(t, int64(2), out[0].Seq)
}

func TestHub_FeedPaging(t *testing.T) {
	h := newHub(t)
	ctx := context.Background()

	var records []reconcile.Record
	for day := 1; day <= 5; day++ {
		rec := entryRecord(int64(day), "tablet", 8)
		rec.Date = march(day)
		records = append(records, rec)
	}
	_, err := h.Upsert(ctx, records)
	require.NoError(t, err)

	first, err := h.ListSince(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, first.Records, 2)
	assert.True(t, first.More)
	assert.Equal(t, int64(2), first.Cursor)

	rest, err := h.ListSince(ctx, first.Cursor, 10)
	require.NoError(t, err)
	require.Len(t, rest.Records, 3)
	assert.False(t, rest.More)
	assert.Equal(t, int64(5), rest.Cursor)
	assert.Equal(t, march(3), rest.Records[0].Date)

	empty, err := h.ListSince(ctx, rest.Cursor, 10)
	require.NoError(t, err)
	assert.Empty(t, empty.Records)
	assert.Equal(t, rest.Cursor, empty.Cursor)
}

func TestHub_RejectsMalformedBatch(t *testing.T) {
	h := newHub(t)
	bad := entryRecord(1, "tablet", 30)

	_, err := h.Upsert(context.Background(), []reconcile.Record{entryRecord(1, "tablet", 8), bad})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	page, err := h.ListSince(context.Background(), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Records, "nothing from a rejected batch is stored")
}

func TestHub_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	ctx := context.Background()

	h, err := sqlite.NewHub(path)
	require.NoError(t, err)
	_, err = h.Upsert(ctx, []reconcile.Record{{
		Kind: ledger.KindEmployee, EmployeeID: "jan", Name: "Jan Kowalski", Position: "Bricklayer", Active: true, Revision: 1, Origin: "tablet",
	}})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	h, err = sqlite.NewHub(path)
	require.NoError(t, err)
	defer h.Close()

	rec, found, err := h.Get(ctx, ledger.EmployeeKey("jan"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Jan Kowalski", rec.Name)

	out, err := h.Upsert(ctx, []reconcile.Record{entryRecord(2, "tablet", 8)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), out[0].Seq, "seq continues after restart")
}
