package remote_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/reconcile"
	"github.com/warp/crewtime/remote"
)

func entry(day int, rev int64, origin string, hours int64) reconcile.Record {
	return reconcile.Record{
		Kind:       ledger.KindEntry,
		EmployeeID: "jan",
		Date:       ledger.NewDate(2024, time.March, day),
		Hours:      decimal.NewFromInt(hours),
		Status:     ledger.StatusWork,
		Revision:   rev,
		Origin:     origin,
	}
}

func TestMemory_LastWriterWins(t *testing.T) {
	m := remote.NewMemory()
	ctx := context.Background()

	out, err := m.Upsert(ctx, []reconcile.Record{entry(10, 7, "phone", 7), entry(11, 1, "phone", 8)})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.True(t, out[0].Accepted)
	assert.Equal(t, int64(1), out[0].Seq)
	assert.Equal(t, int64(2), out[1].Seq)

	out, err = m.Upsert(ctx, []reconcile.Record{entry(10, 5, "tablet", 6)})
	require.NoError(t, err)
	assert.False(t, out[0].Accepted)
	require.NotNil(t, out[0].Current)
	assert.Equal(t, "phone", out[0].Current.Origin)

	// Retry keeps its seq and adds nothing to the feed.
	out, err = m.Upsert(ctx, []reconcile.Record{entry(10, 7, "phone", 7)})
	require.NoError(t, err)
	assert.True(t, out[0].Accepted)
	assert.Equal(t, int64(1), out[0].Seq)
	assert.Equal(t, 2, m.Len())
}

func TestMemory_EmployeeKeysIgnoreDate(t *testing.T) {
	m := remote.NewMemory()
	m.Put(reconcile.Record{Kind: ledger.KindEmployee, EmployeeID: "jan", Name: "Jan Kowalski", Active: true, Revision: 1, Origin: "tablet"})

	rec, ok := m.Get(ledger.ChangeKey{Kind: ledger.KindEmployee, EmployeeID: "jan", Date: ledger.NewDate(2024, time.March, 1)})
	require.True(t, ok)
	assert.Equal(t, "Jan Kowalski", rec.Name)
}

func TestMemory_FeedAndFailures(t *testing.T) {
	m := remote.NewMemory()
	ctx := context.Background()
	for day := 1; day <= 3; day++ {
		m.Put(entry(day, int64(day), "phone", 8))
	}

	page, err := m.ListSince(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page.Records, 2)
	assert.True(t, page.More)
	assert.Equal(t, int64(2), page.Cursor)

	page, err = m.ListSince(ctx, page.Cursor, 2)
	require.NoError(t, err)
	assert.Len(t, page.Records, 1)
	assert.False(t, page.More)

	m.FailWith(reconcile.NewTransportError("list", context.DeadlineExceeded))
	_, err = m.ListSince(ctx, 0, 0)
	assert.True(t, reconcile.IsRetryable(err))
	m.FailWith(nil)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = m.Upsert(cancelled, []reconcile.Record{entry(4, 4, "phone", 8)})
	assert.ErrorIs(t, err, reconcile.ErrTransport)
	assert.False(t, reconcile.IsRetryable(err))

	_, err = m.Upsert(ctx, []reconcile.Record{entry(5, 5, "phone", 8), entry(6, 6, "phone", 25)})
	assert.ErrorIs(t, err, ledger.ErrValidation)
	assert.Equal(t, 3, m.Len(), "malformed batch stores nothing")
}
