package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crewtime/api"
	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/reconcile"
	"github.com/warp/crewtime/remote"
)

func newHubServer(t *testing.T, token string) (*httptest.Server, *remote.Memory) {
	t.Helper()
	hub := remote.NewMemory()
	srv := httptest.NewServer(api.NewHubRouter(&api.HubHandler{Hub: hub}, token))
	t.Cleanup(srv.Close)
	return srv, hub
}

func postRecords(t *testing.T, url, token string, records []reconcile.Record) *http.Response {
	t.Helper()
	body, err := json.Marshal(remote.UpsertRequest{Records: records})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url+"/hub/records", bytes.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func hubEntry(rev int64, hours int64) reconcile.Record {
	return reconcile.Record{
		Kind:       ledger.KindEntry,
		EmployeeID: "jan",
		Date:       ledger.NewDate(2024, time.March, 10),
		Hours:      decimal.NewFromInt(hours),
		Status:     ledger.StatusVacation,
		Revision:   rev,
		Origin:     "phone",
	}
}

func TestHub_RequiresToken(t *testing.T) {
	srv, hub := newHubServer(t, "s3cret")

	assert.Equal(t, http.StatusUnauthorized, postRecords(t, srv.URL, "", []reconcile.Record{hubEntry(1, 7)}).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, postRecords(t, srv.URL, "wrong", []reconcile.Record{hubEntry(1, 7)}).StatusCode)
	assert.Zero(t, hub.Len())

	resp := postRecords(t, srv.URL, "s3cret", []reconcile.Record{hubEntry(1, 7)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out remote.UpsertResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Outcomes, 1)
	assert.True(t, out.Outcomes[0].Accepted)
	assert.Equal(t, 1, hub.Len())
}

func TestHub_FeedParameters(t *testing.T) {
	srv, hub := newHubServer(t, "")
	for day := 1; day <= 3; day++ {
		rec := hubEntry(int64(day), 8)
		rec.Date = ledger.NewDate(2024, time.March, day)
		hub.Put(rec)
	}

	resp, err := http.Get(srv.URL + "/hub/records?since=1&limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page reconcile.Page
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	require.Len(t, page.Records, 1)
	assert.Equal(t, int64(2), page.Cursor)
	assert.True(t, page.More)

	for _, q := range []string{"since=-1", "since=abc", "limit=0", "limit=x"} {
		resp, err := http.Get(srv.URL + "/hub/records?" + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}
