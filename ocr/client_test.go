package ocr_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crewtime/ledger"
	"github.com/warp/crewtime/ledger/store"
	"github.com/warp/crewtime/ocr"
)

var slip = []byte("\x89PNG\r\n\x1a\nslip")

func ocrServer(t *testing.T, token string, resp any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(slip) {
			http.Error(w, "unexpected image", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_ExtractFields(t *testing.T) {
	hours := 7.5
	srv := ocrServer(t, "secret", ocr.ExtractResponse{Date: "2024-03-05", Hours: &hours, Text: "Delivery 7.5h"})
	c := ocr.NewClient(srv.URL, "secret", 5*time.Second)

	fields, err := c.ExtractFields(context.Background(), slip)
	require.NoError(t, err)
	require.NotNil(t, fields.CandidateDate)
	assert.Equal(t, ledger.NewDate(2024, time.March, 5), *fields.CandidateDate)
	require.NotNil(t, fields.CandidateHours)
	assert.Equal(t, 7.5, *fields.CandidateHours)
	assert.Equal(t, "Delivery 7.5h", fields.CandidateText)
}

func TestClient_MissingToken(t *testing.T) {
	srv := ocrServer(t, "secret", ocr.ExtractResponse{})
	c := ocr.NewClient(srv.URL, "", 5*time.Second)

	_, err := c.ExtractFields(context.Background(), slip)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestExtractResponse_UnreadableDateIsDropped(t *testing.T) {
	fields := ocr.ExtractResponse{Date: "5th of March", Text: "?"}.Fields()
	assert.Nil(t, fields.CandidateDate)
	assert.Nil(t, fields.CandidateHours)
}

func TestClient_FeedsApplyScan(t *testing.T) {
	// GIVEN: An OCR service that reads 6 hours but no date
	// WHEN: The scan is applied with a fallback date
	// THEN: The entry lands on the fallback date with the read hours

	hours := 6.0
	srv := ocrServer(t, "", ocr.ExtractResponse{Hours: &hours})
	c := ocr.NewClient(srv.URL, "", 5*time.Second)

	ctx := context.Background()
	l := ledger.New(store.NewMemory())
	jan, err := l.AddEmployee(ctx, "Jan Kowalski", "Bricklayer")
	require.NoError(t, err)

	fallback := ledger.NewDate(2024, time.March, 8)
	res, err := l.ApplyScan(ctx, c, ledger.ScanRequest{EmployeeID: jan.ID, Status: ledger.StatusWork, FallbackDate: fallback, Image: slip})
	require.NoError(t, err)
	assert.Equal(t, fallback, res.Date)

	e, err := l.Entry(ctx, jan.ID, fallback)
	require.NoError(t, err)
	assert.Equal(t, "6", e.Hours.String())
}
