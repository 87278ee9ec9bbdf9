package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/warp/crewtime/reconcile"
)

// =============================================================================
// HTTP CLIENT - Talks to a hub served by api.HubRouter
// =============================================================================

// UpsertRequest is the body of POST /hub/records.
type UpsertRequest struct {
	Records []reconcile.Record `json:"records"`
}

// UpsertResponse returns one outcome per pushed record, in order.
type UpsertResponse struct {
	Outcomes []reconcile.Outcome `json:"outcomes"`
}

// Client is an authenticated hub client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a hub client. When token is non-empty every request
// carries it as a bearer token. timeout bounds each request.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	httpClient := &http.Client{}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	httpClient.Timeout = timeout
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Upsert pushes records to the hub.
func (c *Client) Upsert(ctx context.Context, records []reconcile.Record) ([]reconcile.Outcome, error) {
	body, err := json.Marshal(UpsertRequest{Records: records})
	if err != nil {
		return nil, fmt.Errorf("encoding records: %w", err)
	}

	var resp UpsertResponse
	if err := c.do(ctx, "upsert", http.MethodPost, c.baseURL+"/hub/records", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Outcomes) != len(records) {
		return nil, &reconcile.TransportError{Op: "upsert", Err: fmt.Errorf("hub returned %d outcomes for %d records", len(resp.Outcomes), len(records))}
	}
	for i := range resp.Outcomes {
		resp.Outcomes[i].Key = records[i].Key()
	}
	return resp.Outcomes, nil
}

// ListSince fetches one page of the hub change feed.
func (c *Client) ListSince(ctx context.Context, cursor int64, limit int) (reconcile.Page, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(cursor, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var page reconcile.Page
	if err := c.do(ctx, "list", http.MethodGet, c.baseURL+"/hub/records?"+q.Encode(), nil, &page); err != nil {
		return reconcile.Page{}, err
	}
	return page, nil
}

func (c *Client) do(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return reconcile.NewTransportError(op, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return reconcile.NewTransportError(op, err)
	}

	if resp.StatusCode != http.StatusOK {
		return &reconcile.TransportError{
			Op:        op,
			Err:       fmt.Errorf("hub error %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &reconcile.TransportError{Op: op, Err: fmt.Errorf("decoding hub response: %w", err)}
	}
	return nil
}
