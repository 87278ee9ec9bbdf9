// Package ocr calls an external text-recognition service that reads hours
// and a date off a scanned delivery slip.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/warp/crewtime/ledger"
)

// maxImageSize bounds uploads accepted by the service.
const maxImageSize = 10 << 20

// ExtractResponse is what the service returns for one image. Date and
// Hours are omitted when they could not be read.
type ExtractResponse struct {
	Date  string   `json:"date,omitempty"`
	Hours *float64 `json:"hours,omitempty"`
	Text  string   `json:"text,omitempty"`
}

// Client implements ledger.FieldExtractor over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

var _ ledger.FieldExtractor = (*Client)(nil)

// NewClient creates a client for the service at baseURL. Images are posted
// to baseURL/extract.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	httpClient := &http.Client{}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	httpClient.Timeout = timeout
	return &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/extract",
		httpClient: httpClient,
	}
}

// ExtractFields uploads image and converts the answer into candidate
// fields. An unreadable date is dropped rather than failing the scan.
func (c *Client) ExtractFields(ctx context.Context, image []byte) (ledger.ScanFields, error) {
	if len(image) > maxImageSize {
		return ledger.ScanFields{}, &ledger.ValidationError{Field: "image", Reason: "larger than 10 MiB"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return ledger.ScanFields{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ledger.ScanFields{}, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ledger.ScanFields{}, fmt.Errorf("reading ocr response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ledger.ScanFields{}, fmt.Errorf("ocr error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ExtractResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ledger.ScanFields{}, fmt.Errorf("decoding ocr response: %w", err)
	}
	return out.Fields(), nil
}

// Fields converts the response into ledger scan fields.
func (r ExtractResponse) Fields() ledger.ScanFields {
	fields := ledger.ScanFields{CandidateText: r.Text, CandidateHours: r.Hours}
	if r.Date != "" {
		if d, err := ledger.ParseDate(strings.TrimSpace(r.Date)); err == nil {
			fields.CandidateDate = &d
		}
	}
	return fields
}
