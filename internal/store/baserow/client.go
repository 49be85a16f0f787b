// Package baserow stores recipes as rows of a Baserow table through its REST API.
package baserow

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

	"golang.org/x/time/rate"

	"github.com/JakeFAU/recipe-ingest/internal/metrics"
	"github.com/JakeFAU/recipe-ingest/internal/recipe"
	"github.com/JakeFAU/recipe-ingest/internal/store"
)

const (
	// DefaultBaseURL is the Baserow instance used when none is configured.
	DefaultBaseURL = "https://baserow.kaliman.io"
	// DefaultTableID is the recipes table.
	DefaultTableID = 2

	dateLayout = "2006-01-02"
)

// Field names in the recipes table.
const (
	FieldFocusKeyword = "Focus keyword"
	FieldFullRecipe   = "Full Recipe"
	FieldPAA          = "PAA"
	FieldImageURL     = "URL image"
	FieldDateAdded    = "Date Added"
)

// Config controls the Baserow client.
type Config struct {
	BaseURL string
	Token   string
	TableID int
	// URLField, when set, names a text column that receives the normalized source URL.
	URLField string
	// RPS and Burst bound the request rate. RPS <= 0 disables limiting.
	RPS        float64
	Burst      int
	HTTPClient *http.Client
	Now        func() time.Time
}

// StatusError reports a non-2xx answer from Baserow.
type StatusError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("baserow %s: unexpected status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("baserow %s: unexpected status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Client implements store.Store against one Baserow table.
type Client struct {
	rowsURL  *url.URL
	token    string
	urlField string
	limiter  *rate.Limiter
	http     *http.Client
	now      func() time.Time
}

var _ store.Store = (*Client)(nil)

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.TableID <= 0 {
		return nil, fmt.Errorf("baserow table id must be > 0")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse baserow url: %w", err)
	}
	rowsURL := base.JoinPath("api", "database", "rows", "table", strconv.Itoa(cfg.TableID))
	rowsURL.Path += "/"

	limit := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{
		rowsURL:  rowsURL,
		token:    cfg.Token,
		urlField: cfg.URLField,
		limiter:  rate.NewLimiter(limit, burst),
		http:     client,
		now:      now,
	}, nil
}

type rowResponse struct {
	ID json.Number `json:"id"`
}

type listResponse struct {
	Count int `json:"count"`
}

// Save inserts rec as a new row and returns the row id.
func (c *Client) Save(ctx context.Context, rec recipe.NormalizedRecipe) (id string, err error) {
	defer func() { metrics.ObserveStoreRequest("save", err) }()

	fields := map[string]any{
		FieldFocusKeyword: rec.FocusKeyword,
		FieldFullRecipe:   rec.FullRecipe,
		FieldPAA:          rec.PAA,
		FieldImageURL:     rec.ImageURL,
		FieldDateAdded:    c.now().UTC().Format(dateLayout),
	}
	if c.urlField != "" {
		fields[c.urlField] = store.NormalizeURL(rec.SourceURL)
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal row: %w", err)
	}

	var row rowResponse
	if err := c.do(ctx, "save", http.MethodPost, nil, body, &row); err != nil {
		return "", err
	}
	return row.ID.String(), nil
}

// Exists searches the table for normalizedURL.
func (c *Client) Exists(ctx context.Context, normalizedURL string) (exists bool, err error) {
	defer func() { metrics.ObserveStoreRequest("exists", err) }()

	var list listResponse
	if err := c.do(ctx, "exists", http.MethodGet, url.Values{"search": {normalizedURL}}, nil, &list); err != nil {
		return false, err
	}
	return list.Count > 0, nil
}

// Count returns the number of rows in the table.
func (c *Client) Count(ctx context.Context) (n int, err error) {
	defer func() { metrics.ObserveStoreRequest("count", err) }()

	var list listResponse
	if err := c.do(ctx, "count", http.MethodGet, url.Values{"size": {"1"}}, nil, &list); err != nil {
		return 0, err
	}
	return list.Count, nil
}

// Ping checks the table is readable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Count(ctx)
	return err
}

func (c *Client) do(ctx context.Context, op, method string, extra url.Values, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("baserow %s: rate limit wait: %w", op, err)
	}

	endpoint := *c.rowsURL
	q := url.Values{"user_field_names": {"true"}}
	for k, v := range extra {
		q[k] = v
	}
	endpoint.RawQuery = q.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return fmt.Errorf("baserow %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("baserow %s: %w", op, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Operation: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("baserow %s: decode response: %w", op, err)
	}
	return nil
}
