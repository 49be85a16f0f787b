// Package browserless renders pages through a Browserless instance's REST API.
package browserless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config controls the Browserless client.
type Config struct {
	BaseURL           string
	Token             string
	WaitFor           time.Duration
	NavigationTimeout time.Duration
	HTTPClient        *http.Client
}

// StatusError reports a non-2xx answer from Browserless.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("browserless %s: unexpected status %d", e.Endpoint, e.StatusCode)
}

// Client calls the /content and /pressure endpoints.
type Client struct {
	base    *url.URL
	token   string
	waitFor time.Duration
	navTO   time.Duration
	http    *http.Client
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("browserless base url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse browserless url: %w", err)
	}
	if cfg.WaitFor < 0 {
		return nil, fmt.Errorf("wait for must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 30 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &Client{
		base:    base,
		token:   cfg.Token,
		waitFor: cfg.WaitFor,
		navTO:   cfg.NavigationTimeout,
		http:    client,
	}, nil
}

type gotoOptions struct {
	WaitUntil string `json:"waitUntil"`
	Timeout   int64  `json:"timeout"`
}

type contentRequest struct {
	URL         string      `json:"url"`
	WaitFor     int64       `json:"waitFor"`
	GotoOptions gotoOptions `json:"gotoOptions"`
}

// Render posts target to /content and returns the rendered HTML.
func (c *Client) Render(ctx context.Context, target string) (string, error) {
	body, err := json.Marshal(contentRequest{
		URL:     target,
		WaitFor: c.waitFor.Milliseconds(),
		GotoOptions: gotoOptions{
			WaitUntil: "networkidle2",
			Timeout:   c.navTO.Milliseconds(),
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal content request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("content"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", target, err)
	}
	defer resp.Body.Close() //nolint:errcheck // body close errors are not actionable

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Endpoint: "content", StatusCode: resp.StatusCode}
	}
	html, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read rendered html: %w", err)
	}
	return string(html), nil
}

// Ping checks the /pressure endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("pressure"), nil)
	if err != nil {
		return fmt.Errorf("build pressure request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("browserless pressure: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // body close errors are not actionable
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Endpoint: "pressure", StatusCode: resp.StatusCode}
	}
	return nil
}

func (c *Client) endpoint(name string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + name
	q := u.Query()
	q.Set("token", c.token)
	u.RawQuery = q.Encode()
	return u.String()
}
