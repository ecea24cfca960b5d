// Package tap is a small client for IVOA Table Access Protocol services such
// as SIMBAD and the Gaia archive. It supports synchronous ADQL queries and
// asynchronous UWS jobs, and decodes results in the services' JSON format
// ({"metadata": [...], "data": [[...]]}).
package tap

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// ErrDecode marks a response body that could not be decoded as a TAP result
// table. Every other error from this package is a transport or service-side
// failure.
var ErrDecode = errors.New("tap: malformed result")

// HTTPError is returned when the service answers with an unexpected status.
type HTTPError struct {
	Status string
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %s: %s", e.Status, e.Body)
	}
	return "HTTP " + e.Status
}

// Client talks to a single TAP service rooted at baseURL (the URL that has
// /sync and /async children).
type Client struct {
	base            string
	http            *http.Client
	log             *log.Logger
	pollInterval    time.Duration
	maxPollInterval time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Redirect following is
// always disabled on the copy the Client keeps, since job creation answers
// with a 303 whose Location is the job URL.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		cp := *h
		c.http = &cp
	}
}

// WithLogger sets the logger used for job progress messages.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithPolling sets the initial and maximum interval between job phase checks.
func WithPolling(initial, maxInterval time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = initial
		c.maxPollInterval = maxInterval
	}
}

// New returns a Client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:            strings.TrimRight(baseURL, "/"),
		http:            &http.Client{},
		log:             log.Default(),
		pollInterval:    500 * time.Millisecond,
		maxPollInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return c
}

// BaseURL returns the service root this client talks to.
func (c *Client) BaseURL() string { return c.base }

// Query runs adql synchronously and returns the decoded result table.
func (c *Client) Query(ctx context.Context, adql string) (*Table, error) {
	resp, err := c.postForm(ctx, c.base+"/sync", queryForm(adql))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	return decodeTable(resp.Body)
}

// QueryAsync submits adql as an asynchronous job, waits for it to finish, and
// returns the result table. The wait is bounded only by ctx.
func (c *Client) QueryAsync(ctx context.Context, adql string) (*Table, error) {
	job, err := c.Submit(ctx, adql)
	if err != nil {
		return nil, err
	}
	if err := job.Wait(ctx); err != nil {
		return nil, err
	}
	return job.Results(ctx)
}

// Quote renders s as an ADQL string literal.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func queryForm(adql string) url.Values {
	return url.Values{
		"REQUEST": {"doQuery"},
		"LANG":    {"ADQL"},
		"FORMAT":  {"json"},
		"QUERY":   {adql},
	}
}

func (c *Client) postForm(ctx context.Context, u string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.http.Do(req)
}

func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	return c.http.Do(req)
}

// httpError drains a bounded prefix of the body into an HTTPError.
func httpError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &HTTPError{Status: resp.Status, Body: strings.TrimSpace(string(b))}
}

func decodeTable(r io.Reader) (*Table, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var t Table
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if t.Metadata == nil {
		return nil, fmt.Errorf("%w: missing metadata", ErrDecode)
	}
	for i, row := range t.Data {
		if len(row) != len(t.Metadata) {
			return nil, fmt.Errorf("%w: row %d has %d values for %d columns", ErrDecode, i, len(row), len(t.Metadata))
		}
	}
	return &t, nil
}

// readText returns the trimmed body of a plain-text endpoint such as a job's
// phase.
func readText(resp *http.Response) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(resp.Body, 4096)); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}
