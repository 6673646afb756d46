package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/celerix-dev/nestsync/pkg/schema"
)

// Client is the HTTP client for nestsync-stored. It implements RecordStore.
type Client struct {
	baseURL  string
	http     *http.Client
	pageSize int
	now      func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Timeout is kept if set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc.Timeout == 0 {
			hc.Timeout = c.http.Timeout
		}
		c.http = hc
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithInsecureTLS accepts any server certificate, as served by a daemon running with a
// self-signed one.
func WithInsecureTLS() Option {
	return func(c *Client) {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		c.http.Transport = tr
	}
}

// WithPageSize caps the message feed.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// NewClient returns a client for the store at baseURL (e.g. "http://localhost:7002").
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid store url %q", baseURL)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/") + "/api",
		http:     &http.Client{Timeout: DefaultTimeout},
		pageSize: DefaultPageSize,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type apiError struct {
	Error string `json:"error"`
}

// do sends one request. Transport failures and 5xx responses come back wrapped in
// ErrUnreachable; other statuses are returned for the caller to classify.
func (c *Client) do(ctx context.Context, method, path string, in, out any) (int, string, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, "", fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("%w: read response: %v", ErrUnreachable, err)
	}

	if resp.StatusCode >= 500 {
		return resp.StatusCode, "", fmt.Errorf("%w: %s %s returned %d", ErrUnreachable, method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		var e apiError
		json.Unmarshal(data, &e)
		return resp.StatusCode, e.Error, nil
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, "", fmt.Errorf("%w: decode response: %v", ErrUnreachable, err)
		}
	}
	return resp.StatusCode, "", nil
}

func unexpected(method, path string, status int, msg string) error {
	return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, status, msg)
}

func (c *Client) FetchByCode(ctx context.Context, code string) FetchResult {
	path := "/users/" + url.PathEscape(code)

	var rec schema.UserRecord
	status, msg, err := c.do(ctx, http.MethodGet, path, nil, &rec)
	if err != nil {
		return UnreachableResult(err)
	}
	switch status {
	case http.StatusOK:
		if rec.EventLog == nil {
			rec.EventLog = []schema.LogEntry{}
		}
		if rec.GrowthRecords == nil {
			rec.GrowthRecords = []schema.GrowthRecord{}
		}
		schema.SortGrowthRecords(rec.GrowthRecords)
		return FoundResult(rec)
	case http.StatusNotFound:
		return NotFoundResult()
	}
	return UnreachableResult(unexpected(http.MethodGet, path, status, msg))
}

func (c *Client) UpdateFields(ctx context.Context, code string, p schema.Partial) error {
	if p.IsEmpty() {
		return nil
	}
	path := "/users/" + url.PathEscape(code)

	status, msg, err := c.do(ctx, http.MethodPatch, path, p, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusBadRequest:
		return &schema.ValidationError{Reason: msg}
	}
	return unexpected(http.MethodPatch, path, status, msg)
}

func (c *Client) InsertNew(ctx context.Context, code string) (schema.UserRecord, error) {
	var rec schema.UserRecord
	status, msg, err := c.do(ctx, http.MethodPost, "/users", map[string]string{"code": code}, &rec)
	if err != nil {
		return schema.UserRecord{}, err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return rec, nil
	case http.StatusConflict:
		return schema.UserRecord{}, ErrDuplicate
	case http.StatusBadRequest:
		return schema.UserRecord{}, &schema.ValidationError{Field: "code", Reason: msg}
	}
	return schema.UserRecord{}, unexpected(http.MethodPost, "/users", status, msg)
}

func (c *Client) ListRecentMessages(ctx context.Context, window time.Duration) ([]schema.CommunityMessage, error) {
	hours := int(math.Ceil(window.Hours()))
	if hours < 1 {
		hours = 1
	}
	q := url.Values{}
	q.Set("windowHours", strconv.Itoa(hours))
	q.Set("limit", strconv.Itoa(c.pageSize))
	path := "/messages?" + q.Encode()

	var msgs []schema.CommunityMessage
	status, msg, err := c.do(ctx, http.MethodGet, path, nil, &msgs)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, unexpected(http.MethodGet, path, status, msg)
	}
	// The server rounds the window up to whole hours.
	return schema.RecentMessages(msgs, c.now().Add(-window), c.pageSize), nil
}

func (c *Client) AppendMessage(ctx context.Context, m schema.CommunityMessage) error {
	status, msg, err := c.do(ctx, http.MethodPost, "/messages", m, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated, http.StatusOK:
		return nil
	case http.StatusConflict:
		return ErrDuplicate
	case http.StatusBadRequest:
		return &schema.ValidationError{Reason: msg}
	}
	return unexpected(http.MethodPost, "/messages", status, msg)
}

func (c *Client) Ping(ctx context.Context) error {
	status, msg, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: %s", ErrUnreachable, unexpected(http.MethodGet, "/health", status, msg))
	}
	return nil
}
