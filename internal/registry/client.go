// Package registry talks to the declaration registry's list and document
// endpoints.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/DeafMist/decl-radar/backend/internal/models"
)

// ErrStatus is wrapped by every non-2xx response error.
var ErrStatus = errors.New("registry returned non-success status")

// StatusError carries the failing status code.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: HTTP %d", e.URL, e.Code)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Config describes the endpoints and retry policy.
type Config struct {
	ListURL       string
	DocURL        string
	Timeout       time.Duration
	MaxRetries    int
	RetryInterval time.Duration
}

// Page is one listing response. Items stay raw so a malformed entry only
// affects itself.
type Page struct {
	Items []json.RawMessage
	// Total is the number of matching declarations when the registry reports
	// it, or -1.
	Total int
	// Current and Size echo the server's page cursor when present.
	Current int
	Size    int
}

// HasMore reports whether the server's cursor says further pages exist. ok is
// false when the response carried no cursor.
func (p Page) HasMore() (more, ok bool) {
	if p.Total < 0 || p.Current <= 0 || p.Size <= 0 {
		return false, false
	}
	return p.Current*p.Size < p.Total, true
}

// Client is a synchronous registry client.
type Client struct {
	http *http.Client
	cfg  Config
	log  *slog.Logger
}

// New creates a client. A zero RetryInterval defaults to one second.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	if _, err := url.Parse(cfg.ListURL); err != nil || cfg.ListURL == "" {
		return nil, fmt.Errorf("invalid list url %q", cfg.ListURL)
	}
	if _, err := url.Parse(cfg.DocURL); err != nil || cfg.DocURL == "" {
		return nil, fmt.Errorf("invalid document url %q", cfg.DocURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Client{
		http: &http.Client{Timeout: cfg.Timeout},
		cfg:  cfg,
		log:  log,
	}, nil
}

type listResponse struct {
	Data []json.RawMessage `json:"data"`
	Page *struct {
		CurrentPage int `json:"currentPage"`
		BatchSize   int `json:"batchSize"`
		TotalItems  int `json:"totalItems"`
	} `json:"page"`
}

// List fetches one page of declarations submitted within [start, end] epoch
// seconds. Transport errors, 429 and 5xx responses are retried with
// exponential backoff; other failures are returned at once.
func (c *Client) List(ctx context.Context, start, end int64, page int) (Page, error) {
	u, err := url.Parse(c.cfg.ListURL)
	if err != nil {
		return Page{}, fmt.Errorf("parse list url: %w", err)
	}
	q := u.Query()
	q.Set("start_date", strconv.FormatInt(start, 10))
	q.Set("end_date", strconv.FormatInt(end, 10))
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()

	var out Page
	op := func() error {
		body, err := c.get(ctx, u.String())
		if err != nil {
			if retryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		var resp listResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return backoff.Permanent(fmt.Errorf("decode list page %d: %w", page, err))
		}
		out = Page{Items: resp.Data, Total: -1}
		if resp.Page != nil {
			out.Total = resp.Page.TotalItems
			out.Current = resp.Page.CurrentPage
			out.Size = resp.Page.BatchSize
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	notify := func(err error, wait time.Duration) {
		c.log.Warn("list request failed, retrying",
			slog.Int("page", page),
			slog.Duration("retry_in", wait),
			slog.Any("err", err),
		)
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return Page{}, err
	}
	return out, nil
}

// Fetch downloads the full declaration with the given id. It is not retried.
func (c *Client) Fetch(ctx context.Context, id string) (models.Detail, error) {
	body, err := c.get(ctx, strings.TrimSuffix(c.cfg.DocURL, "/")+"/"+url.PathEscape(id))
	if err != nil {
		return models.Detail{}, err
	}
	d, err := models.ParseDetail(body)
	if err != nil {
		return models.Detail{}, fmt.Errorf("declaration %s: %w", id, err)
	}
	return d, nil
}

func (c *Client) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", target, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, &StatusError{URL: target, Code: res.StatusCode}
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}
	return body, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}
