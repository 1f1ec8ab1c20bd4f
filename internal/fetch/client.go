// Package fetch is the conditional HTTP client used for all source polling.
// It carries ETag/Last-Modified validators, surfaces Retry-After and
// Cache-Control hints to the scheduler, and never parses partial bodies.
package fetch

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	connectTimeout = 5 * time.Second
	requestTimeout = 15 * time.Second
	maxBodyBytes   = 20 << 20

	acceptHeader = "application/geo+json, application/json, application/atom+xml, application/rss+xml, application/xml, text/xml, text/csv;q=0.9, */*;q=0.5"
)

// Request describes one conditional fetch.
type Request struct {
	URL          string
	ETag         string
	LastModified string
	Headers      map[string]string
}

// Result is the outcome of a successful fetch (200 or 304).
type Result struct {
	Status       int
	Body         []byte
	ETag         string
	LastModified string
	MaxAge       time.Duration // Cache-Control max-age hint, 0 if absent
	Elapsed      time.Duration
	NotModified  bool
}

// Client performs conditional GETs.
type Client struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

// NewClient creates a fetch client with a bounded connect and request timeout.
func NewClient(userAgent string, logger *slog.Logger) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: connectTimeout,
		MaxIdleConnsPerHost: 2,
	}
	return &Client{
		httpClient: &http.Client{
			Timeout:   requestTimeout,
			Transport: transport,
		},
		userAgent: userAgent,
		logger:    logger,
	}
}

// Fetch performs one conditional GET. It returns *NetworkError for transport
// failures and *UpstreamError for non-2xx statuses. A 304 yields a Result
// with NotModified set and no body.
func (c *Client) Fetch(ctx context.Context, r Request) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return Result{}, &NetworkError{URL: r.URL, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", acceptHeader)
	if r.ETag != "" {
		req.Header.Set("If-None-Match", r.ETag)
	}
	if r.LastModified != "" {
		req.Header.Set("If-Modified-Since", r.LastModified)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return Result{Elapsed: elapsed}, &NetworkError{URL: r.URL, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		// Validators may be re-sent on a 304; keep the freshest ones.
		return Result{
			Status:       resp.StatusCode,
			ETag:         headerOr(resp, "ETag", r.ETag),
			LastModified: headerOr(resp, "Last-Modified", r.LastModified),
			MaxAge:       parseMaxAge(resp.Header.Get("Cache-Control")),
			Elapsed:      elapsed,
			NotModified:  true,
		}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			// Partial bytes are discarded, never parsed.
			return Result{Elapsed: time.Since(start)}, &NetworkError{URL: r.URL, Err: err}
		}
		return Result{
			Status:       resp.StatusCode,
			Body:         body,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			MaxAge:       parseMaxAge(resp.Header.Get("Cache-Control")),
			Elapsed:      time.Since(start),
		}, nil

	default:
		return Result{Status: resp.StatusCode, Elapsed: elapsed}, &UpstreamError{
			URL:        r.URL,
			Status:     resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
}

func headerOr(resp *http.Response, key, fallback string) string {
	if v := resp.Header.Get(key); v != "" {
		return v
	}
	return fallback
}

// parseMaxAge extracts the max-age directive from a Cache-Control header.
func parseMaxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(strings.ToLower(directive))
		value, found := strings.CutPrefix(directive, "max-age=")
		if !found {
			continue
		}
		secs, err := strconv.Atoi(value)
		if err != nil || secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	return 0
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(header string, now time.Time) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
