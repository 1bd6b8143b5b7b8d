package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// event pages are larger than health check bodies
const maxResponseBodySize = 4 << 20 // 4MB

// PollIntervalHeader is the response header carrying the feed's minimum
// number of seconds between polls.
const PollIntervalHeader = "X-Poll-Interval"

// connection pooling limits; a single feed needs only a handful of connections
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 2
	defaultMaxConnsPerHost     = 2
	defaultIdleConnTimeout     = 90 * time.Second // must outlive the default 60s poll interval
)

// ErrBadStatus is wrapped by [Response.Error] when the feed answers with a
// status outside 2xx (other than 304 Not Modified).
var ErrBadStatus = errors.New("unexpected status")

// Response holds the result of one feed request made by [Client].
//
// Response captures the decoded batch of raw records, the advertised poll
// interval and any error that occurred. Records preserve the order in which
// the feed returned them.
type Response struct {
	// Records holds the raw JSON records of the batch, in feed order.
	Records []json.RawMessage

	// PollInterval is the interval advertised by the feed via
	// [PollIntervalHeader]. Zero if the header is absent or invalid.
	PollInterval time.Duration

	// StatusCode is the HTTP status code. Zero if the request failed before
	// receiving a response.
	StatusCode int

	// NotModified is true when the feed answered 304 to a conditional
	// request; Records is empty in that case.
	NotModified bool

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request, including
	// non-2xx statuses and bodies that are not a JSON array.
	Error error
}

// Client is an HTTP client for polling a single event feed.
//
// Client uses per-request timeouts via context rather than a global timeout.
// It remembers the last ETag returned by the feed and sends it back as
// If-None-Match so unchanged pages cost a 304 instead of a full body.
// Response bodies are limited to 4MB to prevent memory issues.
//
// A Client is used by one poll loop at a time and is not safe for
// concurrent Fetch calls.
type Client struct {
	httpClient *http.Client
	etag       string
}

// NewClient creates a new feed [Client].
//
// If httpClient is nil, a client with a pooled transport is created.
// Timeouts are applied per-request via [Client.Fetch], not as a global
// client timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			// no default timeout - we use per-request timeouts via context
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		}
	}
	return &Client{httpClient: httpClient}
}

// Fetch performs a GET against url and returns a structured [Response].
//
// Headers are set on the request verbatim. The timeout is applied via
// context cancellation. Fetch always returns a Response; errors are captured
// in the Error field rather than returned separately. This simplifies
// handling in the scheduler.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	result := Response{
		StatusCode:   resp.StatusCode,
		PollInterval: ParsePollInterval(resp.Header.Get(PollIntervalHeader)),
	}

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		result.Latency = time.Since(start)
		return result
	}

	// read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = fmt.Errorf("failed to read response body: %w", err)
		return result
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		result.Error = fmt.Errorf("%w %d: %s", ErrBadStatus, resp.StatusCode, snippet(body))
		return result
	}

	if err := json.Unmarshal(body, &result.Records); err != nil {
		result.Error = fmt.Errorf("response is not a JSON array: %w", err)
		return result
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		c.etag = etag
	}

	return result
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}

// ParsePollInterval converts a poll interval header value in whole seconds
// to a duration. Returns zero for empty, malformed or non-positive values.
func ParsePollInterval(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// snippet trims a response body for inclusion in an error message.
func snippet(body []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
