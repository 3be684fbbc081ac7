// Package request provides a blocking HTTP client with per-provider
// serialized queuing and exponential-backoff retry, used by the GeoProvider
// adapter (pkg/geoprovider/googlemaps). The Selector port's LLM adapter
// (pkg/selector/llmselector) does not use it; it runs its own retry loop.
package request

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"tripweave/pkg/tracker"
)

const defaultUserAgent = "tripweave-planner/1.0"

// ctxKey is an unexported type for context values this package defines.
type ctxKey int

// CtxMaxAttempts overrides the client's configured retry count for a single
// call, used by callers that want a fast single-shot attempt (e.g. a
// probe).
const CtxMaxAttempts ctxKey = iota

// Client handles HTTP requests with per-provider queuing, retry and
// tracking.
type Client struct {
	httpClient  *http.Client
	tracker     *tracker.Tracker
	maxAttempts int
	baseDelay   time.Duration

	queues map[string]chan job
	mu     sync.Mutex
}

type job struct {
	req      *http.Request
	headers  map[string]string
	respChan chan jobResult
}

type jobResult struct {
	body []byte
	err  error
}

// New creates a new Client with the given overall call timeout, retry
// policy and tracker.
func New(timeout time.Duration, maxAttempts int, baseDelay time.Duration, t *tracker.Tracker) *Client {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		tracker:     t,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		queues:      make(map[string]chan job),
	}
}

// Get performs a GET request, serialized per provider host.
func (c *Client) Get(ctx context.Context, u string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return c.do(req, headers)
}

// Post performs a POST request, serialized per provider host.
func (c *Client) Post(ctx context.Context, u string, body []byte, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return c.do(req, headers)
}

func (c *Client) do(req *http.Request, headers map[string]string) ([]byte, error) {
	provider := normalizeProvider(req.URL.Host)

	respChan := make(chan jobResult, 1)
	c.dispatch(provider, job{req: req, headers: headers, respChan: respChan})

	select {
	case <-req.Context().Done():
		return nil, req.Context().Err()
	case res := <-respChan:
		return res.body, res.err
	}
}

// normalizeProvider groups hostnames belonging to the same backend so
// per-provider serialization and backoff apply across subdomains.
func normalizeProvider(host string) string {
	switch {
	case strings.HasSuffix(host, "googleapis.com"):
		return "google"
	default:
		return host
	}
}

func (c *Client) dispatch(provider string, j job) {
	c.mu.Lock()
	q, ok := c.queues[provider]
	if !ok {
		q = make(chan job, 100)
		c.queues[provider] = q
		go c.worker(provider, q)
	}
	c.mu.Unlock()

	select {
	case q <- j:
	case <-j.req.Context().Done():
		j.respChan <- jobResult{err: j.req.Context().Err()}
	}
}

func (c *Client) worker(provider string, q <-chan job) {
	for j := range q {
		if j.req.Context().Err() != nil {
			j.respChan <- jobResult{err: j.req.Context().Err()}
			continue
		}

		uaSet := false
		for k, v := range j.headers {
			j.req.Header.Set(k, v)
			if http.CanonicalHeaderKey(k) == "User-Agent" {
				uaSet = true
			}
		}
		if !uaSet {
			j.req.Header.Set("User-Agent", defaultUserAgent)
		}

		body, err := c.executeWithBackoff(j.req)
		if err == nil {
			if c.tracker != nil {
				c.tracker.TrackAPISuccess(provider)
			}
		} else if c.tracker != nil {
			c.tracker.TrackAPIFailure(provider)
		}

		j.respChan <- jobResult{body: body, err: err}
	}
}

// executeWithBackoff retries on 429/5xx and connection errors, with delays
// base*2^k (spec §5: "1*2^k seconds"), up to maxAttempts (overridable per
// call via CtxMaxAttempts).
func (c *Client) executeWithBackoff(req *http.Request) ([]byte, error) {
	maxAttempts := c.maxAttempts
	if v, ok := req.Context().Value(CtxMaxAttempts).(int); ok && v > 0 {
		maxAttempts = v
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if req.Context().Err() != nil {
				return nil, req.Context().Err()
			}
			lastErr = err
			slog.Warn("request failed, retrying", "url", req.URL.String(), "attempt", attempt+1, "error", err)
			if !c.sleepOrDone(req, attempt) {
				return nil, req.Context().Err()
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 529 ||
			(resp.StatusCode >= 500 && resp.StatusCode < 600) {
			resp.Body.Close()
			lastErr = fmt.Errorf("transient status %d", resp.StatusCode)
			slog.Warn("transient response, backing off", "status", resp.StatusCode, "url", req.URL.String(), "attempt", attempt+1)
			if !c.sleepOrDone(req, attempt) {
				return nil, req.Context().Err()
			}
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("permanent error: status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read error: %w", err)
		}
		return body, nil
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}

func (c *Client) sleepOrDone(req *http.Request, attempt int) bool {
	delay := time.Duration(math.Pow(2, float64(attempt))) * c.baseDelay
	select {
	case <-time.After(delay):
		return true
	case <-req.Context().Done():
		return false
	}
}

// ParseURL is a small helper so adapters don't need to import net/url
// separately just to validate a base URL at startup.
func ParseURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}
