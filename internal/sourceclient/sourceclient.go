// Package sourceclient wraps the upstream legal-norms source API: discover,
// index XML, and bloque XML (spec §6 "Source API", §4.9 "HTTP source
// client"). Retries follow the teacher's exponential-backoff-with-jitter
// idiom (internal/tools/web/search.go's searchWithRetry).
package sourceclient

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"norma-pipeline/internal/config"
	"norma-pipeline/internal/parsers"
)

// ErrNotFound is returned by BloqueXML on HTTP 404, which the sync stage
// treats as a permanent, skippable miss rather than a retryable failure
// (spec §7 "Permanent remote").
var ErrNotFound = fmt.Errorf("sourceclient: not found")

// Client issues GET requests against the source API with bounded,
// jittered retry.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	retryCount int
	backoff    time.Duration
}

// New builds a Client from HTTPConfig, stripping any trailing slash from
// the configured base URL (spec §6 "trailing slashes in the base are
// stripped").
func New(cfg config.HTTPConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout()},
		baseURL:    strings.TrimRight(cfg.SourceAPIBaseURL, "/"),
		userAgent:  cfg.UserAgent,
		retryCount: cfg.RetryCount,
		backoff:    cfg.Backoff(),
	}
}

// DiscoverParams are the discover endpoint's query parameters.
type DiscoverParams struct {
	From, To      string
	Offset, Limit int
	Query         string
}

// Discover fetches and parses one page of the discover endpoint.
func (c *Client) Discover(ctx context.Context, p DiscoverParams) ([]parsers.DiscoverItem, error) {
	q := url.Values{}
	if p.From != "" {
		q.Set("from", p.From)
	}
	if p.To != "" {
		q.Set("to", p.To)
	}
	if p.Offset > 0 {
		q.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.Query != "" {
		q.Set("query", p.Query)
	}

	body, err := c.getWithRetry(ctx, c.baseURL+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return parsers.ParseDiscoverResponse(body)
}

// IndexXML fetches and parses one norm's index-block tree. The raw response
// body is also returned so the sync stage can persist it unchanged to the
// object store (spec §4.1).
func (c *Client) IndexXML(ctx context.Context, idNorma string) (parsers.IndexDocument, []byte, error) {
	u := c.baseURL + "/id/" + url.PathEscape(idNorma) + "/texto/indice"
	body, err := c.getWithRetry(ctx, u)
	if err != nil {
		return parsers.IndexDocument{}, nil, err
	}
	doc, err := parsers.ParseIndexXML(body)
	return doc, body, err
}

// BloqueXML fetches and parses one block's version history, also returning
// the raw body. It returns ErrNotFound on HTTP 404, per spec §7's "permanent
// remote" classification.
func (c *Client) BloqueXML(ctx context.Context, idNorma, idBloque string) (parsers.BloqueDocument, []byte, error) {
	u := c.baseURL + "/id/" + url.PathEscape(idNorma) + "/texto/bloque/" + url.PathEscape(idBloque)
	body, err := c.getWithRetry(ctx, u)
	if err != nil {
		if isNotFoundErr(err) {
			return parsers.BloqueDocument{}, nil, ErrNotFound
		}
		return parsers.BloqueDocument{}, nil, err
	}
	doc, err := parsers.ParseBloqueXML(body)
	return doc, body, err
}

type statusError struct {
	status int
}

func (e *statusError) Error() string { return fmt.Sprintf("sourceclient: http status %d", e.status) }

func isNotFoundErr(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.status == http.StatusNotFound
}

// isRetryable reports whether an error should trigger another attempt: no
// HTTP response was produced, or the status is 429 or >= 500 (spec §4.9
// "HTTP source client").
func isRetryable(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		return true // network error, no response at all
	}
	return se.status == http.StatusTooManyRequests || se.status >= 500
}

func (c *Client) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	attempts := c.retryCount
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		body, err := c.get(ctx, u)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return nil, err
		}
		if attempt == attempts-1 {
			break
		}

		delay := c.backoff * (1 << attempt)
		jitter := time.Duration(rand.Int63n(int64(c.backoff) + 1))
		delay += jitter

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("sourceclient: %s failed after %d attempts: %w", u, attempts, lastErr)
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, &statusError{status: resp.StatusCode}
	}
	return body, nil
}
