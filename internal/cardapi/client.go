// Package cardapi implements the resilient authenticated client for the
// remote card service.
//
// It owns the four concerns every higher layer builds on:
//   - credential acquisition and refresh (credentials.go, keyset.go)
//   - request execution with error classification and bounded
//     retry/backoff (client.go, errors.go)
//   - safe cursor pagination (pages.go)
//   - batch submission under transactional or per-item semantics (batch.go)
//
// The package is synchronous and blocking: one logical call is one
// goroutine blocked on network I/O, matching the one-at-a-time tool
// invocation model of the MCP layer. The only shared mutable state is the
// cached credential, guarded inside CredentialManager.
package cardapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultMaxRetries is how many times a transient failure is retried
	// after the first attempt (4 attempts total).
	defaultMaxRetries = 3

	// defaultBaseDelay is the first backoff delay; each retry doubles it
	// (1s, 2s, 4s). The schedule bounds worst-case sleeping to ~7s so an
	// interactive agent call never hangs indefinitely.
	defaultBaseDelay = time.Second

	// defaultRequestTimeout bounds a single HTTP attempt.
	defaultRequestTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20
)

// HTTPDoer is the transport contract; *http.Client satisfies it.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenSource supplies the current bearer token. *CredentialManager
// satisfies it; the executor re-reads the token on every attempt so a
// refresh that happens mid-retry-sequence is honored.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// RetryPolicy bounds the executor's retry behavior. The defaults are
// deployment-tunable configuration, not constants baked into call sites.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// CallRecord describes one completed logical request for observers
// (the journal). Attempts counts every HTTP attempt including retries.
type CallRecord struct {
	Method   string
	Path     string
	Status   int
	ErrKind  Kind
	Attempts int
	Duration time.Duration
	At       time.Time
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL string
	Tokens  TokenSource

	Retry RetryPolicy

	// MaxPages caps pagination traversal (default 100 pages).
	MaxPages int

	// MaxPageLimit caps the per-page item limit accepted by the service
	// (default 100). Caller-supplied limits are clamped client-side.
	MaxPageLimit int

	// Observer, when set, receives a CallRecord after every completed
	// logical request. Must not block.
	Observer func(CallRecord)

	// HTTPClient, Sleep, and Now are injection points for tests.
	HTTPClient HTTPDoer
	Sleep      func(ctx context.Context, d time.Duration) error
	Now        func() time.Time
}

// Client executes HTTP operations against the card service: it attaches
// the current bearer token, classifies responses, and retries transient
// failures with exponential backoff.
type Client struct {
	baseURL      *url.URL
	tokens       TokenSource
	httpClient   HTTPDoer
	retry        RetryPolicy
	maxPages     int
	maxPageLimit int
	observer     func(CallRecord)
	sleep        func(ctx context.Context, d time.Duration) error
	now          func() time.Time
}

// NewClient validates the configuration and returns a ready client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, configError("base URL is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, configError("base URL %q is not an absolute URL", cfg.BaseURL)
	}
	if cfg.Tokens == nil {
		return nil, configError("a token source is required")
	}

	retry := cfg.Retry
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = defaultMaxRetries
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = defaultBaseDelay
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	maxPageLimit := cfg.MaxPageLimit
	if maxPageLimit <= 0 {
		maxPageLimit = defaultMaxPageLimit
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Client{
		baseURL:      base,
		tokens:       cfg.Tokens,
		httpClient:   httpClient,
		retry:        retry,
		maxPages:     maxPages,
		maxPageLimit: maxPageLimit,
		observer:     cfg.Observer,
		sleep:        sleep,
		now:          now,
	}, nil
}

// Do executes one logical request and returns the parsed JSON body.
// Transient failures (429, 5xx, network) are retried up to the policy's
// ceiling with exponential backoff; all other failures surface
// immediately as typed errors. A nil body sends no payload; otherwise the
// body is JSON-encoded.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return nil, parseError("encode request body", err)
		}
	}

	start := c.now()
	attempts := 0
	lastStatus := 0
	var lastErr *Error
	var result json.RawMessage

	delay := c.retry.BaseDelay
	for {
		attempts++
		payload, status, err := c.attempt(ctx, method, path, query, encoded)
		lastStatus = status
		if err == nil {
			result = payload
			lastErr = nil
			break
		}
		lastErr = err

		if !err.Retryable() || attempts > c.retry.MaxRetries {
			break
		}

		log.Warn().
			Str("method", method).
			Str("path", path).
			Str("kind", string(err.Kind)).
			Int("attempt", attempts).
			Dur("backoff", delay).
			Msg("[cardapi] transient failure, retrying")

		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			lastErr = networkError(sleepErr)
			break
		}
		delay *= 2
	}

	if c.observer != nil {
		rec := CallRecord{
			Method:   method,
			Path:     path,
			Status:   lastStatus,
			Attempts: attempts,
			Duration: c.now().Sub(start),
			At:       start,
		}
		if lastErr != nil {
			rec.ErrKind = lastErr.Kind
		}
		c.observer(rec)
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return result, nil
}

// attempt performs a single HTTP attempt: fetch the current token, send,
// classify. Token fetch failures are fatal to the whole call (they are
// auth failures, not transport failures) and are returned unretried.
// The returned int is the HTTP status of this attempt, 0 when no response
// arrived.
func (c *Client) attempt(ctx context.Context, method, path string, query url.Values, body []byte) (json.RawMessage, int, *Error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		var typed *Error
		if errors.As(err, &typed) {
			return nil, 0, typed
		}
		return nil, 0, &Error{Kind: KindAuthentication, Message: "token fetch failed", cause: err}
	}

	// path arrives percent-escaped (card names may contain anything), so
	// RawPath carries the wire form and Path its decoded counterpart.
	u := *c.baseURL
	raw := strings.TrimRight(u.EscapedPath(), "/") + path
	unescaped, perr := url.PathUnescape(raw)
	if perr != nil {
		return nil, 0, configError("invalid request path %q: %v", path, perr)
	}
	u.Path = unescaped
	u.RawPath = raw
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, 0, configError("build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, networkError(err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if len(bytes.TrimSpace(respBody)) == 0 {
			return nil, resp.StatusCode, nil
		}
		if !json.Valid(respBody) {
			return nil, resp.StatusCode, parseError("response body is not valid JSON", nil)
		}
		return json.RawMessage(respBody), resp.StatusCode, nil
	}

	return nil, resp.StatusCode, classify(resp.StatusCode, resp.Header, respBody)
}

// sleepContext blocks for d or until ctx is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
