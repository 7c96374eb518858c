package cardapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"
)

// --- Shared test doubles ---

// scriptedDoer answers each HTTP attempt from a handler that sees the
// 1-based call number. It records every request it saw.
type scriptedDoer struct {
	handler  func(call int, req *http.Request) (*http.Response, error)
	requests []*http.Request
}

func (d *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	d.requests = append(d.requests, req)
	return d.handler(len(d.requests), req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// staticTokens is a TokenSource returning a fixed token.
type staticTokens struct{ token string }

func (s staticTokens) Token(context.Context) (string, error) { return s.token, nil }

// sequenceTokens returns a different token per call, to observe that the
// executor re-reads the token on every attempt.
type sequenceTokens struct {
	tokens []string
	calls  int
}

func (s *sequenceTokens) Token(context.Context) (string, error) {
	s.calls++
	if s.calls > len(s.tokens) {
		return s.tokens[len(s.tokens)-1], nil
	}
	return s.tokens[s.calls-1], nil
}

// newTestClient builds a client with no real sleeping and a scripted
// transport. Recorded sleep durations land in *sleeps.
func newTestClient(t *testing.T, doer *scriptedDoer, sleeps *[]time.Duration, mutate ...func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		BaseURL:    "https://cards.example.com/api",
		Tokens:     staticTokens{token: "tok-1"},
		HTTPClient: doer,
		Sleep: func(_ context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		},
	}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// --- Construction ---

func TestNewClient_ConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  ClientConfig
	}{
		{"missing base url", ClientConfig{Tokens: staticTokens{}}},
		{"relative base url", ClientConfig{BaseURL: "/api", Tokens: staticTokens{}}},
		{"missing token source", ClientConfig{BaseURL: "https://cards.example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewClient(tt.cfg)
			if KindOf(err) != KindConfiguration {
				t.Errorf("kind = %q, want configuration (err: %v)", KindOf(err), err)
			}
		})
	}
}

// --- Success paths ---

func TestDo_Success(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(200, `{"name":"Home","content":"welcome"}`), nil
	}}
	c := newTestClient(t, doer, nil)

	raw, err := c.Do(context.Background(), "GET", "/cards/Home", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	var card struct{ Name string }
	if err := json.Unmarshal(raw, &card); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if card.Name != "Home" {
		t.Errorf("name = %q", card.Name)
	}

	req := doer.requests[0]
	if got := req.Header.Get("Authorization"); got != "Bearer tok-1" {
		t.Errorf("authorization = %q", got)
	}
	if req.URL.Path != "/api/cards/Home" {
		t.Errorf("path = %q", req.URL.Path)
	}
}

func TestDo_EmptyBodyReturnsNil(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(204, ""), nil
	}}
	c := newTestClient(t, doer, nil)

	raw, err := c.Do(context.Background(), "DELETE", "/cards/Old", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if raw != nil {
		t.Errorf("raw = %q, want nil", raw)
	}
}

func TestDo_SendsJSONBody(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		if !strings.Contains(string(body), `"name":"New"`) {
			return nil, fmt.Errorf("unexpected body %s", body)
		}
		return jsonResponse(200, `{"ok":true}`), nil
	}}
	c := newTestClient(t, doer, nil)

	_, err := c.Do(context.Background(), "POST", "/cards", nil, map[string]string{"name": "New"})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := doer.requests[0].Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content-type = %q", got)
	}
}

// --- Retry behavior ---

func TestDo_RetryCeiling_FourAttemptsTotal(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(500, `{"error":"boom","message":"db down"}`), nil
	}}
	var sleeps []time.Duration
	c := newTestClient(t, doer, &sleeps)

	_, err := c.Do(context.Background(), "GET", "/cards", nil, nil)

	if len(doer.requests) != 4 {
		t.Errorf("attempts = %d, want exactly 4", len(doer.requests))
	}
	if KindOf(err) != KindServer {
		t.Errorf("kind = %q, want server", KindOf(err))
	}
}

func TestDo_BackoffSchedule(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(503, ""), nil
	}}
	var sleeps []time.Duration
	c := newTestClient(t, doer, &sleeps)

	_, _ = c.Do(context.Background(), "GET", "/cards", nil, nil)

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("sleeps = %v, want %v", sleeps, want)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep[%d] = %s, want %s", i, sleeps[i], want[i])
		}
	}
}

func TestDo_NoRetryOnNotFound(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(404, `{"error":"missing","message":"no such card"}`), nil
	}}
	var sleeps []time.Duration
	c := newTestClient(t, doer, &sleeps)

	_, err := c.Do(context.Background(), "GET", "/cards/Ghost", nil, nil)

	if len(doer.requests) != 1 {
		t.Errorf("attempts = %d, want 1", len(doer.requests))
	}
	if len(sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", sleeps)
	}
	if KindOf(err) != KindNotFound {
		t.Errorf("kind = %q", KindOf(err))
	}
}

func TestDo_NoRetryOnPermanent4xx(t *testing.T) {
	for _, status := range []int{401, 403, 422} {
		doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
			return jsonResponse(status, ""), nil
		}}
		c := newTestClient(t, doer, nil)

		_, err := c.Do(context.Background(), "POST", "/cards", nil, map[string]string{"name": "x"})
		if len(doer.requests) != 1 {
			t.Errorf("status %d: attempts = %d, want 1", status, len(doer.requests))
		}
		if err == nil {
			t.Errorf("status %d: want error", status)
		}
	}
}

func TestDo_RetriesRateLimitedThenSucceeds(t *testing.T) {
	doer := &scriptedDoer{handler: func(call int, _ *http.Request) (*http.Response, error) {
		if call == 1 {
			resp := jsonResponse(429, `{"error":"throttled"}`)
			resp.Header.Set("Retry-After", "1")
			return resp, nil
		}
		return jsonResponse(200, `{"ok":true}`), nil
	}}
	var sleeps []time.Duration
	c := newTestClient(t, doer, &sleeps)

	raw, err := c.Do(context.Background(), "GET", "/cards", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if raw == nil {
		t.Fatal("raw = nil")
	}
	if len(doer.requests) != 2 {
		t.Errorf("attempts = %d, want 2", len(doer.requests))
	}
}

func TestDo_RetriesNetworkFailure(t *testing.T) {
	doer := &scriptedDoer{handler: func(call int, _ *http.Request) (*http.Response, error) {
		if call < 3 {
			return nil, errors.New("connection refused")
		}
		return jsonResponse(200, `{"ok":true}`), nil
	}}
	c := newTestClient(t, doer, nil)

	_, err := c.Do(context.Background(), "GET", "/cards", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(doer.requests) != 3 {
		t.Errorf("attempts = %d, want 3", len(doer.requests))
	}
}

func TestDo_RereadsTokenEachAttempt(t *testing.T) {
	doer := &scriptedDoer{handler: func(call int, _ *http.Request) (*http.Response, error) {
		if call < 3 {
			return jsonResponse(500, ""), nil
		}
		return jsonResponse(200, `{"ok":true}`), nil
	}}
	tokens := &sequenceTokens{tokens: []string{"tok-a", "tok-b", "tok-c"}}
	c := newTestClient(t, doer, nil, func(cfg *ClientConfig) {
		cfg.Tokens = tokens
	})

	_, err := c.Do(context.Background(), "GET", "/cards", nil, nil)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}

	want := []string{"Bearer tok-a", "Bearer tok-b", "Bearer tok-c"}
	for i, req := range doer.requests {
		if got := req.Header.Get("Authorization"); got != want[i] {
			t.Errorf("attempt %d authorization = %q, want %q", i+1, got, want[i])
		}
	}
}

func TestDo_TokenFailureIsFatal(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		t.Fatal("transport must not be reached when the token source fails")
		return nil, nil
	}}
	c := newTestClient(t, doer, nil, func(cfg *ClientConfig) {
		cfg.Tokens = failingTokens{err: &Error{Kind: KindAuthentication, Message: "bad key"}}
	})

	_, err := c.Do(context.Background(), "GET", "/cards", nil, nil)
	if KindOf(err) != KindAuthentication {
		t.Errorf("kind = %q", KindOf(err))
	}
	if len(doer.requests) != 0 {
		t.Errorf("requests = %d, want 0", len(doer.requests))
	}
}

type failingTokens struct{ err error }

func (f failingTokens) Token(context.Context) (string, error) { return "", f.err }

func TestDo_CancelledContextStopsBackoff(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(500, ""), nil
	}}
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestClient(t, doer, nil, func(cfg *ClientConfig) {
		cfg.Sleep = func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		}
	})

	_, err := c.Do(ctx, "GET", "/cards", nil, nil)
	if len(doer.requests) != 1 {
		t.Errorf("attempts = %d, want 1", len(doer.requests))
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("kind = %q", KindOf(err))
	}
}

// --- Observer ---

func TestDo_ObserverSeesAttemptsAndKind(t *testing.T) {
	doer := &scriptedDoer{handler: func(_ int, _ *http.Request) (*http.Response, error) {
		return jsonResponse(500, ""), nil
	}}
	var records []CallRecord
	c := newTestClient(t, doer, nil, func(cfg *ClientConfig) {
		cfg.Observer = func(rec CallRecord) { records = append(records, rec) }
	})

	_, _ = c.Do(context.Background(), "GET", "/cards", url.Values{"type": []string{"note"}}, nil)

	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.Attempts != 4 {
		t.Errorf("attempts = %d, want 4", rec.Attempts)
	}
	if rec.ErrKind != KindServer {
		t.Errorf("err kind = %q", rec.ErrKind)
	}
	if rec.Method != "GET" || rec.Path != "/cards" {
		t.Errorf("method/path = %s %s", rec.Method, rec.Path)
	}
}
