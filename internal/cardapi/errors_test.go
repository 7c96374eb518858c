package cardapi

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

// --- classify ---

func TestClassify_StatusToKind(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"unauthorized", 401, KindAuthentication},
		{"forbidden", 403, KindAuthorization},
		{"not found", 404, KindNotFound},
		{"unprocessable", 422, KindValidation},
		{"throttled", 429, KindRateLimited},
		{"internal", 500, KindServer},
		{"bad gateway", 502, KindServer},
		{"unavailable", 503, KindServer},
		{"unexpected 4xx", 400, KindValidation},
		{"unexpected 418", 418, KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := classify(tt.status, http.Header{}, nil)
			if e.Kind != tt.want {
				t.Errorf("classify(%d) kind = %q, want %q", tt.status, e.Kind, tt.want)
			}
			if e.Status != tt.status {
				t.Errorf("classify(%d) status = %d", tt.status, e.Status)
			}
		})
	}
}

func TestClassify_KeepsUpstreamCodeAndMessage(t *testing.T) {
	body := `{"error":"insufficient_role","message":"role 'reader' may not delete"}`
	e := classify(403, http.Header{}, []byte(body))

	if e.Code != "insufficient_role" {
		t.Errorf("code = %q", e.Code)
	}
	if e.Message != "role 'reader' may not delete" {
		t.Errorf("message = %q", e.Message)
	}
}

func TestClassify_NonJSONBody(t *testing.T) {
	e := classify(502, http.Header{}, []byte("<html>Bad Gateway</html>"))
	if e.Kind != KindServer {
		t.Errorf("kind = %q", e.Kind)
	}
	if e.Message != "Bad Gateway" {
		t.Errorf("message = %q, want status text fallback", e.Message)
	}
}

func TestClassify_RetryAfterHint(t *testing.T) {
	header := http.Header{}
	header.Set("Retry-After", "30")
	e := classify(429, header, nil)

	if e.RetryAfter != 30*time.Second {
		t.Errorf("retry after = %s, want 30s", e.RetryAfter)
	}
}

func TestClassify_ValidationDetails(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"list shape", `{"error":"invalid","details":[{"field":"name","message":"taken"},{"field":"type","message":"unknown"}]}`, 2},
		{"multi-map shape", `{"error":"invalid","details":{"name":["taken","too long"]}}`, 2},
		{"single-map shape", `{"error":"invalid","details":{"name":"taken"}}`, 1},
		{"no details", `{"error":"invalid"}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := classify(422, http.Header{}, []byte(tt.body))
			if len(e.Details) != tt.want {
				t.Errorf("details count = %d, want %d (%v)", len(e.Details), tt.want, e.Details)
			}
		})
	}
}

// --- retryability ---

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindAuthentication, false},
		{KindAuthorization, false},
		{KindNotFound, false},
		{KindValidation, false},
		{KindRateLimited, true},
		{KindServer, true},
		{KindNetwork, true},
		{KindConfiguration, false},
		{KindParse, false},
	}

	for _, tt := range tests {
		e := &Error{Kind: tt.kind}
		if e.Retryable() != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.kind, e.Retryable(), tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	e := &Error{Kind: KindNotFound, Message: "no such card"}
	if got := KindOf(e); got != KindNotFound {
		t.Errorf("KindOf = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
}

func TestErrorString(t *testing.T) {
	e := &Error{Kind: KindValidation, Status: 422, Code: "invalid", Message: "name is taken"}
	got := e.Error()
	want := "cardapi: validation (422) [invalid]: name is taken"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
