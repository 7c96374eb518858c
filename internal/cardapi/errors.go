package cardapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// --- Error kind enum ---

// Kind classifies a failed operation. Callers switch on Kind rather than
// matching concrete error types, so the set is closed and explicit.
type Kind string

const (
	// KindAuthentication: the service rejected our credentials (401),
	// the auth endpoint refused to issue a token, or local signature
	// verification failed.
	KindAuthentication Kind = "authentication"

	// KindAuthorization: the token is valid but the role lacks access (403).
	KindAuthorization Kind = "authorization"

	// KindNotFound: the addressed card or endpoint does not exist (404).
	KindNotFound Kind = "not_found"

	// KindValidation: the service rejected the request payload (422),
	// with per-field details when the service provides them.
	KindValidation Kind = "validation"

	// KindRateLimited: the service throttled us (429). Retryable.
	KindRateLimited Kind = "rate_limited"

	// KindServer: the service failed internally (5xx). Retryable.
	KindServer Kind = "server"

	// KindNetwork: the request never got a response — connection refused,
	// timeout, DNS failure. Retryable.
	KindNetwork Kind = "network"

	// KindConfiguration: a caller or setup error detected before any
	// network activity (missing credentials, invalid batch mode).
	KindConfiguration Kind = "configuration"

	// KindParse: the service answered with a body we could not decode.
	KindParse Kind = "parse"
)

// retryableKinds is the set of kinds the request executor retries.
// Everything else fails on first occurrence.
var retryableKinds = map[Kind]bool{
	KindRateLimited: true,
	KindServer:      true,
	KindNetwork:     true,
}

// FieldError is one per-field entry from a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed failure surfaced by every operation in this package.
// It keeps the upstream code/message/details verbatim so callers can render
// a precise message instead of a generic one.
type Error struct {
	Kind       Kind
	Status     int           // HTTP status, 0 for network/config failures
	Code       string        // upstream machine-readable error code
	Message    string        // upstream (or local) human-readable message
	Details    []FieldError  // per-field validation details, if any
	RetryAfter time.Duration // server-provided retry hint, if any
	cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("cardapi: ")
	b.WriteString(string(e.Kind))
	if e.Status > 0 {
		fmt.Fprintf(&b, " (%d)", e.Status)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.cause != nil && e.Message == "" {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// Retryable reports whether the request executor may retry this failure.
func (e *Error) Retryable() bool { return retryableKinds[e.Kind] }

// KindOf extracts the Kind from any error. Non-cardapi errors report
// KindNetwork when they wrap a transport failure would be a guess, so they
// report the zero Kind instead.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a transient cardapi failure.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// configError builds a KindConfiguration error. These are raised before any
// network activity and are always fatal to the call.
func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// NewConfigError builds a KindConfiguration error for callers outside
// this package (startup validation in config loading and wiring).
func NewConfigError(format string, args ...any) error {
	return configError(format, args...)
}

// parseError builds a KindParse error wrapping the decode failure.
func parseError(context string, cause error) *Error {
	return &Error{Kind: KindParse, Message: context, cause: cause}
}

// networkError wraps a transport-level failure (no HTTP response at all).
func networkError(cause error) *Error {
	return &Error{Kind: KindNetwork, Message: "request failed", cause: cause}
}

// --- Response classification ---

// errorEnvelope is the uniform error body shape the card service returns.
// Details may be either {"field": "msg"}, {"field": ["msg", ...]}, or a
// flat list of {"field": ..., "message": ...} objects.
type errorEnvelope struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

// classify maps a non-2xx response to a typed error. The status-to-kind
// table is a contract with the card service and must not drift:
//
//	401 authentication, 403 authorization, 404 not found,
//	422 validation, 429 rate limited, 5xx server.
//
// Anything else (unexpected 3xx/4xx) is treated as a server failure so it
// still surfaces with the status attached, but is NOT retried.
func classify(status int, header http.Header, body []byte) *Error {
	env := decodeEnvelope(body)

	e := &Error{
		Status:  status,
		Code:    env.Error,
		Message: env.Message,
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}

	switch {
	case status == http.StatusUnauthorized:
		e.Kind = KindAuthentication
	case status == http.StatusForbidden:
		e.Kind = KindAuthorization
	case status == http.StatusNotFound:
		e.Kind = KindNotFound
	case status == http.StatusUnprocessableEntity:
		e.Kind = KindValidation
		e.Details = decodeDetails(env.Details)
	case status == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = retryAfterHint(header)
	case status >= 500:
		e.Kind = KindServer
	default:
		// Unexpected status outside the documented contract. Surface it
		// as a server-kind failure but keep it non-retryable: repeating
		// a request the service answered strangely is not transient.
		e.Kind = KindServer
		if status < 500 {
			e.Kind = KindValidation
		}
	}
	return e
}

// decodeEnvelope parses the error body, tolerating empty or non-JSON
// bodies (proxies sometimes answer 5xx with HTML).
func decodeEnvelope(body []byte) errorEnvelope {
	var env errorEnvelope
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !strings.HasPrefix(trimmed, "{") {
		return env
	}
	_ = json.Unmarshal(body, &env)
	return env
}

// decodeDetails flattens the service's validation details into field errors,
// accepting the three shapes the service has been observed to emit.
func decodeDetails(raw json.RawMessage) []FieldError {
	if len(raw) == 0 {
		return nil
	}

	var asList []FieldError
	if err := json.Unmarshal(raw, &asList); err == nil && len(asList) > 0 {
		return asList
	}

	var asMulti map[string][]string
	if err := json.Unmarshal(raw, &asMulti); err == nil && len(asMulti) > 0 {
		out := make([]FieldError, 0, len(asMulti))
		for field, messages := range asMulti {
			for _, msg := range messages {
				out = append(out, FieldError{Field: field, Message: msg})
			}
		}
		return out
	}

	var asSingle map[string]string
	if err := json.Unmarshal(raw, &asSingle); err == nil && len(asSingle) > 0 {
		out := make([]FieldError, 0, len(asSingle))
		for field, msg := range asSingle {
			out = append(out, FieldError{Field: field, Message: msg})
		}
		return out
	}

	return nil
}

// retryAfterHint parses a Retry-After header given in seconds. HTTP-date
// values are ignored — the card service only emits the seconds form.
func retryAfterHint(header http.Header) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
