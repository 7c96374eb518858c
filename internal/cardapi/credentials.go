package cardapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const (
	// defaultExpiryBuffer is how long before the recorded expiry a cached
	// credential is already treated as invalid. A token must never expire
	// mid-flight during a long multi-call operation, so we trade extra
	// auth calls for that guarantee.
	defaultExpiryBuffer = 5 * time.Minute

	// defaultAuthTimeout bounds a single auth or key-set HTTP call.
	defaultAuthTimeout = 30 * time.Second

	// maxAuthResponseBytes caps how much of an auth/key-set response body
	// is read.
	maxAuthResponseBytes = 1 << 20

	authTokenPath = "/auth/token"
	authKeysPath  = "/auth/keys"
)

// Credential is a signed, time-limited bearer value issued by the card
// service. It is replaced wholesale on refresh, never mutated.
type Credential struct {
	Token     string
	ExpiresAt time.Time
	Role      string
}

// CredentialConfig configures a CredentialManager. Either APIKey or the
// Username/Password pair must be set.
type CredentialConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string

	// Role is the requested role for issued tokens (optional — the
	// service picks a default when empty).
	Role string

	// ExpiryBuffer overrides the safety window before expiry during
	// which a token counts as invalid. Zero means the default (5m).
	ExpiryBuffer time.Duration

	// KeySetTTL overrides how long a fetched key set is cached.
	// Zero means the default (1h).
	KeySetTTL time.Duration

	// VerifySignatures enables local verification of issued tokens
	// against the service's published key set.
	VerifySignatures bool

	// HTTPClient and Now are injection points for tests.
	HTTPClient HTTPDoer
	Now        func() time.Time
}

// CredentialManager acquires, caches, and refreshes the credential. It is
// the only component that may read or write the cached credential; the
// check-validity-then-fetch-and-replace sequence is serialized with a
// mutex so concurrent tool calls do not issue duplicate refreshes.
type CredentialManager struct {
	cfg        CredentialConfig
	httpClient HTTPDoer
	now        func() time.Time

	mu   sync.Mutex
	cred *Credential
	keys *cachedKeySet
}

// NewCredentialManager validates the configuration and returns a manager
// with an empty cache. No network activity happens here.
func NewCredentialManager(cfg CredentialConfig) (*CredentialManager, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, configError("base URL is required")
	}
	hasKey := strings.TrimSpace(cfg.APIKey) != ""
	hasPair := strings.TrimSpace(cfg.Username) != "" && cfg.Password != ""
	if !hasKey && !hasPair {
		return nil, configError("either an API key or a username/password pair is required")
	}

	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = defaultExpiryBuffer
	}
	if cfg.KeySetTTL <= 0 {
		cfg.KeySetTTL = defaultKeySetTTL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultAuthTimeout}
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &CredentialManager{
		cfg:        cfg,
		httpClient: httpClient,
		now:        now,
	}, nil
}

// Token returns the cached bearer token when it is still valid, otherwise
// it fetches a fresh credential first. Auth failures always propagate — a
// stale token is never substituted.
func (m *CredentialManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.validLocked() {
		return m.cred.Token, nil
	}
	if err := m.fetchLocked(ctx); err != nil {
		return "", err
	}
	return m.cred.Token, nil
}

// Refresh discards any cached credential and fetches a new one.
func (m *CredentialManager) Refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cred = nil
	if err := m.fetchLocked(ctx); err != nil {
		return "", err
	}
	return m.cred.Token, nil
}

// Valid reports whether a cached credential exists and is outside the
// expiry buffer.
func (m *CredentialManager) Valid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validLocked()
}

// ClearCache drops the cached credential and key set.
func (m *CredentialManager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = nil
	m.keys = nil
}

// Snapshot returns a copy of the current credential for status reporting.
// The boolean is false when no credential is cached.
func (m *CredentialManager) Snapshot() (Credential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred == nil {
		return Credential{}, false
	}
	return *m.cred, true
}

// validLocked implements the expiry-buffer rule. Caller holds m.mu.
func (m *CredentialManager) validLocked() bool {
	if m.cred == nil || m.cred.Token == "" {
		return false
	}
	return m.now().Before(m.cred.ExpiresAt.Add(-m.cfg.ExpiryBuffer))
}

// authResponse is the body of a successful token issue.
type authResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
	Role      string `json:"role"`
}

// fetchLocked performs the auth call and replaces the cached credential.
// Caller holds m.mu. Failures here are never retried by this component —
// retry, if any, is the caller's decision.
func (m *CredentialManager) fetchLocked(ctx context.Context) error {
	payload := map[string]string{}
	if strings.TrimSpace(m.cfg.APIKey) != "" {
		payload["api_key"] = strings.TrimSpace(m.cfg.APIKey)
	} else {
		payload["username"] = strings.TrimSpace(m.cfg.Username)
		payload["password"] = m.cfg.Password
	}
	if m.cfg.Role != "" {
		payload["role"] = m.cfg.Role
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return parseError("encode auth request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(m.cfg.BaseURL, "/")+authTokenPath, bytes.NewReader(body))
	if err != nil {
		return configError("build auth request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthResponseBytes))
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		env := decodeEnvelope(respBody)
		msg := env.Message
		if msg == "" {
			msg = "authentication failed"
		}
		return &Error{
			Kind:    KindAuthentication,
			Status:  resp.StatusCode,
			Code:    env.Error,
			Message: msg,
		}
	}

	var issued authResponse
	if err := json.Unmarshal(respBody, &issued); err != nil {
		return parseError("decode auth response", err)
	}
	if issued.Token == "" {
		return parseError("auth response missing token", nil)
	}

	now := m.now()
	expiresAt := now.Add(time.Duration(issued.ExpiresIn) * time.Second)

	// When the token is itself a JWT with an exp claim, honor whichever
	// expiry comes first. This guards against clock drift between the
	// issuer's expires_in and the signed claim.
	if claimExp, ok := tokenExpiry(issued.Token); ok && claimExp.Before(expiresAt) {
		expiresAt = claimExp
	}

	if m.cfg.VerifySignatures {
		if err := m.verifyLocked(ctx, issued.Token); err != nil {
			return err
		}
	}

	m.cred = &Credential{
		Token:     issued.Token,
		ExpiresAt: expiresAt,
		Role:      issued.Role,
	}
	log.Debug().
		Str("role", issued.Role).
		Time("expires_at", expiresAt).
		Msg("[cardapi] credential refreshed")
	return nil
}

// tokenExpiry extracts the exp claim from a JWT-shaped token without
// verifying it. Returns false for opaque (non-JWT) tokens.
func tokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time.UTC(), true
}

// verifyLocked checks the token's signature against the published key set.
// Caller holds m.mu. A verification failure is an authentication failure:
// the issuer handed us something we cannot trust.
func (m *CredentialManager) verifyLocked(ctx context.Context, token string) error {
	keys, err := m.keySetLocked(ctx, false)
	if err != nil {
		return err
	}

	_, err = jwt.Parse(token, keys.keyfunc,
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithTimeFunc(m.now))
	if err != nil {
		return &Error{
			Kind:    KindAuthentication,
			Message: "token signature verification failed",
			cause:   err,
		}
	}
	return nil
}
