package cardapi

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// defaultKeySetTTL is how long a fetched key set stays cached before the
// next verification triggers a re-fetch.
const defaultKeySetTTL = time.Hour

// KeySet maps key id to public-key material published by the card service.
// It is replaced wholesale on refresh, never partially updated.
type KeySet map[string]*rsa.PublicKey

// cachedKeySet pairs a key set with its fetch time for TTL checks.
type cachedKeySet struct {
	keys      KeySet
	fetchedAt time.Time
}

// keyfunc resolves the verification key for a parsed JWT by kid header.
func (c *cachedKeySet) keyfunc(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	if kid == "" {
		return nil, &Error{Kind: KindAuthentication, Message: "token has no kid header"}
	}
	key, ok := c.keys[kid]
	if !ok {
		return nil, &Error{Kind: KindAuthentication, Message: "no published key matches kid " + kid}
	}
	return key, nil
}

// jwkKey is one entry of the service's published key set, in JWK form.
// Only RSA keys are supported — that is all the service issues.
type jwkKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type keySetResponse struct {
	Keys []jwkKey `json:"keys"`
}

// KeySet returns the cached verification keys, fetching them from the
// well-known endpoint when the cache is empty, expired, or force is set.
func (m *CredentialManager) KeySet(ctx context.Context, force bool) (KeySet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cached, err := m.keySetLocked(ctx, force)
	if err != nil {
		return nil, err
	}
	return cached.keys, nil
}

// keySetLocked implements the TTL cache. Caller holds m.mu.
func (m *CredentialManager) keySetLocked(ctx context.Context, force bool) (*cachedKeySet, error) {
	if !force && m.keys != nil && m.now().Sub(m.keys.fetchedAt) < m.cfg.KeySetTTL {
		return m.keys, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(m.cfg.BaseURL, "/")+authKeysPath, nil)
	if err != nil {
		return nil, configError("build key set request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthResponseBytes))
	if err != nil {
		return nil, networkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		env := decodeEnvelope(body)
		msg := env.Message
		if msg == "" {
			msg = "key set fetch failed"
		}
		return nil, &Error{
			Kind:    KindAuthentication,
			Status:  resp.StatusCode,
			Code:    env.Error,
			Message: msg,
		}
	}

	var decoded keySetResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, parseError("decode key set response", err)
	}

	keys := make(KeySet, len(decoded.Keys))
	for _, k := range decoded.Keys {
		if k.Kid == "" || !strings.EqualFold(k.Kty, "RSA") {
			continue
		}
		pub, err := decodeRSAKey(k)
		if err != nil {
			return nil, parseError("decode key "+k.Kid, err)
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, parseError("key set response contains no usable keys", nil)
	}

	m.keys = &cachedKeySet{keys: keys, fetchedAt: m.now()}
	return m.keys, nil
}

// decodeRSAKey converts a JWK's base64url modulus/exponent into an
// rsa.PublicKey. golang-jwt only consumes crypto keys, so the JWK decode
// lives here.
func decodeRSAKey(k jwkKey) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, err
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}
