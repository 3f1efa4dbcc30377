package esi

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"refcache/internal/shared/errors"
)

// DefaultJWKSURL publishes the keys EVE SSO signs access tokens with.
const DefaultJWKSURL = "https://login.eveonline.com/oauth/jwks"

// keyRefreshInterval bounds how often an unknown key ID refetches the set.
const keyRefreshInterval = 5 * time.Minute

type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// KeySet caches the SSO signing keys by key ID.
type KeySet struct {
	url    string
	http   *http.Client
	clock  clock.Clock
	logger *slog.Logger

	mu        sync.Mutex
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func NewKeySet(url string, httpClient *http.Client, clk clock.Clock, logger *slog.Logger) *KeySet {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &KeySet{
		url:    url,
		http:   httpClient,
		clock:  clk,
		logger: logger.With("component", "sso_keys"),
		keys:   make(map[string]*rsa.PublicKey),
	}
}

// Key returns the RSA key with the given ID, fetching the set when the ID
// is new and the last fetch is older than keyRefreshInterval.
func (k *KeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	if !k.fetchedAt.IsZero() && k.clock.Since(k.fetchedAt) < keyRefreshInterval {
		return nil, errors.Unauthorizedf("unknown SSO signing key %q", kid)
	}
	if err := k.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := k.keys[kid]; ok {
		return key, nil
	}
	return nil, errors.Unauthorizedf("unknown SSO signing key %q", kid)
}

// refresh must be called with mu held.
func (k *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return errors.WrapInternal("failed to build JWKS request", err)
	}
	resp, err := k.http.Do(req)
	if err != nil {
		return errors.WrapExternal("failed to fetch SSO signing keys", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Externalf("SSO signing keys returned status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return errors.WrapExternal("failed to decode SSO signing keys", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, j := range set.Keys {
		if j.Kty != "RSA" {
			continue
		}
		key, err := parseRSAKey(j)
		if err != nil {
			k.logger.Warn("Skipping malformed signing key", "kid", j.Kid, "error", err)
			continue
		}
		keys[j.Kid] = key
	}

	k.keys = keys
	k.fetchedAt = k.clock.Now()
	k.logger.Debug("SSO signing keys refreshed", "keys", len(keys))
	return nil
}

func parseRSAKey(j jwk) (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(j.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(j.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exponent := new(big.Int).SetBytes(e)
	if len(n) == 0 || !exponent.IsInt64() || exponent.Int64() < 2 {
		return nil, fmt.Errorf("invalid RSA parameters")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exponent.Int64())}, nil
}
