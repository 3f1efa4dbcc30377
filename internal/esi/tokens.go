package esi

import (
	"context"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"k8s.io/utils/clock"

	"refcache/internal/shared/config"
	"refcache/internal/shared/errors"
)

var SSOEndpoint = oauth2.Endpoint{
	AuthURL:  "https://login.eveonline.com/v2/oauth/authorize",
	TokenURL: "https://login.eveonline.com/v2/oauth/token",
}

// Scopes needed by the authenticated lookups.
var Scopes = []string{
	"esi-universe.read_structures.v1",
	"esi-contracts.read_character_contracts.v1",
}

const subjectPrefix = "CHARACTER:EVE:"

var ssoIssuers = []string{"login.eveonline.com", "https://login.eveonline.com"}

// TokenStore keeps one refreshing token source per authenticated character.
type TokenStore struct {
	config *oauth2.Config
	keys   *KeySet
	logger *slog.Logger

	mu      sync.RWMutex
	sources map[int64]oauth2.TokenSource
}

func NewTokenStore(cfg config.ESIConfig, logger *slog.Logger) *TokenStore {
	jwksURL := cfg.SSOJWKSURL
	if jwksURL == "" {
		jwksURL = DefaultJWKSURL
	}
	return &TokenStore{
		keys:   NewKeySet(jwksURL, &http.Client{Timeout: cfg.Timeout}, clock.RealClock{}, logger),
		config: &oauth2.Config{
			ClientID:     cfg.SSOClientID,
			ClientSecret: cfg.SSOClientSecret,
			RedirectURL:  cfg.SSOCallbackURL,
			Endpoint:     SSOEndpoint,
			Scopes:       Scopes,
		},
		logger:  logger.With("component", "esi_tokens"),
		sources: make(map[int64]oauth2.TokenSource),
	}
}

func (s *TokenStore) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state)
}

// Exchange trades an SSO authorization code for a token and registers it.
func (s *TokenStore) Exchange(ctx context.Context, code string) (int64, error) {
	logger := s.logger.With("operation", "exchange_code")
	logger.Debug("Exchanging authorization code for ESI access token")

	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		logger.Error("Failed to exchange SSO authorization code", "error", err)
		return 0, errors.WrapExternal("failed to exchange authorization code", err)
	}
	return s.Register(ctx, token)
}

// Register verifies token and stores it for the character named in its
// subject claim, returning that character's ID. Later registrations replace
// earlier ones.
func (s *TokenStore) Register(ctx context.Context, token *oauth2.Token) (int64, error) {
	if token == nil || token.AccessToken == "" {
		return 0, errors.Validationf("access token is required")
	}

	characterID, err := s.verify(ctx, token.AccessToken)
	if err != nil {
		s.logger.Warn("Rejected SSO token", "operation", "register_token", "error", err)
		return 0, err
	}

	source := oauth2.ReuseTokenSource(token, s.config.TokenSource(context.WithoutCancel(ctx), token))

	s.mu.Lock()
	s.sources[characterID] = source
	s.mu.Unlock()

	s.logger.Info("Registered ESI token", "character_id", characterID, "expiry", token.Expiry)
	return characterID, nil
}

func (s *TokenStore) Source(characterID int64) (oauth2.TokenSource, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[characterID]
	return src, ok
}

func (s *TokenStore) Characters() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.sources))
}

// verify checks the access token's signature against the SSO keys, its
// expiry, issuer and audience, and returns the character it was issued for.
func (s *TokenStore) verify(ctx context.Context, accessToken string) (int64, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.config.ClientID != "" {
		opts = append(opts, jwt.WithAudience(s.config.ClientID))
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(accessToken, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return s.keys.Key(ctx, kid)
	}, opts...)
	if errors.Is(err, errors.ErrorTypeExternal) {
		return 0, err
	}
	if err != nil {
		return 0, errors.WrapUnauthorized("invalid SSO access token", err)
	}

	if !slices.Contains(ssoIssuers, claims.Issuer) {
		return 0, errors.Unauthorizedf("unexpected SSO token issuer %q", claims.Issuer)
	}
	return characterIDFromSubject(claims.Subject)
}

// characterIDFromSubject reads the character ID from an SSO subject such
// as CHARACTER:EVE:95465499.
func characterIDFromSubject(subject string) (int64, error) {
	raw, ok := strings.CutPrefix(subject, subjectPrefix)
	if !ok {
		return 0, errors.Validationf("unexpected SSO token subject %q", subject)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validationf("invalid character ID in SSO token subject %q", subject)
	}
	return id, nil
}
