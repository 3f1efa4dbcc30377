// Package esi talks to the EVE Swagger Interface, the remote source of all
// reference data the entity store caches.
package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"refcache/internal/resolver"
	"refcache/internal/shared/config"
	"refcache/internal/shared/errors"
)

const lookupCacheSize = 4096

var _ resolver.Fetcher = (*Client)(nil)

// Client is a rate-limited ESI client. It implements resolver.Fetcher.
type Client struct {
	baseURL      string
	userAgent    string
	appraisalURL string
	concurrency  int
	http         *http.Client
	limiter      *rate.Limiter
	tokens       *TokenStore
	logger       *slog.Logger

	groups         *lru.Cache[int64, group]
	categories     *lru.Cache[int64, category]
	systems        *lru.Cache[int64, system]
	constellations *lru.Cache[int64, constellation]
	regions        *lru.Cache[int64, region]
}

func NewClient(cfg config.ESIConfig, tokens *TokenStore, logger *slog.Logger) (*Client, error) {
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		appraisalURL: cfg.AppraisalURL,
		concurrency:  max(cfg.Concurrency, 1),
		http:         &http.Client{Timeout: cfg.Timeout},
		limiter:      rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.BurstSize, 1)),
		tokens:       tokens,
		logger:       logger.With("component", "esi_client"),
	}

	var err error
	if c.groups, err = lru.New[int64, group](lookupCacheSize); err != nil {
		return nil, fmt.Errorf("create group cache: %w", err)
	}
	if c.categories, err = lru.New[int64, category](lookupCacheSize); err != nil {
		return nil, fmt.Errorf("create category cache: %w", err)
	}
	if c.systems, err = lru.New[int64, system](lookupCacheSize); err != nil {
		return nil, fmt.Errorf("create system cache: %w", err)
	}
	if c.constellations, err = lru.New[int64, constellation](lookupCacheSize); err != nil {
		return nil, fmt.Errorf("create constellation cache: %w", err)
	}
	if c.regions, err = lru.New[int64, region](lookupCacheSize); err != nil {
		return nil, fmt.Errorf("create region cache: %w", err)
	}
	return c, nil
}

func (c *Client) get(ctx context.Context, path string, auth oauth2.TokenSource, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.WrapInternal("failed to build ESI request", err)
	}
	return c.do(req, auth, out)
}

func (c *Client) post(ctx context.Context, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errors.WrapInternal("failed to encode ESI request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return errors.WrapInternal("failed to build ESI request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, nil, out)
}

func (c *Client) do(req *http.Request, auth oauth2.TokenSource, out any) error {
	logger := c.logger.With("method", req.Method, "path", req.URL.Path)

	if err := c.limiter.Wait(req.Context()); err != nil {
		return errors.WrapExternal("ESI rate limiter wait aborted", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if auth != nil {
		token, err := auth.Token()
		if err != nil {
			return &errors.AppError{Type: errors.ErrorTypeUnauthorized, Message: "failed to obtain ESI access token", Err: err}
		}
		token.SetAuthHeader(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WrapExternal("ESI request failed", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("Failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.WrapExternal("failed to decode ESI response", err)
	}
	return nil
}

type esiError struct {
	Error string `json:"error"`
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e esiError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}

	path := resp.Request.URL.Path
	switch resp.StatusCode {
	case http.StatusNotFound:
		return errors.NotFoundf("ESI %s: %s", path, msg)
	case http.StatusUnauthorized:
		return errors.Unauthorizedf("ESI %s: %s", path, msg)
	case http.StatusForbidden:
		return errors.Forbiddenf("ESI %s: %s", path, msg)
	case http.StatusBadRequest:
		return errors.Validationf("ESI %s: %s", path, msg)
	default:
		return errors.Externalf("ESI %s returned status %d: %s", path, resp.StatusCode, msg)
	}
}
