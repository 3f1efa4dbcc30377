package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"refcache/internal/shared/errors"
	"refcache/internal/shared/response"
)

// TokenRegistry turns SSO grants into per-character token sources.
type TokenRegistry interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (int64, error)
	Register(ctx context.Context, token *oauth2.Token) (int64, error)
	Characters() []int64
}

// StateIssuer hands out and checks one-time SSO state values.
type StateIssuer interface {
	Generate() (string, error)
	Validate(state string) error
}

type RegisterTokenRequest struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	Expiry       time.Time `json:"expiry"`
}

type CharacterResponse struct {
	CharacterID int64   `json:"character_id"`
	Characters  []int64 `json:"characters"`
}

type SSOHandler struct {
	tokens       TokenRegistry
	states       StateIssuer
	resolver     Resolution
	frontendURL  string
	isConfigured bool
}

func NewSSOHandler(tokens TokenRegistry, states StateIssuer, resolver Resolution, frontendURL string, isConfigured bool) *SSOHandler {
	return &SSOHandler{
		tokens:       tokens,
		states:       states,
		resolver:     resolver,
		frontendURL:  frontendURL,
		isConfigured: isConfigured,
	}
}

func (h *SSOHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "sso_login")

	if !h.isConfigured {
		response.Error(w, r, logger, errors.Externalf("EVE SSO is not configured"))
		return
	}

	state, err := h.states.Generate()
	if err != nil {
		response.Error(w, r, logger, errors.WrapInternal("failed to initialize SSO flow", err))
		return
	}

	http.Redirect(w, r, h.tokens.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *SSOHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")

	logger := slog.With(
		"handler", "sso_callback",
		"ip", r.RemoteAddr,
		"has_code", code != "",
		"has_state", state != "",
	)

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		logger.Warn("SSO authorization denied", "sso_error", errParam)
		h.redirect(w, r, url.Values{"error": {"sso_denied"}})
		return
	}

	if err := h.states.Validate(state); err != nil {
		logger.Warn("SSO state validation failed", "error", err)
		h.redirect(w, r, url.Values{"error": {"invalid_state"}})
		return
	}

	if code == "" {
		logger.Error("SSO callback missing authorization code")
		h.redirect(w, r, url.Values{"error": {"sso_error"}})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	characterID, err := h.tokens.Exchange(ctx, code)
	if err != nil {
		logger.Error("Failed to exchange SSO authorization code", "error", err)
		h.redirect(w, r, url.Values{"error": {"sso_error"}})
		return
	}

	logger.Info("Character authorized via SSO", "character_id", characterID)
	h.resolver.TriggerResolution()

	h.redirect(w, r, url.Values{"character_id": {strconv.FormatInt(characterID, 10)}})
}

func (h *SSOHandler) redirect(w http.ResponseWriter, r *http.Request, query url.Values) {
	http.Redirect(w, r, h.frontendURL+"/characters?"+query.Encode(), http.StatusTemporaryRedirect)
}

// RegisterToken accepts a token obtained outside the callback flow, e.g.
// by a companion app that already holds the character's refresh token. The
// token store rejects access tokens EVE SSO did not sign for this app.
func (h *SSOHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "register_token")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req RegisterTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid request body", err))
		return
	}

	token := &oauth2.Token{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       req.Expiry,
	}
	if token.Expiry.IsZero() && req.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(req.ExpiresIn) * time.Second)
	}

	characterID, err := h.tokens.Register(r.Context(), token)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	logger.Info("Character token registered", "character_id", characterID)
	h.resolver.TriggerResolution()

	response.Success(w, http.StatusCreated, CharacterResponse{
		CharacterID: characterID,
		Characters:  h.tokens.Characters(),
	})
}

func (h *SSOHandler) ListCharacters(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "list_characters")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	response.Success(w, http.StatusOK, CharacterResponse{Characters: h.tokens.Characters()})
}
