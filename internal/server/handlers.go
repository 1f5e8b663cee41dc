package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundcheck/internal/auth"
	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/services"
	"github.com/desertthunder/soundcheck/internal/shared"
)

const maxBodyBytes = 1 << 20

// OAuthGateway is the provider side of the backend.
type OAuthGateway interface {
	AuthorizationURL(userID string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*auth.CallbackResult, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error)
	Verify(ctx context.Context, accessToken string) models.VerifyResult
	CheckScopes(ctx context.Context, accessToken string) models.ScopeReport
	Spotify(accessToken string) *services.SpotifyService
}

// AccountGateway is the local account side of the backend.
type AccountGateway interface {
	SessionVerifier
	Register(in auth.RegisterInput) (*models.AccountSession, error)
	Login(in auth.LoginInput) (*models.AccountSession, error)
}

// API serves the backend endpoints.
type API struct {
	gateway     OAuthGateway
	accounts    AccountGateway
	frontendURL string
	timeout     time.Duration
	logger      *log.Logger
}

// NewAPI wires the endpoint handlers. timeout bounds every outbound provider call.
func NewAPI(gateway OAuthGateway, accounts AccountGateway, frontendURL string, timeout time.Duration, logger *log.Logger) *API {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &API{
		gateway:     gateway,
		accounts:    accounts,
		frontendURL: frontendURL,
		timeout:     timeout,
		logger:      shared.WithLogger(logger, "component", "api"),
	}
}

// Routes registers every endpoint on r. limiter, when non-nil, guards the token endpoints.
func (a *API) Routes(r Router, limiter *RateLimiter) {
	limited := func(h http.HandlerFunc) http.Handler {
		if limiter == nil {
			return h
		}
		return limiter.Middleware()(h)
	}
	authed := RequireSession(a.accounts)

	r.Handle(http.MethodGet, "/login", limited(a.login))
	r.Handle(http.MethodGet, "/callback", limited(a.callback))
	r.Handle(http.MethodPost, "/refresh-token", limited(a.refreshToken))
	r.Handle(http.MethodPost, "/verify-token", limited(a.verifyToken))
	r.Handle(http.MethodGet, "/check-token-scopes", limited(a.checkScopes))
	r.Handle(http.MethodGet, "/test-top-tracks", limited(a.testTopTracks))

	r.Handle(http.MethodPost, "/api/register", limited(a.register))
	r.Handle(http.MethodPost, "/api/login", limited(a.loginAccount))
	r.Handle(http.MethodGet, "/api/spotify-auth", authed(http.HandlerFunc(a.spotifyAuth)))
	r.Handle(http.MethodGet, "/api/me", authed(http.HandlerFunc(a.me)))

	r.Handle(http.MethodGet, "/health", http.HandlerFunc(a.health))
}

// login redirects to the provider consent page. ?userId requests linking on return.
func (a *API) login(w http.ResponseWriter, r *http.Request) {
	authURL, err := a.gateway.AuthorizationURL(r.URL.Query().Get("userId"))
	if err != nil {
		a.logger.Error("failed to build authorization url", "error", err)
		http.Error(w, "Failed to start authorization.", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (a *API) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		msg := "Authorization code not found."
		if providerErr := q.Get("error"); providerErr != "" {
			msg += " Provider error: " + providerErr
		}
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	result, err := a.gateway.HandleCallback(ctx, code, q.Get("state"))
	if err != nil {
		http.Error(w, "Failed to authenticate. Error: "+describeError(err), http.StatusInternalServerError)
		return
	}

	location, err := result.RedirectURL(a.frontendURL)
	if err != nil {
		a.logger.Error("failed to build frontend redirect", "error", err)
		http.Error(w, "Failed to authenticate. Error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, location, http.StatusFound)
}

func (a *API) refreshToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeBody(r, &body); err != nil || body.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "Refresh token is required.", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	record, err := a.gateway.Refresh(ctx, body.RefreshToken)
	switch {
	case err == nil:
	case errors.Is(err, shared.ErrNetwork):
		writeError(w, http.StatusBadGateway, "Failed to refresh token.", describeError(err))
		return
	default:
		writeError(w, http.StatusInternalServerError, "Failed to refresh token.", describeError(err))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func (a *API) verifyToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := decodeBody(r, &body); err != nil || body.AccessToken == "" {
		writeError(w, http.StatusBadRequest, "Access token is required.", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	writeJSON(w, http.StatusOK, a.gateway.Verify(ctx, body.AccessToken))
}

func (a *API) checkScopes(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Access token is required as a query parameter", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	writeJSON(w, http.StatusOK, a.gateway.CheckScopes(ctx, token))
}

type rankedTrack struct {
	Position   int    `json:"position"`
	Name       string `json:"name"`
	Artists    string `json:"artists"`
	Album      string `json:"album"`
	Popularity int    `json:"popularity"`
	ID         string `json:"id"`
}

// testTopTracks is a diagnostic for the user-top-read scope.
func (a *API) testTopTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Access token is required as a query parameter", "")
		return
	}
	timeRange := q.Get("time_range")
	if timeRange == "" {
		timeRange = services.MediumTerm
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	spotify := a.gateway.Spotify(token)
	fail := func(err error) {
		status := http.StatusInternalServerError
		body := map[string]any{"success": false, "error": err.Error(), "scopes_needed": []string{"user-top-read"}}

		var reqErr *shared.RequestError
		if errors.As(err, &reqErr) {
			status = reqErr.Status
			body["status"] = reqErr.Status
			if reqErr.Message != "" {
				body["error"] = reqErr.Message
			}
		}
		writeJSON(w, status, body)
	}

	user, err := spotify.UserProfile(ctx)
	if err != nil {
		fail(err)
		return
	}
	tracks, err := spotify.TopTracks(ctx, timeRange, 10)
	if err != nil {
		fail(err)
		return
	}

	ranked := make([]rankedTrack, 0, len(tracks))
	for i, t := range tracks {
		ranked = append(ranked, rankedTrack{
			Position:   i + 1,
			Name:       t.Title,
			Artists:    t.Artist,
			Album:      t.Album,
			Popularity: t.Popularity,
			ID:         t.ID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"user":       map[string]string{"id": user.ID, "name": user.DisplayName},
		"time_range": timeRange,
		"tracks":     ranked,
		"raw_count":  len(tracks),
	})
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.", err.Error())
		return
	}

	session, err := a.accounts.Register(in)
	if err != nil {
		a.accountError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (a *API) loginAccount(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.", err.Error())
		return
	}

	session, err := a.accounts.Login(in)
	if err != nil {
		a.accountError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *API) accountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), shared.ErrInvalidInput.Error()+": "), "")
	case errors.Is(err, shared.ErrAccountExists):
		writeError(w, http.StatusConflict, "User already exists.", "")
	case errors.Is(err, shared.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials.", "")
	default:
		a.logger.Error("account request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error.", "")
	}
}

// spotifyAuth returns a consent URL that links the provider identity to the caller's account.
func (a *API) spotifyAuth(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid session.", "")
		return
	}

	authURL, err := a.gateway.AuthorizationURL(account.ID())
	if err != nil {
		a.logger.Error("failed to build authorization url", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to start authorization.", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authUrl": authURL})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	account, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Invalid session.", "")
		return
	}
	writeJSON(w, http.StatusOK, models.NewAccountView(account))
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// describeError prefers the provider's own description over the wrapped error chain.
func describeError(err error) string {
	var pe *shared.ProviderError
	if errors.As(err, &pe) {
		switch {
		case pe.Description != "":
			return pe.Description
		case pe.Code != "":
			return pe.Code
		}
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, models.ErrorBody{Error: msg, Details: details})
}
