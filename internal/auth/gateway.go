package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/services"
	"github.com/desertthunder/soundcheck/internal/shared"
)

// Scopes requested on every authorization.
var Scopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"user-modify-playback-state",
	"user-read-playback-state",
	"playlist-modify-public",
	"playlist-modify-private",
	"user-library-read",
	"user-library-modify",
	"user-top-read",
	"user-read-recently-played",
}

// ScopeProbe maps a scope to an endpoint that is only reachable when the token carries it.
type ScopeProbe struct {
	Name     string
	Endpoint string
	Scope    string
}

// ScopeProbes are checked in order by [Gateway.CheckScopes].
var ScopeProbes = []ScopeProbe{
	{Name: "user profile", Endpoint: "/me", Scope: "user-read-private"},
	{Name: "top tracks", Endpoint: "/me/top/tracks?limit=1", Scope: "user-top-read"},
	{Name: "saved tracks", Endpoint: "/me/tracks?limit=1", Scope: "user-library-read"},
	{Name: "recently played", Endpoint: "/me/player/recently-played?limit=1", Scope: "user-read-recently-played"},
}

// IdentityLinker persists a linked identity against a local account.
type IdentityLinker interface {
	Link(identity models.LinkedIdentity) error
}

// CallbackResult is the outcome of a successful authorization-code exchange.
//
// LinkErr records why linking was skipped or failed; it never fails the callback.
type CallbackResult struct {
	Token        models.TokenRecord
	LinkedUserID string
	LinkErr      error
}

// RedirectURL appends the tokens (and the linked user id, when present) to the frontend root.
func (r *CallbackResult) RedirectURL(frontendURL string) (string, error) {
	u, err := url.Parse(frontendURL)
	if err != nil {
		return "", fmt.Errorf("%w: frontend url: %v", shared.ErrInvalidConfig, err)
	}

	q := u.Query()
	q.Set("access_token", r.Token.AccessToken)
	if r.Token.RefreshToken != "" {
		q.Set("refresh_token", r.Token.RefreshToken)
	}
	if r.LinkedUserID != "" {
		q.Set("userId", r.LinkedUserID)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Gateway performs the server side of the Spotify authorization-code flow.
type Gateway struct {
	config *oauth2.Config
	client *http.Client
	apiURL string
	secret []byte
	links  IdentityLinker
	logger *log.Logger
}

// NewGateway configures a gateway for the given credentials.
//
// secret signs the state parameter. links may be nil, in which case callbacks never link.
func NewGateway(creds shared.SpotifyConfig, secret string, links IdentityLinker, client *http.Client, logger *log.Logger) *Gateway {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	return &Gateway{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   creds.AuthURL,
				TokenURL:  creds.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		client: client,
		apiURL: creds.APIURL,
		secret: []byte(secret),
		links:  links,
		logger: shared.WithLogger(logger, "component", "gateway"),
	}
}

// AuthorizationURL returns the provider consent URL. A non-empty userID is carried in the
// signed state so the callback can link the resulting identity.
func (g *Gateway) AuthorizationURL(userID string) (string, error) {
	state, err := encodeState(g.secret, userID)
	if err != nil {
		return "", err
	}
	return g.config.AuthCodeURL(state), nil
}

// HandleCallback exchanges code for tokens and links the identity named by state, if any.
//
// Exchange failures are returned as [*shared.ProviderError] or [shared.ErrNetwork]. Linking
// problems are logged and reported through [CallbackResult.LinkErr].
func (g *Gateway) HandleCallback(ctx context.Context, code, state string) (*CallbackResult, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: authorization code", shared.ErrMissingArgument)
	}

	token, err := g.config.Exchange(g.withClient(ctx), code)
	if err != nil {
		g.logger.Error("code exchange failed", "error", err)
		return nil, providerError(err)
	}

	result := &CallbackResult{
		Token: models.TokenRecord{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken},
	}
	g.logger.Info("token received", "access_token", shared.MaskToken(token.AccessToken))

	if state == "" || g.links == nil {
		return result, nil
	}

	userID, err := decodeState(g.secret, state)
	switch {
	case err != nil:
		result.LinkErr = fmt.Errorf("%w: %w", shared.ErrLinkingFailure, err)
	case userID == "":
		return result, nil
	default:
		result.LinkErr = g.link(ctx, userID, result.Token)
	}

	if result.LinkErr != nil {
		g.logger.Warn("identity not linked", "user_id", userID, "error", result.LinkErr)
		return result, nil
	}

	result.LinkedUserID = userID
	g.logger.Info("identity linked", "user_id", userID)
	return result, nil
}

func (g *Gateway) link(ctx context.Context, userID string, token models.TokenRecord) error {
	if !token.HasRefresh() {
		return fmt.Errorf("%w: provider returned no refresh token", shared.ErrLinkingFailure)
	}

	profile, err := g.Spotify(token.AccessToken).UserProfile(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetch profile: %w", shared.ErrLinkingFailure, err)
	}

	identity := models.LinkedIdentity{
		LocalUserID:          userID,
		ExternalAccountID:    profile.ID,
		ExternalRefreshToken: token.RefreshToken,
		Connected:            true,
	}
	if err := g.links.Link(identity); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrLinkingFailure, err)
	}
	return nil
}

// Refresh exchanges refreshToken for a new access token. The returned record keeps
// refreshToken when the provider does not rotate it.
func (g *Gateway) Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	src := g.config.TokenSource(g.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := src.Token()
	if err != nil {
		g.logger.Warn("refresh failed", "error", err)
		return nil, providerError(err)
	}

	record := &models.TokenRecord{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken}
	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}
	g.logger.Debug("token refreshed", "rotated", record.RefreshToken != refreshToken)
	return record, nil
}

// Verify reports whether the provider accepts accessToken, echoing the profile when it does.
func (g *Gateway) Verify(ctx context.Context, accessToken string) models.VerifyResult {
	profile, err := g.Spotify(accessToken).UserProfile(ctx)
	if err != nil {
		result := models.VerifyResult{Valid: false, Error: err.Error()}

		var reqErr *shared.RequestError
		if errors.As(err, &reqErr) {
			result.Status = reqErr.Status
			if reqErr.Message != "" {
				result.Error = reqErr.Message
			}
		}
		return result
	}

	return models.VerifyResult{
		Valid: true,
		User: &models.ExternalUser{
			ID:          profile.ID,
			DisplayName: profile.DisplayName,
			Email:       profile.Email,
		},
	}
}

// CheckScopes probes each of [ScopeProbes] with accessToken. Any failure marks the scope absent.
func (g *Gateway) CheckScopes(ctx context.Context, accessToken string) models.ScopeReport {
	svc := g.Spotify(accessToken)
	report := models.ScopeReport{
		TokenStatus:  "Valid for checked endpoints",
		ScopeResults: make(map[string]bool, len(ScopeProbes)),
	}

	for _, probe := range ScopeProbes {
		status, err := svc.Probe(ctx, probe.Endpoint)
		report.ScopeResults[probe.Scope] = err == nil && status >= 200 && status < 300
	}
	return report
}

// Spotify returns a Web API client that presents accessToken without refreshing it.
func (g *Gateway) Spotify(accessToken string) *services.SpotifyService {
	return services.NewSpotifyService(services.NewBearerCaller(g.client, accessToken), g.apiURL)
}

func (g *Gateway) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.client)
}

// providerError maps an oauth2 exchange failure onto the shared error taxonomy.
func providerError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		// A 5xx says nothing about the grant; only 4xx answers reject it.
		if retrieveErr.Response != nil && retrieveErr.Response.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: token endpoint answered %d: %s", shared.ErrNetwork,
				retrieveErr.Response.StatusCode, strings.TrimSpace(string(retrieveErr.Body)))
		}
		pe := &shared.ProviderError{Code: retrieveErr.ErrorCode, Description: retrieveErr.ErrorDescription}
		if retrieveErr.Response != nil {
			pe.Status = retrieveErr.Response.StatusCode
		}
		if pe.Code == "" && pe.Description == "" {
			pe.Description = strings.TrimSpace(string(retrieveErr.Body))
		}
		return pe
	}

	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w: %v", shared.ErrNetwork, shared.ErrTimeout, err)
	case errors.As(err, &urlErr):
		return fmt.Errorf("%w: %v", shared.ErrNetwork, err)
	default:
		return fmt.Errorf("%w: %v", shared.ErrExternalAuth, err)
	}
}
