// Client for the soundcheck backend endpoints
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/shared"
)

// DefaultBackendURL is where `soundcheck serve` listens unless configured otherwise.
const DefaultBackendURL = "http://127.0.0.1:4000"

// BackendService makes requests to the soundcheck backend on behalf of the CLI.
type BackendService struct {
	baseURL    string
	httpClient *http.Client
}

// NewBackendService creates a backend client. Empty baseURL and nil client fall back to defaults.
func NewBackendService(baseURL string, client *http.Client) *BackendService {
	if baseURL == "" {
		baseURL = DefaultBackendURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &BackendService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

// BaseURL returns the backend origin.
func (b *BackendService) BaseURL() string {
	return b.baseURL
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (b *BackendService) Post(ctx context.Context, path string, data []byte) (*Response, error) {
	if data == nil {
		data = []byte{}
	}
	return Send(ctx, b.httpClient, &Request{Method: http.MethodPost, URL: b.baseURL + path, Body: data}, "")
}

// LoginURL is the browser entry point for provider authorization. A non-empty userID requests linking.
func (b *BackendService) LoginURL(userID string) string {
	if userID == "" {
		return b.baseURL + "/login"
	}
	return b.baseURL + "/login?" + url.Values{"userId": {userID}}.Encode()
}

// Refresh exchanges refreshToken for a new token pair through the backend.
//
// Returns a [*shared.ProviderError] when the backend reports the provider refused the grant, and
// an error wrapping [shared.ErrNetwork] when the backend or the provider could not be reached.
// The returned record keeps refreshToken when the provider did not rotate it.
func (b *BackendService) Refresh(ctx context.Context, refreshToken string) (*models.TokenRecord, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}

	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, err
	}

	resp, err := b.Post(ctx, "/refresh-token", payload)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.OK():
	case resp.StatusCode == http.StatusBadGateway || resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: %s", shared.ErrNetwork, ErrorMessage(resp.Body))
	default:
		var body models.ErrorBody
		_ = resp.Decode(&body)
		return nil, &shared.ProviderError{Status: resp.StatusCode, Code: body.Error, Description: body.Details}
	}

	var record models.TokenRecord
	if err := resp.Decode(&record); err != nil {
		return nil, err
	}
	if record.AccessToken == "" {
		return nil, fmt.Errorf("%w: refresh response has no access token", shared.ErrExternalAuth)
	}
	if record.RefreshToken == "" {
		record.RefreshToken = refreshToken
	}
	return &record, nil
}

// VerifyToken asks the backend whether accessToken is accepted by the provider.
func (b *BackendService) VerifyToken(ctx context.Context, accessToken string) (*models.VerifyResult, error) {
	payload, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return nil, err
	}

	var result models.VerifyResult
	if err := b.do(ctx, http.MethodPost, "/verify-token", payload, "", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckScopes reports which scope-gated endpoints accept accessToken.
func (b *BackendService) CheckScopes(ctx context.Context, accessToken string) (*models.ScopeReport, error) {
	var report models.ScopeReport
	path := "/check-token-scopes?" + url.Values{"token": {accessToken}}.Encode()
	if err := b.do(ctx, http.MethodGet, path, nil, "", &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// SpotifyAuthURL requests a linking authorization URL for the account behind sessionToken.
func (b *BackendService) SpotifyAuthURL(ctx context.Context, sessionToken string) (string, error) {
	var body struct {
		AuthURL string `json:"authUrl"`
	}
	if err := b.do(ctx, http.MethodGet, "/api/spotify-auth", nil, sessionToken, &body); err != nil {
		return "", err
	}
	if body.AuthURL == "" {
		return "", fmt.Errorf("%w: empty authorization URL", shared.ErrRequestFailed)
	}
	return body.AuthURL, nil
}

// Me returns the account behind sessionToken.
func (b *BackendService) Me(ctx context.Context, sessionToken string) (*models.AccountView, error) {
	var view models.AccountView
	if err := b.do(ctx, http.MethodGet, "/api/me", nil, sessionToken, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Register creates a local account and returns its session.
func (b *BackendService) Register(ctx context.Context, username, email, password string) (*models.AccountSession, error) {
	return b.accountSession(ctx, "/api/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	})
}

// Login authenticates a local account and returns its session.
func (b *BackendService) Login(ctx context.Context, username, password string) (*models.AccountSession, error) {
	return b.accountSession(ctx, "/api/login", map[string]string{
		"username": username,
		"password": password,
	})
}

// Health checks that the backend is up.
func (b *BackendService) Health(ctx context.Context) error {
	return b.do(ctx, http.MethodGet, "/health", nil, "", nil)
}

func (b *BackendService) accountSession(ctx context.Context, path string, fields map[string]string) (*models.AccountSession, error) {
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}

	var session models.AccountSession
	if err := b.do(ctx, http.MethodPost, path, payload, "", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// do sends a backend request and maps well known statuses onto sentinel errors.
func (b *BackendService) do(ctx context.Context, method, path string, payload []byte, bearer string, result any) error {
	resp, err := Send(ctx, b.httpClient, &Request{Method: method, URL: b.baseURL + path, Body: payload}, bearer)
	if err != nil {
		return err
	}

	if resp.OK() {
		return resp.Decode(result)
	}

	reqErr := &shared.RequestError{Status: resp.StatusCode, Message: ErrorMessage(resp.Body)}
	switch resp.StatusCode {
	case http.StatusConflict:
		return fmt.Errorf("%w: %w", shared.ErrAccountExists, reqErr)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %w", shared.ErrInvalidCredentials, reqErr)
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %w", shared.ErrNetwork, reqErr)
	default:
		return reqErr
	}
}

// IsUnauthorized reports whether err carries a 401 or 403 response.
func IsUnauthorized(err error) bool {
	var reqErr *shared.RequestError
	if !errors.As(err, &reqErr) {
		return false
	}
	return reqErr.Status == http.StatusUnauthorized || reqErr.Status == http.StatusForbidden
}
