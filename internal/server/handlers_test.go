package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundcheck/internal/auth"
	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/repositories"
	"github.com/desertthunder/soundcheck/internal/shared"
	tu "github.com/desertthunder/soundcheck/internal/testing"
)

const frontendURL = "http://127.0.0.1:3000/"

type backendFixture struct {
	provider *tu.FakeProvider
	server   *httptest.Server
	client   *http.Client
}

func spotifyConfig(provider *tu.FakeProvider) shared.SpotifyConfig {
	return shared.SpotifyConfig{
		ClientID:     tu.ClientID,
		ClientSecret: tu.ClientSecret,
		RedirectURI:  "http://127.0.0.1:4000/callback",
		AuthURL:      provider.AuthURL(),
		TokenURL:     provider.TokenURL(),
		APIURL:       provider.APIURL(),
	}
}

func newBackendFixture(t *testing.T, creds func(*tu.FakeProvider) shared.SpotifyConfig) *backendFixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	logger := log.New(io.Discard)
	provider := tu.NewFakeProvider(t)
	if creds == nil {
		creds = spotifyConfig
	}

	repo := repositories.NewAccountRepository(db)
	gateway := auth.NewGateway(creds(provider), "server-secret", repo, nil, logger)
	accounts := auth.NewAccounts(repo, "server-secret", time.Hour)
	api := NewAPI(gateway, accounts, frontendURL, 2*time.Second, logger)

	srv := httptest.NewServer(NewBackendHandler(shared.ServerConfig{}, api, logger))
	t.Cleanup(srv.Close)

	return &backendFixture{
		provider: provider,
		server:   srv,
		client: &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}},
	}
}

func (f *backendFixture) do(t *testing.T, method, path string, body any, bearer string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("failed to decode %s: %v", data, err)
	}
	return v
}

func (f *backendFixture) register(t *testing.T, username string) models.AccountSession {
	t.Helper()
	resp, data := f.do(t, http.MethodPost, "/api/register", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "hunter22",
	}, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, data)
	}
	return decode[models.AccountSession](t, data)
}

func TestLoginEndpoint(t *testing.T) {
	f := newBackendFixture(t, nil)

	t.Run("Redirects To Provider", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/login", nil, "")
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}

		location, err := url.Parse(resp.Header.Get("Location"))
		if err != nil {
			t.Fatalf("invalid location: %v", err)
		}
		if !strings.HasPrefix(location.String(), f.provider.AuthURL()) {
			t.Errorf("expected provider authorize url, got %s", location)
		}

		q := location.Query()
		if q.Get("client_id") != tu.ClientID || q.Get("response_type") != "code" {
			t.Errorf("unexpected query %v", q)
		}
		if !strings.Contains(q.Get("scope"), "user-top-read") || !strings.Contains(q.Get("scope"), "streaming") {
			t.Errorf("expected full scope set, got %q", q.Get("scope"))
		}
		if q.Get("state") == "" {
			t.Error("expected state parameter")
		}
	})

	t.Run("Rejects Other Methods", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/login", nil, "")
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", resp.StatusCode)
		}
		if resp.Header.Get("Allow") != http.MethodGet {
			t.Errorf("expected Allow: GET, got %q", resp.Header.Get("Allow"))
		}
	})
}

func TestCallbackEndpoint(t *testing.T) {
	f := newBackendFixture(t, nil)

	t.Run("Missing Code", func(t *testing.T) {
		resp, data := f.do(t, http.MethodGet, "/callback?error=access_denied", nil, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if !strings.Contains(string(data), "Authorization code not found.") || !strings.Contains(string(data), "access_denied") {
			t.Errorf("unexpected body %q", data)
		}
	})

	t.Run("Invalid Code", func(t *testing.T) {
		resp, data := f.do(t, http.MethodGet, "/callback?code=bogus", nil, "")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", resp.StatusCode)
		}
		if !strings.Contains(string(data), "Invalid authorization code") {
			t.Errorf("expected provider description in body, got %q", data)
		}
	})

	t.Run("Redirects With Tokens", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/callback?code="+f.provider.IssueCode(), nil, "")
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}

		location, _ := url.Parse(resp.Header.Get("Location"))
		if !strings.HasPrefix(location.String(), frontendURL) {
			t.Errorf("expected frontend redirect, got %s", location)
		}
		q := location.Query()
		if q.Get("access_token") == "" || q.Get("refresh_token") == "" {
			t.Errorf("expected both tokens, got %v", q)
		}
		if q.Has("userId") {
			t.Errorf("expected no userId without linking, got %v", q)
		}
	})

	t.Run("Links Account", func(t *testing.T) {
		session := f.register(t, "linker")

		resp, data := f.do(t, http.MethodGet, "/api/spotify-auth", nil, session.Token)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
		}
		authURL, _ := url.Parse(decode[map[string]string](t, data)["authUrl"])
		state := authURL.Query().Get("state")

		q := url.Values{"code": {f.provider.IssueCode()}, "state": {state}}
		resp, _ = f.do(t, http.MethodGet, "/callback?"+q.Encode(), nil, "")
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}
		location, _ := url.Parse(resp.Header.Get("Location"))
		if location.Query().Get("userId") != session.User.ID {
			t.Errorf("expected userId %q, got %s", session.User.ID, location)
		}

		resp, data = f.do(t, http.MethodPost, "/api/login", map[string]string{"username": "linker", "password": "hunter22"}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
		}
		user := decode[models.AccountSession](t, data).User
		if !user.SpotifyConnected {
			t.Error("expected account to be connected")
		}
		if user.SpotifyRefreshToken != location.Query().Get("refresh_token") {
			t.Errorf("expected linked refresh token %q, got %q", location.Query().Get("refresh_token"), user.SpotifyRefreshToken)
		}
	})

	t.Run("Tampered State Still Redirects", func(t *testing.T) {
		q := url.Values{"code": {f.provider.IssueCode()}, "state": {"not-a-state"}}
		resp, _ := f.do(t, http.MethodGet, "/callback?"+q.Encode(), nil, "")
		if resp.StatusCode != http.StatusFound {
			t.Fatalf("expected 302, got %d", resp.StatusCode)
		}
		location, _ := url.Parse(resp.Header.Get("Location"))
		if location.Query().Has("userId") {
			t.Errorf("expected no userId, got %s", location)
		}
	})
}

func TestRefreshEndpoint(t *testing.T) {
	f := newBackendFixture(t, nil)

	t.Run("Missing Token", func(t *testing.T) {
		resp, data := f.do(t, http.MethodPost, "/refresh-token", map[string]string{}, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if body := decode[models.ErrorBody](t, data); body.Error != "Refresh token is required." {
			t.Errorf("unexpected error %q", body.Error)
		}
	})

	t.Run("Keeps Unrotated Refresh Token", func(t *testing.T) {
		_, refresh := f.provider.IssueTokens()

		resp, data := f.do(t, http.MethodPost, "/refresh-token", map[string]string{"refresh_token": refresh}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
		}
		record := decode[models.TokenRecord](t, data)
		if record.AccessToken == "" || record.RefreshToken != refresh {
			t.Errorf("unexpected record %+v", record)
		}
	})

	t.Run("Rejected", func(t *testing.T) {
		_, refresh := f.provider.IssueTokens()
		f.provider.RevokeRefresh(refresh)

		resp, data := f.do(t, http.MethodPost, "/refresh-token", map[string]string{"refresh_token": refresh}, "")
		if resp.StatusCode != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", resp.StatusCode)
		}
		body := decode[models.ErrorBody](t, data)
		if body.Error != "Failed to refresh token." || body.Details != "Refresh token revoked" {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("Provider Outage", func(t *testing.T) {
		outage := newBackendFixture(t, nil)
		_, refresh := outage.provider.IssueTokens()
		outage.provider.FailTokens(http.StatusServiceUnavailable)

		resp, data := outage.do(t, http.MethodPost, "/refresh-token", map[string]string{"refresh_token": refresh}, "")
		if resp.StatusCode != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d: %s", resp.StatusCode, data)
		}
	})

	t.Run("Provider Unreachable", func(t *testing.T) {
		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		offline := newBackendFixture(t, func(p *tu.FakeProvider) shared.SpotifyConfig {
			creds := spotifyConfig(p)
			creds.TokenURL = dead.URL + "/api/token"
			return creds
		})

		resp, _ := offline.do(t, http.MethodPost, "/refresh-token", map[string]string{"refresh_token": "r"}, "")
		if resp.StatusCode != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", resp.StatusCode)
		}
	})
}

func TestTokenDiagnostics(t *testing.T) {
	f := newBackendFixture(t, nil)

	t.Run("Verify Valid", func(t *testing.T) {
		access, _ := f.provider.IssueTokens()
		resp, data := f.do(t, http.MethodPost, "/verify-token", map[string]string{"access_token": access}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		result := decode[models.VerifyResult](t, data)
		if !result.Valid || result.User == nil || result.User.DisplayName != "Test Listener" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("Verify Expired", func(t *testing.T) {
		_, data := f.do(t, http.MethodPost, "/verify-token", map[string]string{"access_token": "stale"}, "")
		result := decode[models.VerifyResult](t, data)
		if result.Valid || result.Status != http.StatusUnauthorized || result.Error != "The access token expired" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("Verify Missing", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/verify-token", nil, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Check Scopes", func(t *testing.T) {
		access, _ := f.provider.IssueTokens()
		f.provider.Deny("/me/tracks")

		resp, data := f.do(t, http.MethodGet, "/check-token-scopes?token="+access, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		report := decode[models.ScopeReport](t, data)
		want := map[string]bool{
			"user-read-private":         true,
			"user-top-read":             true,
			"user-library-read":         false,
			"user-read-recently-played": true,
		}
		for scope, ok := range want {
			if report.ScopeResults[scope] != ok {
				t.Errorf("scope %s: expected %v, got %v", scope, ok, report.ScopeResults[scope])
			}
		}
	})

	t.Run("Check Scopes Missing Token", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodGet, "/check-token-scopes", nil, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Top Tracks", func(t *testing.T) {
		access, _ := f.provider.IssueTokens()
		resp, data := f.do(t, http.MethodGet, "/test-top-tracks?token="+access, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", resp.StatusCode, data)
		}

		type topTracksBody struct {
			Success   bool          `json:"success"`
			TimeRange string        `json:"time_range"`
			Tracks    []rankedTrack `json:"tracks"`
			RawCount  int           `json:"raw_count"`
		}
		body := decode[topTracksBody](t, data)
		if !body.Success || body.TimeRange != "medium_term" || body.RawCount != 2 {
			t.Errorf("unexpected body %+v", body)
		}
		if body.Tracks[1].Position != 2 || body.Tracks[1].Artists != "Duo, Guest" {
			t.Errorf("unexpected second track %+v", body.Tracks[1])
		}
	})

	t.Run("Top Tracks Expired", func(t *testing.T) {
		resp, data := f.do(t, http.MethodGet, "/test-top-tracks?token=stale", nil, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if body := decode[map[string]any](t, data); body["success"] != false {
			t.Errorf("unexpected body %v", body)
		}
	})
}

func TestAccountEndpoints(t *testing.T) {
	f := newBackendFixture(t, nil)
	session := f.register(t, "alice")

	t.Run("Register", func(t *testing.T) {
		if !session.Success || session.Token == "" || session.User.Username != "alice" {
			t.Errorf("unexpected session %+v", session)
		}
		if session.User.SpotifyConnected {
			t.Error("expected new account to be unlinked")
		}
	})

	t.Run("Duplicate", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/register", map[string]string{
			"username": "alice", "email": "other@example.com", "password": "hunter22",
		}, "")
		if resp.StatusCode != http.StatusConflict {
			t.Errorf("expected 409, got %d", resp.StatusCode)
		}
	})

	t.Run("Invalid Input", func(t *testing.T) {
		resp, data := f.do(t, http.MethodPost, "/api/register", map[string]string{
			"username": "bob", "email": "not-an-email", "password": "short",
		}, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		msg := decode[models.ErrorBody](t, data).Error
		if !strings.Contains(msg, "email") || !strings.Contains(msg, "password must be at least 6 characters") {
			t.Errorf("expected field messages, got %q", msg)
		}
	})

	t.Run("Malformed Body", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, f.server.URL+"/api/login", strings.NewReader("{"))
		resp, err := f.client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("Login", func(t *testing.T) {
		resp, data := f.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "hunter22"}, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if got := decode[models.AccountSession](t, data); got.User.ID != session.User.ID {
			t.Errorf("expected %q, got %q", session.User.ID, got.User.ID)
		}
	})

	t.Run("Wrong Password", func(t *testing.T) {
		resp, _ := f.do(t, http.MethodPost, "/api/login", map[string]string{"username": "alice", "password": "wrong-password"}, "")
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})

	t.Run("Me", func(t *testing.T) {
		resp, data := f.do(t, http.MethodGet, "/api/me", nil, session.Token)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if view := decode[models.AccountView](t, data); view.Username != "alice" {
			t.Errorf("unexpected view %+v", view)
		}
	})

	t.Run("Requires Session", func(t *testing.T) {
		for _, bearer := range []string{"", "garbage"} {
			resp, _ := f.do(t, http.MethodGet, "/api/spotify-auth", nil, bearer)
			if resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("bearer %q: expected 401, got %d", bearer, resp.StatusCode)
			}
		}
	})

	t.Run("Health", func(t *testing.T) {
		resp, data := f.do(t, http.MethodGet, "/health", nil, "")
		if resp.StatusCode != http.StatusOK || decode[map[string]string](t, data)["status"] != "ok" {
			t.Errorf("unexpected health response %d %s", resp.StatusCode, data)
		}
	})
}
