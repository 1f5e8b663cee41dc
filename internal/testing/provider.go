package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

const (
	// ClientID and ClientSecret are the only credentials the fake token endpoint accepts.
	ClientID     = "test-client"
	ClientSecret = "test-secret"
)

// FakeProvider is an in-process stand-in for the Spotify accounts service and Web API.
//
// Authorization codes are single use. Access and refresh tokens are opaque counters issued by the
// fake and can be revoked individually to drive the refresh paths.
type FakeProvider struct {
	Server *httptest.Server

	// Rotate makes refresh responses carry a new refresh token and invalidates the old one.
	Rotate bool

	mu            sync.Mutex
	seq           int
	codes         map[string]bool
	access        map[string]bool
	refresh       map[string]bool
	denied        map[string]bool
	forced        map[string]int
	tokenStatus   int
	exchangeCalls int
	refreshCalls  int
	apiCalls      int
	onRefresh     func()
}

// NewFakeProvider starts a fake provider that is closed when the test ends.
func NewFakeProvider(t *testing.T) *FakeProvider {
	t.Helper()

	p := &FakeProvider{
		codes:   map[string]bool{},
		access:  map[string]bool{},
		refresh: map[string]bool{},
		denied:  map[string]bool{},
		forced:  map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/token", p.handleToken)
	mux.HandleFunc("/v1/", p.handleAPI)
	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)
	return p
}

func (p *FakeProvider) AuthURL() string  { return p.Server.URL + "/authorize" }
func (p *FakeProvider) TokenURL() string { return p.Server.URL + "/api/token" }
func (p *FakeProvider) APIURL() string   { return p.Server.URL + "/v1" }

// IssueCode registers a fresh single-use authorization code.
func (p *FakeProvider) IssueCode() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	code := p.next("code")
	p.codes[code] = true
	return code
}

// IssueTokens registers a fresh access/refresh pair without going through the token endpoint.
func (p *FakeProvider) IssueTokens() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	access, refresh := p.next("access"), p.next("refresh")
	p.access[access] = true
	p.refresh[refresh] = true
	return access, refresh
}

// ExpireAccess makes the provider answer 401 for token.
func (p *FakeProvider) ExpireAccess(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.access, token)
}

// RevokeRefresh makes refresh attempts with token fail with invalid_grant.
func (p *FakeProvider) RevokeRefresh(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.refresh, token)
}

// Deny answers 403 for the API path (relative to /v1) regardless of token.
func (p *FakeProvider) Deny(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.denied[path] = true
}

// Force answers status for the API path (relative to /v1) after token validation.
func (p *FakeProvider) Force(path string, status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forced[path] = status
}

// FailTokens makes the token endpoint answer status with a plain text body, as a provider outage would.
// Zero restores normal grants.
func (p *FakeProvider) FailTokens(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = status
}

// OnRefresh runs fn inside every refresh grant before it is answered.
func (p *FakeProvider) OnRefresh(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRefresh = fn
}

func (p *FakeProvider) ExchangeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeCalls
}

func (p *FakeProvider) RefreshCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshCalls
}

func (p *FakeProvider) APICalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.apiCalls
}

func (p *FakeProvider) next(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s-%d", prefix, p.seq)
}

func (p *FakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p.mu.Lock()
	failure := p.tokenStatus
	if failure != 0 && r.FormValue("grant_type") == "refresh_token" {
		p.refreshCalls++
	}
	p.mu.Unlock()
	if failure != 0 {
		http.Error(w, "upstream down", failure)
		return
	}

	if err := r.ParseForm(); err != nil {
		oauthError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		oauthError(w, http.StatusUnauthorized, "invalid_client", "Invalid client")
		return
	}

	switch grant := r.PostForm.Get("grant_type"); grant {
	case "authorization_code":
		p.exchange(w, r.PostForm.Get("code"))
	case "refresh_token":
		p.refreshGrant(w, r.PostForm.Get("refresh_token"))
	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", grant)
	}
}

func (p *FakeProvider) exchange(w http.ResponseWriter, code string) {
	p.mu.Lock()
	p.exchangeCalls++
	if !p.codes[code] {
		p.mu.Unlock()
		oauthError(w, http.StatusBadRequest, "invalid_grant", "Invalid authorization code")
		return
	}
	delete(p.codes, code)
	access, refresh := p.next("access"), p.next("refresh")
	p.access[access] = true
	p.refresh[refresh] = true
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    3600,
		"refresh_token": refresh,
		"scope":         "user-read-email user-read-private",
	})
}

func (p *FakeProvider) refreshGrant(w http.ResponseWriter, refresh string) {
	p.mu.Lock()
	p.refreshCalls++
	hook := p.onRefresh
	p.mu.Unlock()

	if hook != nil {
		hook()
	}

	p.mu.Lock()
	if !p.refresh[refresh] {
		p.mu.Unlock()
		oauthError(w, http.StatusBadRequest, "invalid_grant", "Refresh token revoked")
		return
	}
	access := p.next("access")
	p.access[access] = true
	body := map[string]any{
		"access_token": access,
		"token_type":   "Bearer",
		"expires_in":   3600,
	}
	if p.Rotate {
		rotated := p.next("refresh")
		delete(p.refresh, refresh)
		p.refresh[rotated] = true
		body["refresh_token"] = rotated
	}
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, body)
}

func (p *FakeProvider) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1")
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	p.mu.Lock()
	p.apiCalls++
	valid := p.access[token]
	denied := p.denied[path]
	forced := p.forced[path]
	p.mu.Unlock()

	switch {
	case !valid:
		apiError(w, http.StatusUnauthorized, "The access token expired")
		return
	case denied:
		apiError(w, http.StatusForbidden, "Insufficient client scope")
		return
	case forced != 0:
		apiError(w, forced, http.StatusText(forced))
		return
	}

	switch path {
	case "/me":
		writeJSON(w, http.StatusOK, map[string]any{
			"id":           "spotify-user",
			"display_name": "Test Listener",
			"email":        "listener@example.com",
			"country":      "US",
			"product":      "premium",
		})
	case "/me/top/tracks", "/me/top/artists":
		writeJSON(w, http.StatusOK, map[string]any{
			"items": fixtureTracks(),
			"total": 2, "limit": 20, "offset": 0, "next": nil,
		})
	case "/me/player/recently-played":
		items := []map[string]any{}
		for i, track := range fixtureTracks() {
			items = append(items, map[string]any{
				"played_at": fmt.Sprintf("2024-05-0%dT10:00:00Z", i+1),
				"track":     track,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "limit": 20, "next": nil})
	case "/search":
		writeJSON(w, http.StatusOK, map[string]any{
			"tracks": map[string]any{"items": fixtureTracks()[:1], "total": 1},
		})
	case "/me/playlists":
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{
				{"id": "pl-1", "name": "Morning", "description": "wake up", "public": true, "tracks": map[string]any{"total": 12}},
				{"id": "pl-2", "name": "Focus", "public": false, "tracks": map[string]any{"total": 30}},
			},
			"total": 2, "limit": 50, "offset": 0, "next": nil,
		})
	case "/me/tracks":
		writeJSON(w, http.StatusOK, map[string]any{
			"items": []map[string]any{{"added_at": "2024-01-01T00:00:00Z", "track": fixtureTracks()[0]}},
			"total": 1, "limit": 20, "offset": 0, "next": nil,
		})
	case "/tracks/track-1":
		writeJSON(w, http.StatusOK, fixtureTracks()[0])
	case "/me/player", "/me/following":
		w.WriteHeader(http.StatusNoContent)
	default:
		apiError(w, http.StatusNotFound, "Service not found")
	}
}

func fixtureTracks() []map[string]any {
	return []map[string]any{
		{
			"id":          "track-1",
			"name":        "First Song",
			"artists":     []map[string]any{{"id": "artist-1", "name": "The Openers"}},
			"album":       map[string]any{"id": "album-1", "name": "Debut"},
			"duration_ms": 215000,
			"popularity":  71,
			"uri":         "spotify:track:track-1",
		},
		{
			"id":          "track-2",
			"name":        "Second Song",
			"artists":     []map[string]any{{"id": "artist-2", "name": "Duo"}, {"id": "artist-3", "name": "Guest"}},
			"album":       map[string]any{"id": "album-2", "name": "Follow Up"},
			"duration_ms": 187000,
			"popularity":  55,
			"uri":         "spotify:track:track-2",
		},
	}
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": description})
}

func apiError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
