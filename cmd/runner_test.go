package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/desertthunder/soundcheck/internal/auth"
	"github.com/desertthunder/soundcheck/internal/repositories"
	"github.com/desertthunder/soundcheck/internal/server"
	"github.com/desertthunder/soundcheck/internal/session"
	"github.com/desertthunder/soundcheck/internal/shared"
	tu "github.com/desertthunder/soundcheck/internal/testing"
	"github.com/urfave/cli/v3"
)

// cliFixture wires a real backend against the fake provider, and a scripted browser that
// consents to every authorization it is sent to.
type cliFixture struct {
	provider *tu.FakeProvider
	config   *shared.Config
	store    *session.MemoryStore
	output   *bytes.Buffer
	browsed  []string
	// deny makes the browser open nothing, as if the user never finished signing in.
	deny bool
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().String()
}

func newCLIFixture(t *testing.T) *cliFixture {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	provider := tu.NewFakeProvider(t)
	backend := httptest.NewUnstartedServer(nil)
	backendURL := "http://" + backend.Listener.Addr().String()

	config := shared.DefaultConfig()
	config.Credentials.Spotify = shared.SpotifyConfig{
		ClientID:     tu.ClientID,
		ClientSecret: tu.ClientSecret,
		RedirectURI:  backendURL + "/callback",
		AuthURL:      provider.AuthURL(),
		TokenURL:     provider.TokenURL(),
		APIURL:       provider.APIURL(),
	}
	config.Server.FrontendURL = "http://" + freeAddr(t) + "/"
	config.Server.SessionSecret = "cli-test-session-secret"
	config.Server.RateLimit = 0
	config.Client.BackendURL = backendURL
	config.Client.RequestTimeout = "2s"
	config.Client.AuthTimeout = "3s"

	logger := shared.NewLogger(io.Discard)
	repo := repositories.NewAccountRepository(db)
	api := server.NewAPI(
		auth.NewGateway(config.Credentials.Spotify, config.Server.SessionSecret, repo, nil, logger),
		auth.NewAccounts(repo, config.Server.SessionSecret, config.Server.TTL()),
		config.Server.FrontendURL,
		config.Server.Timeout(),
		logger,
	)
	backend.Config.Handler = server.NewBackendHandler(config.Server, api, logger)
	backend.Start()
	t.Cleanup(backend.Close)

	return &cliFixture{
		provider: provider,
		config:   config,
		store:    session.NewMemoryStore(),
		output:   &bytes.Buffer{},
	}
}

// run executes one CLI invocation with a fresh Runner over the shared token store.
func (f *cliFixture) run(t *testing.T, args ...string) error {
	t.Helper()
	f.output.Reset()

	runner := NewRunner(RunnerOpts{
		Config:      f.config,
		Logger:      shared.NewLogger(io.Discard),
		Output:      f.output,
		Store:       f.store,
		OpenBrowser: f.browse,
	})
	app := &cli.Command{
		Name:     "soundcheck",
		Writer:   io.Discard,
		Before:   runner.bootstrap,
		Commands: runner.register(),
	}
	return app.Run(context.Background(), append([]string{"soundcheck"}, args...))
}

// browse follows authURL the way a browser would: backend login redirect, provider consent,
// backend callback, and finally the frontend page served by the catcher.
func (f *cliFixture) browse(authURL string) error {
	f.browsed = append(f.browsed, authURL)
	if f.deny {
		return nil
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	redirect := func(target string) (string, error) {
		resp, err := client.Get(target)
		if err != nil {
			return "", err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusFound {
			return "", fmt.Errorf("GET %s: status %d", target, resp.StatusCode)
		}
		return resp.Header.Get("Location"), nil
	}

	if strings.HasPrefix(authURL, f.config.Client.BackendURL) {
		next, err := redirect(authURL)
		if err != nil {
			return err
		}
		authURL = next
	}

	consent, err := url.Parse(authURL)
	if err != nil {
		return err
	}
	callback := consent.Query().Get("redirect_uri") + "?" + url.Values{
		"code":  {f.provider.IssueCode()},
		"state": {consent.Query().Get("state")},
	}.Encode()

	frontend, err := redirect(callback)
	if err != nil {
		return err
	}

	resp, err := client.Get(frontend)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (f *cliFixture) credentials(t *testing.T) session.Credentials {
	t.Helper()
	creds, err := f.store.Load()
	if err != nil {
		t.Fatalf("failed to load credentials: %v", err)
	}
	return creds
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			store := session.NewMemoryStore()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				ConfigPath: "/test/path/config.toml",
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Store:      store,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.session.Store() != store {
				t.Error("expected store to back the session")
			}
			if runner.backend.BaseURL() != config.Client.BackendURL {
				t.Errorf("expected backend at %s, got %s", config.Client.BackendURL, runner.backend.BaseURL())
			}
			if runner.spotify == nil || runner.proxy == nil {
				t.Error("expected spotify client behind the proxy")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Store: session.NewMemoryStore()})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Store: session.NewMemoryStore()})

			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Store: session.NewMemoryStore()})

			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Store: session.NewMemoryStore()})

			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with nil store uses the token file", func(t *testing.T) {
			config := shared.DefaultConfig()
			config.Client.TokenFile = "/tmp/soundcheck-test/tokens.json"
			runner := NewRunner(RunnerOpts{Config: config})

			fs, ok := runner.session.Store().(*session.FileStore)
			if !ok {
				t.Fatalf("expected *session.FileStore, got %T", runner.session.Store())
			}
			if fs.Path() != "/tmp/soundcheck-test/tokens.json" {
				t.Errorf("unexpected token path %s", fs.Path())
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output, Store: session.NewMemoryStore()})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output, Store: session.NewMemoryStore()})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "{\"key\":\"value\"}\n" {
				t.Errorf("expected compact JSON, got %q", output.String())
			}
		})

		t.Run("returns error on write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}, Store: session.NewMemoryStore()})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err == nil {
				t.Error("expected write error")
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Store: session.NewMemoryStore()})

		runner.writePlain("Hello %s\n", "World")
		runner.writePlainln("Next")
		runner.writePlainHeader("Title")

		result := output.String()
		if !strings.HasPrefix(result, "Hello World\n\nNext\n") {
			t.Errorf("unexpected output %q", result)
		}
		if !strings.Contains(result, "═\nTitle\n═") {
			t.Errorf("expected header, got %q", result)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("Login Stores Redirect Tokens", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run(t, "auth", "login"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Authorization successful") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		if len(f.browsed) != 1 || !strings.HasPrefix(f.browsed[0], f.config.Client.BackendURL+"/login") {
			t.Errorf("expected the backend login page to be opened, got %v", f.browsed)
		}

		creds := f.credentials(t)
		if creds.AccessToken == "" || creds.RefreshToken == "" {
			t.Errorf("expected both tokens stored, got %+v", creds)
		}
		if f.provider.ExchangeCalls() != 1 {
			t.Errorf("expected one code exchange, got %d", f.provider.ExchangeCalls())
		}
	})

	t.Run("Login Times Out", func(t *testing.T) {
		f := newCLIFixture(t)
		f.deny = true
		f.config.Client.AuthTimeout = "100ms"

		err := f.run(t, "auth", "login")
		if !errors.Is(err, shared.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
		if f.credentials(t).AccessToken != "" {
			t.Error("expected nothing stored")
		}
	})

	t.Run("Status", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run(t, "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "State: unauthenticated") || !strings.Contains(f.output.String(), "(reachable)") {
			t.Errorf("unexpected output %q", f.output.String())
		}

		if err := f.run(t, "auth", "login"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		if err := f.run(t, "auth", "status", "--json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), `"phase": "authenticated"`) {
			t.Errorf("expected restored session, got %q", f.output.String())
		}
		if strings.Contains(f.output.String(), f.credentials(t).AccessToken) {
			t.Error("expected access token to be masked")
		}
	})

	t.Run("Logout", func(t *testing.T) {
		f := newCLIFixture(t)
		if err := f.run(t, "auth", "login"); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		if err := f.run(t, "auth", "logout"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if creds := f.credentials(t); creds != (session.Credentials{}) {
			t.Errorf("expected empty credentials, got %+v", creds)
		}
	})

	t.Run("Verify And Scopes", func(t *testing.T) {
		f := newCLIFixture(t)

		if err := f.run(t, "auth", "verify"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated before login, got %v", err)
		}

		if err := f.run(t, "auth", "login"); err != nil {
			t.Fatalf("login failed: %v", err)
		}

		if err := f.run(t, "auth", "verify"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "✓ Token valid") || !strings.Contains(f.output.String(), "Test Listener") {
			t.Errorf("unexpected verify output %q", f.output.String())
		}

		if err := f.run(t, "auth", "scopes"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Token status:") || !strings.Contains(f.output.String(), "✓ user-top-read") {
			t.Errorf("unexpected scopes output %q", f.output.String())
		}
	})
}

func TestSpotifyCommands(t *testing.T) {
	loggedIn := func(t *testing.T) *cliFixture {
		t.Helper()
		f := newCLIFixture(t)
		if err := f.run(t, "auth", "login"); err != nil {
			t.Fatalf("login failed: %v", err)
		}
		return f
	}

	t.Run("Requires Login", func(t *testing.T) {
		f := newCLIFixture(t)
		if err := f.run(t, "spotify", "top"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Me", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "me"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Test Listener (spotify-user)") {
			t.Errorf("unexpected output %q", f.output.String())
		}
	})

	t.Run("Top As CSV", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "top", "--time-range", "short_term", "--format", "csv"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		output := f.output.String()
		if !strings.HasPrefix(output, "Rank,ID,Title,Artist,Album,Duration,Popularity,Played At\n") {
			t.Errorf("expected CSV header, got %q", output)
		}
		if !strings.Contains(output, "1,track-1,First Song,The Openers,Debut,215,71,") {
			t.Errorf("expected first track row, got %q", output)
		}
	})

	t.Run("Top Rejects Unknown Range", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "top", "--time-range", "forever"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("Recent As JSON", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "recent", "--format", "json"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), `"played_at": "2024-05-01T10:00:00Z"`) {
			t.Errorf("unexpected output %q", f.output.String())
		}
	})

	t.Run("Search", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "search", "first song"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), `Search results for "first song"`) {
			t.Errorf("unexpected output %q", f.output.String())
		}

		if err := f.run(t, "spotify", "search"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("Saved", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "saved", "--format", "markdown"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		output := f.output.String()
		if !strings.Contains(output, "# Saved tracks (1 total)") || !strings.Contains(output, "The Openers - First Song") {
			t.Errorf("unexpected output %q", output)
		}
	})

	t.Run("Track", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "track", "track-1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "1. The Openers - First Song") {
			t.Errorf("unexpected output %q", f.output.String())
		}

		if err := f.run(t, "spotify", "track"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}

		var reqErr *shared.RequestError
		if err := f.run(t, "spotify", "track", "missing"); !errors.As(err, &reqErr) || reqErr.Status != http.StatusNotFound {
			t.Errorf("expected 404 RequestError, got %v", err)
		}
	})

	t.Run("Playlists", func(t *testing.T) {
		f := loggedIn(t)
		if err := f.run(t, "spotify", "playlists", "--limit", "1"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		output := f.output.String()
		if !strings.Contains(output, "Found 1 playlists") || !strings.Contains(output, "Visibility: Public") {
			t.Errorf("unexpected output %q", output)
		}
	})

	t.Run("Refreshes Expired Token Silently", func(t *testing.T) {
		f := loggedIn(t)
		f.provider.ExpireAccess(f.credentials(t).AccessToken)

		if err := f.run(t, "spotify", "me"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if f.provider.RefreshCalls() != 1 {
			t.Errorf("expected one refresh, got %d", f.provider.RefreshCalls())
		}
		if len(f.browsed) != 1 {
			t.Errorf("expected no reauthorization, got %v", f.browsed)
		}
	})

	t.Run("Reauthorizes When Session Expires", func(t *testing.T) {
		f := loggedIn(t)
		creds := f.credentials(t)
		f.provider.ExpireAccess(creds.AccessToken)
		f.provider.RevokeRefresh(creds.RefreshToken)

		if err := f.run(t, "spotify", "top"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(f.browsed) != 2 {
			t.Errorf("expected a second authorization, got %v", f.browsed)
		}
		if !strings.Contains(f.output.String(), "Retrying operation") || !strings.Contains(f.output.String(), "First Song") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		if f.credentials(t).AccessToken == creds.AccessToken {
			t.Error("expected new access token stored")
		}
	})

	t.Run("Export Snapshot", func(t *testing.T) {
		f := loggedIn(t)
		f.provider.ExpireAccess(f.credentials(t).AccessToken)
		dir := t.TempDir() + "/snapshot"

		if err := f.run(t, "spotify", "export", "--dir", dir, "--format", "csv", "--workers", "4"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Exported 4 of 4 listings") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		if f.provider.RefreshCalls() != 1 {
			t.Errorf("expected concurrent workers to share one refresh, got %d", f.provider.RefreshCalls())
		}
		for _, name := range []string{"top_short_term.csv", "top_long_term.csv", "recently_played.csv", "manifest.json"} {
			tu.AssertFileExists(t, dir+"/"+name)
		}
	})

	t.Run("Writes Listing To File", func(t *testing.T) {
		f := loggedIn(t)
		path := t.TempDir() + "/top.md"

		if err := f.run(t, "spotify", "top", "--format", "markdown", "--output", path); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "2 tracks written to") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		if !strings.Contains(tu.MustReadFile(t, path), "# Top tracks (medium_term)") {
			t.Error("expected markdown file")
		}
	})
}

func TestAccountCommands(t *testing.T) {
	t.Run("Register Links Spotify", func(t *testing.T) {
		f := newCLIFixture(t)

		err := f.run(t, "account", "register", "-u", "listener", "-e", "listener@example.com", "--password", "hunter22")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Spotify connected to listener") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		if len(f.browsed) != 1 || strings.HasPrefix(f.browsed[0], f.config.Client.BackendURL) {
			t.Errorf("expected the provider consent page to be opened directly, got %v", f.browsed)
		}

		creds := f.credentials(t)
		if creds.AuthToken == "" || creds.AccessToken == "" || creds.UserData == nil {
			t.Fatalf("expected account and provider tokens, got %+v", creds)
		}
		if !creds.UserData.SpotifyConnected {
			t.Errorf("expected the stored account to be marked connected, got %+v", creds.UserData)
		}

		if err := f.run(t, "auth", "status"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "✓ Spotify connected") {
			t.Errorf("expected the link to survive a new command, got %q", f.output.String())
		}

		if err := f.run(t, "account", "whoami"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Spotify: ✓ connected") {
			t.Errorf("expected linked account, got %q", f.output.String())
		}
	})

	t.Run("Login Reuses Linked Token", func(t *testing.T) {
		f := newCLIFixture(t)
		if err := f.run(t, "account", "register", "-u", "listener", "-e", "listener@example.com", "--password", "hunter22"); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if err := f.run(t, "auth", "logout"); err != nil {
			t.Fatalf("logout failed: %v", err)
		}

		if err := f.run(t, "account", "login", "-u", "listener", "--password", "hunter22"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Spotify already connected") {
			t.Errorf("unexpected output %q", f.output.String())
		}
		if len(f.browsed) != 1 {
			t.Errorf("expected no new authorization, got %v", f.browsed)
		}
		if f.credentials(t).AccessToken == "" {
			t.Error("expected access token restored from the linked refresh token")
		}
	})

	t.Run("Login Without Connecting", func(t *testing.T) {
		f := newCLIFixture(t)
		if err := f.run(t, "account", "register", "-u", "listener", "-e", "listener@example.com", "--password", "hunter22", "--no-connect"); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if len(f.browsed) != 0 || f.credentials(t).AccessToken != "" {
			t.Error("expected no authorization")
		}
	})

	t.Run("Bad Credentials", func(t *testing.T) {
		f := newCLIFixture(t)
		err := f.run(t, "account", "login", "-u", "nobody", "--password", "whatever")
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			t.Errorf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("Duplicate Registration", func(t *testing.T) {
		f := newCLIFixture(t)
		args := []string{"account", "register", "-u", "listener", "-e", "listener@example.com", "--password", "hunter22", "--no-connect"}
		if err := f.run(t, args...); err != nil {
			t.Fatalf("register failed: %v", err)
		}
		if err := f.run(t, args...); !errors.Is(err, shared.ErrAccountExists) {
			t.Errorf("expected ErrAccountExists, got %v", err)
		}
	})
}

func TestErrorHint(t *testing.T) {
	tests := map[string]struct {
		err  error
		want string
	}{
		"Session Expired": {fmt.Errorf("call: %w", shared.ErrSessionExpired), "auth login"},
		"Network":         {fmt.Errorf("%w: dial tcp", shared.ErrNetwork), "Check your connection"},
		"Not Signed In":   {shared.ErrNotAuthenticated, "not signed in"},
		"Timeout":         {shared.ErrTimeout, "not completed in time"},
		"Config":          {shared.ErrMissingCredentials, "config.toml"},
		"Other":           {errors.New("boom"), ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := errorHint(tt.err)
			if tt.want == "" && got != "" {
				t.Errorf("expected no hint, got %q", got)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("expected hint containing %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSetupCommands(t *testing.T) {
	f := newCLIFixture(t)
	dir := t.TempDir()
	f.config.Database.Path = dir + "/accounts.db"

	configPath := dir + "/config.toml"
	if err := os.WriteFile(configPath, []byte("# existing\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Run("Database", func(t *testing.T) {
		if err := f.run(t, "setup", "database", "--config", configPath); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		tu.AssertFileExists(t, f.config.Database.Path)
		if tu.MustReadFile(t, configPath) != "# existing\n" {
			t.Error("expected existing config to be left alone")
		}
	})

	t.Run("Rollback", func(t *testing.T) {
		if err := f.run(t, "setup", "rollback"); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(f.output.String(), "Rolled back") {
			t.Errorf("unexpected output %q", f.output.String())
		}
	})
}
