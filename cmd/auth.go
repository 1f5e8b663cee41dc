package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/desertthunder/soundcheck/internal/server"
	"github.com/desertthunder/soundcheck/internal/session"
	"github.com/desertthunder/soundcheck/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin authorizes Spotify in the browser, linking to the signed in local account when there is one.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.String("user-id")
	if userID == "" {
		userID = r.accountID()
	}

	result, err := r.authorize(ctx, r.backend.LoginURL(userID), "authorization")
	if err != nil {
		return err
	}

	r.writePlainln("✓ Authorization successful")
	if result.State.UserID != "" {
		r.writePlain("✓ Linked to local account %s\n", result.State.UserID)
	}
	r.writePlain("\nYou can now use: soundcheck spotify top\n")
	return nil
}

// AuthLogout discards the stored provider tokens and local session.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := r.session.Logout(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	r.logger.Info("session cleared")
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus prints the stored auth state and whether the backend answers its health check.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	state := r.session.State()
	authToken, user, err := r.session.Account()
	if err != nil && !errors.Is(err, shared.ErrNotAuthenticated) {
		return err
	}

	backend := "reachable"
	healthCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if err := r.backend.Health(healthCtx); err != nil {
		r.logger.Debug("backend health check failed", "error", err)
		backend = "unreachable"
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{
			"phase":        state.Phase.String(),
			"access_token": shared.MaskToken(state.AccessToken),
			"user_id":      state.UserID,
			"account":      user,
			"signed_in":    authToken != "",
			"backend":      backend,
		}, true)
	}

	r.writePlainHeader("Authorization status")
	r.writePlain("State: %s\n", state.Phase)
	r.writePlain("Backend: %s (%s)\n", r.backend.BaseURL(), backend)
	if state.AccessToken != "" {
		r.writePlain("Access token: %s\n", shared.MaskToken(state.AccessToken))
	}
	if user != nil {
		connected := "✗ Spotify not connected"
		if user.SpotifyConnected {
			connected = "✓ Spotify connected"
		}
		r.writePlain("Account: %s (%s)\n%s\n", user.Username, user.ID, connected)
	} else if authToken == "" {
		r.writePlain("Account: not signed in\n")
	}
	return nil
}

// AuthVerify asks the backend whether the stored access token is still accepted.
func (r *Runner) AuthVerify(ctx context.Context, cmd *cli.Command) error {
	token, err := r.session.Tokens()
	if err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result, err := r.backend.VerifyToken(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(result, true)
	}

	if !result.Valid {
		return r.writePlain("✗ Token rejected (%d): %s\n", result.Status, result.Error)
	}
	r.writePlain("✓ Token valid\n")
	if result.User != nil {
		r.writePlain("User: %s (%s)\n", result.User.DisplayName, result.User.ID)
		if result.User.Email != "" {
			r.writePlain("Email: %s\n", result.User.Email)
		}
	}
	return nil
}

// AuthScopes reports which scope-gated endpoints accept the stored access token.
func (r *Runner) AuthScopes(ctx context.Context, cmd *cli.Command) error {
	token, err := r.session.Tokens()
	if err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	report, err := r.backend.CheckScopes(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	r.writePlain("Token status: %s\n\n", report.TokenStatus)
	scopes := make([]string, 0, len(report.ScopeResults))
	for scope := range report.ScopeResults {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)
	for _, scope := range scopes {
		mark := "✗"
		if report.ScopeResults[scope] {
			mark = "✓"
		}
		r.writePlain("%s %s\n", mark, scope)
	}
	return nil
}

// authorize sends the browser to authURL and waits on the frontend address for the backend's final redirect.
//
// The redirect carries the new tokens; the catcher stores them through the session before the page
// strips them from the address bar.
func (r *Runner) authorize(ctx context.Context, authURL, prefix string) (*session.BootstrapResult, error) {
	addr, err := r.config.Server.FrontendAddr()
	if err != nil {
		return nil, err
	}

	catcher, err := server.NewCatcher(r.session, r.config.Server.FrontendURL)
	if err != nil {
		return nil, err
	}
	router := server.NewBasicRouter()
	router.Handler(catcher)

	srv := server.New(addr, router, shared.WithLogger(r.logger, "component", "catcher"))
	if err := srv.Start(); err != nil {
		return nil, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	r.writePlain("→ Opening browser for Spotify %s...\n", prefix)
	if err := r.openBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	wait := r.config.Client.WaitTimeout()
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", wait)

	timeout := time.NewTimer(wait)
	defer timeout.Stop()

	var result server.CatchResult
	select {
	case result = <-catcher.Result():
	case err, ok := <-srv.Errors():
		if !ok {
			err = errors.New("listener closed")
		}
		return nil, fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return nil, fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, wait)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := result.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrExternalAuth, err)
	}
	return result.Bootstrap, nil
}

// accountID returns the signed in local account, or "" when there is none.
func (r *Runner) accountID() string {
	_, user, err := r.session.Account()
	if err != nil || user == nil {
		return r.session.State().UserID
	}
	return user.ID
}
