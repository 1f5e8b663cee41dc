package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/shared"
	"github.com/urfave/cli/v3"
)

// AccountRegister creates a local account, stores its session and connects Spotify to it.
func (r *Runner) AccountRegister(ctx context.Context, cmd *cli.Command) error {
	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	acct, err := r.backend.Register(callCtx, cmd.String("username"), cmd.String("email"), cmd.String("password"))
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	if err := r.session.SetAccount(acct.Token, acct.User); err != nil {
		return fmt.Errorf("failed to store account session: %w", err)
	}
	r.logger.Info("registered local account", "user_id", acct.User.ID)
	r.writePlain("✓ Registered %s\n", acct.User.Username)

	if cmd.Bool("no-connect") {
		return nil
	}
	return r.connectSpotify(ctx, acct)
}

// AccountLogin signs in to a local account. A linked account reuses its stored refresh token;
// otherwise Spotify is connected through the browser.
func (r *Runner) AccountLogin(ctx context.Context, cmd *cli.Command) error {
	callCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	acct, err := r.backend.Login(callCtx, cmd.String("username"), cmd.String("password"))
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := r.session.SetAccount(acct.Token, acct.User); err != nil {
		return fmt.Errorf("failed to store account session: %w", err)
	}
	r.logger.Info("signed in", "user_id", acct.User.ID, "spotify_connected", acct.User.SpotifyConnected)
	r.writePlain("✓ Signed in as %s\n", acct.User.Username)

	if cmd.Bool("no-connect") {
		return nil
	}
	return r.connectSpotify(ctx, acct)
}

// AccountWhoami prints the signed in local account as the backend sees it.
func (r *Runner) AccountWhoami(ctx context.Context, cmd *cli.Command) error {
	authToken, _, err := r.session.Account()
	if err != nil {
		return err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	user, err := r.backend.Me(ctx, authToken)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return fmt.Errorf("%w: sign in again with 'soundcheck account login'", shared.ErrInvalidSession)
		}
		return err
	}

	if err := r.session.SetAccount(authToken, *user); err != nil {
		return err
	}

	r.writePlain("Username: %s\n", user.Username)
	r.writePlain("Email: %s\n", user.Email)
	r.writePlain("ID: %s\n", user.ID)
	if user.SpotifyConnected {
		return r.writePlain("Spotify: ✓ connected\n")
	}
	return r.writePlain("Spotify: ✗ not connected\n")
}

// connectSpotify restores provider tokens for acct from its linked refresh token, or runs the linking
// authorization when the account has none.
func (r *Runner) connectSpotify(ctx context.Context, acct *models.AccountSession) error {
	if acct.User.SpotifyConnected && acct.User.SpotifyRefreshToken != "" {
		callCtx, cancel := r.withTimeout(ctx)
		defer cancel()

		token, err := r.backend.Refresh(callCtx, acct.User.SpotifyRefreshToken)
		switch {
		case err == nil:
			if err := r.session.Authenticate(*token, acct.User.ID); err != nil {
				return err
			}
			return r.writePlain("✓ Spotify already connected\n")
		case errors.Is(err, shared.ErrExternalAuth):
			r.logger.Warn("linked refresh token was rejected, authorizing again", "error", err)
		default:
			return err
		}
	}

	linkCtx, cancel := r.withTimeout(ctx)
	authURL, err := r.backend.SpotifyAuthURL(linkCtx, acct.Token)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to start Spotify connection: %w", err)
	}

	if _, err := r.authorize(ctx, authURL, "connection"); err != nil {
		return err
	}
	r.writePlainln("✓ Spotify connected to %s", acct.User.Username)
	return nil
}
