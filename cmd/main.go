package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/desertthunder/soundcheck/internal/shared"
	"github.com/urfave/cli/v3"
)

const defaultConfigPath = "config.toml"

func main() {
	logger := shared.NewLogger(nil)

	configPath := defaultConfigPath
	if v := os.Getenv("SOUNDCHECK_CONFIG"); v != "" {
		configPath = v
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loadedConfig, err := shared.LoadConfig(configPath); err == nil {
			config = loadedConfig
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
			config.ApplyEnv()
		}
	} else {
		config.ApplyEnv()
	}

	runner := NewRunner(RunnerOpts{
		Config:     config,
		ConfigPath: configPath,
		Logger:     logger,
	})

	app := &cli.Command{
		Name:     "soundcheck",
		Usage:    "Spotify listening insights with a managed token lifecycle",
		Version:  "0.1.0",
		Before:   runner.bootstrap,
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Error(err)
		if hint := errorHint(err); hint != "" {
			fmt.Fprintln(os.Stderr, hint)
		}
		os.Exit(1)
	}
}

// errorHint suggests a next step for failures the user can act on.
func errorHint(err error) string {
	switch {
	case errors.Is(err, shared.ErrSessionExpired):
		return "Your Spotify session has expired. Run 'soundcheck auth login' to sign in again."
	case errors.Is(err, shared.ErrNotAuthenticated):
		return "You are not signed in. Run 'soundcheck auth login' first."
	case errors.Is(err, shared.ErrNetwork):
		return "Could not reach the server. Check your connection and that 'soundcheck serve' is running."
	case errors.Is(err, shared.ErrTimeout):
		return "Authorization was not completed in time. Run the command again and finish signing in in the browser."
	case errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrInvalidConfig):
		return "Check config.toml or the SPOTIFY_CLIENT_ID, SPOTIFY_CLIENT_SECRET and SOUNDCHECK_SESSION_SECRET variables."
	case errors.Is(err, shared.ErrInvalidCredentials):
		return "The username or password is incorrect."
	default:
		return ""
	}
}
