package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/soundcheck/internal/auth"
	"github.com/desertthunder/soundcheck/internal/repositories"
	"github.com/desertthunder/soundcheck/internal/server"
	"github.com/desertthunder/soundcheck/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the backend until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	cfg := r.config.Server
	if host := cmd.String("host"); host != "" {
		cfg.Host = host
	}
	if port := cmd.Int("port"); port > 0 {
		cfg.Port = port
	}

	if err := r.config.Validate(); err != nil {
		return err
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := shared.WithLogger(r.logger, "component", "backend")
	accounts := repositories.NewAccountRepository(db)
	gateway := auth.NewGateway(r.config.Credentials.Spotify, cfg.SessionSecret, accounts, r.httpClient, logger)
	api := server.NewAPI(
		gateway,
		auth.NewAccounts(accounts, cfg.SessionSecret, cfg.TTL()),
		cfg.FrontendURL,
		cfg.Timeout(),
		logger,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("starting backend", "addr", cfg.Addr(), "frontend", cfg.FrontendURL)
	return server.NewBackend(cfg, api, logger).Run(ctx)
}
