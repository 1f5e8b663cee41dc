// submodule cmd contains command definitions
package main

import (
	"strings"

	"github.com/desertthunder/soundcheck/internal/formatter"
	"github.com/urfave/cli/v3"
)

func formatFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "Output format: " + strings.Join(formatter.Formats, ", "),
			Value:   formatter.Text,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write output to a file instead of stdout",
		},
	}
}

func limitFlag(value int) cli.Flag {
	return &cli.IntFlag{
		Name:    "limit",
		Aliases: []string{"n"},
		Usage:   "Maximum number of items to return (1-50)",
		Value:   value,
	}
}

// serveCommand runs the backend.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the backend that exchanges and refreshes Spotify tokens",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Interface to listen on (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

// setupCommand handles setup operations for configuration and the account database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:  "database",
				Usage: "Initialize the account database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   defaultConfigPath,
					},
				},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent database migration",
				Action: r.SetupRollback,
			},
		},
	}
}

// accountCommand handles local accounts.
func accountCommand(r *Runner) *cli.Command {
	credentials := []cli.Flag{
		&cli.StringFlag{
			Name:     "username",
			Aliases:  []string{"u"},
			Usage:    "Local account username",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "password",
			Usage:    "Local account password",
			Sources:  cli.EnvVars("SOUNDCHECK_PASSWORD"),
			Required: true,
		},
		&cli.BoolFlag{
			Name:  "no-connect",
			Usage: "Do not connect Spotify after signing in",
		},
	}

	return &cli.Command{
		Name:  "account",
		Usage: "Local account operations",
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Create a local account and connect Spotify to it",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     "email",
						Aliases:  []string{"e"},
						Usage:    "Email address",
						Required: true,
					},
				}, credentials...),
				Action: r.AccountRegister,
			},
			{
				Name:   "login",
				Usage:  "Sign in to a local account, connecting Spotify unless already linked",
				Flags:  credentials,
				Action: r.AccountLogin,
			},
			{
				Name:   "whoami",
				Usage:  "Show the signed in local account",
				Action: r.AccountWhoami,
			},
		},
	}
}

// authCommand handles the Spotify token lifecycle.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Spotify authorization",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Authorize Spotify in the browser",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "user-id",
						Usage: "Link the authorization to this local account (defaults to the signed in account)",
					},
				},
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "Discard stored tokens",
				Action: r.AuthLogout,
			},
			{
				Name:  "status",
				Usage: "Show the current authorization state",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthStatus,
			},
			{
				Name:  "verify",
				Usage: "Ask the backend whether the stored access token is accepted",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthVerify,
			},
			{
				Name:  "scopes",
				Usage: "Report which scopes the stored access token carries",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AuthScopes,
			},
		},
	}
}

// spotifyCommand handles proxied Spotify Web API calls
func spotifyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "spotify",
		Aliases: []string{"spot"},
		Usage:   "Spotify listening data",
		Commands: []*cli.Command{
			{
				Name:  "me",
				Usage: "Show the Spotify profile",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SpotifyMe,
			},
			{
				Name:  "top",
				Usage: "List top tracks",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:    "time-range",
						Aliases: []string{"t"},
						Usage:   "short_term, medium_term or long_term",
						Value:   "medium_term",
					},
					limitFlag(20),
				}, formatFlags()...),
				Action: r.SpotifyTop,
			},
			{
				Name:   "recent",
				Usage:  "List recently played tracks",
				Flags:  append([]cli.Flag{limitFlag(20)}, formatFlags()...),
				Action: r.SpotifyRecent,
			},
			{
				Name:  "search",
				Usage: "Search for tracks",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "query",
					},
				},
				Flags:  append([]cli.Flag{limitFlag(10)}, formatFlags()...),
				Action: r.SpotifySearch,
			},
			{
				Name:  "saved",
				Usage: "List tracks saved in your library",
				Flags: append([]cli.Flag{
					limitFlag(20),
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Number of saved tracks to skip",
					},
				}, formatFlags()...),
				Action: r.SpotifySaved,
			},
			{
				Name:  "track",
				Usage: "Show a track by Spotify ID",
				Arguments: []cli.Argument{
					&cli.StringArg{
						Name: "id",
					},
				},
				Flags:  formatFlags(),
				Action: r.SpotifyTrack,
			},
			{
				Name:  "export",
				Usage: "Write top tracks for every time range and recent plays to a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: " + strings.Join(formatter.Formats, ", "),
						Value:   formatter.JSON,
					},
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Output directory (default: soundcheck_snapshot_{epoch})",
					},
					limitFlag(50),
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent requests",
						Value: 4,
					},
				},
				Action: r.SpotifyExport,
			},
			{
				Name:  "playlists",
				Usage: "List playlists",
				Flags: []cli.Flag{
					limitFlag(50),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print output",
					},
				},
				Action: r.SpotifyPlaylists,
			},
		},
	}
}
