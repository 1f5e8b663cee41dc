package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/soundcheck/internal/formatter"
	"github.com/desertthunder/soundcheck/internal/services"
	"github.com/desertthunder/soundcheck/internal/shared"
	"github.com/desertthunder/soundcheck/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SpotifyMe prints the Spotify profile behind the stored token.
func (r *Runner) SpotifyMe(ctx context.Context, cmd *cli.Command) error {
	var user *services.SpotifyUser
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		var err error
		user, err = r.spotify.UserProfile(ctx)
		return err
	}); err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(user, true)
	}

	r.writePlain("%s (%s)\n", user.DisplayName, user.ID)
	if user.Email != "" {
		r.writePlain("Email: %s\n", user.Email)
	}
	if user.Country != "" {
		r.writePlain("Country: %s\n", user.Country)
	}
	if user.Product != "" {
		r.writePlain("Plan: %s\n", user.Product)
	}
	r.writePlain("Followers: %d\n", user.Followers.Total)
	return nil
}

// SpotifyTop lists the user's top tracks for a time range.
func (r *Runner) SpotifyTop(ctx context.Context, cmd *cli.Command) error {
	timeRange := cmd.String("time-range")
	limit := cmd.Int("limit")

	r.logger.Debug("listing top tracks", "time_range", timeRange, "limit", limit)

	var tracks []services.Track
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		var err error
		tracks, err = r.spotify.TopTracks(ctx, timeRange, limit)
		return err
	}); err != nil {
		return err
	}

	return r.writeListing(cmd, fmt.Sprintf("Top tracks (%s)", timeRange), tracks)
}

// SpotifyRecent lists the user's recently played tracks.
func (r *Runner) SpotifyRecent(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")

	var tracks []services.Track
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		var err error
		tracks, err = r.spotify.RecentlyPlayed(ctx, limit)
		return err
	}); err != nil {
		return err
	}

	return r.writeListing(cmd, "Recently played", tracks)
}

// SpotifySearch searches the catalog for tracks.
func (r *Runner) SpotifySearch(ctx context.Context, cmd *cli.Command) error {
	query := cmd.StringArg("query")
	if query == "" {
		return fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	limit := cmd.Int("limit")

	var tracks []services.Track
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		var err error
		tracks, err = r.spotify.SearchTracks(ctx, query, limit)
		return err
	}); err != nil {
		return err
	}

	return r.writeListing(cmd, fmt.Sprintf("Search results for %q", query), tracks)
}

// SpotifySaved lists tracks saved in the user's library.
func (r *Runner) SpotifySaved(ctx context.Context, cmd *cli.Command) error {
	var saved *services.SpotifyPaginatedTracks
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		var err error
		saved, err = r.spotify.SavedTracks(ctx, cmd.Int("limit"), cmd.Int("offset"))
		return err
	}); err != nil {
		return err
	}

	tracks := make([]services.Track, 0, len(saved.Items))
	for _, item := range saved.Items {
		tracks = append(tracks, services.ToTrack(item.Track))
	}
	return r.writeListing(cmd, fmt.Sprintf("Saved tracks (%d total)", saved.Total), tracks)
}

// SpotifyTrack shows a single track by Spotify ID.
func (r *Runner) SpotifyTrack(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: track ID", shared.ErrMissingArgument)
	}

	var track *services.SpotifyTrack
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		var err error
		track, err = r.spotify.Track(ctx, id)
		return err
	}); err != nil {
		return err
	}

	return r.writeListing(cmd, "Track "+id, []services.Track{services.ToTrack(*track)})
}

// SpotifyPlaylists lists Spotify playlists with optional limit.
func (r *Runner) SpotifyPlaylists(ctx context.Context, cmd *cli.Command) error {
	limit := cmd.Int("limit")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	r.logger.Infof("listing spotify playlists with limit %v", limit)

	var playlists []services.Playlist
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		var err error
		playlists, err = r.spotify.GetPlaylists(ctx)
		return err
	}); err != nil {
		return err
	}

	if limit > 0 && limit < len(playlists) {
		playlists = playlists[:limit]
	}

	if useJSON {
		if playlists == nil {
			playlists = []services.Playlist{}
		}
		return r.writeJSON(playlists, pretty)
	}

	r.writePlain("Found %d playlists:\n\n", len(playlists))
	for i, p := range playlists {
		r.writePlain("%d. %s\n", i+1, p.Name)
		if p.Description != "" {
			r.writePlain("   Description: %s\n", p.Description)
		}
		r.writePlain("   ID: %s\n", p.ID)
		r.writePlain("   Tracks: %d\n", p.TrackCount)
		if p.Public {
			r.writePlain("   Visibility: Public\n")
		} else {
			r.writePlain("   Visibility: Private\n")
		}
		r.writePlain("\n")
	}

	return nil
}

// SpotifyExport writes a listening snapshot with one file per listing and a manifest.
func (r *Runner) SpotifyExport(ctx context.Context, cmd *cli.Command) error {
	opts := tasks.SnapshotOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("dir"),
		Limit:      cmd.Int("limit"),
		NumWorkers: cmd.Int("workers"),
	}

	var result *tasks.SnapshotResult
	if err := r.withReauth(ctx, func(ctx context.Context) error {
		prog := make(chan tasks.ProgressUpdate, 16)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for update := range prog {
				r.writePlain("%s\n", update.Message)
			}
		}()

		var err error
		result, err = tasks.Snapshot(ctx, prog, r.spotify, opts)
		close(prog)
		<-done
		return err
	}); err != nil {
		return err
	}

	r.logger.Info("snapshot written", "dir", result.OutputDirectory, "succeeded", result.Succeeded, "failed", result.Failed)
	r.writePlainln("✓ Exported %d of %d listings to %s", result.Succeeded, result.Total, result.OutputDirectory)
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d listings failed, see %s", shared.ErrRequestFailed, result.Failed, result.ManifestPath)
	}
	return nil
}

func (r *Runner) writeListing(cmd *cli.Command, title string, tracks []services.Track) error {
	path := cmd.String("output")
	if err := formatter.Write(r.output, formatter.Listing{Title: title, Tracks: tracks}, cmd.String("format"), path); err != nil {
		return err
	}
	if path != "" {
		r.logger.Info("listing written", "path", path, "tracks", len(tracks))
		return r.writePlain("✓ %d tracks written to %s\n", len(tracks), path)
	}
	return nil
}

// withReauth runs op and, when the session expired during it, authorizes again in the browser and
// retries op once.
func (r *Runner) withReauth(ctx context.Context, op func(context.Context) error) error {
	err := op(ctx)
	if !errors.Is(err, shared.ErrSessionExpired) {
		return err
	}

	r.writePlainln("⚠ Spotify session expired. Starting reauthorization...\n")
	if _, authErr := r.authorize(ctx, r.backend.LoginURL(r.accountID()), "reauthorization"); authErr != nil {
		return fmt.Errorf("reauthorization failed: %w (after %w)", authErr, err)
	}

	r.writePlainln("✓ Successfully reauthenticated. Retrying operation...\n")
	return op(ctx)
}
