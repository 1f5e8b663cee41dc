package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/desertthunder/soundcheck/internal/formatter"
	"github.com/desertthunder/soundcheck/internal/services"
	"github.com/desertthunder/soundcheck/internal/shared"
	"golang.org/x/time/rate"
)

// Source is the part of the Spotify client a snapshot reads from.
type Source interface {
	TopTracks(ctx context.Context, timeRange string, limit int) ([]services.Track, error)
	RecentlyPlayed(ctx context.Context, limit int) ([]services.Track, error)
}

// Job names one listing of a snapshot and how to fetch it.
type Job struct {
	Name  string // File name without extension
	Title string
	Fetch func(ctx context.Context, src Source, limit int) ([]services.Track, error)
}

// DefaultJobs returns top tracks for each time range followed by recently played.
func DefaultJobs() []Job {
	jobs := make([]Job, 0, 4)
	for _, timeRange := range []string{services.ShortTerm, services.MediumTerm, services.LongTerm} {
		jobs = append(jobs, Job{
			Name:  "top_" + timeRange,
			Title: fmt.Sprintf("Top tracks (%s)", timeRange),
			Fetch: func(ctx context.Context, src Source, limit int) ([]services.Track, error) {
				return src.TopTracks(ctx, timeRange, limit)
			},
		})
	}
	return append(jobs, Job{
		Name:  "recently_played",
		Title: "Recently played",
		Fetch: func(ctx context.Context, src Source, limit int) ([]services.Track, error) {
			return src.RecentlyPlayed(ctx, limit)
		},
	})
}

// SnapshotOpts contains configuration for a snapshot export.
type SnapshotOpts struct {
	Format     string  // Listing format accepted by formatter.Format
	OutputDir  string  // Output directory (default: soundcheck_snapshot_{epoch})
	Limit      int     // Tracks per listing
	NumWorkers int     // Concurrent workers (default: 4, max: 8)
	RateLimit  float64 // Requests per second (default: 5)
	Jobs       []Job   // Listings to export (default: DefaultJobs)
}

// ListingResult reports one exported listing.
type ListingResult struct {
	Name    string `json:"name"`
	Title   string `json:"title"`
	File    string `json:"file,omitempty"`
	Tracks  int    `json:"tracks"`
	Success bool   `json:"success"`
	Message string `json:"error,omitempty"`
	Error   error  `json:"-"`
}

// SnapshotResult summarizes a snapshot export. Results follow the job order.
type SnapshotResult struct {
	OutputDirectory string          `json:"output_directory"`
	CreatedAt       time.Time       `json:"created_at"`
	Format          string          `json:"format"`
	Total           int             `json:"total"`
	Succeeded       int             `json:"succeeded"`
	Failed          int             `json:"failed"`
	Results         []ListingResult `json:"results"`
	ManifestPath    string          `json:"-"`
}

type snapshotJob struct {
	index int
	job   Job
}

// Snapshot exports every job's listing concurrently into opts.OutputDir and writes manifest.json there.
//
// A failed listing does not stop the others. When any listing failed because the session expired, the
// result is returned together with an error wrapping [shared.ErrSessionExpired] so the caller can
// authorize again and rerun.
func Snapshot(ctx context.Context, prog chan<- ProgressUpdate, src Source, opts SnapshotOpts) (*SnapshotResult, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source not initialized", shared.ErrMissingArgument)
	}

	ext, err := formatter.Extension(opts.Format)
	if err != nil {
		return nil, err
	}
	if opts.OutputDir == "" {
		opts.OutputDir = fmt.Sprintf("soundcheck_snapshot_%d", time.Now().Unix())
	}
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > 8 {
		opts.NumWorkers = 8
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5.0
	}
	if len(opts.Jobs) == 0 {
		opts.Jobs = DefaultJobs()
	}

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	total := len(opts.Jobs)
	result := &SnapshotResult{
		OutputDirectory: opts.OutputDir,
		CreatedAt:       time.Now().UTC(),
		Format:          opts.Format,
		Total:           total,
		Results:         make([]ListingResult, total),
	}

	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	jobs := make(chan snapshotJob, total)
	results := make(chan snapshotJob, total)
	listings := make([]ListingResult, total)

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				sendProgress(prog, fetchingListingUpdate(j.index+1, total, j.job.Title))
				listings[j.index] = exportListing(ctx, limiter, src, j.job, opts, ext)
				results <- j
			}
		}()
	}

	for i, job := range opts.Jobs {
		jobs <- snapshotJob{index: i, job: job}
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	for j := range results {
		completed++
		res := listings[j.index]
		result.Results[j.index] = res
		if res.Success {
			result.Succeeded++
			sendProgress(prog, listingWrittenUpdate(completed, total, res.Title, res.Tracks))
		} else {
			result.Failed++
			sendProgress(prog, listingFailedUpdate(completed, total, res.Title, res.Error))
		}
	}

	manifestPath := filepath.Join(opts.OutputDir, "manifest.json")
	data, err := shared.MarshalJSON(result, true)
	if err != nil {
		return result, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0644); err != nil {
		return result, fmt.Errorf("export completed but failed to write manifest: %w", err)
	}
	result.ManifestPath = manifestPath
	sendProgress(prog, manifestUpdate(manifestPath))

	for _, res := range result.Results {
		if errors.Is(res.Error, shared.ErrSessionExpired) {
			return result, fmt.Errorf("%s: %w", res.Title, res.Error)
		}
	}
	return result, nil
}

// exportListing fetches and writes a single listing.
func exportListing(ctx context.Context, limiter *rate.Limiter, src Source, job Job, opts SnapshotOpts, ext string) ListingResult {
	res := ListingResult{Name: job.Name, Title: job.Title}
	fail := func(err error) ListingResult {
		res.Error = err
		res.Message = err.Error()
		return res
	}

	if err := limiter.Wait(ctx); err != nil {
		return fail(err)
	}

	tracks, err := job.Fetch(ctx, src, opts.Limit)
	if err != nil {
		return fail(fmt.Errorf("failed to fetch listing: %w", err))
	}

	path := filepath.Join(opts.OutputDir, job.Name+ext)
	listing := formatter.Listing{Title: job.Title, Tracks: tracks}
	if err := formatter.Write(io.Discard, listing, opts.Format, path); err != nil {
		return fail(err)
	}

	res.File = path
	res.Tracks = len(tracks)
	res.Success = true
	return res
}
