// Package tasks runs multi-request listening exports with real-time progress reporting.
//
// # Snapshot
//
// [Snapshot] fetches a set of listings (top tracks for every time range plus recently played, see
// [DefaultJobs]) through a worker pool, writes each one with the formatter package and records a
// manifest. Requests are paced with a rate limiter; failed listings are reported in the result
// without stopping the others.
//
// Every listing goes through the same [Source], normally the Spotify client behind the retrying
// proxy, so concurrent workers that hit an expired token share one refresh.
//
// # Progress Reporting
//
// Operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters and a message. Updates use select
// with default to prevent blocking.
package tasks
