package resolve

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/semaphore"
)

// DefaultTarget is the framework assemblies are resolved for when the
// caller doesn't specify one.
const DefaultTarget = "net8.0"

// Registry is the package registry surface the resolver depends on:
// version binding for refs declared without a version, and archive
// downloads for the package store.
type Registry interface {
	// LatestVersion resolves the most recent published version of id.
	LatestVersion(ctx context.Context, id string) (string, error)
	// DownloadArchive fetches the package archive bytes.
	DownloadArchive(ctx context.Context, id, version string) ([]byte, error)
}

// Options configures a resolution run.
type Options struct {
	Target      string               // Framework to resolve for (default: net8.0)
	Concurrency int                  // Download/extract slots (default: NumCPU, shared process-wide)
	Logger      func(string, ...any) // Progress/error callback (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.Target == "" {
		opts.Target = DefaultTarget
	}
	if opts.Logger == nil {
		opts.Logger = func(string, ...any) {}
	}
	return opts
}

// gate returns the download semaphore for these options: the process-wide
// CPU-count gate unless a custom concurrency was requested.
func (o Options) gate() *semaphore.Weighted {
	if o.Concurrency > 0 {
		return semaphore.NewWeighted(int64(o.Concurrency))
	}
	return defaultGate
}

// defaultGate caps concurrent download+extract+select work across every
// resolver in the process.
var defaultGate = semaphore.NewWeighted(int64(runtime.NumCPU()))

// Coord is the canonical package identity. IDs and versions compare
// case-insensitively; Key is the dedup key used across the system.
type Coord struct {
	ID      string
	Version string
}

// Key returns the canonical lowercase "id@version" form.
func (c Coord) Key() string {
	return strings.ToLower(c.ID) + "@" + strings.ToLower(c.Version)
}

func (c Coord) String() string { return c.ID + "@" + c.Version }
