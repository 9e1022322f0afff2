package cli

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nugo-cli/nugo/pkg/directive"
	"github.com/nugo-cli/nugo/pkg/errors"
	"github.com/nugo-cli/nugo/pkg/observability"
	"github.com/nugo-cli/nugo/pkg/resolve"
)

// newResolveCmd creates the resolve command: resolve a script's package
// directives and print the selected assembly paths without compiling.
func newResolveCmd() *cobra.Command {
	opts := &resolveOpts{}

	cmd := &cobra.Command{
		Use:   "resolve <script>",
		Short: "Resolve package directives and print assembly paths",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolveScript(cmd.Context(), opts, args[0])
		},
	}
	opts.bindFlags(cmd)
	return cmd
}

func resolveScript(ctx context.Context, opts *resolveOpts, script string) error {
	logger := loggerFromContext(ctx)

	src, err := os.ReadFile(script)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "read script %s", script)
	}

	refs := directive.Parse(string(src))
	loads := directive.ParseLoads(string(src))
	if len(refs) == 0 && len(loads) == 0 {
		printInfo("No package directives found in %s", script)
		return nil
	}

	r, _, err := opts.setup(ctx)
	if err != nil {
		return err
	}

	stats := &statsHooks{}
	prev := observability.Resolver()
	observability.SetResolverHooks(stats)
	defer observability.SetResolverHooks(prev)

	prog := newProgress(logger)
	paths, err := resolveRefs(ctx, r, refs, opts.progressUI)
	if err != nil {
		return err
	}
	paths = append(paths, localRefs(logger, script, loads)...)
	prog.done("Resolution finished")

	for _, p := range paths {
		printFile(p)
	}
	packages, cached := stats.snapshot()
	printStats(packages, len(paths), cached)
	return nil
}

// resolveRefs runs the resolver, optionally behind the live progress view.
func resolveRefs(ctx context.Context, r *resolve.Resolver, refs []directive.Ref, progressUI bool) ([]string, error) {
	if progressUI {
		return resolveWithProgress(ctx, r, refs)
	}
	return r.Resolve(ctx, refs)
}

// localRefs expands #load directives relative to the script's directory.
// Missing files are skipped with a warning.
func localRefs(logger *log.Logger, script string, loads []string) []string {
	base := filepath.Dir(script)
	var paths []string
	for _, l := range loads {
		p := l
		if !filepath.IsAbs(p) {
			p = filepath.Join(base, p)
		}
		abs, err := filepath.Abs(p)
		if err == nil {
			p = abs
		}
		if _, err := os.Stat(p); err != nil {
			logger.Warnf("local reference not found: %s", l)
			continue
		}
		paths = append(paths, p)
	}
	return paths
}

// statsHooks counts resolved packages and whether every one was served
// from the cache.
type statsHooks struct {
	observability.NoopResolverHooks

	mu       sync.Mutex
	packages int
	fetched  bool
}

func (h *statsHooks) OnPackageComplete(_ context.Context, _, _ string, _ int, cached bool, _ time.Duration, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		return
	}
	h.packages++
	if !cached {
		h.fetched = true
	}
}

func (h *statsHooks) snapshot() (packages int, allCached bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.packages, !h.fetched
}
