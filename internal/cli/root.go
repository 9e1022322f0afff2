package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nugo-cli/nugo/pkg/buildinfo"
	"github.com/nugo-cli/nugo/pkg/nuget"
	"github.com/nugo-cli/nugo/pkg/pkgcache"
	"github.com/nugo-cli/nugo/pkg/resolve"
)

// configPath is the --config persistent flag value.
var configPath string

// Execute runs the nugo CLI and returns an error if any command fails.
// This is the main entry point for the CLI application.
//
// Logging:
//   - Default: info level (logs to stderr)
//   - With --verbose (-v): debug level
//
// The logger is attached to the context and accessible to all commands via
// loggerFromContext.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "nugo",
		Short:        "nugo runs single-file scripts with inline NuGet directives",
		Long: `nugo compiles and runs a single source file as a standalone program,
resolving NuGet packages declared inline as comment directives:

    // #nuget: Newtonsoft.Json@13.0.3
    // #package: Humanizer

Packages are fetched from nuget.org (transitively), extracted into a local
cache, and the best-matching assemblies for the target framework are passed
to the compiler.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(os.Stderr, level)))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ~/.config/nugo/config.toml)")

	root.AddCommand(newRunCmd())
	root.AddCommand(newResolveCmd())
	root.AddCommand(newDirectivesCmd())
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}

// resolveOpts holds the flags shared by the run and resolve commands.
type resolveOpts struct {
	cacheDir    string // package cache directory
	target      string // target framework moniker
	concurrency int    // max concurrent downloads
	progressUI  bool   // live progress view
}

func (o *resolveOpts) bindFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.cacheDir, "cache-dir", "", "package cache directory (default: ~/.cache/nugo/packages)")
	cmd.Flags().StringVarP(&o.target, "target", "t", "", "target framework moniker (default: net8.0)")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "max concurrent downloads (default: CPU count)")
	cmd.Flags().BoolVar(&o.progressUI, "progress", false, "show live resolution progress")
}

// setup merges flags over the config file and builds the resolver stack:
// registry client, package store, resolver.
func (o *resolveOpts) setup(ctx context.Context) (*resolve.Resolver, Config, error) {
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, cfg, err
	}
	if o.cacheDir != "" {
		cfg.CacheDir = o.cacheDir
	}
	if o.target != "" {
		cfg.Target = o.target
	}
	if o.concurrency > 0 {
		cfg.Concurrency = o.concurrency
	}
	if cfg.CacheDir == "" {
		if cfg.CacheDir, err = defaultCacheDir(); err != nil {
			return nil, cfg, err
		}
	}

	warnf := func(format string, args ...any) { logger.Warnf(format, args...) }
	store, err := pkgcache.NewStore(cfg.CacheDir, warnf)
	if err != nil {
		return nil, cfg, err
	}

	r := resolve.NewResolver(nuget.NewClient(), store, resolve.Options{
		Target:      cfg.Target,
		Concurrency: cfg.Concurrency,
		Logger:      warnf,
	})
	return r, cfg, nil
}
