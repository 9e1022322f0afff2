package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

// newCacheCmd creates the cache management command.
func newCacheCmd() *cobra.Command {
	var cacheDir string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package cache",
	}
	cmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "package cache directory (default: ~/.cache/nugo/packages)")

	cmd.AddCommand(cacheClearCommand(&cacheDir))
	cmd.AddCommand(cachePathCommand(&cacheDir))
	return cmd
}

// resolveCacheDir applies the flag > config > default precedence.
func resolveCacheDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}
	if cfg.CacheDir != "" {
		return cfg.CacheDir, nil
	}
	return defaultCacheDir()
}

// cacheClearCommand creates the "cache clear" subcommand.
func cacheClearCommand(cacheDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove all extracted packages from the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir(*cacheDir)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}

			entries, err := os.ReadDir(dir)
			if os.IsNotExist(err) {
				printInfo("Cache is empty")
				return nil
			}
			if err != nil {
				return err
			}

			count := 0
			for _, e := range entries {
				if !e.IsDir() {
					continue
				}
				// One subdirectory per package version underneath each id.
				versions, _ := os.ReadDir(filepath.Join(dir, e.Name()))
				count += len(versions)
				if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
					return err
				}
			}

			printSuccess("Cleared %d cached packages", count)
			printDetail("Directory: %s", dir)
			return nil
		},
	}
}

// cachePathCommand creates the "cache path" subcommand.
func cachePathCommand(cacheDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := resolveCacheDir(*cacheDir)
			if err != nil {
				return fmt.Errorf("get cache dir: %w", err)
			}
			fmt.Println(dir)
			return nil
		},
	}
}
