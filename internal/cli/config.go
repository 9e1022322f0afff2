package cli

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/nugo-cli/nugo/pkg/resolve"
)

// Config holds the nugo settings read from the optional config file at
// ~/.config/nugo/config.toml. Flags override file values; file values
// override the built-in defaults.
type Config struct {
	CacheDir    string         `toml:"cache_dir"`
	Target      string         `toml:"target"`
	Concurrency int            `toml:"concurrency"`
	Compiler    CompilerConfig `toml:"compiler"`
}

// CompilerConfig selects the external compiler and runtime host the run
// command shells out to.
type CompilerConfig struct {
	Command string   `toml:"command"` // compiler executable (default: csc)
	Args    []string `toml:"args"`    // extra compiler arguments
	Host    string   `toml:"host"`    // runtime host for the compiled program (default: dotnet)
}

// defaultConfig returns the built-in settings used when no config file
// overrides them.
func defaultConfig() Config {
	return Config{
		Target: resolve.DefaultTarget,
		Compiler: CompilerConfig{
			Command: "csc",
			Args:    []string{"-nologo", "-target:library"},
			Host:    "dotnet",
		},
	}
}

// loadConfig reads the config file at path, or the default location when
// path is empty. A missing file is not an error; the defaults apply.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return cfg, nil
		}
		path = filepath.Join(base, "nugo", "config.toml")
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	return cfg, nil
}

// defaultCacheDir is where extracted packages live unless overridden:
// ~/.cache/nugo/packages (following the OS cache convention).
func defaultCacheDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "nugo", "packages"), nil
}
