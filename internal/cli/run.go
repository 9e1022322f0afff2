package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nugo-cli/nugo/pkg/directive"
	"github.com/nugo-cli/nugo/pkg/driver"
	"github.com/nugo-cli/nugo/pkg/errors"
)

// newRunCmd creates the run command: resolve, compile, and execute a
// script. Arguments after the script (or after --) are passed to the
// program.
func newRunCmd() *cobra.Command {
	opts := &resolveOpts{}

	cmd := &cobra.Command{
		Use:   "run <script> [-- <args>...]",
		Short: "Resolve a script's packages, compile it, and run it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(cmd.Context(), opts, args[0], args[1:])
		},
	}
	opts.bindFlags(cmd)
	return cmd
}

func runScript(ctx context.Context, opts *resolveOpts, script string, extra []string) error {
	logger := loggerFromContext(ctx)

	src, err := os.ReadFile(script)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "read script %s", script)
	}

	r, cfg, err := opts.setup(ctx)
	if err != nil {
		return err
	}

	refs := directive.Parse(string(src))
	prog := newProgress(logger)
	paths, err := resolveRefs(ctx, r, refs, opts.progressUI)
	if err != nil {
		return err
	}
	paths = append(paths, localRefs(logger, script, directive.ParseLoads(string(src)))...)
	prog.done(fmt.Sprintf("Resolved %d assemblies", len(paths)))

	outDir, err := os.MkdirTemp("", "nugo-")
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "create build directory")
	}
	defer os.RemoveAll(outDir)

	name := strings.TrimSuffix(filepath.Base(script), filepath.Ext(script))
	output := filepath.Join(outDir, name+".dll")

	compiler := &driver.ExecCompiler{Command: cfg.Compiler.Command, Args: cfg.Compiler.Args}
	if err := compiler.Compile(ctx, script, paths, output); err != nil {
		return err
	}
	logger.Debugf("compiled %s", output)

	runner := &driver.ExecRunner{Host: cfg.Compiler.Host}
	return runner.Run(ctx, output, extra)
}
