// Package driver defines the compiler and entry-point surfaces the
// resolution core hands its results to, with exec-based implementations
// that shell out to an external toolchain.
//
// The core knows nothing about compilation: it produces a script path and
// a flat list of reference assembly paths, and the Compiler turns those
// into a loadable program. The Runner then invokes the program's entry
// point.
package driver

import (
	"context"
	"os"
	"os/exec"

	"github.com/nugo-cli/nugo/pkg/errors"
)

// Compiler compiles a script against a set of reference assemblies.
type Compiler interface {
	// Compile builds script into output, referencing the given assembly
	// paths. Diagnostics go to the process's stderr.
	Compile(ctx context.Context, script string, references []string, output string) error
}

// Runner invokes the auto-detected entry point of a compiled program.
type Runner interface {
	Run(ctx context.Context, program string, args []string) error
}

// ExecCompiler invokes an external compiler command. References are passed
// as -r: flags and the output as -out:, the convention understood by csc
// and compatible drivers.
type ExecCompiler struct {
	Command string   // compiler executable (e.g. "csc")
	Args    []string // extra arguments placed before the generated flags
}

// Compile runs the compiler command. A non-zero exit maps to
// COMPILE_FAILED with the underlying error preserved.
func (c *ExecCompiler) Compile(ctx context.Context, script string, references []string, output string) error {
	args := append([]string{}, c.Args...)
	args = append(args, "-out:"+output)
	for _, ref := range references {
		args = append(args, "-r:"+ref)
	}
	args = append(args, script)

	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrap(errors.ErrCodeCompileFailed, err, "compile %s", script)
	}
	return nil
}

// ExecRunner launches a compiled program under a host executable
// (e.g. "dotnet"), forwarding stdio and the remaining arguments.
type ExecRunner struct {
	Host string // host executable; empty runs the program directly
}

// Run executes the program. The program's exit status is returned as a
// RUN_FAILED error so callers can surface it.
func (r *ExecRunner) Run(ctx context.Context, program string, args []string) error {
	name := program
	argv := args
	if r.Host != "" {
		name = r.Host
		argv = append([]string{program}, args...)
	}

	cmd := exec.CommandContext(ctx, name, argv...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return errors.Wrap(errors.ErrCodeRunFailed, err, "run %s", program)
	}
	return nil
}
