package aql

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danmuck/aqltest/internal/observability"
	"github.com/danmuck/aqltest/internal/tools"
	"github.com/rs/zerolog/log"
)

// ValgrindMarker is a file whose presence in the working directory enables valgrind.
const ValgrindMarker = "valgrind"

var valgrindArgs = []string{"--leak-check=full", "--error-exitcode=0", "-q"}

// Output is what one aql invocation produced. A non-zero exit is reported here, not as an error.
type Output struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

type Runner struct {
	binary   string
	valgrind bool
	exec     tools.CommandRunner
}

func NewRunner(binary string, valgrind bool, exec tools.CommandRunner) *Runner {
	if exec == nil {
		exec = tools.ExecRunner{}
	}
	return &Runner{binary: binary, valgrind: valgrind, exec: exec}
}

// ValgrindRequested reports whether the marker file exists in dir.
func ValgrindRequested(dir string) bool {
	return isFile(filepath.Join(dir, ValgrindMarker))
}

func (r *Runner) Binary() string {
	return r.binary
}

// Command returns the program and argv that Run executes.
func (r *Runner) Command(args ...string) (string, []string) {
	if !r.valgrind {
		return r.binary, args
	}
	argv := make([]string, 0, len(valgrindArgs)+1+len(args))
	argv = append(argv, valgrindArgs...)
	argv = append(argv, r.binary)
	argv = append(argv, args...)
	return "valgrind", argv
}

// Run executes aql. Only a failure to launch the process is returned as an error.
func (r *Runner) Run(ctx context.Context, args ...string) (Output, error) {
	name, argv := r.Command(args...)
	start := time.Now()
	stdout, stderr, code, err := r.exec.Run(ctx, name, argv...)
	out := Output{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: code,
		Duration: time.Since(start),
	}
	if err != nil && !tools.IsExitError(err) {
		return out, fmt.Errorf("run %s: %w", name, err)
	}
	observability.RecordAQLRun(code, out.Duration)
	log.Debug().Strs("args", args).Int("exit", code).Dur("took", out.Duration).Msg("aql.Runner.Run")
	return out, nil
}

// RunArgs is Run with structured arguments.
func (r *Runner) RunArgs(ctx context.Context, a Args) (Output, error) {
	return r.Run(ctx, a.Strings()...)
}

// Resolve finds the binary relative to the working directory and builds a Runner.
func Resolve(override string, valgrind bool) (*Runner, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	binary, err := FindBinary(wd, override)
	if err != nil {
		return nil, err
	}
	return NewRunner(binary, valgrind || ValgrindRequested(wd), nil), nil
}
