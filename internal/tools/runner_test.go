package tools

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/aqltest/internal/testutil/testlog"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecRunnerCapturesStreamsSeparately(t *testing.T) {
	testlog.Start(t)
	requireShell(t)

	stdout, stderr, code, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if code != 0 {
		t.Fatalf("unexpected exit code: %d", code)
	}
	if strings.TrimSpace(string(stdout)) != "out" || strings.TrimSpace(string(stderr)) != "err" {
		t.Fatalf("unexpected output stdout=%q stderr=%q", stdout, stderr)
	}
}

func TestExecRunnerReportsExitCode(t *testing.T) {
	testlog.Start(t)
	requireShell(t)

	_, _, code, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "exit 3")
	if !IsExitError(err) {
		t.Fatalf("expected exit error, got %v", err)
	}
	if code != 3 {
		t.Fatalf("expected exit code 3, got %d", code)
	}
}

func TestExecRunnerMissingBinary(t *testing.T) {
	testlog.Start(t)
	_, _, code, err := ExecRunner{}.Run(context.Background(), "aqltest-definitely-missing-binary")
	if err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if IsExitError(err) {
		t.Fatalf("missing binary should not look like an exit error: %v", err)
	}
	if code != 127 {
		t.Fatalf("expected exit code 127, got %d", code)
	}
}

func TestExecRunnerEnvAndDir(t *testing.T) {
	testlog.Start(t)
	requireShell(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker"), []byte("here"), 0o644); err != nil {
		t.Fatalf("write marker: %v", err)
	}

	runner := ExecRunner{Dir: dir, Env: []string{"AQLTEST_PROBE=yes"}}
	stdout, _, _, err := runner.Run(context.Background(), "sh", "-c", "cat marker; echo; echo $AQLTEST_PROBE")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if string(stdout) != "here\nyes\n" {
		t.Fatalf("unexpected output: %q", stdout)
	}
}

func TestExitCodeFallbacks(t *testing.T) {
	testlog.Start(t)
	if ExitCode(nil) != 0 {
		t.Fatalf("nil error should map to 0")
	}
	if ExitCode(errors.New("boom")) != 1 {
		t.Fatalf("generic error should map to 1")
	}
	if ExitCode(&exec.Error{Name: "aql", Err: exec.ErrNotFound}) != 127 {
		t.Fatalf("exec error should map to 127")
	}
}
