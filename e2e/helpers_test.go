//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/aqltest/internal/aql"
	"github.com/danmuck/aqltest/internal/harness"
	"github.com/stretchr/testify/require"
)

const queryTimeout = time.Minute

func query(t *testing.T, s *harness.Suite, command string) aql.Output {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	out, err := s.Query(ctx, command)
	require.NoError(t, err)
	t.Logf("stdout:\n%s", out.Stdout)
	return out
}

func queryJSON(t *testing.T, s *harness.Suite, command string) aql.JSONOutput {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	out, doc, err := s.QueryJSON(ctx, command)
	require.NoError(t, err, "stdout:\n%s\nstderr:\n%s", out.Stdout, out.Stderr)
	require.Equal(t, 0, out.ExitCode)
	return doc
}

// requireRows asserts a zero exit and the exact "N rows in set" count.
func requireRows(t *testing.T, out aql.Output, want int) {
	t.Helper()
	require.Equal(t, 0, out.ExitCode, "stderr:\n%s", out.Stderr)
	got, err := aql.RowCount(out.Stdout)
	require.NoError(t, err, "stdout:\n%s", out.Stdout)
	require.Equal(t, want, got)
}

func from(s *harness.Suite) string {
	return fmt.Sprintf("%s.%s", s.Config.Namespace, s.Config.SetName)
}
