package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/danmuck/aqltest/internal/aql"
	"github.com/danmuck/aqltest/internal/cluster"
	"github.com/danmuck/aqltest/internal/config"
	"github.com/danmuck/aqltest/internal/logging"
)

// StartT brings up a suite for t and registers its teardown. The test is
// skipped when the aql binary or the Docker daemon is unavailable.
func StartT(t testing.TB, opts Options) *Suite {
	t.Helper()
	logging.ConfigureTests()

	cfg, err := config.Resolve()
	if err != nil {
		t.Fatalf("harness config: %v", err)
	}

	runner, err := aql.Resolve(cfg.AQLBinary, cfg.Valgrind)
	if errors.Is(err, aql.ErrBinaryNotFound) {
		t.Skipf("skipping: %v (set %s)", err, config.EnvBinary)
	}
	if err != nil {
		t.Fatalf("aql binary: %v", err)
	}

	engine, err := cluster.NewDockerEngine()
	if err != nil {
		t.Skipf("skipping: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	if err := engine.Ping(context.Background()); err != nil {
		t.Skipf("skipping: docker unavailable: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	suite := New(cfg, engine, runner, nil)
	release := HandleInterrupt(StopOnInterrupt(cancel, suite))
	t.Cleanup(release)

	if err := suite.Start(ctx, opts); err != nil {
		t.Fatalf("start suite: %v", err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		if t.Failed() {
			logServerTail(ctx, t, suite.Server)
		}
		suite.Stop(ctx)
	})
	return suite
}

// failureLogLines is how much of the server log a failed test prints.
const failureLogLines = 50

// logServerTail attaches the end of the server log to a failed test.
func logServerTail(ctx context.Context, t testing.TB, server *cluster.Server) {
	tail, err := server.Logs(ctx, failureLogLines)
	if err != nil {
		t.Logf("server log unavailable: %v", err)
		return
	}
	t.Logf("server log tail:\n%s", tail)
}
