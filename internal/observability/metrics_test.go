package observability

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/aqltest/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(aqlRuns.WithLabelValues("0"))
	RecordAQLRun(0, 12*time.Millisecond)
	if got := testutil.ToFloat64(aqlRuns.WithLabelValues("0")); got != before+1 {
		t.Fatalf("expected aql runs to increase by one, got %v -> %v", before, got)
	}

	RecordContainerStart("aerospike/aerospike-server:latest", true)
	RecordReadyWait(2 * time.Second)
	RecordFixtureRecords("aql-tests", 100)
	RecordIndexOperation("create", true)
	if got := testutil.ToFloat64(fixtureRecords.WithLabelValues("aql-tests")); got < 100 {
		t.Fatalf("expected at least 100 fixture records, got %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	testlog.Start(t)
	RecordAQLRun(1, time.Millisecond)

	path := filepath.Join(t.TempDir(), "aqltest.prom")
	if err := WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `aqltest_aql_runs_total{exit_code="1"}`) {
		t.Fatalf("textfile missing aql runs counter:\n%s", data)
	}
}

func TestStepReturnsInnerError(t *testing.T) {
	testlog.Start(t)
	want := errors.New("boom")
	if err := Step(zerolog.Nop(), "populate", func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("expected inner error, got %v", err)
	}
	if err := Step(zerolog.Nop(), "populate", func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
