package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	// Registry holds harness metrics only, so textfile exports stay small.
	Registry = prometheus.NewRegistry()

	aqlRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqltest",
			Subsystem: "aql",
			Name:      "runs_total",
			Help:      "Total aql invocations.",
		},
		[]string{"exit_code"},
	)
	aqlDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aqltest",
			Subsystem: "aql",
			Name:      "run_duration_seconds",
			Help:      "aql invocation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)
	containerStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqltest",
			Subsystem: "container",
			Name:      "starts_total",
			Help:      "Server container start attempts.",
		},
		[]string{"image", "success"},
	)
	readyWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "aqltest",
			Subsystem: "container",
			Name:      "ready_wait_seconds",
			Help:      "Time spent waiting for the server to accept connections.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)
	fixtureRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqltest",
			Subsystem: "fixture",
			Name:      "records_written_total",
			Help:      "Fixture records written to the server.",
		},
		[]string{"set"},
	)
	indexOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "aqltest",
			Subsystem: "fixture",
			Name:      "index_operations_total",
			Help:      "Secondary index create and delete operations.",
		},
		[]string{"op", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		Registry.MustRegister(aqlRuns, aqlDuration, containerStarts, readyWait, fixtureRecords, indexOps)
	})
}

func RecordAQLRun(exitCode int, duration time.Duration) {
	RegisterMetrics()
	aqlRuns.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	aqlDuration.Observe(duration.Seconds())
}

func RecordContainerStart(image string, success bool) {
	RegisterMetrics()
	containerStarts.WithLabelValues(image, strconv.FormatBool(success)).Inc()
}

func RecordReadyWait(duration time.Duration) {
	RegisterMetrics()
	readyWait.Observe(duration.Seconds())
}

func RecordFixtureRecords(set string, n int) {
	RegisterMetrics()
	fixtureRecords.WithLabelValues(set).Add(float64(n))
}

func RecordIndexOperation(op string, success bool) {
	RegisterMetrics()
	indexOps.WithLabelValues(op, strconv.FormatBool(success)).Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func WriteTextfile(path string) error {
	RegisterMetrics()
	return prometheus.WriteToTextfile(path, Registry)
}
