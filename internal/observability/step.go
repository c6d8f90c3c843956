package observability

import (
	"time"

	"github.com/rs/zerolog"
)

// Step runs fn and logs its outcome and duration under the given step name.
func Step(logger zerolog.Logger, name string, fn func() error) error {
	start := time.Now()
	err := fn()

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Str("step", name).
		Dur("latency", time.Since(start)).
		Msg("harness step")
	return err
}
