package harness

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const interruptShutdownTimeout = 30 * time.Second

var osExit = os.Exit

// HandleInterrupt runs stop and exits with status 1 on SIGINT or SIGTERM, so an
// interrupted run does not leave the server container behind. The returned
// func unregisters the handler.
func HandleInterrupt(stop func(context.Context)) func() {
	return HandleSignals(stop, os.Interrupt, syscall.SIGTERM)
}

// StopOnInterrupt cancels the start context before stopping the suite, so a
// Start that is still pulling, connecting or seeding returns promptly.
func StopOnInterrupt(cancel context.CancelFunc, suite *Suite) func(context.Context) {
	return func(ctx context.Context) {
		cancel()
		suite.Stop(ctx)
	}
}

func HandleSignals(stop func(context.Context), sigs ...os.Signal) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		select {
		case sig := <-ch:
			log.Warn().Str("signal", sig.String()).Msg("interrupted, shutting down server")
			ctx, cancel := context.WithTimeout(context.Background(), interruptShutdownTimeout)
			stop(ctx)
			cancel()
			osExit(1)
		case <-done:
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(done)
		})
	}
}
