package cluster

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/danmuck/aqltest/internal/observability"
	"github.com/rs/zerolog/log"
)

var ErrServerNotReady = errors.New("server not ready")

// BackoffConfig shapes the delay between readiness checks.
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// NextBackoffDelay returns the retry delay for attempt N (1-based).
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

// ReadyCheck reports nil once the server accepts client connections.
type ReadyCheck func(ctx context.Context) error

// WaitReady polls check until it succeeds, timeout elapses or ctx is done.
func WaitReady(ctx context.Context, timeout time.Duration, backoff BackoffConfig, check ReadyCheck) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; ; attempt++ {
		if lastErr = check(ctx); lastErr == nil {
			observability.RecordReadyWait(time.Since(start))
			log.Info().Int("attempts", attempt).Dur("waited", time.Since(start)).Msg("server is ready")
			return nil
		}
		log.Debug().Int("attempt", attempt).Err(lastErr).Msg("cluster.WaitReady check failed")

		timer := time.NewTimer(NextBackoffDelay(backoff, attempt, nil))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: did not become ready within %s: %v", ErrServerNotReady, timeout, lastErr)
		case <-timer.C:
		}
	}
}
