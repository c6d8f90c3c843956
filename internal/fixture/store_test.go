package fixture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/aqltest/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dialScript struct {
	failures int
	calls    int
	seeds    []Seed
}

func (d *dialScript) dial(seed Seed, timeout time.Duration) (*fakeStore, error) {
	d.calls++
	d.seeds = append(d.seeds, seed)
	if d.calls <= d.failures {
		return nil, fmt.Errorf("refused #%d", d.calls)
	}
	return &fakeStore{}, nil
}

var testSeed = Seed{Host: "127.0.0.1", Port: 10000}

func TestRetryDialSucceedsAfterFailures(t *testing.T) {
	testlog.Start(t)
	d := &dialScript{failures: 2}
	store, err := retryDial(context.Background(), d.dial, testSeed, 5, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.Equal(t, 3, d.calls)
	assert.Equal(t, []Seed{testSeed, testSeed, testSeed}, d.seeds)
}

func TestRetryDialReturnsLastErrorAfterAllAttempts(t *testing.T) {
	testlog.Start(t)
	d := &dialScript{failures: 100}
	store, err := retryDial(context.Background(), d.dial, testSeed, 4, time.Second, time.Millisecond)
	assert.Nil(t, store)
	require.EqualError(t, err, "refused #4")
	assert.Equal(t, 4, d.calls)
}

func TestRetryDialMakesAtLeastOneAttempt(t *testing.T) {
	testlog.Start(t)
	d := &dialScript{failures: 100}
	_, err := retryDial(context.Background(), d.dial, testSeed, 0, time.Second, time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 1, d.calls)
}

func TestRetryDialStopsWhenContextIsDone(t *testing.T) {
	testlog.Start(t)
	d := &dialScript{failures: 100}
	ctx, cancel := context.WithCancel(context.Background())
	dial := func(seed Seed, timeout time.Duration) (*fakeStore, error) {
		defer cancel()
		return d.dial(seed, timeout)
	}

	start := time.Now()
	_, err := retryDial(ctx, dial, testSeed, 20, time.Second, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
	assert.Contains(t, err.Error(), "127.0.0.1:10000")
	assert.Equal(t, 1, d.calls)
	assert.Less(t, time.Since(start), time.Second)
}
