package fixture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	as "github.com/aerospike/aerospike-client-go/v7"
	"github.com/aerospike/aerospike-client-go/v7/types"
	"github.com/rs/zerolog/log"
)

// Store is the slice of the database client the fixtures need.
type Store interface {
	Put(ctx context.Context, namespace, set string, rec Record) error
	CreateIndex(ctx context.Context, spec IndexSpec) error
	DropIndex(ctx context.Context, namespace, set, name string) error
	Info(ctx context.Context, command string) (map[string]string, error)
	Close()
}

// AerospikeStore implements Store on the Aerospike Go client.
type AerospikeStore struct {
	client *as.Client
}

// Seed is a host and service port pair.
type Seed struct {
	Host string
	Port int
}

func (s Seed) String() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Dial makes one connection attempt.
func Dial(seed Seed, timeout time.Duration) (*AerospikeStore, error) {
	policy := as.NewClientPolicy()
	policy.Timeout = timeout
	client, err := as.NewClientWithPolicy(policy, seed.Host, seed.Port)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", seed, err)
	}
	return &AerospikeStore{client: client}, nil
}

// connectInterval separates connection attempts.
const connectInterval = time.Second

// Connect dials up to attempts times, one second apart, and returns the last error.
func Connect(ctx context.Context, seed Seed, attempts int, timeout time.Duration) (*AerospikeStore, error) {
	return retryDial(ctx, Dial, seed, attempts, timeout, connectInterval)
}

func retryDial[S any](ctx context.Context, dial func(Seed, time.Duration) (S, error), seed Seed, attempts int, timeout, interval time.Duration) (S, error) {
	var zero S
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		store, err := dial(seed, timeout)
		if err == nil {
			log.Info().Str("seed", seed.String()).Int("attempt", attempt).Msg("connected to seed")
			return store, nil
		}
		lastErr = err
		log.Debug().Err(err).Int("attempt", attempt).Msg("fixture.Connect attempt failed")
		if attempt == attempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("connect %s: %w", seed, ctx.Err())
		case <-timer.C:
		}
	}
	return zero, lastErr
}

// ReadyCheck connects once and closes the connection.
func ReadyCheck(seed Seed) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		store, err := Dial(seed, time.Second)
		if err != nil {
			return err
		}
		store.Close()
		return nil
	}
}

func (s *AerospikeStore) Client() *as.Client {
	return s.client
}

func (s *AerospikeStore) Put(ctx context.Context, namespace, set string, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, err := as.NewKey(namespace, set, rec.Key)
	if err != nil {
		return fmt.Errorf("key %s: %w", rec.Key, err)
	}
	policy := as.NewWritePolicy(0, 0)
	policy.SendKey = true
	if err := s.client.Put(policy, key, as.BinMap(rec.Bins)); err != nil {
		return fmt.Errorf("put %s: %w", rec.Key, err)
	}
	return nil
}

// CreateIndex issues the create and blocks until every node reports the build done.
// An index that already exists counts as created.
func (s *AerospikeStore) CreateIndex(ctx context.Context, spec IndexSpec) error {
	indexType := as.NUMERIC
	if spec.Type == IndexString {
		indexType = as.STRING
	}
	task, err := s.client.CreateIndex(as.NewWritePolicy(0, 0), spec.Namespace, spec.Set, spec.Name, spec.Bin, indexType)
	if err != nil {
		if err.Matches(types.INDEX_FOUND) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("create index %s: %w", spec.Name, ctx.Err())
	case err := <-task.OnComplete():
		if err != nil {
			return fmt.Errorf("create index %s: %w", spec.Name, err)
		}
		return nil
	}
}

// DropIndex removes an index; a missing index is not an error.
func (s *AerospikeStore) DropIndex(ctx context.Context, namespace, set, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.client.DropIndex(as.NewWritePolicy(0, 0), namespace, set, name); err != nil {
		if err.Matches(types.INDEX_NOTFOUND) {
			return nil
		}
		return fmt.Errorf("drop index %s: %w", name, err)
	}
	return nil
}

// Info sends command to every node and returns the responses by node name.
func (s *AerospikeStore) Info(ctx context.Context, command string) (map[string]string, error) {
	nodes := s.client.GetNodes()
	if len(nodes) == 0 {
		return nil, errors.New("info: no nodes in cluster")
	}
	policy := as.NewInfoPolicy()
	out := make(map[string]string, len(nodes))
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := node.RequestInfo(policy, command)
		if err != nil {
			return nil, fmt.Errorf("info %q on %s: %w", command, node.GetName(), err)
		}
		out[node.GetName()] = strings.TrimSpace(resp[command])
	}
	return out, nil
}

func (s *AerospikeStore) Close() {
	s.client.Close()
}
