package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/aqltest/internal/aql"
	"github.com/danmuck/aqltest/internal/cluster"
	"github.com/danmuck/aqltest/internal/config"
	"github.com/danmuck/aqltest/internal/fixture"
	"github.com/danmuck/aqltest/internal/observability"
	"github.com/rs/zerolog/log"
)

// Dialer opens the fixture store once the server is up.
type Dialer func(ctx context.Context, seed fixture.Seed, attempts int, timeout time.Duration) (fixture.Store, error)

func DialAerospike(ctx context.Context, seed fixture.Seed, attempts int, timeout time.Duration) (fixture.Store, error) {
	store, err := fixture.Connect(ctx, seed, attempts, timeout)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Options choose what a suite loads before its tests run.
type Options struct {
	Populate bool
	Indexes  []fixture.IndexSpec
	// IndexSet builds more indexes from the configured namespace and set.
	IndexSet func(ns, set string) []fixture.IndexSpec
}

func (o Options) indexes(cfg config.Config) []fixture.IndexSpec {
	specs := append([]fixture.IndexSpec(nil), o.Indexes...)
	if o.IndexSet != nil {
		specs = append(specs, o.IndexSet(cfg.Namespace, cfg.SetName)...)
	}
	return specs
}

// Suite is one server plus the client and aql runner the tests use against it.
type Suite struct {
	Config config.Config
	Server *cluster.Server
	AQL    *aql.Runner
	IPs    []string

	dial Dialer

	// mu guards store; Stop may run from the interrupt handler while Start is connecting.
	mu      sync.Mutex
	store   fixture.Store
	stopped bool
}

var errSuiteStopped = errors.New("suite stopped while starting")

func New(cfg config.Config, engine cluster.Engine, runner *aql.Runner, dial Dialer) *Suite {
	if dial == nil {
		dial = DialAerospike
	}
	seed := fixture.Seed{Host: cfg.ServerIP, Port: cfg.PortBase}
	return &Suite{
		Config: cfg,
		Server: cluster.NewServer(cfg, engine, fixture.ReadyCheck(seed)),
		AQL:    runner,
		dial:   dial,
	}
}

// Seed is the address the suite's client connects to.
func (s *Suite) Seed() fixture.Seed {
	host := s.Config.ServerIP
	if len(s.IPs) > 0 {
		host = s.IPs[0]
	}
	return fixture.Seed{Host: host, Port: s.Config.PortBase}
}

// Start runs the server, connects, and loads the requested fixtures.
// On failure everything already started is torn down.
func (s *Suite) Start(ctx context.Context, opts Options) (err error) {
	logger := log.With().Str("set", s.Config.SetName).Logger()
	defer func() {
		if err != nil {
			s.Stop(context.WithoutCancel(ctx))
		}
	}()

	if err := observability.Step(logger, "run-server", func() error {
		ips, err := s.Server.Run(ctx)
		s.IPs = ips
		return err
	}); err != nil {
		return err
	}

	var store fixture.Store
	if err := observability.Step(logger, "connect", func() error {
		var err error
		store, err = s.dial(ctx, s.Seed(), s.Config.ClientAttempts, s.Config.ClientTimeout)
		if err != nil {
			return err
		}
		return s.setStore(store)
	}); err != nil {
		return err
	}

	if opts.Populate {
		if err := observability.Step(logger, "populate", func() error {
			_, err := fixture.Populate(ctx, store, s.Config.Namespace, s.Config.SetName)
			return err
		}); err != nil {
			return err
		}
	}

	if specs := opts.indexes(s.Config); len(specs) > 0 {
		if err := observability.Step(logger, "create-indexes", func() error {
			return fixture.CreateIndexes(ctx, store, specs)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Store is the connected fixture client, nil before Start connects or after Stop.
func (s *Suite) Store() fixture.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// setStore keeps store unless Stop already ran, in which case it is closed.
func (s *Suite) setStore(store fixture.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		store.Close()
		return errSuiteStopped
	}
	s.store = store
	return nil
}

// Disconnect closes the client and leaves the server running.
func (s *Suite) Disconnect() {
	s.mu.Lock()
	store := s.store
	s.store = nil
	s.mu.Unlock()
	if store != nil {
		store.Close()
	}
}

// Stop closes the client and removes the server. It is safe to call twice and
// from another goroutine while Start is still running.
func (s *Suite) Stop(ctx context.Context) {
	s.mu.Lock()
	store := s.store
	s.store = nil
	s.stopped = true
	s.mu.Unlock()

	if store != nil {
		store.Close()
	}
	s.Server.Shutdown(ctx)
}

// Query runs one aql command string against the suite's server.
func (s *Suite) Query(ctx context.Context, command string) (aql.Output, error) {
	if s.AQL == nil {
		return aql.Output{}, errors.New("suite has no aql runner")
	}
	seed := s.Seed()
	return s.AQL.RunArgs(ctx, aql.Args{Host: seed.Host, Port: seed.Port, Command: command})
}

// QueryJSON runs command with JSON output and decodes the result.
func (s *Suite) QueryJSON(ctx context.Context, command string) (aql.Output, aql.JSONOutput, error) {
	out, err := s.Query(ctx, aql.JSON(command))
	if err != nil {
		return out, nil, err
	}
	doc, err := aql.ParseJSONOutput(out.Stdout)
	if err != nil {
		return out, nil, fmt.Errorf("%s: %w", command, err)
	}
	return out, doc, nil
}
