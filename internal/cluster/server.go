package cluster

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/danmuck/aqltest/internal/config"
	"github.com/danmuck/aqltest/internal/observability"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	LabelManaged = "aqltest.managed"
	LabelRunID   = "aqltest.run"

	serverBinary = "/usr/bin/asd"
)

// Server owns one database container and its host work directory.
type Server struct {
	cfg     config.Config
	engine  Engine
	check   ReadyCheck
	backoff BackoffConfig
	runID   string

	mu          sync.Mutex
	workDir     WorkDir
	containerID string
	imageSize   int64
	stopped     bool
	cancelRun   context.CancelFunc
}

// ErrServerStopped is returned by Run when Shutdown interrupted the start.
var ErrServerStopped = errors.New("server shut down while starting")

func NewServer(cfg config.Config, engine Engine, check ReadyCheck) *Server {
	return &Server{
		cfg:     cfg,
		engine:  engine,
		check:   check,
		backoff: DefaultBackoffConfig(),
		runID:   uuid.NewString(),
	}
}

// WithBackoff overrides the readiness polling schedule.
func (s *Server) WithBackoff(cfg BackoffConfig) *Server {
	s.backoff = cfg
	return s
}

func (s *Server) RunID() string {
	return s.runID
}

func (s *Server) ContainerID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.containerID
}

// Command is the server entrypoint inside the container.
func (s *Server) Command() []string {
	return []string{
		serverBinary,
		"--foreground",
		"--config-file",
		path.Join(s.cfg.ContainerDir, ConfFileName),
	}
}

// Run starts a fresh server container and blocks until it accepts connections.
// It returns the seed addresses clients should use. Shutdown may be called while
// Run is in progress; Run then removes anything it created and returns ErrServerStopped.
func (s *Server) Run(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	image := s.cfg.ImageRef()
	wd, err := ResolveWorkDir(s.cfg)
	if err != nil {
		return nil, err
	}
	if err := wd.Init(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.workDir = wd
	s.stopped = false
	s.cancelRun = cancel
	s.mu.Unlock()

	if _, err := WriteConf(s.cfg, wd.Root); err != nil {
		return nil, err
	}

	if err := s.engine.RemoveContainer(ctx, s.cfg.ContainerName); err != nil {
		log.Warn().Err(err).Str("container", s.cfg.ContainerName).Msg("cluster.Server.Run stale container not removed")
	}

	log.Info().Str("image", image).Msg("pulling image")
	if err := s.engine.PullImage(ctx, image); err != nil {
		log.Warn().Err(err).Str("image", image).Msg("image pull failed, using local image")
	}
	if size, err := s.engine.ImageSize(ctx, image); err == nil {
		s.mu.Lock()
		s.imageSize = size
		s.mu.Unlock()
		log.Info().Str("image", image).Str("size", humanize.Bytes(uint64(size))).Msg("image ready")
	}

	cmd := s.Command()
	log.Info().Strs("cmd", cmd).Str("container", s.cfg.ContainerName).Msg("starting container")
	id, err := s.engine.RunContainer(ctx, ContainerSpec{
		Name:   s.cfg.ContainerName,
		Image:  image,
		Cmd:    cmd,
		Ports:  s.cfg.Ports().All(),
		Source: wd.Root,
		Target: s.cfg.ContainerDir,
		Tty:    true,
		Labels: map[string]string{
			LabelManaged: "true",
			LabelRunID:   s.runID,
		},
	})
	observability.RecordContainerStart(image, err == nil)

	s.mu.Lock()
	stopped := s.stopped
	if !stopped {
		s.containerID = id
	}
	s.mu.Unlock()
	if stopped {
		// Shutdown already ran and will not see this container.
		cleanup := context.WithoutCancel(ctx)
		if id != "" {
			if stopErr := s.engine.StopContainer(cleanup, id); stopErr != nil {
				log.Warn().Err(stopErr).Str("container", s.cfg.ContainerName).Msg("cluster.Server.Run late stop failed")
			}
		}
		wd.Remove()
		return nil, ErrServerStopped
	}
	if err != nil {
		return nil, err
	}

	if err := WaitReady(ctx, s.cfg.ReadyTimeout, s.backoff, s.check); err != nil {
		if s.isStopped() {
			return nil, ErrServerStopped
		}
		if tail, logErr := s.engine.ContainerLogs(context.WithoutCancel(ctx), id, 50); logErr == nil {
			log.Error().Str("container", s.cfg.ContainerName).Msgf("server log tail:\n%s", tail)
		}
		return nil, fmt.Errorf("start %s: %w", s.cfg.ContainerName, err)
	}
	return []string{s.cfg.ServerIP}, nil
}

func (s *Server) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// ImageSize is the local image size in bytes seen by the last Run, 0 if unknown.
func (s *Server) ImageSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.imageSize
}

// Shutdown stops the container, removes the work dir and prunes networks.
// Every step is best effort and Shutdown may be called more than once, including
// while Run is still starting. A server that was not started by this process is
// found by container name and only removed when it carries the managed label.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	id := s.containerID
	wd := s.workDir
	s.containerID = ""
	s.workDir = WorkDir{}
	s.stopped = true
	cancelRun := s.cancelRun
	s.cancelRun = nil
	s.mu.Unlock()

	if cancelRun != nil {
		cancelRun()
	}
	if id != "" {
		if err := s.engine.StopContainer(ctx, id); err != nil {
			log.Warn().Err(err).Str("container", s.cfg.ContainerName).Msg("cluster.Server.Shutdown stop failed")
		}
	} else {
		s.removeManaged(ctx)
	}

	if wd.Root == "" {
		if resolved, err := ResolveWorkDir(s.cfg); err == nil {
			wd = resolved
		}
	}
	wd.Remove()

	if err := s.engine.PruneNetworks(ctx); err != nil {
		log.Debug().Err(err).Msg("cluster.Server.Shutdown network prune failed")
	}
}

func (s *Server) removeManaged(ctx context.Context) {
	name := s.cfg.ContainerName
	labels, found, err := s.engine.ContainerLabels(ctx, name)
	if err != nil {
		log.Warn().Err(err).Str("container", name).Msg("cluster.Server.Shutdown inspect failed")
		return
	}
	if !found {
		return
	}
	if labels[LabelManaged] != "true" {
		log.Warn().Str("container", name).Msg("container is not managed by aqltest, leaving it running")
		return
	}
	log.Info().Str("container", name).Str("run", labels[LabelRunID]).Msg("removing server from an earlier run")
	if err := s.engine.RemoveContainer(ctx, name); err != nil {
		log.Warn().Err(err).Str("container", name).Msg("cluster.Server.Shutdown remove failed")
	}
}

// Logs returns the last lines of the server container output.
func (s *Server) Logs(ctx context.Context, tail int) (string, error) {
	id := s.ContainerID()
	if id == "" {
		return "", fmt.Errorf("no running container")
	}
	return s.engine.ContainerLogs(ctx, id, tail)
}
