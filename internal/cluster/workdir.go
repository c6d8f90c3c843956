package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/danmuck/aqltest/internal/config"
	"github.com/rs/zerolog/log"
)

// WorkDir is the host directory bind-mounted into the server container.
type WorkDir struct {
	Root  string
	State string
	SMD   string
}

// ResolveWorkDir makes cfg.WorkDir absolute, relative to the current directory.
func ResolveWorkDir(cfg config.Config) (WorkDir, error) {
	root := cfg.WorkDir
	if !filepath.IsAbs(root) {
		abs, err := filepath.Abs(root)
		if err != nil {
			return WorkDir{}, fmt.Errorf("resolve work dir: %w", err)
		}
		root = abs
	}
	state := filepath.Join(root, cfg.StateDir)
	return WorkDir{
		Root:  root,
		State: state,
		SMD:   filepath.Join(state, "smd"),
	}, nil
}

func (w WorkDir) Init() error {
	for _, dir := range []string{w.Root, w.State, w.SMD} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create work dir %s: %w", dir, err)
		}
	}
	return nil
}

// Remove deletes the whole tree. Failures are logged, not returned.
func (w WorkDir) Remove() {
	if w.Root == "" {
		return
	}
	if err := os.RemoveAll(w.Root); err != nil {
		log.Warn().Err(err).Str("dir", w.Root).Msg("cluster.WorkDir.Remove failed")
	}
}
