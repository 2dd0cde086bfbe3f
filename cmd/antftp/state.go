package main

import (
	"log/slog"
	"sync"
	"time"

	"github.com/traktion/antftp/internal/archive"
	"github.com/traktion/antftp/internal/config"
)

// stateRecorder persists the latest committed address of a Direct-mode
// archive so a restart resumes from it. Pointer-backed archives are
// recovered from the pointer instead and record nothing. Its methods are
// hooked into the backend and reconciler directly, so every commit is on
// disk before the mutation returns.
type stateRecorder struct {
	logger  *slog.Logger
	path    string
	state   config.State
	mu      sync.Mutex
	enabled bool
}

func newStateRecorder(ac config.ArchiveConfig, logger *slog.Logger) *stateRecorder {
	return &stateRecorder{
		logger:  logger,
		path:    ac.StateFilePath(),
		state:   config.State{Seed: ac.Address},
		enabled: ac.Pointer == "" && ac.StateFilePath() != "",
	}
}

// committed records addr as the archive's latest address.
func (s *stateRecorder) committed(addr archive.Address) {
	s.update(func(st *config.State) { st.Address = string(addr) })
}

// synced records addr as pushed to the network tier.
func (s *stateRecorder) synced(addr archive.Address) {
	s.update(func(st *config.State) {
		if st.Address == "" {
			st.Address = string(addr)
		}
		st.Synced = string(addr)
	})
}

func (s *stateRecorder) update(fn func(*config.State)) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.state)
	s.state.Updated = time.Now().UTC()
	if err := config.WriteState(s.path, s.state); err != nil {
		s.logger.Warn("failed to write state file", "path", s.path, "error", err)
	}
}
