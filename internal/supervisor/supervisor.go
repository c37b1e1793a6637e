// Package supervisor owns the lifecycle of all pipeline workers: spawn,
// readiness, heartbeat monitoring, bounded restart and the shutdown
// protocol. Worker descriptors are mutated here and nowhere else.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/worker"
)

// Config tunes lifecycle supervision.
type Config struct {
	// HeartbeatTimeout is the heartbeat age beyond which a worker is
	// presumed hung and respawned.
	HeartbeatTimeout time.Duration
	// MonitorInterval is the heartbeat polling period.
	MonitorInterval time.Duration
	// ReadyTimeout bounds the wait for each worker to report READY at
	// startup.
	ReadyTimeout time.Duration
	// ShutdownGrace bounds the cooperative drain before a worker is
	// abandoned.
	ShutdownGrace time.Duration
	// MaxRestarts bounds respawns per role within RestartWindow; beyond it
	// the role is permanently degraded and the pipeline continues without
	// it.
	MaxRestarts   int
	RestartWindow time.Duration
}

// SpawnFunc creates a fresh worker for a role. Called once at startup and
// once per restart, so every respawn gets fresh owned state (detectors
// reloaded, new cursor, new instance id).
type SpawnFunc func(role worker.Role) (worker.Runner, error)

// Descriptor is the supervisor-owned record of one role, exposed read-only
// through Health.
type Descriptor struct {
	Role          worker.Role  `json:"role"`
	InstanceID    string       `json:"instance_id"`
	Affinity      int          `json:"affinity"`
	State         worker.State `json:"state"`
	RestartCount  int          `json:"restart_count"`
	Degraded      bool         `json:"degraded"`
	LastHeartbeat time.Time    `json:"last_heartbeat"`
}

// entry tracks one role's current incarnation. Guarded by Supervisor.mu.
type entry struct {
	role     worker.Role
	affinity int

	runner worker.Runner
	cancel context.CancelFunc
	done   chan struct{}

	restarts     []time.Time // spawn times inside the sliding window
	restartCount int
	degraded     bool
	stopped      bool
}

// Supervisor creates, monitors and restarts workers.
type Supervisor struct {
	cfg    Config
	spawn  SpawnFunc
	logger *slog.Logger

	mu      sync.Mutex
	entries map[worker.Role]*entry
	baseCtx context.Context
	halting bool

	quit        chan struct{}
	monitorDone chan struct{}
}

// New builds an idle supervisor. Start wires it to a context.
func New(cfg Config, spawn SpawnFunc, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		spawn:   spawn,
		logger:  logger.With(logging.String("component", "supervisor")),
		entries: make(map[worker.Role]*entry),
	}
}

// Start spawns one worker per role, assigning each a distinct advisory core
// index, and waits (bounded) for every worker to report READY before
// declaring the pipeline live. A worker that cannot start or ready in time
// is a startup failure surfaced to the caller.
func (s *Supervisor) Start(ctx context.Context, roles []worker.Role) error {
	s.mu.Lock()
	s.baseCtx = ctx
	for i, role := range roles {
		if _, dup := s.entries[role]; dup {
			s.mu.Unlock()
			return fmt.Errorf("supervisor: role %s configured twice", role)
		}
		e := &entry{role: role, affinity: i}
		if err := s.spawnLocked(e); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("supervisor: spawn %s: %w", role, err)
		}
		s.entries[role] = e
	}
	s.mu.Unlock()

	for _, role := range roles {
		s.mu.Lock()
		runner := s.entries[role].runner
		s.mu.Unlock()
		select {
		case <-runner.Ready():
		case <-time.After(s.cfg.ReadyTimeout):
			return fmt.Errorf("supervisor: worker %s not ready within %s", role, s.cfg.ReadyTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.quit = make(chan struct{})
	s.monitorDone = make(chan struct{})
	go s.monitor(ctx)

	s.logger.Info("pipeline live", logging.Int("workers", len(roles)))
	return nil
}

// spawnLocked creates and launches a fresh incarnation for e.
func (s *Supervisor) spawnLocked(e *entry) error {
	runner, err := s.spawn(e.role)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})

	e.runner = runner
	e.cancel = cancel
	e.done = done
	e.stopped = false

	logger := s.logger.With(logging.String("role", e.role.String()), logging.String("instance", runner.ID()))
	go func() {
		err := runner.Run(runCtx)
		switch {
		case err == nil:
			logger.Info("worker stopped")
		case errors.Is(err, worker.ErrUnhealthy):
			logger.Warn("worker reported unhealthy")
		default:
			logger.Error("worker failed", logging.Error(err))
		}
		close(done)
	}()
	return nil
}

// monitor is the heartbeat loop: it distinguishes exited workers from hung
// ones and drives bounded restarts. One slow role never restarts another.
func (s *Supervisor) monitor(ctx context.Context) {
	defer close(s.monitorDone)

	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Supervisor) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	// A cancelled base context means the pipeline is already coming down;
	// workers exiting now are draining, not failing, and a respawn would
	// run on the dead context anyway.
	if s.halting || s.baseCtx.Err() != nil {
		return
	}

	now := time.Now()
	for _, e := range s.entries {
		if e.degraded || e.stopped {
			continue
		}

		exited := false
		select {
		case <-e.done:
			exited = true
		default:
		}

		hung := !exited && now.Sub(e.runner.Heartbeat()) > s.cfg.HeartbeatTimeout

		if !exited && !hung {
			continue
		}

		logger := s.logger.With(logging.String("role", e.role.String()))
		if hung {
			// Presumed dead: cancel and abandon. Every blocking wait in a
			// worker is bounded, so a live-but-slow goroutine exits on its
			// next iteration; a truly wedged one is leaked rather than
			// taking the host down.
			logger.Warn("worker heartbeat stale, terminating",
				logging.Duration("age", now.Sub(e.runner.Heartbeat())))
			e.cancel()
		} else {
			logger.Warn("worker exited unexpectedly")
		}

		s.restartLocked(e, logger)
	}
}

// restartLocked respawns e within the sliding restart budget, or marks the
// role permanently degraded once the budget is spent.
func (s *Supervisor) restartLocked(e *entry, logger *slog.Logger) {
	now := time.Now()
	cutoff := now.Add(-s.cfg.RestartWindow)
	kept := e.restarts[:0]
	for _, t := range e.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.restarts = kept

	if len(e.restarts) >= s.cfg.MaxRestarts {
		e.degraded = true
		e.cancel()
		logger.Error("restart budget exhausted, role degraded",
			logging.Int("restarts_in_window", len(e.restarts)),
			logging.Duration("window", s.cfg.RestartWindow))
		return
	}

	e.restarts = append(e.restarts, now)
	e.restartCount++
	if err := s.spawnLocked(e); err != nil {
		e.degraded = true
		logger.Error("respawn failed, role degraded", logging.Error(err))
		return
	}
	logger.Info("worker respawned", logging.Int("restart_count", e.restartCount))
}

// Shutdown signals every worker to stop, waits up to the grace period for
// each to drain, then abandons stragglers. Shared resources (ring, store)
// are released by the caller only after Shutdown returns.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	s.halting = true
	if s.quit != nil {
		select {
		case <-s.quit:
		default:
			close(s.quit)
		}
	}
	entries := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
		e.cancel()
	}
	s.mu.Unlock()

	deadline := time.After(s.cfg.ShutdownGrace)
	for _, e := range entries {
		select {
		case <-e.done:
		case <-deadline:
			s.logger.Warn("worker did not drain within grace period, abandoning",
				logging.String("role", e.role.String()))
		}
		s.mu.Lock()
		e.stopped = true
		s.mu.Unlock()
	}

	if s.monitorDone != nil {
		<-s.monitorDone
	}
	s.logger.Info("supervisor shut down")
}

// Health returns per-role descriptors sorted by role, for the status
// surface. Read-only snapshot; the supervisor remains the sole mutator.
func (s *Supervisor) Health() []Descriptor {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Descriptor, 0, len(s.entries))
	for _, e := range s.entries {
		d := Descriptor{
			Role:         e.role,
			Affinity:     e.affinity,
			RestartCount: e.restartCount,
			Degraded:     e.degraded,
		}
		if e.runner != nil {
			d.InstanceID = e.runner.ID()
			d.State = e.runner.State()
			d.LastHeartbeat = e.runner.Heartbeat()
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out
}
