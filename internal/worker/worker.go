// Package worker implements the pipeline's execution units: one long-lived
// goroutine per role, each owning its detector, cursor and heartbeat.
//
// Every worker follows the same state machine:
//
//	STARTING → READY → RUNNING → STOPPED        (graceful)
//	                 ↘ RUNNING → UNHEALTHY       (failure threshold)
//
// A single bad frame never terminates a worker: per-frame errors (including
// detector panics) are contained at the loop boundary, logged, and the loop
// continues. Only a run of consecutive failures beyond the configured
// threshold transitions the worker to UNHEALTHY, at which point it stops
// consuming, emits one terminal heartbeat and waits for the supervisor.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/detect"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
)

// ErrUnhealthy is returned by Run when the consecutive per-frame failure
// threshold was exceeded. The supervisor reacts with a restart.
var ErrUnhealthy = errors.New("worker: consecutive failure threshold exceeded")

// State is the worker lifecycle state, driven by the worker itself and read
// by the supervisor.
type State int32

const (
	StateStarting State = iota
	StateReady
	StateRunning
	StateUnhealthy
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateUnhealthy:
		return "unhealthy"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Role is a worker's logical pipeline role.
type Role uint8

const (
	RoleCapture Role = iota + 1
	RoleSafety
	RoleOpenVocabulary
	RoleEncode
)

func (r Role) String() string {
	switch r {
	case RoleCapture:
		return "capture"
	case RoleSafety:
		return "detect-safety"
	case RoleOpenVocabulary:
		return "detect-open-vocabulary"
	case RoleEncode:
		return "encode"
	}
	return "unknown"
}

func (r Role) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// Layer maps a detection role to its result layer.
func (r Role) Layer() (detect.Layer, bool) {
	switch r {
	case RoleSafety:
		return detect.LayerSafety, true
	case RoleOpenVocabulary:
		return detect.LayerOpenVocabulary, true
	}
	return 0, false
}

// Result is one worker's per-frame output, keyed by the source frame.
type Result struct {
	Role             Role
	SourceSequenceID uint64
	Detections       []detect.Detection
}

// Runner is the supervisor's handle on a worker. Implementations are the
// role specializations in this package.
type Runner interface {
	ID() string
	Role() Role
	State() State
	// Heartbeat is the wall-clock time of the last loop iteration,
	// including iterations that timed out without work; it distinguishes
	// idle from hung.
	Heartbeat() time.Time
	// Ready is closed once owned resources are initialized.
	Ready() <-chan struct{}
	// Run executes the main loop until ctx cancellation or UNHEALTHY.
	Run(ctx context.Context) error
}

// base carries the state shared by every role specialization.
type base struct {
	id       string
	role     Role
	affinity int
	logger   *slog.Logger

	state     atomic.Int32
	heartbeat atomic.Int64 // unix nanos

	ready     chan struct{}
	readyOnce sync.Once

	maxConsecFail int
	consecFail    int
}

func newBase(role Role, affinity, maxConsecFail int, logger *slog.Logger) base {
	id := uuid.NewString()
	b := base{
		id:            id,
		role:          role,
		affinity:      affinity,
		logger:        logger.With(logging.String("worker", role.String()), logging.String("instance", id)),
		ready:         make(chan struct{}),
		maxConsecFail: maxConsecFail,
	}
	b.beat()
	return b
}

func (b *base) ID() string   { return b.id }
func (b *base) Role() Role   { return b.role }
func (b *base) State() State { return State(b.state.Load()) }

func (b *base) Heartbeat() time.Time {
	return time.Unix(0, b.heartbeat.Load())
}

func (b *base) Ready() <-chan struct{} { return b.ready }

func (b *base) beat() { b.heartbeat.Store(time.Now().UnixNano()) }

func (b *base) setState(s State) { b.state.Store(int32(s)) }

// markReady signals the supervisor and enters RUNNING. The worker pins its
// advisory core first so the whole loop runs on it.
func (b *base) markReady() {
	b.setState(StateReady)
	b.readyOnce.Do(func() { close(b.ready) })
	b.beat()
	b.setState(StateRunning)
}

// failFrame records one per-frame failure. Returns true once the worker
// must transition to UNHEALTHY.
func (b *base) failFrame(seq uint64, err error) bool {
	b.consecFail++
	b.logger.Warn("frame processing failed",
		logging.Uint64("seq", seq),
		logging.Int("consecutive", b.consecFail),
		logging.Error(err))
	return b.consecFail > b.maxConsecFail
}

// okFrame resets the consecutive failure streak.
func (b *base) okFrame() { b.consecFail = 0 }

// unhealthy performs the UNHEALTHY transition: stop consuming, one terminal
// heartbeat, hand control back to the supervisor.
func (b *base) unhealthy() error {
	b.setState(StateUnhealthy)
	b.beat()
	b.logger.Error("worker unhealthy, awaiting supervisor")
	return ErrUnhealthy
}

// pinAffinity applies the advisory execution-unit pin. Never fatal.
func (b *base) pinAffinity() {
	if b.affinity < 0 {
		return
	}
	if err := pinThread(b.affinity); err != nil {
		b.logger.Warn("cpu affinity not applied", logging.Int("core", b.affinity), logging.Error(err))
		return
	}
	b.logger.Debug("cpu affinity applied", logging.Int("core", b.affinity))
}
