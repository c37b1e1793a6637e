// Package pipeline is the composition root: it allocates the slot store,
// wires workers, supervisor, aggregator and result bus, and exposes the
// three external surfaces (frame injection, result subscription, health).
// It imports from every layer package; none of them import it.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/aggregate"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/config"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/detect"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/framering"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/resultbus"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/supervisor"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/worker"
)

// DetectorFactory builds a fresh detector instance. Invoked at every spawn
// so a restarted worker reloads its model.
type DetectorFactory func() (detect.Detector, error)

// SinkFactory builds a fresh frame sink for the encode role.
type SinkFactory func() (worker.FrameSink, error)

// Option customizes pipeline construction.
type Option func(*Pipeline)

// WithDetector injects the model backend for one layer. Without it the
// deterministic stub detectors run.
func WithDetector(layer detect.Layer, factory DetectorFactory) Option {
	return func(p *Pipeline) { p.detectors[layer] = factory }
}

// WithSink injects the encode role's downstream sink.
func WithSink(factory SinkFactory) Option {
	return func(p *Pipeline) { p.sink = factory }
}

// Pipeline owns every core component for the duration of one Run.
type Pipeline struct {
	cfg    *config.Config
	logger *slog.Logger

	format    frame.PixelFormat
	detectors map[detect.Layer]DetectorFactory
	sink      SinkFactory

	ring    *framering.Ring
	intake  *worker.Intake
	results chan worker.Result
	bus     *resultbus.Bus
	agg     *aggregate.Aggregator
	sup     *supervisor.Supervisor

	mu      sync.Mutex
	running bool
	started time.Time
}

// New validates the configuration and pre-allocates the slot store. A store
// allocation failure here is fatal: the pipeline does not start.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := frame.ParsePixelFormat(cfg.Pipeline.PixelFormat)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:       cfg,
		logger:    logger,
		format:    format,
		detectors: make(map[detect.Layer]DetectorFactory),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.detectors[detect.LayerSafety] == nil {
		p.detectors[detect.LayerSafety] = func() (detect.Detector, error) { return detect.NewStubSafety(), nil }
	}
	if p.detectors[detect.LayerOpenVocabulary] == nil {
		p.detectors[detect.LayerOpenVocabulary] = func() (detect.Detector, error) { return detect.NewStubOpenVocabulary(), nil }
	}
	if p.sink == nil {
		p.sink = func() (worker.FrameSink, error) { return &worker.CountingSink{}, nil }
	}

	slotBytes := cfg.Pipeline.MaxWidth * cfg.Pipeline.MaxHeight * format.BytesPerPixel()
	ring, err := framering.New(framering.Config{
		Slots:     cfg.Pipeline.FrameSlots,
		SlotBytes: slotBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: slot store: %w", err)
	}
	logger.Info("slot store allocated",
		logging.Int("slots", cfg.Pipeline.FrameSlots),
		logging.Int("slot_bytes", slotBytes))

	p.ring = ring
	p.intake = worker.NewIntake()
	p.results = make(chan worker.Result, cfg.Pipeline.ResultBuffer)
	p.bus = resultbus.New()
	p.agg = aggregate.New(aggregate.Config{
		WindowSize:    cfg.Aggregator.WindowSize,
		WindowTimeout: cfg.Aggregator.WindowTimeout(),
		IoUThreshold:  cfg.Aggregator.IoUThreshold,
		Layers:        p.enabledLayers(),
	}, p.results, p.bus.Publish, logger)
	p.sup = supervisor.New(supervisor.Config{
		HeartbeatTimeout: cfg.Supervisor.HeartbeatTimeout(),
		MonitorInterval:  cfg.Supervisor.MonitorInterval(),
		ReadyTimeout:     cfg.Supervisor.ReadyTimeout(),
		ShutdownGrace:    cfg.Supervisor.ShutdownGrace(),
		MaxRestarts:      cfg.Supervisor.MaxRestarts,
		RestartWindow:    cfg.Supervisor.RestartWindow(),
	}, p.spawnWorker, logger)

	return p, nil
}

func (p *Pipeline) enabledLayers() []detect.Layer {
	var layers []detect.Layer
	if p.cfg.Roles.Safety {
		layers = append(layers, detect.LayerSafety)
	}
	if p.cfg.Roles.OpenVocabulary {
		layers = append(layers, detect.LayerOpenVocabulary)
	}
	return layers
}

func (p *Pipeline) enabledRoles() []worker.Role {
	roles := []worker.Role{worker.RoleCapture}
	if p.cfg.Roles.Safety {
		roles = append(roles, worker.RoleSafety)
	}
	if p.cfg.Roles.OpenVocabulary {
		roles = append(roles, worker.RoleOpenVocabulary)
	}
	if p.cfg.Roles.Encode {
		roles = append(roles, worker.RoleEncode)
	}
	return roles
}

// spawnWorker is the supervisor's factory. Each call builds fresh owned
// state for the role.
func (p *Pipeline) spawnWorker(role worker.Role) (worker.Runner, error) {
	poll := p.cfg.Pipeline.PollTimeout()
	maxFail := p.cfg.Worker.MaxConsecutiveFailures

	switch role {
	case worker.RoleCapture:
		return worker.NewCapture(worker.CaptureConfig{
			Intake:                 p.intake,
			Ring:                   p.ring,
			PollTimeout:            poll,
			MaxConsecutiveFailures: maxFail,
			Affinity:               p.affinityFor(role),
			Logger:                 p.logger,
		}), nil
	case worker.RoleSafety, worker.RoleOpenVocabulary:
		layer, _ := role.Layer()
		det, err := p.detectors[layer]()
		if err != nil {
			return nil, fmt.Errorf("pipeline: detector for %s: %w", role, err)
		}
		return worker.NewDetect(worker.DetectConfig{
			Role:                   role,
			Ring:                   p.ring,
			Detector:               det,
			Results:                p.results,
			PollTimeout:            poll,
			MaxConsecutiveFailures: maxFail,
			Affinity:               p.affinityFor(role),
			Logger:                 p.logger,
		})
	case worker.RoleEncode:
		sink, err := p.sink()
		if err != nil {
			return nil, fmt.Errorf("pipeline: sink: %w", err)
		}
		return worker.NewEncode(worker.EncodeConfig{
			Ring:                   p.ring,
			Sink:                   sink,
			PollTimeout:            poll,
			MaxConsecutiveFailures: maxFail,
			Affinity:               p.affinityFor(role),
			Logger:                 p.logger,
		}), nil
	}
	return nil, fmt.Errorf("pipeline: unknown role %s", role)
}

// affinityFor keeps the advisory core assignment stable across restarts:
// the role's index in the enabled set.
func (p *Pipeline) affinityFor(role worker.Role) int {
	for i, r := range p.enabledRoles() {
		if r == role {
			return i
		}
	}
	return -1
}

// Run starts the pipeline and blocks until ctx is cancelled, then executes
// the shutdown protocol: workers first, aggregator next, shared store last.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("pipeline: already running")
	}
	p.running = true
	p.started = time.Now()
	p.mu.Unlock()

	if err := p.sup.Start(ctx, p.enabledRoles()); err != nil {
		p.teardown()
		return err
	}

	aggCtx, aggCancel := context.WithCancel(context.Background())
	aggDone := make(chan struct{})
	go func() {
		p.agg.Run(aggCtx)
		close(aggDone)
	}()

	<-ctx.Done()
	p.logger.Info("pipeline stopping")

	p.sup.Shutdown()
	aggCancel()
	<-aggDone
	p.teardown()

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.logger.Info("pipeline stopped")
	return nil
}

func (p *Pipeline) teardown() {
	p.intake.Close()
	p.bus.Close()
	p.ring.Close()
}

// Ingest accepts one externally captured frame. Never blocks: an unconsumed
// pending frame is replaced (freshness over completeness). Returns an error
// only for frames the store cannot hold.
func (p *Pipeline) Ingest(raw frame.RawFrame) error {
	if err := raw.Validate(); err != nil {
		return err
	}
	if raw.Width > p.cfg.Pipeline.MaxWidth || raw.Height > p.cfg.Pipeline.MaxHeight {
		return fmt.Errorf("pipeline: frame %dx%d exceeds configured maximum %dx%d",
			raw.Width, raw.Height, p.cfg.Pipeline.MaxWidth, p.cfg.Pipeline.MaxHeight)
	}
	p.intake.Offer(raw)
	return nil
}

// Subscribe attaches a bounded-channel subscriber to the merged result
// stream. See resultbus for the drop semantics.
func (p *Pipeline) Subscribe(id string, ch chan<- aggregate.FrameResult) error {
	return p.bus.Subscribe(id, ch)
}

// SubscribeLatest attaches a latest-only subscriber.
func (p *Pipeline) SubscribeLatest(id string) (*resultbus.LatestReceiver, error) {
	return p.bus.SubscribeLatest(id)
}

// Unsubscribe detaches a subscriber.
func (p *Pipeline) Unsubscribe(id string) error {
	return p.bus.Unsubscribe(id)
}
