// Package aggregate merges per-frame results from independent detection
// workers into one ordered, de-duplicated, priority-resolved stream.
//
// Results for a frame are held in a bounded correlation window until every
// enabled layer has reported or the window timeout elapses, whichever
// happens first. Emission is in sequence order; a frame that times out is
// emitted partial and flagged, so the safety consumer downstream is never
// starved by a slow open-vocabulary stage.
package aggregate

import (
	"context"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/detect"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/worker"
)

// Config tunes the correlation window and the priority rule.
type Config struct {
	// WindowSize bounds the number of in-flight sequence ids. Overflow
	// evicts the oldest entry, emitted partial.
	WindowSize int
	// WindowTimeout bounds how long a frame waits for all layers.
	WindowTimeout time.Duration
	// IoUThreshold is the overlap above which the safety result takes
	// precedence and the open-vocabulary result becomes its secondary
	// annotation.
	IoUThreshold float64
	// Layers are the enabled detection layers; an entry is complete once
	// all of them reported.
	Layers []detect.Layer
}

// MergedDetection is one priority-resolved detection: the primary result
// plus any lower-priority reports that overlapped it.
type MergedDetection struct {
	detect.Detection
	Secondary []detect.Detection `json:"secondary,omitempty"`
}

// FrameResult is the merged output for one frame.
type FrameResult struct {
	SequenceID uint64            `json:"sequence_id"`
	Detections []MergedDetection `json:"detections"`
	// Unmatched carries open-vocabulary detections that overlapped no
	// safety box. Emitted as independent secondary detections; downstream
	// may filter.
	Unmatched []detect.Detection `json:"unmatched,omitempty"`
	// Partial is true when not every enabled layer reported before the
	// window timeout or an overflow eviction.
	Partial   bool           `json:"partial"`
	Layers    []detect.Layer `json:"layers"`
	EmittedAt time.Time      `json:"emitted_at"`
}

// Stats is the aggregator's operational snapshot.
type Stats struct {
	Emitted   uint64 `json:"emitted"`
	Partials  uint64 `json:"partials"`
	Overflows uint64 `json:"overflows"`
	// LateDrops counts results that arrived after their frame was already
	// emitted (typically an open-vocabulary report lagging past the window
	// timeout) and were discarded to keep the output stream ordered.
	LateDrops uint64 `json:"late_drops"`
}

// pending is one correlation window entry.
type pending struct {
	seq      uint64
	deadline time.Time
	byLayer  map[detect.Layer][]detect.Detection
}

// Aggregator consumes worker results and emits merged frame results through
// the publish callback. Single goroutine; channels are its only inputs.
type Aggregator struct {
	cfg     Config
	logger  *slog.Logger
	results <-chan worker.Result
	publish func(FrameResult)

	window map[uint64]*pending
	order  []uint64 // ascending sequence ids present in window
	// lastEmitted is the highest sequence id already published. Results
	// arriving at or below it are late stragglers; re-opening their entry
	// would emit the frame twice and out of order, so they are dropped.
	lastEmitted uint64

	emitted   atomic.Uint64
	partials  atomic.Uint64
	overflows atomic.Uint64
	lateDrops atomic.Uint64
}

// New wires an aggregator. publish is called inline from the aggregator
// goroutine and must not block.
func New(cfg Config, results <-chan worker.Result, publish func(FrameResult), logger *slog.Logger) *Aggregator {
	return &Aggregator{
		cfg:     cfg,
		logger:  logger.With(logging.String("component", "aggregator")),
		results: results,
		publish: publish,
		window:  make(map[uint64]*pending, cfg.WindowSize),
	}
}

// Run processes results until the channel closes or ctx is cancelled.
// Remaining window entries are flushed partial on the way out.
func (a *Aggregator) Run(ctx context.Context) {
	// The ticker drives deadline flushes; a quarter of the window timeout
	// keeps emission latency well under one timeout.
	tick := a.cfg.WindowTimeout / 4
	if tick < 5*time.Millisecond {
		tick = 5 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case res, ok := <-a.results:
			if !ok {
				a.drain()
				return
			}
			a.ingest(res)
			a.flush(time.Now())
		case now := <-ticker.C:
			a.flush(now)
		}
	}
}

// Stats returns a snapshot, safe for concurrent use.
func (a *Aggregator) Stats() Stats {
	return Stats{
		Emitted:   a.emitted.Load(),
		Partials:  a.partials.Load(),
		Overflows: a.overflows.Load(),
		LateDrops: a.lateDrops.Load(),
	}
}

func (a *Aggregator) ingest(res worker.Result) {
	layer, ok := res.Role.Layer()
	if !ok || len(res.Detections) == 0 {
		return
	}
	if res.SourceSequenceID <= a.lastEmitted {
		a.lateDrops.Add(1)
		a.logger.Debug("result arrived after frame emission, dropping",
			logging.Uint64("seq", res.SourceSequenceID),
			logging.String("role", res.Role.String()))
		return
	}

	p := a.window[res.SourceSequenceID]
	if p == nil {
		if len(a.window) >= a.cfg.WindowSize {
			a.evictOldest()
		}
		p = &pending{
			seq:      res.SourceSequenceID,
			deadline: time.Now().Add(a.cfg.WindowTimeout),
			byLayer:  make(map[detect.Layer][]detect.Detection, len(a.cfg.Layers)),
		}
		a.window[res.SourceSequenceID] = p
		a.insertOrdered(res.SourceSequenceID)
	}
	p.byLayer[layer] = dedupe(append(p.byLayer[layer], res.Detections...))
}

// evictOldest frees one window slot by emitting the oldest entry partial.
func (a *Aggregator) evictOldest() {
	if len(a.order) == 0 {
		return
	}
	seq := a.order[0]
	a.overflows.Add(1)
	a.logger.Warn("correlation window overflow, evicting oldest entry", logging.Uint64("seq", seq))
	a.emit(a.window[seq])
	delete(a.window, seq)
	a.order = a.order[1:]
}

func (a *Aggregator) insertOrdered(seq uint64) {
	i := sort.Search(len(a.order), func(i int) bool { return a.order[i] >= seq })
	a.order = append(a.order, 0)
	copy(a.order[i+1:], a.order[i:])
	a.order[i] = seq
}

// flush emits from the head of the window while the head entry is complete
// or expired. Holding completed entries behind an incomplete older one
// keeps the output ordered; the older entry's own deadline bounds the
// delay.
func (a *Aggregator) flush(now time.Time) {
	for len(a.order) > 0 {
		seq := a.order[0]
		p := a.window[seq]
		if !a.complete(p) && now.Before(p.deadline) {
			return
		}
		a.emit(p)
		delete(a.window, seq)
		a.order = a.order[1:]
	}
}

// drain emits everything left, partial or not, so shutdown never swallows
// results already received.
func (a *Aggregator) drain() {
	for _, seq := range a.order {
		a.emit(a.window[seq])
		delete(a.window, seq)
	}
	a.order = a.order[:0]
}

func (a *Aggregator) complete(p *pending) bool {
	for _, l := range a.cfg.Layers {
		if len(p.byLayer[l]) == 0 {
			return false
		}
	}
	return true
}

// emit merges and publishes one entry. The merge depends only on the
// accumulated sets, never on arrival order.
func (a *Aggregator) emit(p *pending) {
	res := a.merge(p)
	if p.seq > a.lastEmitted {
		a.lastEmitted = p.seq
	}
	a.emitted.Add(1)
	if res.Partial {
		a.partials.Add(1)
		a.logger.Debug("partial result emitted", logging.Uint64("seq", res.SequenceID))
	}
	a.publish(res)
}

func (a *Aggregator) merge(p *pending) FrameResult {
	safety := p.byLayer[detect.LayerSafety]
	openVocab := p.byLayer[detect.LayerOpenVocabulary]

	merged := make([]MergedDetection, 0, len(safety))
	claimed := make([]bool, len(openVocab))

	for _, s := range safety {
		m := MergedDetection{Detection: s}
		for i, o := range openVocab {
			if s.BBox.IoU(o.BBox) > a.cfg.IoUThreshold {
				// Priority rule: safety label and confidence win; the
				// open-vocabulary report is kept as an annotation.
				m.Secondary = append(m.Secondary, o)
				claimed[i] = true
			}
		}
		merged = append(merged, m)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Confidence > merged[j].Confidence })

	var unmatched []detect.Detection
	for i, o := range openVocab {
		if !claimed[i] {
			unmatched = append(unmatched, o)
		}
	}

	layers := make([]detect.Layer, 0, len(p.byLayer))
	for _, l := range a.cfg.Layers {
		if len(p.byLayer[l]) > 0 {
			layers = append(layers, l)
		}
	}

	return FrameResult{
		SequenceID: p.seq,
		Detections: merged,
		Unmatched:  unmatched,
		Partial:    len(layers) < len(a.cfg.Layers),
		Layers:     layers,
		EmittedAt:  time.Now(),
	}
}

// dedupe removes exact duplicates (same class and box) within one layer,
// e.g. from a retried worker delivery.
func dedupe(dets []detect.Detection) []detect.Detection {
	out := dets[:0]
	for _, d := range dets {
		dup := false
		for _, kept := range out {
			if kept.Class == d.Class && kept.BBox == d.BBox {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, d)
		}
	}
	return out
}
