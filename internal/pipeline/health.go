package pipeline

import (
	"time"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/aggregate"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/framering"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/supervisor"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/worker"
)

// Status is the health/status query result for external observability
// tooling.
type Status struct {
	// Status is "healthy", "degraded" or "stopped". Degraded means the
	// pipeline runs with at least one role permanently disabled or
	// currently unhealthy.
	Status        string                  `json:"status"`
	UptimeSeconds int64                   `json:"uptime_seconds"`
	Workers       []supervisor.Descriptor `json:"workers"`
	Ring          framering.Stats         `json:"ring"`
	Aggregator    aggregate.Stats         `json:"aggregator"`
	IntakeDrops   uint64                  `json:"intake_drops"`
}

// Health returns a point-in-time snapshot. Safe for concurrent use.
func (p *Pipeline) Health() Status {
	p.mu.Lock()
	running := p.running
	started := p.started
	p.mu.Unlock()

	workers := p.sup.Health()

	status := "stopped"
	if running {
		status = "healthy"
		for _, d := range workers {
			if d.Degraded || d.State == worker.StateUnhealthy {
				status = "degraded"
				break
			}
		}
	}

	var uptime int64
	if running {
		uptime = int64(time.Since(started).Seconds())
	}

	return Status{
		Status:        status,
		UptimeSeconds: uptime,
		Workers:       workers,
		Ring:          p.ring.Stats(),
		Aggregator:    p.agg.Stats(),
		IntakeDrops:   p.intake.Drops(),
	}
}
