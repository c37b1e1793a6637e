package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/aggregate"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/config"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/detect"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/frame"
	"github.com/IRSPlays/ProjectCortexV2-sub004/internal/logging"
)

func testPipelineConfig() *config.Config {
	cfg := config.Default()
	cfg.Pipeline.MaxWidth = 16
	cfg.Pipeline.MaxHeight = 16
	cfg.Pipeline.PollTimeoutMS = 20
	cfg.Supervisor.MonitorIntervalMS = 100
	cfg.Aggregator.WindowTimeoutMS = 100
	return &cfg
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Pipeline.FrameSlots = 1
	_, err := New(cfg, logging.NewNop())
	require.Error(t, err)
}

func TestNewRejectsUnknownPixelFormat(t *testing.T) {
	cfg := testPipelineConfig()
	cfg.Pipeline.PixelFormat = "yuv420"
	_, err := New(cfg, logging.NewNop())
	require.Error(t, err)
}

func TestIngestRejectsOversizedFrame(t *testing.T) {
	p, err := New(testPipelineConfig(), logging.NewNop())
	require.NoError(t, err)

	big := frame.RawFrame{Width: 32, Height: 32, Format: frame.FormatRGB24, Data: make([]byte, 32*32*3)}
	assert.Error(t, p.Ingest(big))

	bad := frame.RawFrame{Width: 16, Height: 16, Format: frame.FormatRGB24, Data: make([]byte, 7)}
	assert.Error(t, p.Ingest(bad))
}

// TestPipelineEndToEnd drives the full path: inject frames, let the stub
// detectors run under supervision, and read merged results off the bus.
func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end run")
	}

	cfg := testPipelineConfig()
	p, err := New(cfg, logging.NewNop())
	require.NoError(t, err)

	results := make(chan aggregate.FrameResult, 64)
	require.NoError(t, p.Subscribe("test", results))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	// Wait for the supervisor to report all workers running.
	require.Eventually(t, func() bool {
		st := p.Health()
		return st.Status == "healthy" && len(st.Workers) == 3
	}, 5*time.Second, 20*time.Millisecond, "pipeline never became healthy")

	src := frame.NewSyntheticSource(16, 16, 0, frame.FormatRGB24)
	for n := uint64(0); n < 30; n++ {
		require.NoError(t, p.Ingest(src.Generate(n)))
		time.Sleep(15 * time.Millisecond)
	}

	var received []aggregate.FrameResult
	deadline := time.After(3 * time.Second)
collect:
	for len(received) < 5 {
		select {
		case res := <-results:
			received = append(received, res)
		case <-deadline:
			break collect
		}
	}
	require.GreaterOrEqual(t, len(received), 5, "merged results did not flow end to end")

	var lastSeq uint64
	sawDetections := false
	for _, res := range received {
		assert.Greater(t, res.SequenceID, lastSeq, "emission must stay ordered")
		lastSeq = res.SequenceID
		for _, d := range res.Detections {
			sawDetections = true
			assert.Equal(t, detect.LayerSafety, d.Layer, "primary detections come from the safety layer")
			assert.Equal(t, res.SequenceID, d.SourceSequenceID)
		}
	}
	assert.True(t, sawDetections, "no detections in any merged result")

	st := p.Health()
	assert.NotZero(t, st.Ring.Published)
	assert.NotZero(t, st.Aggregator.Emitted)

	cancel()
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline did not shut down")
	}
	assert.Equal(t, "stopped", p.Health().Status)
}

func TestRunTwiceFails(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end run")
	}

	p, err := New(testPipelineConfig(), logging.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return p.Health().Status == "healthy"
	}, 5*time.Second, 20*time.Millisecond)

	assert.Error(t, p.Run(ctx), "second Run must be rejected while the first is live")

	cancel()
	require.NoError(t, <-runDone)
}
