package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks scalar bounds. It collects every violation so operators can
// fix a config file in one pass.
func (c *Config) Validate() error {
	var problems []string

	if c.Pipeline.FrameSlots < 2 {
		problems = append(problems, fmt.Sprintf("pipeline.frame_slots must be at least 2 (got %d)", c.Pipeline.FrameSlots))
	}
	if c.Pipeline.MaxWidth <= 0 || c.Pipeline.MaxHeight <= 0 {
		problems = append(problems, fmt.Sprintf("pipeline.max_width/max_height must be positive (got %dx%d)", c.Pipeline.MaxWidth, c.Pipeline.MaxHeight))
	}
	if c.Pipeline.PollTimeoutMS <= 0 {
		problems = append(problems, "pipeline.poll_timeout_ms must be positive")
	}
	if c.Pipeline.ResultBuffer <= 0 {
		problems = append(problems, "pipeline.result_buffer must be positive")
	}
	if !c.Roles.Safety && !c.Roles.OpenVocabulary {
		problems = append(problems, "roles: at least one detection role must be enabled")
	}
	if c.Supervisor.HeartbeatTimeoutMS <= 0 {
		problems = append(problems, "supervisor.heartbeat_timeout_ms must be positive")
	}
	if c.Supervisor.MonitorIntervalMS <= 0 {
		problems = append(problems, "supervisor.monitor_interval_ms must be positive")
	}
	if c.Supervisor.ReadyTimeoutMS <= 0 {
		problems = append(problems, "supervisor.ready_timeout_ms must be positive")
	}
	if c.Supervisor.ShutdownGraceMS <= 0 {
		problems = append(problems, "supervisor.shutdown_grace_ms must be positive")
	}
	if c.Supervisor.MaxRestarts < 0 {
		problems = append(problems, "supervisor.max_restarts must not be negative")
	}
	if c.Supervisor.RestartWindowS <= 0 {
		problems = append(problems, "supervisor.restart_window_s must be positive")
	}
	if c.Aggregator.WindowSize <= 0 {
		problems = append(problems, "aggregator.window_size must be positive")
	}
	if c.Aggregator.WindowTimeoutMS <= 0 {
		problems = append(problems, "aggregator.window_timeout_ms must be positive")
	}
	if c.Aggregator.IoUThreshold <= 0 || c.Aggregator.IoUThreshold > 1 {
		problems = append(problems, fmt.Sprintf("aggregator.iou_threshold must be in (0, 1] (got %g)", c.Aggregator.IoUThreshold))
	}
	if c.Worker.MaxConsecutiveFailures <= 0 {
		problems = append(problems, "worker.max_consecutive_failures must be positive")
	}

	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}
