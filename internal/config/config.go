// Package config loads and validates the pipeline configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Pipeline contains frame store and channel configuration.
type Pipeline struct {
	FrameSlots    int    `toml:"frame_slots"`
	MaxWidth      int    `toml:"max_width"`
	MaxHeight     int    `toml:"max_height"`
	PixelFormat   string `toml:"pixel_format"`
	PollTimeoutMS int    `toml:"poll_timeout_ms"`
	ResultBuffer  int    `toml:"result_buffer"`
}

// Roles contains per-role enable flags. The capture role is always on.
type Roles struct {
	Safety         bool `toml:"safety"`
	OpenVocabulary bool `toml:"open_vocabulary"`
	Encode         bool `toml:"encode"`
}

// Supervisor contains worker lifecycle tuning.
type Supervisor struct {
	HeartbeatTimeoutMS int `toml:"heartbeat_timeout_ms"`
	MonitorIntervalMS  int `toml:"monitor_interval_ms"`
	ReadyTimeoutMS     int `toml:"ready_timeout_ms"`
	ShutdownGraceMS    int `toml:"shutdown_grace_ms"`
	MaxRestarts        int `toml:"max_restarts"`
	RestartWindowS     int `toml:"restart_window_s"`
}

// Aggregator contains correlation window tuning.
type Aggregator struct {
	WindowSize      int     `toml:"window_size"`
	WindowTimeoutMS int     `toml:"window_timeout_ms"`
	IoUThreshold    float64 `toml:"iou_threshold"`
}

// Worker contains per-frame failure containment tuning.
type Worker struct {
	MaxConsecutiveFailures int `toml:"max_consecutive_failures"`
}

// Log contains logging options.
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root configuration document.
type Config struct {
	Pipeline   Pipeline   `toml:"pipeline"`
	Roles      Roles      `toml:"roles"`
	Supervisor Supervisor `toml:"supervisor"`
	Aggregator Aggregator `toml:"aggregator"`
	Worker     Worker     `toml:"worker"`
	Log        Log        `toml:"log"`
}

// Load reads the TOML file at path over repository defaults. A missing file
// yields the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (p Pipeline) PollTimeout() time.Duration { return msDuration(p.PollTimeoutMS) }

func (s Supervisor) HeartbeatTimeout() time.Duration { return msDuration(s.HeartbeatTimeoutMS) }

func (s Supervisor) MonitorInterval() time.Duration { return msDuration(s.MonitorIntervalMS) }

func (s Supervisor) ReadyTimeout() time.Duration { return msDuration(s.ReadyTimeoutMS) }

func (s Supervisor) ShutdownGrace() time.Duration { return msDuration(s.ShutdownGraceMS) }

func (s Supervisor) RestartWindow() time.Duration {
	return time.Duration(s.RestartWindowS) * time.Second
}

func (a Aggregator) WindowTimeout() time.Duration { return msDuration(a.WindowTimeoutMS) }

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
