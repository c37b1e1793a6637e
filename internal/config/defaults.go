package config

const (
	defaultFrameSlots       = 3
	defaultMaxWidth         = 1280
	defaultMaxHeight        = 720
	defaultPixelFormat      = "rgb24"
	defaultPollTimeoutMS    = 100
	defaultResultBuffer     = 64
	defaultHeartbeatTimeout = 2000
	defaultMonitorInterval  = 500
	defaultReadyTimeoutMS   = 5000
	defaultShutdownGraceMS  = 3000
	defaultMaxRestarts      = 3
	defaultRestartWindowS   = 60
	defaultWindowSize       = 16
	defaultWindowTimeoutMS  = 200
	defaultIoUThreshold     = 0.5
	defaultMaxConsecFail    = 5
	defaultLogLevel         = "info"
	defaultLogFormat        = "auto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Pipeline: Pipeline{
			FrameSlots:    defaultFrameSlots,
			MaxWidth:      defaultMaxWidth,
			MaxHeight:     defaultMaxHeight,
			PixelFormat:   defaultPixelFormat,
			PollTimeoutMS: defaultPollTimeoutMS,
			ResultBuffer:  defaultResultBuffer,
		},
		Roles: Roles{
			Safety:         true,
			OpenVocabulary: true,
			Encode:         false,
		},
		Supervisor: Supervisor{
			HeartbeatTimeoutMS: defaultHeartbeatTimeout,
			MonitorIntervalMS:  defaultMonitorInterval,
			ReadyTimeoutMS:     defaultReadyTimeoutMS,
			ShutdownGraceMS:    defaultShutdownGraceMS,
			MaxRestarts:        defaultMaxRestarts,
			RestartWindowS:     defaultRestartWindowS,
		},
		Aggregator: Aggregator{
			WindowSize:      defaultWindowSize,
			WindowTimeoutMS: defaultWindowTimeoutMS,
			IoUThreshold:    defaultIoUThreshold,
		},
		Worker: Worker{
			MaxConsecutiveFailures: defaultMaxConsecFail,
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}
