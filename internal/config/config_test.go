package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 3, cfg.Pipeline.FrameSlots)
	assert.Equal(t, "rgb24", cfg.Pipeline.PixelFormat)
	assert.True(t, cfg.Roles.Safety)
	assert.True(t, cfg.Roles.OpenVocabulary)
	assert.False(t, cfg.Roles.Encode)
	assert.Equal(t, 200*time.Millisecond, cfg.Aggregator.WindowTimeout())
	assert.Equal(t, 2*time.Second, cfg.Supervisor.HeartbeatTimeout())
	assert.Equal(t, time.Minute, cfg.Supervisor.RestartWindow())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cortex.toml")
	doc := `
[pipeline]
frame_slots = 5
max_width = 640
max_height = 480

[roles]
open_vocabulary = false
encode = true

[aggregator]
window_timeout_ms = 150
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Pipeline.FrameSlots)
	assert.Equal(t, 640, cfg.Pipeline.MaxWidth)
	assert.Equal(t, 480, cfg.Pipeline.MaxHeight)
	assert.False(t, cfg.Roles.OpenVocabulary)
	assert.True(t, cfg.Roles.Safety, "unset keys keep defaults")
	assert.True(t, cfg.Roles.Encode)
	assert.Equal(t, 150*time.Millisecond, cfg.Aggregator.WindowTimeout())
	assert.Equal(t, 100*time.Millisecond, cfg.Pipeline.PollTimeout())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	doc := `
[pipeline]
frame_slots = 1

[aggregator]
iou_threshold = 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame_slots")
	assert.Contains(t, err.Error(), "iou_threshold")
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[pipeline\nframe_slots = 3"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRequiresOneDetectionRole(t *testing.T) {
	cfg := Default()
	cfg.Roles.Safety = false
	cfg.Roles.OpenVocabulary = false

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detection role")
}
