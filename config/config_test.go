package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 0.65, cfg.Detection.ROIYPercent)
	assert.Equal(t, 200, cfg.Detection.BrightnessThreshold)
	assert.True(t, cfg.Detection.UseMorphology)
	assert.Equal(t, 100.0, cfg.Detection.MinArea)
	assert.Equal(t, 5000.0, cfg.Detection.MaxArea)
	assert.Equal(t, 3.0, cfg.Detection.SampleFPS)
	assert.Equal(t, 0.8, cfg.Detection.GroupingDeltaT)
	assert.Equal(t, 3, cfg.Detection.MinBoxesForMultikill)

	assert.False(t, cfg.Clipping.Enabled)
	assert.Equal(t, 2.0, cfg.Clipping.PrePaddingSeconds)
	assert.Equal(t, 5.0, cfg.Clipping.ClusterThresholdSeconds)

	assert.True(t, cfg.Export.ExportCSV)
	assert.True(t, cfg.Export.ExportJSON)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "killfeed.yaml")
	content := []byte(`
detection:
  brightness_threshold: 180
  sample_fps: 5.0
clipping:
  enabled: true
  allowed_tags: [MULTI_KILL]
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 180, cfg.Detection.BrightnessThreshold)
	assert.Equal(t, 5.0, cfg.Detection.SampleFPS)
	assert.True(t, cfg.Clipping.Enabled)
	assert.Equal(t, []string{"MULTI_KILL"}, cfg.Clipping.AllowedTags)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.8, cfg.Detection.GroupingDeltaT)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "killfeed.yaml")

	cfg := Default()
	cfg.Detection.ROIXPercent = 0.12
	cfg.Detection.ROIYPercent = 0.6
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestMatchesExtension(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.MatchesExtension("round1.mp4"))
	assert.True(t, cfg.MatchesExtension("ROUND1.MP4"))
	assert.True(t, cfg.MatchesExtension("match.DVR.mp4"))
	assert.False(t, cfg.MatchesExtension("notes.txt"))
}
