package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all analyzer configuration, grouped the way the pipeline
// consumes it. Zero values are never used directly; Load always starts
// from Default().
type Config struct {
	OutputFolder    string   `yaml:"output_folder"`
	VideoExtensions []string `yaml:"video_extensions"`
	IndexPath       string   `yaml:"index_path"`

	Detection DetectionConfig `yaml:"detection"`
	Clipping  ClippingConfig  `yaml:"clipping"`
	Export    ExportConfig    `yaml:"export"`
	Verbosity VerbosityConfig `yaml:"verbosity"`
}

// DetectionConfig controls ROI cropping, thresholding, shape filtering and
// event grouping. ROI coordinates are percentages of the frame so the same
// config works at any capture resolution.
type DetectionConfig struct {
	ROIXPercent      float64 `yaml:"roi_x_percent"`
	ROIYPercent      float64 `yaml:"roi_y_percent"`
	ROIWidthPercent  float64 `yaml:"roi_width_percent"`
	ROIHeightPercent float64 `yaml:"roi_height_percent"`

	BrightnessThreshold int  `yaml:"brightness_threshold"`
	UseMorphology       bool `yaml:"use_morphology"`
	MorphKernelSize     int  `yaml:"morph_kernel_size"`

	MinArea        float64 `yaml:"min_area"`
	MaxArea        float64 `yaml:"max_area"`
	AspectRatioMin float64 `yaml:"aspect_ratio_min"`
	AspectRatioMax float64 `yaml:"aspect_ratio_max"`

	SampleFPS            float64 `yaml:"sample_fps"`
	GroupingDeltaT       float64 `yaml:"grouping_delta_t"`
	MinBoxesForMultikill int     `yaml:"min_boxes_for_multikill"`
}

// ClippingConfig controls event filtering, clustering and clip extraction.
type ClippingConfig struct {
	Enabled                 bool     `yaml:"enabled"`
	MinConfidence           float64  `yaml:"min_confidence"`
	MinBoxCount             int      `yaml:"min_box_count"`
	AllowedTags             []string `yaml:"allowed_tags"`
	MaxClips                int      `yaml:"max_clips"`
	PrePaddingSeconds       float64  `yaml:"pre_padding_seconds"`
	PostPaddingSeconds      float64  `yaml:"post_padding_seconds"`
	ClusterThresholdSeconds float64  `yaml:"cluster_threshold_seconds"`
}

type ExportConfig struct {
	ExportCSV  bool `yaml:"export_csv"`
	ExportJSON bool `yaml:"export_json"`
}

type VerbosityConfig struct {
	LogLevel           string `yaml:"log_level"`
	ShowDetectionStats bool   `yaml:"show_detection_stats"`
}

// Default returns the tuned baseline configuration. The detection constants
// are heuristics calibrated against 1080p killfeed captures.
func Default() *Config {
	return &Config{
		OutputFolder:    "output",
		VideoExtensions: []string{".mp4", ".mkv", ".avi", ".mov", ".DVR.mp4"},
		IndexPath:       "output/processed.db",
		Detection: DetectionConfig{
			ROIXPercent:          0.0,
			ROIYPercent:          0.65,
			ROIWidthPercent:      0.35,
			ROIHeightPercent:     0.25,
			BrightnessThreshold:  200,
			UseMorphology:        true,
			MorphKernelSize:      3,
			MinArea:              100,
			MaxArea:              5000,
			AspectRatioMin:       0.3,
			AspectRatioMax:       3.0,
			SampleFPS:            3.0,
			GroupingDeltaT:       0.8,
			MinBoxesForMultikill: 3,
		},
		Clipping: ClippingConfig{
			Enabled:                 false,
			MinConfidence:           0.0,
			MinBoxCount:             1,
			AllowedTags:             nil,
			MaxClips:                0,
			PrePaddingSeconds:       2.0,
			PostPaddingSeconds:      2.0,
			ClusterThresholdSeconds: 5.0,
		},
		Export: ExportConfig{
			ExportCSV:  true,
			ExportJSON: true,
		},
		Verbosity: VerbosityConfig{
			LogLevel:           "info",
			ShowDetectionStats: false,
		},
	}
}

// Load reads configuration from path, or from the first discovered default
// location when path is empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories. Used
// by the ROI picker to persist selected crop percentages.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func findConfigFile() string {
	candidates := []string{
		"./killfeed.yaml",
		"./killfeed.yml",
		filepath.Join(os.Getenv("HOME"), ".killfeed", "killfeed.yaml"),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// MatchesExtension reports whether name ends with one of the configured
// video extensions, case-insensitively.
func (c *Config) MatchesExtension(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range c.VideoExtensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}
