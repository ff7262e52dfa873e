package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/eternnoir/hypemix/pkg/logger"
)

// Config represents the application configuration
type Config struct {
	// Decoding and Export Configuration
	Audio AudioConfig `yaml:"audio" mapstructure:"audio"`

	// Energy Analysis Configuration
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`

	// Mashup Configuration
	Mashup MashupConfig `yaml:"mashup" mapstructure:"mashup"`

	// Output Configuration
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// Profile Cache Configuration
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Mashup History Configuration
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Watch Configuration
	Watch WatchConfig `yaml:"watch" mapstructure:"watch"`

	// Logging Configuration
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// AudioConfig contains decoding settings
type AudioConfig struct {
	// Canonical format every track is decoded to
	SampleRate int `yaml:"sample_rate" mapstructure:"sample_rate"`
	Channels   int `yaml:"channels" mapstructure:"channels"`

	// Processing Configuration
	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
	KeepTempFiles bool   `yaml:"keep_temp_files" mapstructure:"keep_temp_files"`
}

// AnalysisConfig contains energy profiling settings
type AnalysisConfig struct {
	FrameSize           int     `yaml:"frame_size" mapstructure:"frame_size"`
	HopSize             int     `yaml:"hop_size" mapstructure:"hop_size"`
	ThresholdMultiplier float64 `yaml:"threshold_multiplier" mapstructure:"threshold_multiplier"`

	// Number of tracks profiled concurrently
	Workers int `yaml:"workers" mapstructure:"workers"`

	// A track that takes longer than this contributes no candidates
	TrackTimeout time.Duration `yaml:"track_timeout" mapstructure:"track_timeout"`
}

// MashupConfig contains sequencing settings
type MashupConfig struct {
	Intensity    string `yaml:"intensity" mapstructure:"intensity"`
	TransitionMs int    `yaml:"transition_ms" mapstructure:"transition_ms"`
	FadeInMs     int    `yaml:"fade_in_ms" mapstructure:"fade_in_ms"`
	FadeOutMs    int    `yaml:"fade_out_ms" mapstructure:"fade_out_ms"`

	// 0 keeps exact timestamp equality for de-duplication
	DedupToleranceMs int `yaml:"dedup_tolerance_ms" mapstructure:"dedup_tolerance_ms"`
}

// OutputConfig contains output settings
type OutputConfig struct {
	Path    string `yaml:"path" mapstructure:"path"`
	Bitrate string `yaml:"bitrate" mapstructure:"bitrate"`

	// Write a JSON sidecar with the segment list next to the output
	WriteMetadata bool `yaml:"write_metadata" mapstructure:"write_metadata"`
}

// CacheConfig contains profile cache settings
type CacheConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// HistoryConfig contains mashup history settings
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
}

// WatchConfig contains crate watch settings
type WatchConfig struct {
	// File patterns to watch (e.g., "*.mp3", "*.wav")
	Patterns []string `yaml:"patterns" mapstructure:"patterns"`

	// Whether to watch subdirectories recursively
	Recursive bool `yaml:"recursive" mapstructure:"recursive"`

	// Polling interval for checking new files
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`

	// Time to wait for file stability before analyzing
	StabilityWait time.Duration `yaml:"stability_wait" mapstructure:"stability_wait"`

	// Whether to analyze files already present on startup
	ProcessExisting bool `yaml:"process_existing" mapstructure:"process_existing"`

	// Maximum number of concurrent analysis workers
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate: 44100,
			Channels:   2,
			TempDir:    filepath.Join(os.TempDir(), "hypemix"),
		},
		Analysis: AnalysisConfig{
			FrameSize:           2048,
			HopSize:             512,
			ThresholdMultiplier: 1.5,
			Workers:             4,
			TrackTimeout:        30 * time.Second,
		},
		Mashup: MashupConfig{
			Intensity:    "medium",
			TransitionMs: 1500,
			FadeInMs:     500,
			FadeOutMs:    500,
		},
		Output: OutputConfig{
			Path:          "mashup.mp3",
			Bitrate:       "192k",
			WriteMetadata: true,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    ".hypemix-cache.db",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    ".hypemix-history.db",
		},
		Watch: WatchConfig{
			Patterns:        []string{"*.mp3", "*.wav", "*.flac", "*.m4a", "*.ogg"},
			Recursive:       false,
			Interval:        5 * time.Second,
			StabilityWait:   2 * time.Second,
			ProcessExisting: true,
			MaxWorkers:      2,
		},
		Logging: *logger.DefaultConfig(),
	}
}
