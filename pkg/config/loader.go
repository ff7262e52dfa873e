package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Transition duration bounds in milliseconds
const (
	MinTransitionMs = 100
	MaxTransitionMs = 3000
)

// Loader handles configuration loading and management
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	v := viper.New()

	// HYPEMIX_MASHUP_INTENSITY overrides mashup.intensity
	v.SetEnvPrefix("HYPEMIX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(".")
		v.AddConfigPath(home)
		v.SetConfigName(".hypemix")
		v.SetConfigType("yaml")
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Viper exposes the underlying viper instance so commands can bind flags
func (l *Loader) Viper() *viper.Viper {
	return l.viper
}

// Load reads and returns the configuration
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	if err := l.viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults and env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadWithOverrides loads configuration with command-line overrides
func (l *Loader) LoadWithOverrides(overrides map[string]interface{}) (*Config, error) {
	if _, err := l.Load(); err != nil {
		return nil, err
	}

	for key, value := range overrides {
		l.viper.Set(key, value)
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config with overrides: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Save writes the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configFile := l.configPath
	if configFile == "" {
		configFile = ".hypemix.yaml"
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	l.viper.Set("audio", cfg.Audio)
	l.viper.Set("analysis", cfg.Analysis)
	l.viper.Set("mashup", cfg.Mashup)
	l.viper.Set("output", cfg.Output)
	l.viper.Set("cache", cfg.Cache)
	l.viper.Set("history", cfg.History)
	l.viper.Set("watch", cfg.Watch)
	l.viper.Set("logging", cfg.Logging)

	if err := l.viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigFile returns the path to the config file being used
func (l *Loader) GetConfigFile() string {
	return l.viper.ConfigFileUsed()
}

func (l *Loader) setDefaults() {
	d := DefaultConfig()

	l.viper.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	l.viper.SetDefault("audio.channels", d.Audio.Channels)
	l.viper.SetDefault("audio.temp_dir", d.Audio.TempDir)
	l.viper.SetDefault("audio.keep_temp_files", d.Audio.KeepTempFiles)

	l.viper.SetDefault("analysis.frame_size", d.Analysis.FrameSize)
	l.viper.SetDefault("analysis.hop_size", d.Analysis.HopSize)
	l.viper.SetDefault("analysis.threshold_multiplier", d.Analysis.ThresholdMultiplier)
	l.viper.SetDefault("analysis.workers", d.Analysis.Workers)
	l.viper.SetDefault("analysis.track_timeout", d.Analysis.TrackTimeout)

	l.viper.SetDefault("mashup.intensity", d.Mashup.Intensity)
	l.viper.SetDefault("mashup.transition_ms", d.Mashup.TransitionMs)
	l.viper.SetDefault("mashup.fade_in_ms", d.Mashup.FadeInMs)
	l.viper.SetDefault("mashup.fade_out_ms", d.Mashup.FadeOutMs)
	l.viper.SetDefault("mashup.dedup_tolerance_ms", d.Mashup.DedupToleranceMs)

	l.viper.SetDefault("output.path", d.Output.Path)
	l.viper.SetDefault("output.bitrate", d.Output.Bitrate)
	l.viper.SetDefault("output.write_metadata", d.Output.WriteMetadata)

	l.viper.SetDefault("cache.enabled", d.Cache.Enabled)
	l.viper.SetDefault("cache.path", d.Cache.Path)
	l.viper.SetDefault("history.enabled", d.History.Enabled)
	l.viper.SetDefault("history.path", d.History.Path)

	l.viper.SetDefault("watch.patterns", d.Watch.Patterns)
	l.viper.SetDefault("watch.recursive", d.Watch.Recursive)
	l.viper.SetDefault("watch.interval", d.Watch.Interval)
	l.viper.SetDefault("watch.stability_wait", d.Watch.StabilityWait)
	l.viper.SetDefault("watch.process_existing", d.Watch.ProcessExisting)
	l.viper.SetDefault("watch.max_workers", d.Watch.MaxWorkers)

	l.viper.SetDefault("logging.level", d.Logging.Level)
	l.viper.SetDefault("logging.format", d.Logging.Format)
	l.viper.SetDefault("logging.output", d.Logging.Output)
	l.viper.SetDefault("logging.timestamp", d.Logging.Timestamp)
	l.viper.SetDefault("logging.caller", d.Logging.Caller)
	l.viper.SetDefault("logging.pretty_mode", d.Logging.PrettyMode)
}

// Validate checks the configuration for values the engine cannot run with
func Validate(cfg *Config) error {
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if cfg.Audio.Channels <= 0 {
		return fmt.Errorf("audio.channels must be positive")
	}

	if cfg.Analysis.FrameSize <= 0 || cfg.Analysis.HopSize <= 0 {
		return fmt.Errorf("analysis.frame_size and analysis.hop_size must be positive")
	}
	if cfg.Analysis.ThresholdMultiplier <= 0 {
		return fmt.Errorf("analysis.threshold_multiplier must be positive")
	}
	if cfg.Analysis.Workers <= 0 {
		return fmt.Errorf("analysis.workers must be positive")
	}
	if cfg.Analysis.TrackTimeout < 0 {
		return fmt.Errorf("analysis.track_timeout cannot be negative")
	}

	switch strings.ToLower(cfg.Mashup.Intensity) {
	case "low", "medium", "high", "1", "2", "3":
	default:
		return fmt.Errorf("mashup.intensity must be low, medium or high, got %q", cfg.Mashup.Intensity)
	}
	if cfg.Mashup.TransitionMs < MinTransitionMs || cfg.Mashup.TransitionMs > MaxTransitionMs {
		return fmt.Errorf("mashup.transition_ms must be between %d and %d", MinTransitionMs, MaxTransitionMs)
	}
	if cfg.Mashup.FadeInMs < 0 || cfg.Mashup.FadeOutMs < 0 {
		return fmt.Errorf("fade durations cannot be negative")
	}
	if cfg.Mashup.DedupToleranceMs < 0 {
		return fmt.Errorf("mashup.dedup_tolerance_ms cannot be negative")
	}

	if cfg.Output.Path == "" {
		return fmt.Errorf("output.path is required")
	}
	if cfg.Watch.MaxWorkers <= 0 {
		return fmt.Errorf("watch.max_workers must be positive")
	}

	return nil
}

// CreateSampleConfig creates a sample configuration file
func CreateSampleConfig(path string) error {
	return NewLoader(path).Save(DefaultConfig())
}
