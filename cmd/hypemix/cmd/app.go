package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/cache"
	"github.com/eternnoir/hypemix/pkg/config"
	"github.com/eternnoir/hypemix/pkg/energy"
	"github.com/eternnoir/hypemix/pkg/logger"
	"github.com/eternnoir/hypemix/pkg/mashup"
	"github.com/eternnoir/hypemix/pkg/store"
)

// components holds everything a command needs, built from one Config
type components struct {
	processor *audio.ProcessorImpl
	decoder   *audio.DecoderImpl
	exporter  *audio.ExporterImpl
	profiler  *energy.Profiler
	cache     *cache.ProfileCache
	cached    *cache.CachedProfiler
	history   *store.Store
}

// newComponents wires the pipeline. The profile cache and the history store
// are opened only when requested and enabled in cfg.
func newComponents(cfg *config.Config, withCache, withHistory bool) (*components, error) {
	log := logger.WithComponent("setup")

	if err := os.MkdirAll(cfg.Audio.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}

	processor := audio.NewProcessor(cfg.Audio.TempDir, audio.ProcessorOptions{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Bitrate:    cfg.Output.Bitrate,
	})

	c := &components{
		processor: processor,
		decoder:   audio.NewDecoder(processor, cfg.Audio.TempDir, cfg.Audio.KeepTempFiles),
		exporter:  audio.NewExporter(processor, cfg.Audio.TempDir, cfg.Audio.KeepTempFiles),
		profiler: energy.NewProfiler(energy.Options{
			FrameSize:           cfg.Analysis.FrameSize,
			HopSize:             cfg.Analysis.HopSize,
			ThresholdMultiplier: cfg.Analysis.ThresholdMultiplier,
		}),
	}

	if withCache && cfg.Cache.Enabled {
		profileCache, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		c.cache = profileCache
		c.cached = cache.NewCachedProfiler(profileCache, c.profiler)
		log.Debug().Str("path", cfg.Cache.Path).Msg("Profile cache opened")
	}

	if withHistory && cfg.History.Enabled {
		history, err := store.Open(cfg.History.Path)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.history = history
		log.Debug().Str("path", cfg.History.Path).Msg("History store opened")
	}

	return c, nil
}

// profileSource returns the cached profiler when the cache is open
func (c *components) profileSource() mashup.ProfileSource {
	if c.cached != nil {
		return c.cached
	}
	return c.profiler
}

// historySink returns the store as a mashup.History, or nil when disabled
func (c *components) historySink() mashup.History {
	if c.history == nil {
		return nil
	}
	return c.history
}

func (c *components) sequencerOptions(cfg *config.Config) mashup.Options {
	return mashup.Options{
		FadeIn:         time.Duration(cfg.Mashup.FadeInMs) * time.Millisecond,
		FadeOut:        time.Duration(cfg.Mashup.FadeOutMs) * time.Millisecond,
		DedupTolerance: time.Duration(cfg.Mashup.DedupToleranceMs) * time.Millisecond,
		Workers:        cfg.Analysis.Workers,
		TrackTimeout:   cfg.Analysis.TrackTimeout,
	}
}

// Close releases the databases
func (c *components) Close() {
	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close profile cache")
		}
	}
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close history store")
		}
	}
}
