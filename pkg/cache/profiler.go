package cache

import (
	"context"
	"time"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/energy"
	"github.com/eternnoir/hypemix/pkg/logger"
)

// CachedProfiler serves profiles from the cache and analyzes on a miss.
// Tracks whose ID is not a readable file are always analyzed.
type CachedProfiler struct {
	cache    *ProfileCache
	profiler *energy.Profiler
}

// NewCachedProfiler wraps profiler with cache
func NewCachedProfiler(cache *ProfileCache, profiler *energy.Profiler) *CachedProfiler {
	return &CachedProfiler{
		cache:    cache,
		profiler: profiler,
	}
}

// Profile returns the profile for track. Cached profiles carry no frames.
func (p *CachedProfiler) Profile(ctx context.Context, track *audio.Track) (*energy.Profile, error) {
	log := logger.ComponentFromContext(ctx, "profile-cache").WithTrack(track.ID)

	hash, err := FileHash(track.ID)
	if err != nil {
		log.Debug().Err(err).Msg("Track is not a file, analyzing without cache")
		return p.profiler.Profile(ctx, track)
	}
	key := Key(hash, track.PCM.SampleRate, p.profiler.Options())

	entry, err := p.cache.Get(key)
	if err != nil {
		log.Warn().Err(err).Msg("Cache lookup failed")
	} else if entry != nil && entry.Profile != nil {
		log.Debug().Time("analyzed_at", entry.AnalyzedAt).Msg("Profile cache hit")
		profile := *entry.Profile
		profile.TrackID = track.ID
		return &profile, nil
	}

	startTime := time.Now()
	profile, err := p.profiler.Profile(ctx, track)
	if err != nil {
		if ctx.Err() == nil {
			if recErr := p.cache.RecordFailed(&FailedEntry{
				Key:      key,
				FilePath: track.ID,
				FailedAt: time.Now(),
				Error:    err.Error(),
			}); recErr != nil {
				log.Warn().Err(recErr).Msg("Failed to record analysis failure")
			}
		}
		return nil, err
	}

	stored := *profile
	stored.Frames = nil
	if err := p.cache.Put(&Entry{
		Key:        key,
		FilePath:   track.ID,
		AnalyzedAt: time.Now(),
		Elapsed:    time.Since(startTime),
		Profile:    &stored,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to store profile")
	}

	return profile, nil
}

// Options returns the wrapped profiler's analysis parameters
func (p *CachedProfiler) Options() energy.Options {
	return p.profiler.Options()
}
