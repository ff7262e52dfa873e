package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/cache"
	"github.com/eternnoir/hypemix/pkg/logger"
)

// fileAnalyzer implements FileAnalyzer on top of the profile cache
type fileAnalyzer struct {
	config     *WatchConfig
	decoder    audio.Decoder
	profiler   *cache.CachedProfiler
	cache      *cache.ProfileCache
	sampleRate int
	inFlight   *inFlight
	progress   ProgressCallback
}

// NewFileAnalyzer creates an analyzer. sampleRate must match the rate the
// decoder produces so cache keys line up with the ones a mix computes.
func NewFileAnalyzer(
	config *WatchConfig,
	decoder audio.Decoder,
	profileCache *cache.ProfileCache,
	profiler *cache.CachedProfiler,
	sampleRate int,
) FileAnalyzer {
	return &fileAnalyzer{
		config:     config,
		decoder:    decoder,
		profiler:   profiler,
		cache:      profileCache,
		sampleRate: sampleRate,
		inFlight:   newInFlight(),
	}
}

// SetProgressCallback sets the progress callback
func (fa *fileAnalyzer) SetProgressCallback(callback ProgressCallback) {
	fa.progress = callback
}

// AnalyzeFile decodes and profiles filePath unless it is already cached
func (fa *fileAnalyzer) AnalyzeFile(ctx context.Context, filePath string) error {
	log := logger.WithComponent("crate-analyzer").WithField("file", filepath.Base(filePath))

	if !fa.CanAnalyze(filePath) {
		fa.report(EventSkipped, filePath, "File cannot be analyzed", 0, nil)
		return nil
	}
	if !fa.inFlight.tryAcquire(filePath) {
		fa.report(EventSkipped, filePath, "File is already being analyzed", 0, nil)
		return nil
	}
	defer fa.inFlight.release(filePath)

	hash, err := cache.FileHash(filePath)
	if err != nil {
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	key := cache.Key(hash, fa.sampleRate, fa.profiler.Options())

	if cached, err := fa.cache.Has(key); err != nil {
		log.Warn().Err(err).Msg("Failed to check profile cache")
	} else if cached {
		fa.report(EventSkipped, filePath, "Profile already cached", 0, nil)
		return nil
	}

	if !fa.config.RetryFailed {
		if failed, err := fa.cache.GetFailed(key); err == nil && failed != nil {
			fa.report(EventSkipped, filePath, fmt.Sprintf("Analysis failed before: %s", failed.Error), 0, nil)
			return nil
		}
	}

	fa.report(EventAnalyzing, filePath, "Starting analysis", 0, nil)
	startTime := time.Now()

	analyzeCtx := ctx
	if fa.config.AnalysisTimeout > 0 {
		var cancel context.CancelFunc
		analyzeCtx, cancel = context.WithTimeout(ctx, fa.config.AnalysisTimeout)
		defer cancel()
	}

	track, err := fa.decoder.DecodeFile(analyzeCtx, filePath)
	if err != nil {
		if errors.Is(err, audio.ErrDecode) && ctx.Err() == nil {
			if recErr := fa.cache.RecordFailed(&cache.FailedEntry{
				Key:      key,
				FilePath: filePath,
				FailedAt: time.Now(),
				Error:    err.Error(),
			}); recErr != nil {
				log.Warn().Err(recErr).Msg("Failed to record failure")
			}
		}
		fa.report(EventFailed, filePath, "Decoding failed", 0, err)
		return fmt.Errorf("decoding failed: %w", err)
	}

	profile, err := fa.profiler.Profile(analyzeCtx, track)
	if err != nil {
		fa.report(EventFailed, filePath, "Profiling failed", 0, err)
		return fmt.Errorf("profiling failed: %w", err)
	}

	fa.report(EventCompleted, filePath,
		fmt.Sprintf("Analyzed %s in %v", track.DisplayName(), time.Since(startTime).Round(time.Millisecond)),
		len(profile.Candidates), nil)

	log.Info().
		Dur("duration", time.Since(startTime)).
		Int("candidates", len(profile.Candidates)).
		Msg("Track analyzed")

	return nil
}

// CanAnalyze checks if a file matches the patterns and has stopped changing
func (fa *fileAnalyzer) CanAnalyze(filePath string) bool {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return false
	}

	matched := false
	filename := filepath.Base(filePath)
	for _, pattern := range fa.config.Patterns {
		if match, _ := filepath.Match(pattern, filename); match {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	return fa.isFileStable(filePath)
}

// isFileStable checks that size and mtime hold still for the stability wait
func (fa *fileAnalyzer) isFileStable(filePath string) bool {
	before, err := os.Stat(filePath)
	if err != nil {
		return false
	}

	time.Sleep(fa.config.StabilityWait)

	after, err := os.Stat(filePath)
	if err != nil {
		return false
	}

	return before.Size() == after.Size() &&
		before.ModTime().Equal(after.ModTime())
}

func (fa *fileAnalyzer) report(eventType, filePath, message string, candidates int, err error) {
	if fa.progress != nil {
		fa.progress(&ProgressEvent{
			Type:       eventType,
			FilePath:   filePath,
			Message:    message,
			Candidates: candidates,
			Error:      err,
			Timestamp:  time.Now(),
		})
	}
}
