package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/eternnoir/hypemix/pkg/logger"
)

// debounceWindow drops repeated events for the same file
const debounceWindow = 5 * time.Second

// crateWatcher implements CrateWatcher
type crateWatcher struct {
	config    *WatchConfig
	analyzer  FileAnalyzer
	watcher   *fsnotify.Watcher
	progress  ProgressCallback
	stats     *WatchStats
	statsLock sync.RWMutex

	recentEvents    map[string]time.Time
	recentEventsMux sync.Mutex

	initialScan    sync.WaitGroup
	initialScanMap map[string]bool
	initialScanMux sync.Mutex

	stopCh      chan struct{}
	stopOnce    sync.Once
	workerQueue chan string
	wg          sync.WaitGroup
}

// NewCrateWatcher creates a watcher that hands stable files to analyzer
func NewCrateWatcher(config *WatchConfig, analyzer FileAnalyzer) (CrateWatcher, error) {
	if config.WatchDir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 1
	}
	if config.Interval <= 0 {
		config.Interval = DefaultWatchConfig().Interval
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	cw := &crateWatcher{
		config:         config,
		analyzer:       analyzer,
		watcher:        fsw,
		recentEvents:   make(map[string]time.Time),
		initialScanMap: make(map[string]bool),
		stopCh:         make(chan struct{}),
		workerQueue:    make(chan string, config.MaxWorkers*4),
		stats: &WatchStats{
			StartTime: time.Now(),
		},
	}

	if fa, ok := analyzer.(*fileAnalyzer); ok {
		fa.SetProgressCallback(cw.handleProgressEvent)
	}

	return cw, nil
}

// Start begins watching the configured directory
func (cw *crateWatcher) Start(ctx context.Context) error {
	log := logger.WithComponent("watcher")

	if err := cw.addWatchDir(cw.config.WatchDir); err != nil {
		return fmt.Errorf("failed to add watch directory: %w", err)
	}

	for i := 0; i < cw.config.MaxWorkers; i++ {
		cw.wg.Add(1)
		go cw.analyzeWorker(ctx)
	}

	cw.wg.Add(1)
	go cw.cleanupRoutine()

	if cw.config.ProcessExisting {
		log.Info().Msg("Analyzing existing files")
		if err := cw.queueExistingFiles(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to queue some existing files")
		}
	}

	cw.wg.Add(1)
	go cw.watchLoop(ctx)

	log.Info().
		Str("directory", cw.config.WatchDir).
		Bool("recursive", cw.config.Recursive).
		Strs("patterns", cw.config.Patterns).
		Int("workers", cw.config.MaxWorkers).
		Msg("Crate watcher started")

	return nil
}

// Stop gracefully shuts down the watcher
func (cw *crateWatcher) Stop() error {
	log := logger.WithComponent("watcher")

	cw.stopOnce.Do(func() {
		log.Info().Msg("Stopping crate watcher")
		close(cw.stopCh)

		if err := cw.watcher.Close(); err != nil {
			log.Warn().Err(err).Msg("Error closing watcher")
		}

		cw.wg.Wait()
		cw.abandonInitialScan()
		log.Info().Msg("Crate watcher stopped")
	})
	return nil
}

// SetProgressCallback sets a callback for progress updates
func (cw *crateWatcher) SetProgressCallback(callback ProgressCallback) {
	cw.progress = callback
}

// GetStats returns a snapshot of the statistics
func (cw *crateWatcher) GetStats() *WatchStats {
	cw.statsLock.RLock()
	defer cw.statsLock.RUnlock()

	stats := *cw.stats
	if fa, ok := cw.analyzer.(*fileAnalyzer); ok {
		stats.InProgress = fa.inFlight.count()
	}
	return &stats
}

// WaitForInitialScan returns a WaitGroup that completes when the startup scan is analyzed
func (cw *crateWatcher) WaitForInitialScan() *sync.WaitGroup {
	return &cw.initialScan
}

func (cw *crateWatcher) addWatchDir(dir string) error {
	if err := cw.watcher.Add(dir); err != nil {
		return err
	}
	if !cw.config.Recursive {
		return nil
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != dir {
			return cw.watcher.Add(path)
		}
		return nil
	})
}

// walkCandidates calls fn for every regular file the watcher is responsible for
func (cw *crateWatcher) walkCandidates(fn func(path string) error) error {
	return filepath.Walk(cw.config.WatchDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !cw.config.Recursive && path != cw.config.WatchDir {
				return filepath.SkipDir
			}
			return nil
		}
		if !cw.matchesPattern(path) {
			return nil
		}
		return fn(path)
	})
}

func (cw *crateWatcher) matchesPattern(path string) bool {
	name := filepath.Base(path)
	for _, pattern := range cw.config.Patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (cw *crateWatcher) queueExistingFiles(ctx context.Context) error {
	log := logger.WithComponent("watcher")

	err := cw.walkCandidates(func(path string) error {
		log.Debug().Str("file", path).Msg("Queueing existing file")

		cw.initialScanMux.Lock()
		cw.initialScanMap[path] = true
		cw.initialScan.Add(1)
		cw.initialScanMux.Unlock()

		select {
		case cw.workerQueue <- path:
			return nil
		case <-ctx.Done():
			cw.finishInitial(path)
			return ctx.Err()
		case <-cw.stopCh:
			cw.finishInitial(path)
			return fmt.Errorf("watcher stopped")
		}
	})

	// workers that already exited will not pick up what is still queued
	if ctx.Err() != nil || cw.stopped() {
		cw.abandonInitialScan()
	}
	return err
}

func (cw *crateWatcher) finishInitial(path string) {
	cw.initialScanMux.Lock()
	defer cw.initialScanMux.Unlock()
	if cw.initialScanMap[path] {
		delete(cw.initialScanMap, path)
		cw.initialScan.Done()
	}
}

// abandonInitialScan releases WaitForInitialScan for files that will not be analyzed
func (cw *crateWatcher) abandonInitialScan() {
	cw.initialScanMux.Lock()
	defer cw.initialScanMux.Unlock()
	for path := range cw.initialScanMap {
		delete(cw.initialScanMap, path)
		cw.initialScan.Done()
	}
}

func (cw *crateWatcher) stopped() bool {
	select {
	case <-cw.stopCh:
		return true
	default:
		return false
	}
}

func (cw *crateWatcher) watchLoop(ctx context.Context) {
	defer cw.wg.Done()
	log := logger.WithComponent("watcher")

	ticker := time.NewTicker(cw.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			cw.handleFileEvent(event)
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		case <-ticker.C:
			cw.periodicScan()
		}
	}
}

func (cw *crateWatcher) handleFileEvent(event fsnotify.Event) {
	log := logger.WithComponent("watcher").WithField("file", event.Name)

	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}

	if event.Op&fsnotify.Create == fsnotify.Create && cw.config.Recursive {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := cw.addWatchDir(event.Name); err != nil {
				log.Warn().Err(err).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !cw.matchesPattern(event.Name) {
		return
	}
	if cw.isDuplicateEvent(event.Name) {
		log.Debug().Msg("Duplicate event ignored")
		return
	}
	cw.queueFile(event.Name)
}

// periodicScan catches files fsnotify missed; cached files are skipped cheaply
func (cw *crateWatcher) periodicScan() {
	_ = cw.walkCandidates(func(path string) error {
		if !cw.isDuplicateEvent(path) {
			cw.queueFile(path)
		}
		return nil
	})
}

func (cw *crateWatcher) queueFile(path string) {
	if fa, ok := cw.analyzer.(*fileAnalyzer); ok && fa.inFlight.busy(path) {
		return
	}

	select {
	case cw.workerQueue <- path:
		cw.reportProgress(&ProgressEvent{
			Type:      EventFound,
			FilePath:  path,
			Message:   "File queued for analysis",
			Timestamp: time.Now(),
		})
	default:
		logger.WithComponent("watcher").
			Warn().
			Str("file", path).
			Msg("Worker queue is full, skipping file")
	}
}

func (cw *crateWatcher) analyzeWorker(ctx context.Context) {
	defer cw.wg.Done()
	defer cw.abandonInitialScan()
	log := logger.WithComponent("worker")

	for {
		select {
		case <-ctx.Done():
			return
		case <-cw.stopCh:
			return
		case path := <-cw.workerQueue:
			if err := cw.analyzer.AnalyzeFile(ctx, path); err != nil {
				log.Error().Err(err).Str("file", path).Msg("Failed to analyze file")
			}
			cw.finishInitial(path)
		}
	}
}

func (cw *crateWatcher) cleanupRoutine() {
	defer cw.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-cw.stopCh:
			return
		case <-ticker.C:
			cw.cleanupRecentEvents()
		}
	}
}

func (cw *crateWatcher) handleProgressEvent(event *ProgressEvent) {
	cw.statsLock.Lock()
	switch event.Type {
	case EventCompleted:
		cw.stats.AnalyzedCount++
	case EventFailed:
		cw.stats.FailedCount++
	case EventSkipped:
		cw.stats.SkippedCount++
	}
	cw.statsLock.Unlock()

	cw.reportProgress(event)
}

func (cw *crateWatcher) isDuplicateEvent(path string) bool {
	cw.recentEventsMux.Lock()
	defer cw.recentEventsMux.Unlock()

	now := time.Now()
	if lastSeen, exists := cw.recentEvents[path]; exists && now.Sub(lastSeen) < debounceWindow {
		return true
	}
	cw.recentEvents[path] = now
	return false
}

func (cw *crateWatcher) cleanupRecentEvents() {
	cw.recentEventsMux.Lock()
	defer cw.recentEventsMux.Unlock()

	cutoff := time.Now().Add(-6 * debounceWindow)
	for path, seen := range cw.recentEvents {
		if seen.Before(cutoff) {
			delete(cw.recentEvents, path)
		}
	}
}

func (cw *crateWatcher) reportProgress(event *ProgressEvent) {
	if cw.progress != nil {
		cw.progress(event)
	}
}
