package watcher

import (
	"context"
	"sync"
	"time"
)

// CrateWatcher watches a music directory and analyzes new tracks ahead of
// the next mix
type CrateWatcher interface {
	// Start begins watching the configured directory
	Start(ctx context.Context) error

	// Stop gracefully shuts down the watcher
	Stop() error

	// SetProgressCallback sets a callback for progress updates
	SetProgressCallback(callback ProgressCallback)

	// GetStats returns statistics about analyzed files
	GetStats() *WatchStats

	// WaitForInitialScan returns a WaitGroup that completes once files
	// present at startup have been analyzed
	WaitForInitialScan() *sync.WaitGroup
}

// FileAnalyzer analyzes individual files into the profile cache
type FileAnalyzer interface {
	// AnalyzeFile decodes and profiles a single file
	AnalyzeFile(ctx context.Context, filePath string) error

	// CanAnalyze checks if a file matches the patterns and is stable
	CanAnalyze(filePath string) bool
}

// ProgressCallback is called to report progress
type ProgressCallback func(event *ProgressEvent)

// Event types reported through ProgressCallback
const (
	EventFound     = "found"
	EventAnalyzing = "analyzing"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventSkipped   = "skipped"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Type       string
	FilePath   string
	Message    string
	Candidates int
	Error      error
	Timestamp  time.Time
}

// WatchStats contains statistics about the watcher
type WatchStats struct {
	StartTime     time.Time
	AnalyzedCount int
	FailedCount   int
	SkippedCount  int
	InProgress    int
}

// WatchConfig contains configuration for the crate watcher
type WatchConfig struct {
	// Directory to watch
	WatchDir string

	// File patterns to match (e.g., "*.mp3", "*.wav")
	Patterns []string

	// Whether to watch subdirectories recursively
	Recursive bool

	// Interval between rescans for files fsnotify missed
	Interval time.Duration

	// Time to wait for file stability before analyzing
	StabilityWait time.Duration

	// Maximum time allowed for decoding and profiling one file
	AnalysisTimeout time.Duration

	// Whether to analyze files already present on startup
	ProcessExisting bool

	// Whether to retry files that failed before
	RetryFailed bool

	// Maximum number of concurrent analysis workers
	MaxWorkers int
}

// DefaultWatchConfig returns default configuration
func DefaultWatchConfig() *WatchConfig {
	return &WatchConfig{
		Patterns:        []string{"*.mp3", "*.wav", "*.flac", "*.m4a", "*.ogg"},
		Interval:        5 * time.Second,
		StabilityWait:   2 * time.Second,
		AnalysisTimeout: 2 * time.Minute,
		ProcessExisting: true,
		MaxWorkers:      2,
	}
}
