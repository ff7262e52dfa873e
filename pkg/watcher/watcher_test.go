package watcher

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/cache"
	"github.com/eternnoir/hypemix/pkg/energy"
)

const testRate = 8000

func writeTestWAV(t *testing.T, path string) {
	t.Helper()
	buf := audio.NewBuffer(testRate*2, testRate, 1)
	for i := range buf.Samples {
		tm := float64(i) / testRate
		if tm > 0.8 && tm < 1.1 {
			buf.Samples[i] = 0.7 * math.Sin(2*math.Pi*440*tm)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer file.Close()
	if err := audio.WriteWAV(file, buf); err != nil {
		t.Fatalf("write wav: %v", err)
	}
}

type testRig struct {
	config   *WatchConfig
	cache    *cache.ProfileCache
	analyzer FileAnalyzer
}

func newTestRig(t *testing.T, dir string) *testRig {
	t.Helper()

	profileCache, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = profileCache.Close() })

	config := DefaultWatchConfig()
	config.WatchDir = dir
	config.StabilityWait = 0
	config.Interval = time.Hour

	processor := audio.NewProcessor(t.TempDir(), audio.ProcessorOptions{SampleRate: testRate, Channels: 1})
	decoder := audio.NewDecoder(processor, t.TempDir(), false)
	profiler := cache.NewCachedProfiler(profileCache, energy.NewProfiler(energy.DefaultOptions()))

	return &testRig{
		config:   config,
		cache:    profileCache,
		analyzer: NewFileAnalyzer(config, decoder, profileCache, profiler, testRate),
	}
}

func TestCanAnalyze(t *testing.T) {
	dir := t.TempDir()
	rig := newTestRig(t, dir)

	wav := filepath.Join(dir, "song.wav")
	writeTestWAV(t, wav)
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{wav, true},
		{txt, false},
		{filepath.Join(dir, "missing.wav"), false},
	}
	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			if got := rig.analyzer.CanAnalyze(tt.path); got != tt.want {
				t.Errorf("CanAnalyze(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestAnalyzeFileCachesOnce(t *testing.T) {
	dir := t.TempDir()
	rig := newTestRig(t, dir)
	wav := filepath.Join(dir, "song.wav")
	writeTestWAV(t, wav)

	var events []string
	rig.analyzer.(*fileAnalyzer).SetProgressCallback(func(e *ProgressEvent) {
		events = append(events, e.Type)
	})

	ctx := context.Background()
	if err := rig.analyzer.AnalyzeFile(ctx, wav); err != nil {
		t.Fatalf("AnalyzeFile() error = %v", err)
	}
	if err := rig.analyzer.AnalyzeFile(ctx, wav); err != nil {
		t.Fatalf("second AnalyzeFile() error = %v", err)
	}

	want := []string{EventAnalyzing, EventCompleted, EventSkipped}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %s, want %s", i, events[i], want[i])
		}
	}

	if n, _ := rig.cache.Len(); n != 1 {
		t.Errorf("cache entries = %d, want 1", n)
	}
}

func TestWatcherInitialScan(t *testing.T) {
	dir := t.TempDir()
	writeTestWAV(t, filepath.Join(dir, "one.wav"))
	writeTestWAV(t, filepath.Join(dir, "two.wav"))
	if err := os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("skip me"), 0o644); err != nil {
		t.Fatal(err)
	}

	rig := newTestRig(t, dir)
	w, err := NewCrateWatcher(rig.config, rig.analyzer)
	if err != nil {
		t.Fatalf("NewCrateWatcher() error = %v", err)
	}

	var mu sync.Mutex
	completed := map[string]bool{}
	w.SetProgressCallback(func(e *ProgressEvent) {
		if e.Type == EventCompleted {
			mu.Lock()
			completed[filepath.Base(e.FilePath)] = true
			mu.Unlock()
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		w.WaitForInitialScan().Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("initial scan did not finish")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	stats := w.GetStats()
	if stats.AnalyzedCount != 2 {
		t.Errorf("AnalyzedCount = %d, want 2", stats.AnalyzedCount)
	}
	mu.Lock()
	defer mu.Unlock()
	if !completed["one.wav"] || !completed["two.wav"] {
		t.Errorf("completed = %v, want both wav files", completed)
	}
}

// blockingAnalyzer holds every file until the context is cancelled
type blockingAnalyzer struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingAnalyzer) AnalyzeFile(ctx context.Context, _ string) error {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return ctx.Err()
}

func (b *blockingAnalyzer) CanAnalyze(string) bool { return true }

func TestWatcherInitialScanReleasedOnCancel(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 12; i++ {
		path := filepath.Join(dir, fmt.Sprintf("track%02d.wav", i))
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	config := DefaultWatchConfig()
	config.WatchDir = dir
	config.Interval = time.Hour
	config.MaxWorkers = 1 // queue holds four, so the scan blocks on the fifth file

	analyzer := &blockingAnalyzer{started: make(chan struct{})}
	w, err := NewCrateWatcher(config, analyzer)
	if err != nil {
		t.Fatalf("NewCrateWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan error, 1)
	go func() { started <- w.Start(ctx) }()

	select {
	case <-analyzer.started:
	case <-time.After(5 * time.Second):
		t.Fatal("no file reached the analyzer")
	}
	cancel()

	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() stayed blocked queueing existing files after cancel")
	}

	done := make(chan struct{})
	go func() {
		w.WaitForInitialScan().Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForInitialScan() did not return after cancel")
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
}

func TestNewCrateWatcherRequiresDir(t *testing.T) {
	if _, err := NewCrateWatcher(&WatchConfig{}, nil); err == nil {
		t.Error("NewCrateWatcher() should require a watch directory")
	}
}
