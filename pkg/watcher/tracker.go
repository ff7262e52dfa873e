package watcher

import (
	"sync"
	"time"
)

// inFlight keeps two workers from analyzing the same file at once
type inFlight struct {
	mu      sync.Mutex
	started map[string]time.Time
}

func newInFlight() *inFlight {
	return &inFlight{started: make(map[string]time.Time)}
}

func (f *inFlight) tryAcquire(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, busy := f.started[path]; busy {
		return false
	}
	f.started[path] = time.Now()
	return true
}

func (f *inFlight) release(path string) {
	f.mu.Lock()
	delete(f.started, path)
	f.mu.Unlock()
}

func (f *inFlight) busy(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.started[path]
	return ok
}

func (f *inFlight) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.started)
}
