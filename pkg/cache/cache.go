// Package cache persists energy profiles in BoltDB so a crate only has to
// be analyzed once.
package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/eternnoir/hypemix/pkg/energy"
)

const (
	bucketProfiles = "profiles"
	bucketFailed   = "failed"
)

// Entry is a cached profile
type Entry struct {
	Key        string          `json:"key"`
	FilePath   string          `json:"filepath"`
	AnalyzedAt time.Time       `json:"analyzed_at"`
	Elapsed    time.Duration   `json:"elapsed"`
	Profile    *energy.Profile `json:"profile"`
}

// FailedEntry records a file that could not be analyzed
type FailedEntry struct {
	Key        string    `json:"key"`
	FilePath   string    `json:"filepath"`
	FailedAt   time.Time `json:"failed_at"`
	Error      string    `json:"error"`
	RetryCount int       `json:"retry_count"`
}

// ProfileCache stores profiles keyed by file content and analysis parameters
type ProfileCache struct {
	db *bolt.DB
}

// Open opens or creates the cache database at path
func Open(path string) (*ProfileCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open profile cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketProfiles, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &ProfileCache{db: db}, nil
}

// Get returns the entry for key, or nil when absent
func (c *ProfileCache) Get(key string) (*Entry, error) {
	var entry *Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketProfiles)).Get([]byte(key))
		if data == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal cache entry: %w", err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

// Has reports whether a profile is cached for key
func (c *ProfileCache) Has(key string) (bool, error) {
	var exists bool
	err := c.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket([]byte(bucketProfiles)).Get([]byte(key)) != nil
		return nil
	})
	return exists, err
}

// Put stores entry and clears any failure recorded for the same key
func (c *ProfileCache) Put(entry *Entry) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal cache entry: %w", err)
		}
		if err := tx.Bucket([]byte(bucketProfiles)).Put([]byte(entry.Key), data); err != nil {
			return fmt.Errorf("failed to store cache entry: %w", err)
		}
		_ = tx.Bucket([]byte(bucketFailed)).Delete([]byte(entry.Key))
		return nil
	})
}

// RecordFailed stores a failure, counting repeats for the same key
func (c *ProfileCache) RecordFailed(entry *FailedEntry) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketFailed))

		if existing := bucket.Get([]byte(entry.Key)); existing != nil {
			var previous FailedEntry
			if err := json.Unmarshal(existing, &previous); err == nil {
				entry.RetryCount = previous.RetryCount + 1
			}
		}

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal failure: %w", err)
		}
		return bucket.Put([]byte(entry.Key), data)
	})
}

// GetFailed returns the failure recorded for key, or nil
func (c *ProfileCache) GetFailed(key string) (*FailedEntry, error) {
	var entry *FailedEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketFailed)).Get([]byte(key))
		if data == nil {
			return nil
		}
		var e FailedEntry
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("failed to unmarshal failure: %w", err)
		}
		entry = &e
		return nil
	})
	return entry, err
}

// Len returns the number of cached profiles
func (c *ProfileCache) Len() (int, error) {
	var n int
	err := c.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(bucketProfiles)).Stats().KeyN
		return nil
	})
	return n, err
}

// Close closes the underlying database
func (c *ProfileCache) Close() error {
	return c.db.Close()
}

// FileHash hashes the first 1MB of a file together with its size
func FileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.CopyN(hash, file, 1024*1024); err != nil && err != io.EOF {
		return "", err
	}

	info, err := file.Stat()
	if err != nil {
		return "", err
	}
	_, _ = fmt.Fprintf(hash, ":%d", info.Size())

	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// Key combines a file hash with everything that changes the analysis result
func Key(fileHash string, sampleRate int, opts energy.Options) string {
	return fmt.Sprintf("%s:%d:%d:%d:%g", fileHash, sampleRate, opts.FrameSize, opts.HopSize, opts.ThresholdMultiplier)
}
