// Package store keeps a SQLite history of rendered mashups.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/eternnoir/hypemix/pkg/mashup"
)

const schema = `
CREATE TABLE IF NOT EXISTS mashups (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	intensity TEXT NOT NULL,
	transition_ms INTEGER NOT NULL,
	output_path TEXT NOT NULL,
	track_count INTEGER NOT NULL,
	skipped_count INTEGER NOT NULL DEFAULT 0,
	segment_length_ms REAL NOT NULL,
	duration REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mashups_created_at ON mashups(created_at);

CREATE TABLE IF NOT EXISTS segments (
	mashup_id TEXT NOT NULL REFERENCES mashups(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	track_index INTEGER NOT NULL,
	track_id TEXT NOT NULL,
	timestamp REAL NOT NULL,
	start_ms INTEGER NOT NULL,
	length_ms REAL NOT NULL,
	offset_ms REAL NOT NULL,
	cue BOOLEAN NOT NULL DEFAULT 0,
	PRIMARY KEY (mashup_id, position)
);
`

// Mashup is one row of history
type Mashup struct {
	ID              string
	CreatedAt       time.Time
	Intensity       string
	TransitionMs    int64
	OutputPath      string
	TrackCount      int
	SkippedCount    int
	SegmentLengthMs float64
	Duration        float64
	Segments        []mashup.Segment
}

// Store is the mashup history database
type Store struct {
	db *sql.DB
}

// Open opens or creates the history database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// sqlite allows one writer; keep writes serialized
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create history tables: %w", err)
	}

	return &Store{db: db}, nil
}

// Record saves a finished mashup and its segment list
func (s *Store) Record(ctx context.Context, report *mashup.Report) error {
	if report == nil || report.Result == nil {
		return fmt.Errorf("report has no result")
	}
	result := report.Result

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mashups (id, created_at, intensity, transition_ms, output_path,
			track_count, skipped_count, segment_length_ms, duration)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.CreatedAt.UnixMilli(),
		result.Intensity.String(),
		result.TransitionMs,
		report.OutputPath,
		len(result.Contributions),
		len(report.Skipped),
		result.SegmentLengthMs,
		result.TotalDuration,
	)
	if err != nil {
		return fmt.Errorf("failed to insert mashup: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (mashup_id, position, track_index, track_id, timestamp,
			start_ms, length_ms, offset_ms, cue)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare segment insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, seg := range result.Segments {
		if _, err := stmt.ExecContext(ctx, report.ID, i, seg.TrackIndex, seg.TrackID,
			seg.Timestamp, seg.StartMs, seg.LengthMs, seg.OffsetMs, seg.Cue); err != nil {
			return fmt.Errorf("failed to insert segment %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mashup: %w", err)
	}
	return nil
}

// List returns the most recent mashups first, without segments
func (s *Store) List(ctx context.Context, limit int) ([]Mashup, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, intensity, transition_ms, output_path,
			track_count, skipped_count, segment_length_ms, duration
		FROM mashups ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mashups: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Mashup
	for rows.Next() {
		m, err := scanMashup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// Get returns one mashup with its segments, or nil when unknown
func (s *Store) Get(ctx context.Context, id string) (*Mashup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, intensity, transition_ms, output_path,
			track_count, skipped_count, segment_length_ms, duration
		FROM mashups WHERE id = ?`, id)
	m, err := scanMashup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT track_index, track_id, timestamp, start_ms, length_ms, offset_ms, cue
		FROM segments WHERE mashup_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var seg mashup.Segment
		if err := rows.Scan(&seg.TrackIndex, &seg.TrackID, &seg.Timestamp, &seg.StartMs,
			&seg.LengthMs, &seg.OffsetMs, &seg.Cue); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		m.Segments = append(m.Segments, seg)
	}
	return m, rows.Err()
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMashup(row scanner) (*Mashup, error) {
	var m Mashup
	var created int64
	err := row.Scan(&m.ID, &created, &m.Intensity, &m.TransitionMs, &m.OutputPath,
		&m.TrackCount, &m.SkippedCount, &m.SegmentLengthMs, &m.Duration)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan mashup: %w", err)
	}
	m.CreatedAt = time.UnixMilli(created).UTC()
	return &m, nil
}
