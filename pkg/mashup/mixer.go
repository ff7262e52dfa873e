package mashup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/logger"
)

// MixOptions configures one run of the Mixer
type MixOptions struct {
	Intensity  Intensity
	Transition time.Duration

	// CuePoints is keyed by index into the input paths
	CuePoints map[int]float64

	OutputPath    string
	WriteMetadata bool

	// OnDecoded is called from worker goroutines as each file finishes decoding
	OnDecoded func(path string, err error)
}

// Report is the outcome of a Mix call
type Report struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Inputs       []string  `json:"inputs"`
	Skipped      []string  `json:"skipped,omitempty"`
	OutputPath   string    `json:"output_path"`
	MetadataPath string    `json:"-"`
	Result       *Result   `json:"result"`
}

// History persists reports of finished mashups
type History interface {
	Record(ctx context.Context, report *Report) error
}

// Mixer runs the whole pipeline: decode, sequence, export and record
type Mixer struct {
	decoder   audio.Decoder
	exporter  audio.Exporter
	sequencer *Sequencer
	history   History
	workers   int
}

// NewMixer creates a mixer. history may be nil.
func NewMixer(decoder audio.Decoder, exporter audio.Exporter, sequencer *Sequencer, history History, workers int) *Mixer {
	if workers <= 0 {
		workers = 1
	}
	return &Mixer{
		decoder:   decoder,
		exporter:  exporter,
		sequencer: sequencer,
		history:   history,
		workers:   workers,
	}
}

// Mix decodes paths, builds the mashup and writes it to opts.OutputPath.
// Files that fail to decode are skipped. ErrInsufficientSegments is
// returned when no slice could be placed.
func (m *Mixer) Mix(ctx context.Context, paths []string, opts MixOptions) (*Report, error) {
	if len(paths) == 0 {
		return nil, ErrEmptyInput
	}

	report := &Report{
		ID:         uuid.New().String(),
		CreatedAt:  time.Now().UTC(),
		Inputs:     paths,
		OutputPath: opts.OutputPath,
	}
	log := logger.ComponentFromContext(ctx, "mixer").WithField("mix_id", report.ID)
	ctx = logger.WithLogger(ctx, log)

	tracks, indexMap, skipped, err := m.decodeAll(ctx, paths, opts.OnDecoded)
	if err != nil {
		return nil, err
	}
	report.Skipped = skipped
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%w: no input could be decoded", ErrInsufficientSegments)
	}

	// cue indices refer to input paths; re-key them onto decoded tracks
	var cues map[int]float64
	if len(opts.CuePoints) > 0 {
		cues = make(map[int]float64, len(opts.CuePoints))
		for index, cue := range opts.CuePoints {
			if index < 0 || index >= len(paths) {
				return nil, fmt.Errorf("%w: track index %d out of range", ErrInvalidCue, index)
			}
			if decoded, ok := indexMap[index]; ok {
				cues[decoded] = cue
			}
		}
	}

	result, err := m.sequencer.Sequence(ctx, &Request{
		Tracks:             tracks,
		Intensity:          opts.Intensity,
		TransitionDuration: opts.Transition,
		CuePoints:          cues,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Skipped) > 0 {
		inputOf := make(map[int]int, len(indexMap))
		for input, decoded := range indexMap {
			inputOf[decoded] = input
		}
		for _, decoded := range result.Skipped {
			report.Skipped = append(report.Skipped, paths[inputOf[decoded]])
		}
	}
	if len(result.Segments) == 0 {
		return nil, ErrInsufficientSegments
	}
	report.Result = result

	if err := m.exporter.Export(result.Buffer, opts.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to export mashup: %w", err)
	}

	if opts.WriteMetadata {
		report.MetadataPath = opts.OutputPath + ".json"
		if err := WriteMetadata(report, report.MetadataPath); err != nil {
			log.Warn().Err(err).Msg("Failed to write metadata sidecar")
			report.MetadataPath = ""
		}
	}

	if m.history != nil {
		if err := m.history.Record(ctx, report); err != nil {
			log.Warn().Err(err).Msg("Failed to record mashup history")
		}
	}

	log.Info().
		Str("output", opts.OutputPath).
		Int("segments", len(result.Segments)).
		Int("skipped", len(skipped)).
		Float64("seconds", result.TotalDuration).
		Msg("Mashup complete")

	return report, nil
}

// decodeAll decodes paths concurrently and returns the decoded tracks in
// input order, a map from input index to track index, and the skipped paths.
func (m *Mixer) decodeAll(ctx context.Context, paths []string, onDecoded func(string, error)) ([]*audio.Track, map[int]int, []string, error) {
	log := logger.ComponentFromContext(ctx, "mixer")
	slots := make([]*audio.Track, len(paths))
	errs := make([]error, len(paths))

	p := pool.New().WithMaxGoroutines(m.workers)
	for i, path := range paths {
		p.Go(func() {
			slots[i], errs[i] = m.decoder.DecodeFile(ctx, path)
			if onDecoded != nil {
				onDecoded(path, errs[i])
			}
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	tracks := make([]*audio.Track, 0, len(paths))
	indexMap := make(map[int]int, len(paths))
	var skipped []string
	for i, err := range errs {
		if err != nil {
			if !errors.Is(err, audio.ErrDecode) {
				return nil, nil, nil, err
			}
			log.Warn().Err(err).Str("file", paths[i]).Msg("Skipping undecodable track")
			skipped = append(skipped, paths[i])
			continue
		}
		indexMap[i] = len(tracks)
		tracks = append(tracks, slots[i])
	}

	return tracks, indexMap, skipped, nil
}

// WriteMetadata writes report as indented JSON to path
func WriteMetadata(report *Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}
