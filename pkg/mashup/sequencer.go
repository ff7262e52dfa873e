// Package mashup selects high-energy slices from a set of tracks and joins
// them into one crossfaded buffer.
package mashup

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/energy"
	"github.com/eternnoir/hypemix/pkg/logger"
)

// Transition bounds and default
const (
	MinTransition     = 100 * time.Millisecond
	MaxTransition     = 3000 * time.Millisecond
	DefaultTransition = 1500 * time.Millisecond
)

// ProfileSource produces an energy profile for a decoded track.
// *energy.Profiler and the bbolt backed cache both satisfy it.
type ProfileSource interface {
	Profile(ctx context.Context, track *audio.Track) (*energy.Profile, error)
}

// Request is one mashup job
type Request struct {
	Tracks             []*audio.Track
	Intensity          Intensity
	TransitionDuration time.Duration // zero selects DefaultTransition

	// CuePoints maps a track index to an extraction start in seconds.
	// A cued track contributes one slice at the cue instead of profiler picks.
	CuePoints map[int]float64
}

// Contribution summarizes what one input track put into the mashup
type Contribution struct {
	TrackIndex int     `json:"track_index"`
	TrackID    string  `json:"track_id"`
	Title      string  `json:"title"`
	Segments   int     `json:"segments"`
	Seconds    float64 `json:"seconds"`
}

// Result is the rendered mashup and its metadata. Immutable once returned.
type Result struct {
	Buffer          *audio.Buffer  `json:"-"`
	TotalDuration   float64        `json:"total_duration"` // seconds of rendered output
	InputDuration   float64        `json:"input_duration"`
	SegmentLengthMs float64        `json:"segment_length_ms"`
	Intensity       Intensity      `json:"intensity"`
	TransitionMs    int64          `json:"transition_ms"`
	Segments        []Segment      `json:"segments"`
	Contributions   []Contribution `json:"contributions"`

	// Skipped lists request track indices that could not be mixed
	Skipped []int `json:"skipped,omitempty"`
}

// Options configures a Sequencer
type Options struct {
	FadeIn         time.Duration
	FadeOut        time.Duration
	DedupTolerance time.Duration // zero keeps exact timestamp matching
	Workers        int           // tracks profiled concurrently
	TrackTimeout   time.Duration // zero disables the per-track limit

	// OnProfiled is called from worker goroutines as each track finishes
	OnProfiled func(index int, err error)
}

// DefaultOptions returns 500ms fades, exact de-duplication and four workers
func DefaultOptions() Options {
	return Options{
		FadeIn:       500 * time.Millisecond,
		FadeOut:      500 * time.Millisecond,
		Workers:      4,
		TrackTimeout: 30 * time.Second,
	}
}

// Sequencer turns a Request into a Result
type Sequencer struct {
	profiles ProfileSource
	options  Options
}

// NewSequencer creates a sequencer that profiles tracks through profiles
func NewSequencer(profiles ProfileSource, options Options) *Sequencer {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	return &Sequencer{
		profiles: profiles,
		options:  options,
	}
}

// Sequence profiles the tracks, plans the slices and renders them. Tracks
// without usable candidates are skipped; if nothing is left the result has
// an empty buffer and no error. Tracks that are nil, hold no samples or do
// not share the first usable track's sample rate are left out and listed in
// Result.Skipped.
func (s *Sequencer) Sequence(ctx context.Context, req *Request) (*Result, error) {
	log := logger.ComponentFromContext(ctx, "sequencer")

	transition, err := validateRequest(req)
	if err != nil {
		return nil, err
	}

	tracks, origin, skipped := usableTracks(req.Tracks)
	for _, index := range skipped {
		log.Warn().Int("track_index", index).Msg("Skipping unusable track")
	}

	// cue indices refer to req.Tracks; move them onto the usable subset
	var cues map[int]float64
	if len(req.CuePoints) > 0 {
		cues = make(map[int]float64, len(req.CuePoints))
		for i, index := range origin {
			if cue, ok := req.CuePoints[index]; ok {
				cues[i] = cue
			}
		}
	}

	startTime := time.Now()
	profiles := s.ProfileAll(ctx, tracks, cues)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	candidates := make([][]float64, len(profiles))
	for i, profile := range profiles {
		if profile != nil {
			candidates[i] = profile.Candidates
		}
	}

	used := NewUsedSet(s.options.DedupTolerance)
	plan := BuildPlan(tracks, candidates, req.Intensity, cues, used)

	buf, segments := Render(tracks, plan, RenderOptions{
		FadeIn:     s.options.FadeIn,
		FadeOut:    s.options.FadeOut,
		Transition: transition,
	})

	contribs := contributions(tracks, segments)
	for i := range segments {
		segments[i].TrackIndex = origin[segments[i].TrackIndex]
	}
	for i := range contribs {
		contribs[i].TrackIndex = origin[contribs[i].TrackIndex]
	}

	result := &Result{
		Buffer:          buf,
		TotalDuration:   buf.Seconds(),
		InputDuration:   plan.InputDuration,
		SegmentLengthMs: plan.SegmentLengthMs,
		Intensity:       req.Intensity,
		TransitionMs:    transition.Milliseconds(),
		Segments:        segments,
		Contributions:   contribs,
		Skipped:         skipped,
	}

	log.Info().
		Int("tracks", len(tracks)).
		Int("skipped", len(skipped)).
		Str("intensity", req.Intensity.String()).
		Float64("segment_length_ms", plan.SegmentLengthMs).
		Int("segments", len(segments)).
		Int("dropped", plan.Dropped).
		Float64("output_seconds", result.TotalDuration).
		Dur("elapsed", time.Since(startTime)).
		Msg("Mashup sequenced")

	return result, nil
}

// usableTracks returns the tracks that can be mixed, their indices in the
// input and the indices of the ones left out. The first valid track sets the
// sample rate the others must match.
func usableTracks(in []*audio.Track) (tracks []*audio.Track, origin []int, skipped []int) {
	rate := 0
	for i, track := range in {
		if track == nil || track.PCM.Validate() != nil {
			skipped = append(skipped, i)
			continue
		}
		if rate == 0 {
			rate = track.PCM.SampleRate
		}
		if track.PCM.SampleRate != rate {
			skipped = append(skipped, i)
			continue
		}
		tracks = append(tracks, track)
		origin = append(origin, i)
	}
	return tracks, origin, skipped
}

// ProfileAll profiles tracks on a bounded pool and returns the profiles in
// input order. Tracks listed in skip are not profiled. A track that fails
// or runs past the per-track timeout gets a nil profile.
func (s *Sequencer) ProfileAll(ctx context.Context, tracks []*audio.Track, skip map[int]float64) []*energy.Profile {
	log := logger.ComponentFromContext(ctx, "sequencer")
	slots := make([]*energy.Profile, len(tracks))

	p := pool.New().WithMaxGoroutines(s.options.Workers)
	for i, track := range tracks {
		if _, ok := skip[i]; ok {
			continue
		}
		p.Go(func() {
			trackCtx := ctx
			if s.options.TrackTimeout > 0 {
				var cancel context.CancelFunc
				trackCtx, cancel = context.WithTimeout(ctx, s.options.TrackTimeout)
				defer cancel()
			}

			profile, err := s.profiles.Profile(trackCtx, track)
			if err != nil {
				log.Warn().Err(err).Str("track", track.ID).Msg("Profiling failed, track contributes no candidates")
			} else {
				slots[i] = profile
			}
			if s.options.OnProfiled != nil {
				s.options.OnProfiled(i, err)
			}
		})
	}
	p.Wait()

	return slots
}

func validateRequest(req *Request) (time.Duration, error) {
	if req == nil || len(req.Tracks) == 0 {
		return 0, ErrEmptyInput
	}
	if !req.Intensity.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIntensity, int(req.Intensity))
	}

	transition := req.TransitionDuration
	if transition == 0 {
		transition = DefaultTransition
	}
	if transition < MinTransition || transition > MaxTransition {
		return 0, fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidTransition, transition, MinTransition, MaxTransition)
	}

	for index, cue := range req.CuePoints {
		if index < 0 || index >= len(req.Tracks) {
			return 0, fmt.Errorf("%w: track index %d out of range", ErrInvalidCue, index)
		}
		if cue < 0 {
			return 0, fmt.Errorf("%w: negative cue %v for track %d", ErrInvalidCue, cue, index)
		}
	}

	return transition, nil
}

func contributions(tracks []*audio.Track, segments []Segment) []Contribution {
	out := make([]Contribution, len(tracks))
	for i, track := range tracks {
		out[i] = Contribution{
			TrackIndex: i,
			TrackID:    track.ID,
			Title:      track.DisplayName(),
		}
	}
	for _, seg := range segments {
		out[seg.TrackIndex].Segments++
		out[seg.TrackIndex].Seconds += seg.LengthMs / 1000
	}
	return out
}
