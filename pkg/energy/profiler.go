// Package energy estimates where a track is loud. A Profile is the RMS
// envelope of the track plus the timestamps whose energy stands out above
// the track's own average.
package energy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/goccmack/godsp"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/logger"
)

// cancelCheckEvery is how many frames are analyzed between context checks
const cancelCheckEvery = 1024

// Options configures the RMS analysis
type Options struct {
	FrameSize           int     // Samples per analysis frame
	HopSize             int     // Samples between frame starts
	ThresholdMultiplier float64 // Candidates must exceed mean energy times this
}

// DefaultOptions returns 2048/512 framing with a 1.5x threshold
func DefaultOptions() Options {
	return Options{
		FrameSize:           2048,
		HopSize:             512,
		ThresholdMultiplier: 1.5,
	}
}

// Frame is one point of the energy envelope
type Frame struct {
	Time   float64 `json:"time"`
	Energy float64 `json:"energy"`
}

// Profile is the analysis result for one track. Never mutated after creation.
type Profile struct {
	TrackID    string    `json:"track_id"`
	Duration   float64   `json:"duration"`
	SampleRate int       `json:"sample_rate"`
	FrameSize  int       `json:"frame_size"`
	HopSize    int       `json:"hop_size"`
	Threshold  float64   `json:"threshold"`
	Frames     []Frame   `json:"frames,omitempty"`
	Candidates []float64 `json:"candidates"`
}

// Profiler computes energy profiles
type Profiler struct {
	options Options
}

// NewProfiler creates a profiler, filling zero options with defaults
func NewProfiler(options Options) *Profiler {
	defaults := DefaultOptions()
	if options.FrameSize <= 0 {
		options.FrameSize = defaults.FrameSize
	}
	if options.HopSize <= 0 {
		options.HopSize = defaults.HopSize
	}
	if options.ThresholdMultiplier <= 0 {
		options.ThresholdMultiplier = defaults.ThresholdMultiplier
	}
	return &Profiler{options: options}
}

// Options returns the analysis parameters in effect
func (p *Profiler) Options() Options {
	return p.options
}

// Profile analyzes track. A track without usable samples yields a
// *audio.DecodeError; a track with flat energy yields no candidates.
func (p *Profiler) Profile(ctx context.Context, track *audio.Track) (*Profile, error) {
	if track == nil {
		return nil, &audio.DecodeError{Path: "<nil>", Err: fmt.Errorf("nil track")}
	}
	if err := track.PCM.Validate(); err != nil {
		return nil, &audio.DecodeError{Path: track.ID, Err: err}
	}

	log := logger.ComponentFromContext(ctx, "profiler").WithTrack(track.ID)
	startTime := time.Now()

	energies, err := RMS(ctx, track.PCM.Mono(), p.options.FrameSize, p.options.HopSize)
	if err != nil {
		return nil, err
	}

	sampleRate := track.PCM.SampleRate
	duration := track.Seconds()
	threshold := godsp.Average(energies) * p.options.ThresholdMultiplier

	frames := make([]Frame, len(energies))
	candidates := make([]float64, 0)
	for i, e := range energies {
		t := FrameTime(i, p.options.HopSize, sampleRate)
		frames[i] = Frame{Time: t, Energy: e}
		if e > threshold && t < duration {
			candidates = append(candidates, t)
		}
	}

	log.Debug().
		Int("frames", len(frames)).
		Float64("threshold", threshold).
		Int("candidates", len(candidates)).
		Dur("elapsed", time.Since(startTime)).
		Msg("Energy profile computed")

	return &Profile{
		TrackID:    track.ID,
		Duration:   duration,
		SampleRate: sampleRate,
		FrameSize:  p.options.FrameSize,
		HopSize:    p.options.HopSize,
		Threshold:  threshold,
		Frames:     frames,
		Candidates: candidates,
	}, nil
}

// FrameTime maps a frame index to its centre time in seconds
func FrameTime(index, hopSize, sampleRate int) float64 {
	return float64(index*hopSize) / float64(sampleRate)
}

// RMS computes centred frame energies over mono samples. The signal is
// padded with frameSize/2 zeros on both sides so frame i is centred on
// sample i*hopSize. It returns 1 + len(samples)/hopSize frames.
func RMS(ctx context.Context, samples []float64, frameSize, hopSize int) ([]float64, error) {
	if frameSize <= 0 || hopSize <= 0 {
		return nil, fmt.Errorf("invalid framing %d/%d", frameSize, hopSize)
	}

	pad := frameSize / 2
	count := 1 + len(samples)/hopSize
	out := make([]float64, count)

	// prefix sums of squares make each frame O(1)
	squares := make([]float64, len(samples)+1)
	for i, s := range samples {
		squares[i+1] = squares[i] + s*s
	}

	for i := 0; i < count; i++ {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		// frame covers padded [i*hop, i*hop+frameSize), i.e. original
		// samples [i*hop-pad, i*hop-pad+frameSize)
		lo := i*hopSize - pad
		hi := lo + frameSize
		if lo < 0 {
			lo = 0
		}
		if hi > len(samples) {
			hi = len(samples)
		}

		var sum float64
		if hi > lo {
			sum = squares[hi] - squares[lo]
		}
		if sum < 0 {
			// float cancellation on long silent runs
			sum = 0
		}
		out[i] = math.Sqrt(sum / float64(frameSize))
	}

	return out, nil
}
