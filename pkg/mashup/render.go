package mashup

import (
	"time"

	"github.com/eternnoir/hypemix/pkg/audio"
)

// RenderOptions controls the fades applied while joining slices
type RenderOptions struct {
	FadeIn     time.Duration // fade-in of the first slice
	FadeOut    time.Duration // fade-out of the accumulated tail before each join
	Transition time.Duration // fade-in of later slices and the crossfade overlap
}

// Segment describes one slice as it landed in the output
type Segment struct {
	TrackIndex int     `json:"track_index"`
	TrackID    string  `json:"track_id"`
	Timestamp  float64 `json:"timestamp"`
	StartMs    int     `json:"start_ms"`
	LengthMs   float64 `json:"length_ms"`
	OffsetMs   float64 `json:"offset_ms"`
	Cue        bool    `json:"cue,omitempty"`
}

func framesFor(d time.Duration, sampleRate int) int {
	if d <= 0 {
		return 0
	}
	return int(int64(d) * int64(sampleRate) / int64(time.Second))
}

// Render mixes the plan into one buffer in a single pass. Every join fades
// out the accumulated tail, fades in the incoming slice and overlaps the
// two by the transition length, clamped to the shorter side. The output
// takes the sample rate and channel count of the first track.
func Render(tracks []*audio.Track, plan *Plan, opts RenderOptions) (*audio.Buffer, []Segment) {
	if len(tracks) == 0 {
		return &audio.Buffer{}, nil
	}
	sampleRate := tracks[0].PCM.SampleRate
	channels := tracks[0].PCM.Channels
	if len(plan.Instructions) == 0 {
		return &audio.Buffer{SampleRate: sampleRate, Channels: channels}, []Segment{}
	}

	slices := make([]*audio.Buffer, len(plan.Instructions))
	overlaps := make([]int, len(plan.Instructions))
	transition := framesFor(opts.Transition, sampleRate)
	total := 0
	for k, instr := range plan.Instructions {
		slice := tracks[instr.TrackIndex].PCM.SliceMs(instr.StartMs, instr.EndMs).Remix(channels)
		slices[k] = slice
		n := slice.Frames()
		if k > 0 {
			overlaps[k] = min(transition, total, n)
		}
		total += n - overlaps[k]
	}

	out := audio.NewBuffer(total, sampleRate, channels)
	segments := make([]Segment, 0, len(slices))
	pos := 0

	for k, slice := range slices {
		n := slice.Frames()
		x := overlaps[k]
		start := pos - x

		fadeIn := framesFor(opts.Transition, sampleRate)
		if k == 0 {
			fadeIn = framesFor(opts.FadeIn, sampleRate)
		} else {
			applyFadeOut(out.Samples[:pos*channels], channels, framesFor(opts.FadeOut, sampleRate))
			applyFadeOut(out.Samples[start*channels:pos*channels], channels, x)
		}

		for f := 0; f < n; f++ {
			gain := 1.0
			if f < fadeIn {
				gain = float64(f) / float64(fadeIn)
			}
			if f < x {
				gain *= float64(f) / float64(x)
			}
			src := f * channels
			dst := (start + f) * channels
			for c := 0; c < channels; c++ {
				out.Samples[dst+c] += slice.Samples[src+c] * gain
			}
		}

		instr := plan.Instructions[k]
		segments = append(segments, Segment{
			TrackIndex: instr.TrackIndex,
			TrackID:    tracks[instr.TrackIndex].ID,
			Timestamp:  instr.Timestamp,
			StartMs:    instr.StartMs,
			LengthMs:   float64(n) * 1000 / float64(sampleRate),
			OffsetMs:   float64(start) * 1000 / float64(sampleRate),
			Cue:        instr.Cue,
		})
		pos = start + n
	}

	return out, segments
}

// applyFadeOut ramps the last frames of samples linearly down to silence
func applyFadeOut(samples []float64, channels, frames int) {
	total := len(samples) / channels
	if frames > total {
		frames = total
	}
	if frames <= 0 {
		return
	}
	base := total - frames
	for f := 0; f < frames; f++ {
		gain := 1 - float64(f)/float64(frames)
		i := (base + f) * channels
		for c := 0; c < channels; c++ {
			samples[i+c] *= gain
		}
	}
}

