package mashup

import (
	"github.com/eternnoir/hypemix/pkg/audio"
)

// Instruction places one slice of a source track into the mashup
type Instruction struct {
	TrackIndex int
	Timestamp  float64 // seconds, the candidate or cue the slice starts at
	StartMs    int
	EndMs      int // requested end; the slice is clamped to the track
	Cue        bool
}

// Plan is the ordered list of slices to render
type Plan struct {
	InputDuration   float64 // seconds, summed over all tracks
	SegmentLengthMs float64
	Instructions    []Instruction
	Dropped         int // selections whose clamped slice was empty
}

// SegmentLength returns the summed track duration in seconds and the
// per-segment length in milliseconds, total / n / n. More tracks mean
// quadratically shorter segments.
func SegmentLength(tracks []*audio.Track) (total float64, segmentMs float64) {
	if len(tracks) == 0 {
		return 0, 0
	}
	for _, track := range tracks {
		total += track.Seconds()
	}
	n := float64(len(tracks))
	return total, total / n / n * 1000
}

// BuildPlan selects slices for every track in order. candidates[i] holds
// the ascending candidate timestamps of tracks[i]; a cue point for track i
// replaces them with a single slice at the cue. Timestamps are added to
// used as slices are accepted, so a later track cannot reuse them.
func BuildPlan(tracks []*audio.Track, candidates [][]float64, intensity Intensity, cues map[int]float64, used *UsedSet) *Plan {
	total, segmentMs := SegmentLength(tracks)
	plan := &Plan{
		InputDuration:   total,
		SegmentLengthMs: segmentMs,
		Instructions:    make([]Instruction, 0, len(tracks)*intensity.Cap()),
	}
	length := int(segmentMs)

	for i, track := range tracks {
		var picks []float64
		if i < len(candidates) {
			picks = candidates[i]
		}
		limit := intensity.Cap()
		cue, hasCue := cues[i]
		if hasCue {
			picks = []float64{cue}
			limit = 1
		}

		accepted := 0
		for _, ts := range picks {
			if accepted >= limit {
				break
			}
			if used.Contains(ts) {
				continue
			}

			startMs := int(ts * 1000)
			instr := Instruction{
				TrackIndex: i,
				Timestamp:  ts,
				StartMs:    startMs,
				EndMs:      startMs + length,
				Cue:        hasCue,
			}
			if track.PCM.SliceMs(instr.StartMs, instr.EndMs).Frames() == 0 {
				plan.Dropped++
				continue
			}

			plan.Instructions = append(plan.Instructions, instr)
			used.Add(ts)
			accepted++
		}
	}

	return plan
}
