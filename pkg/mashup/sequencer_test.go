package mashup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/energy"
)

// one frame per millisecond keeps the arithmetic readable
const testRate = 1000

func constantTrack(id string, seconds float64, level float64) *audio.Track {
	buf := audio.NewBuffer(int(seconds*testRate), testRate, 1)
	for i := range buf.Samples {
		buf.Samples[i] = level
	}
	return &audio.Track{ID: id, PCM: buf}
}

type stubProfiles map[string][]float64

func (s stubProfiles) Profile(_ context.Context, track *audio.Track) (*energy.Profile, error) {
	candidates, ok := s[track.ID]
	if !ok {
		return nil, errors.New("no profile for " + track.ID)
	}
	return &energy.Profile{TrackID: track.ID, Candidates: candidates}, nil
}

type slowProfiles struct{}

func (slowProfiles) Profile(ctx context.Context, _ *audio.Track) (*energy.Profile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func newTestSequencer(profiles ProfileSource) *Sequencer {
	opts := DefaultOptions()
	opts.Workers = 2
	return NewSequencer(profiles, opts)
}

func TestParseIntensity(t *testing.T) {
	tests := []struct {
		input   string
		want    Intensity
		wantCap int
		wantErr bool
	}{
		{input: "low", want: IntensityLow, wantCap: 1},
		{input: "Medium", want: IntensityMedium, wantCap: 2},
		{input: " HIGH ", want: IntensityHigh, wantCap: 3},
		{input: "1", want: IntensityLow, wantCap: 1},
		{input: "3", want: IntensityHigh, wantCap: 3},
		{input: "extreme", wantErr: true},
		{input: "4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseIntensity(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidIntensity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCap, got.Cap())
		})
	}

	assert.False(t, Intensity(0).Valid())
	assert.Equal(t, 0, Intensity(9).Cap())
}

func TestSegmentLength(t *testing.T) {
	total, segmentMs := SegmentLength([]*audio.Track{
		constantTrack("a", 10, 0.1),
		constantTrack("b", 8, 0.1),
	})
	assert.InDelta(t, 18.0, total, 1e-9)
	assert.InDelta(t, 4500.0, segmentMs, 1e-9)

	// same total spread over more tracks never lengthens segments
	previous := -1.0
	for n := 6; n >= 1; n-- {
		tracks := make([]*audio.Track, n)
		for i := range tracks {
			tracks[i] = constantTrack("t", 60.0/float64(n), 0.1)
		}
		_, ms := SegmentLength(tracks)
		assert.Greater(t, ms, previous, "n=%d", n)
		previous = ms
	}

	total, segmentMs = SegmentLength(nil)
	assert.Zero(t, total)
	assert.Zero(t, segmentMs)
}

func TestUsedSet(t *testing.T) {
	exact := NewUsedSet(0)
	exact.Add(1.5)
	exact.Add(1.5)
	assert.True(t, exact.Contains(1.5))
	assert.False(t, exact.Contains(1.5000001))
	assert.Equal(t, 1, exact.Len())

	tolerant := NewUsedSet(time.Millisecond)
	tolerant.Add(1.5)
	assert.True(t, tolerant.Contains(1.5004))
	assert.False(t, tolerant.Contains(1.502))
}

func TestSequenceTwoTracksHigh(t *testing.T) {
	tracks := []*audio.Track{
		constantTrack("ten", 10, 0.5),
		constantTrack("eight", 8, 0.5),
	}
	profiles := stubProfiles{
		"ten":   {1, 2, 3, 4},
		"eight": {1, 5, 6, 7},
	}

	result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
		Tracks:    tracks,
		Intensity: IntensityHigh,
	})
	require.NoError(t, err)

	assert.InDelta(t, 4500.0, result.SegmentLengthMs, 1e-9)
	assert.InDelta(t, 18.0, result.InputDuration, 1e-9)
	assert.EqualValues(t, 1500, result.TransitionMs)

	var stamps []float64
	perTrack := map[int]int{}
	for _, seg := range result.Segments {
		stamps = append(stamps, seg.Timestamp)
		perTrack[seg.TrackIndex]++
	}
	// timestamp 1 is already used by the first track
	assert.Equal(t, []float64{1, 2, 3, 5, 6, 7}, stamps)
	assert.Equal(t, 3, perTrack[0])
	assert.Equal(t, 3, perTrack[1])

	// slices past the end of the eight second track are clamped
	lengths := make([]float64, len(result.Segments))
	for i, seg := range result.Segments {
		lengths[i] = seg.LengthMs
	}
	assert.Equal(t, []float64{4500, 4500, 4500, 3000, 2000, 1000}, lengths)

	// 19500 frames of slices minus overlaps of 1500, 1500, 1500, 1500 and 1000
	assert.Equal(t, 12500, result.Buffer.Frames())
	assert.InDelta(t, 12.5, result.TotalDuration, 1e-9)

	require.Len(t, result.Contributions, 2)
	assert.Equal(t, 3, result.Contributions[0].Segments)
	assert.InDelta(t, 13.5, result.Contributions[0].Seconds, 1e-9)
	assert.InDelta(t, 6.0, result.Contributions[1].Seconds, 1e-9)
}

func TestSequenceIntensityCaps(t *testing.T) {
	tracks := []*audio.Track{constantTrack("a", 30, 0.5), constantTrack("b", 30, 0.5)}
	profiles := stubProfiles{
		"a": {1, 2, 3, 4, 5},
		"b": {6, 7, 8, 9, 10},
	}

	for _, intensity := range []Intensity{IntensityLow, IntensityMedium, IntensityHigh} {
		t.Run(intensity.String(), func(t *testing.T) {
			result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
				Tracks:    tracks,
				Intensity: intensity,
			})
			require.NoError(t, err)
			for _, c := range result.Contributions {
				assert.Equal(t, intensity.Cap(), c.Segments)
			}
		})
	}
}

func TestSequenceFlatTrackProducesNothing(t *testing.T) {
	track := &audio.Track{ID: "flat", PCM: audio.NewBuffer(5*44100, 44100, 2)}
	sequencer := NewSequencer(energy.NewProfiler(energy.DefaultOptions()), DefaultOptions())

	result, err := sequencer.Sequence(context.Background(), &Request{
		Tracks:    []*audio.Track{track},
		Intensity: IntensityHigh,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Segments)
	assert.Equal(t, 0, result.Buffer.Frames())
	assert.Zero(t, result.TotalDuration)
}

func TestSequenceCuePointOverride(t *testing.T) {
	tracks := []*audio.Track{constantTrack("cued", 20, 0.5), constantTrack("other", 20, 0.5)}
	profiles := stubProfiles{
		"cued":  {2.3},
		"other": {9},
	}

	result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
		Tracks:    tracks,
		Intensity: IntensityHigh,
		CuePoints: map[int]float64{0: 5.0},
	})
	require.NoError(t, err)
	require.Len(t, result.Segments, 2)

	first := result.Segments[0]
	assert.Equal(t, 0, first.TrackIndex)
	assert.Equal(t, 5000, first.StartMs)
	assert.True(t, first.Cue)
	assert.InDelta(t, result.SegmentLengthMs, first.LengthMs, 1e-9)
	assert.InDelta(t, 10000.0, first.LengthMs, 1e-9)
}

func TestSequenceCueTakesPartInDedup(t *testing.T) {
	tracks := []*audio.Track{constantTrack("a", 20, 0.5), constantTrack("b", 20, 0.5)}
	profiles := stubProfiles{"a": {1}, "b": {4}}

	result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
		Tracks:    tracks,
		Intensity: IntensityLow,
		CuePoints: map[int]float64{0: 4, 1: 4},
	})
	require.NoError(t, err)
	require.Len(t, result.Segments, 1)
	assert.Equal(t, 0, result.Segments[0].TrackIndex)
}

func TestSequenceCueBeyondTrackIsDropped(t *testing.T) {
	tracks := []*audio.Track{constantTrack("a", 5, 0.5), constantTrack("b", 5, 0.5)}
	profiles := stubProfiles{"a": {1}, "b": {2}}

	result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
		Tracks:    tracks,
		Intensity: IntensityLow,
		CuePoints: map[int]float64{0: 60},
	})
	require.NoError(t, err)
	require.Len(t, result.Segments, 1)
	assert.Equal(t, 1, result.Segments[0].TrackIndex)
	assert.Equal(t, 0, result.Contributions[0].Segments)
}

func TestSequenceNoTimestampRepeats(t *testing.T) {
	tracks := []*audio.Track{
		constantTrack("a", 12, 0.5),
		constantTrack("b", 12, 0.5),
		constantTrack("c", 12, 0.5),
	}
	profiles := stubProfiles{
		"a": {1, 2, 3},
		"b": {1, 2, 3, 4},
		"c": {2, 3, 4, 5, 6},
	}

	result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
		Tracks:    tracks,
		Intensity: IntensityMedium,
	})
	require.NoError(t, err)

	seen := map[float64]bool{}
	for _, seg := range result.Segments {
		assert.False(t, seen[seg.Timestamp], "timestamp %v repeated", seg.Timestamp)
		seen[seg.Timestamp] = true
	}
	assert.Len(t, result.Segments, 6)
}

func TestSequenceDedupTolerance(t *testing.T) {
	tracks := []*audio.Track{constantTrack("a", 10, 0.5), constantTrack("b", 10, 0.5)}
	profiles := stubProfiles{"a": {1.0}, "b": {1.0004}}

	exact, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
		Tracks: tracks, Intensity: IntensityLow,
	})
	require.NoError(t, err)
	assert.Len(t, exact.Segments, 2)

	opts := DefaultOptions()
	opts.DedupTolerance = time.Millisecond
	tolerant, err := NewSequencer(profiles, opts).Sequence(context.Background(), &Request{
		Tracks: tracks, Intensity: IntensityLow,
	})
	require.NoError(t, err)
	assert.Len(t, tolerant.Segments, 1)
}

func TestSequenceIdempotent(t *testing.T) {
	tracks := []*audio.Track{constantTrack("a", 9, 0.4), constantTrack("b", 7, 0.6)}
	profiles := stubProfiles{"a": {0.5, 2, 4}, "b": {1, 3}}
	req := &Request{Tracks: tracks, Intensity: IntensityHigh, TransitionDuration: 800 * time.Millisecond}

	first, err := newTestSequencer(profiles).Sequence(context.Background(), req)
	require.NoError(t, err)
	second, err := newTestSequencer(profiles).Sequence(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Segments, second.Segments)
	assert.Equal(t, first.Contributions, second.Contributions)
	assert.Equal(t, first.Buffer.Samples, second.Buffer.Samples)
}

func TestSequenceFailedProfilesStillCountTowardLength(t *testing.T) {
	tracks := []*audio.Track{constantTrack("a", 10, 0.5), constantTrack("missing", 10, 0.5)}
	var profiled []int
	opts := DefaultOptions()
	opts.Workers = 1
	opts.OnProfiled = func(index int, err error) {
		profiled = append(profiled, index)
	}

	result, err := NewSequencer(stubProfiles{"a": {1}}, opts).Sequence(context.Background(), &Request{
		Tracks: tracks, Intensity: IntensityHigh,
	})
	require.NoError(t, err)
	assert.InDelta(t, 5000.0, result.SegmentLengthMs, 1e-9)
	require.Len(t, result.Segments, 1)
	assert.ElementsMatch(t, []int{0, 1}, profiled)
}

func TestSequenceTrackTimeout(t *testing.T) {
	opts := DefaultOptions()
	opts.TrackTimeout = 20 * time.Millisecond

	result, err := NewSequencer(slowProfiles{}, opts).Sequence(context.Background(), &Request{
		Tracks:    []*audio.Track{constantTrack("slow", 3, 0.5)},
		Intensity: IntensityHigh,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Segments)
}

func TestSequenceValidation(t *testing.T) {
	good := []*audio.Track{constantTrack("a", 5, 0.5)}

	tests := []struct {
		name    string
		req     *Request
		wantErr error
	}{
		{name: "nil request", req: nil, wantErr: ErrEmptyInput},
		{name: "no tracks", req: &Request{Intensity: IntensityLow}, wantErr: ErrEmptyInput},
		{name: "bad intensity", req: &Request{Tracks: good}, wantErr: ErrInvalidIntensity},
		{name: "short transition", req: &Request{Tracks: good, Intensity: IntensityLow, TransitionDuration: 50 * time.Millisecond}, wantErr: ErrInvalidTransition},
		{name: "long transition", req: &Request{Tracks: good, Intensity: IntensityLow, TransitionDuration: 4 * time.Second}, wantErr: ErrInvalidTransition},
		{name: "cue out of range", req: &Request{Tracks: good, Intensity: IntensityLow, CuePoints: map[int]float64{3: 1}}, wantErr: ErrInvalidCue},
		{name: "negative cue", req: &Request{Tracks: good, Intensity: IntensityLow, CuePoints: map[int]float64{0: -1}}, wantErr: ErrInvalidCue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestSequencer(stubProfiles{}).Sequence(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSequenceSkipsUnusableTracks(t *testing.T) {
	good := constantTrack("a", 10, 0.5)
	empty := &audio.Track{ID: "empty", PCM: audio.NewBuffer(0, testRate, 1)}
	otherRate := &audio.Track{ID: "fast", PCM: audio.NewBuffer(8*2*testRate, 2*testRate, 1)}
	profiles := stubProfiles{"a": {1, 2, 3}, "fast": {1}}

	t.Run("good track first", func(t *testing.T) {
		result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
			Tracks:    []*audio.Track{good, empty, otherRate, nil},
			Intensity: IntensityHigh,
			CuePoints: map[int]float64{1: 0.5},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, result.Skipped)
		assert.InDelta(t, 10000.0, result.SegmentLengthMs, 1e-9)
		require.Len(t, result.Segments, 3)
		for _, seg := range result.Segments {
			assert.Equal(t, 0, seg.TrackIndex)
		}
		require.Len(t, result.Contributions, 1)
		assert.Equal(t, 3, result.Contributions[0].Segments)
	})

	t.Run("bad track first", func(t *testing.T) {
		result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
			Tracks:    []*audio.Track{empty, good},
			Intensity: IntensityHigh,
			CuePoints: map[int]float64{1: 4},
		})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, result.Skipped)
		require.Len(t, result.Segments, 1)
		assert.Equal(t, 1, result.Segments[0].TrackIndex)
		assert.Equal(t, 4000, result.Segments[0].StartMs)
		assert.True(t, result.Segments[0].Cue)
		require.Len(t, result.Contributions, 1)
		assert.Equal(t, 1, result.Contributions[0].TrackIndex)
	})

	t.Run("nothing usable", func(t *testing.T) {
		result, err := newTestSequencer(profiles).Sequence(context.Background(), &Request{
			Tracks:    []*audio.Track{empty},
			Intensity: IntensityLow,
		})
		require.NoError(t, err)
		assert.Empty(t, result.Segments)
		assert.Equal(t, []int{0}, result.Skipped)
		assert.Zero(t, result.Buffer.Frames())
	})
}
