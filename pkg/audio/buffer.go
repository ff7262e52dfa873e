package audio

import (
	"fmt"
	"time"
)

// Buffer holds interleaved PCM samples normalized to [-1, 1]
type Buffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// NewBuffer allocates a silent buffer of the given number of frames
func NewBuffer(frames, sampleRate, channels int) *Buffer {
	if frames < 0 {
		frames = 0
	}
	return &Buffer{
		Samples:    make([]float64, frames*channels),
		SampleRate: sampleRate,
		Channels:   channels,
	}
}

// Frames returns the number of sample frames
func (b *Buffer) Frames() int {
	if b == nil || b.Channels <= 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Seconds returns the buffer length in seconds
func (b *Buffer) Seconds() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Duration returns the buffer length
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.Seconds() * float64(time.Second))
}

// Validate reports whether the buffer can be interpreted as audio
func (b *Buffer) Validate() error {
	switch {
	case b == nil:
		return fmt.Errorf("nil buffer")
	case b.SampleRate <= 0:
		return fmt.Errorf("invalid sample rate %d", b.SampleRate)
	case b.Channels <= 0:
		return fmt.Errorf("invalid channel count %d", b.Channels)
	case b.Frames() == 0:
		return fmt.Errorf("empty sample buffer")
	}
	return nil
}

// FrameAt converts a millisecond offset into a frame index
func (b *Buffer) FrameAt(ms int) int {
	return int(int64(ms) * int64(b.SampleRate) / 1000)
}

// SliceMs returns the [startMs, endMs) range. The end is clamped to the
// buffer length; a start at or past the end yields an empty buffer.
// The returned buffer shares memory with b.
func (b *Buffer) SliceMs(startMs, endMs int) *Buffer {
	frames := b.Frames()
	start := b.FrameAt(startMs)
	end := b.FrameAt(endMs)
	if start < 0 {
		start = 0
	}
	if end > frames {
		end = frames
	}
	if start >= end {
		return &Buffer{SampleRate: b.SampleRate, Channels: b.Channels}
	}
	return &Buffer{
		Samples:    b.Samples[start*b.Channels : end*b.Channels],
		SampleRate: b.SampleRate,
		Channels:   b.Channels,
	}
}

// Mono returns a downmixed copy of the samples
func (b *Buffer) Mono() []float64 {
	frames := b.Frames()
	if b.Channels == 1 {
		out := make([]float64, frames)
		copy(out, b.Samples)
		return out
	}

	out := make([]float64, frames)
	ch := float64(b.Channels)
	for i := 0; i < frames; i++ {
		var sum float64
		base := i * b.Channels
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[base+c]
		}
		out[i] = sum / ch
	}
	return out
}

// Remix returns the buffer with the requested channel count.
// Mono is duplicated to every channel; anything else is downmixed first.
func (b *Buffer) Remix(channels int) *Buffer {
	if channels <= 0 || channels == b.Channels {
		return b
	}

	mono := b
	if b.Channels != 1 {
		mono = &Buffer{Samples: b.Mono(), SampleRate: b.SampleRate, Channels: 1}
	}
	if channels == 1 {
		return mono
	}

	out := NewBuffer(mono.Frames(), b.SampleRate, channels)
	for i, v := range mono.Samples {
		for c := 0; c < channels; c++ {
			out.Samples[i*channels+c] = v
		}
	}
	return out
}
