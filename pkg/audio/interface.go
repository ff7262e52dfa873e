package audio

import (
	"context"
	"io"
	"time"
)

// AudioFormat represents supported audio formats
type AudioFormat string

const (
	FormatWAV  AudioFormat = "wav"
	FormatMP3  AudioFormat = "mp3"
	FormatM4A  AudioFormat = "m4a"
	FormatFLAC AudioFormat = "flac"
	FormatOGG  AudioFormat = "ogg"
)

// AudioInfo contains probed metadata about an audio file
type AudioInfo struct {
	FilePath   string        `json:"-"`
	Format     AudioFormat   `json:"format"`
	MimeType   string        `json:"mime_type"`
	Duration   time.Duration `json:"duration_ns"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitRate    int           `json:"bit_rate,omitempty"`
	Size       int64         `json:"size,omitempty"`
}

// Track is a decoded source track. Immutable once loaded.
type Track struct {
	ID     string // file path or caller supplied name
	Title  string
	Artist string
	PCM    *Buffer

	// Source is what ffprobe reported before decoding; nil when it could not run
	Source *AudioInfo
}

// Seconds returns the track duration in seconds
func (t *Track) Seconds() float64 {
	if t == nil || t.PCM == nil {
		return 0
	}
	return t.PCM.Seconds()
}

// Duration returns the track duration
func (t *Track) Duration() time.Duration {
	if t == nil || t.PCM == nil {
		return 0
	}
	return t.PCM.Duration()
}

// DisplayName prefers the tagged title over the ID
func (t *Track) DisplayName() string {
	switch {
	case t.Title != "" && t.Artist != "":
		return t.Artist + " - " + t.Title
	case t.Title != "":
		return t.Title
	default:
		return t.ID
	}
}

// Processor handles ffmpeg backed probing and conversion
type Processor interface {
	// GetAudioInfo extracts metadata from an audio file
	GetAudioInfo(filePath string) (*AudioInfo, error)

	// ConvertToAudio converts any ffmpeg readable input to the given format
	ConvertToAudio(inputPath, outputPath string, format AudioFormat) error

	// ValidateFile checks that ffprobe can read the file
	ValidateFile(filePath string) error

	// Options returns the rate and channel count conversions produce
	Options() ProcessorOptions
}

// Decoder turns audio files into Tracks
type Decoder interface {
	DecodeFile(ctx context.Context, path string) (*Track, error)
}

// Exporter writes a rendered buffer to disk
type Exporter interface {
	Export(buf *Buffer, outputPath string) error
}

// TagReader reads embedded track tags
type TagReader interface {
	ReadTags(r io.ReadSeeker) (title, artist string, err error)
}
