package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/eternnoir/hypemix/pkg/logger"
)

// DecoderImpl decodes WAV and MP3 natively and falls back to ffmpeg for
// everything else. All tracks come out at the processor's sample rate and
// channel count so they can be mixed together.
type DecoderImpl struct {
	processor Processor
	tags      TagReader
	tempDir   string
	keepTemp  bool
}

// NewDecoder creates a decoder that canonicalizes tracks through processor
func NewDecoder(processor Processor, tempDir string, keepTemp bool) *DecoderImpl {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &DecoderImpl{
		processor: processor,
		tags:      NewTagReader(),
		tempDir:   tempDir,
		keepTemp:  keepTemp,
	}
}

// DecodeFile loads path into a Track. Every failure is a *DecodeError.
func (d *DecoderImpl) DecodeFile(ctx context.Context, path string) (*Track, error) {
	log := logger.ComponentFromContext(ctx, "decoder").WithTrack(path)
	startTime := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	opts := d.processor.Options()

	// without ffprobe the source is decoded by extension and checked afterwards
	info, err := d.processor.GetAudioInfo(path)
	if err != nil {
		log.Debug().Err(err).Msg("Probe unavailable, decoding by extension")
		info = nil
	}

	var buf *Buffer
	if info != nil && info.SampleRate > 0 && info.SampleRate != opts.SampleRate {
		log.Debug().
			Int("source_rate", info.SampleRate).
			Int("target_rate", opts.SampleRate).
			Msg("Sample rate mismatch, transcoding with ffmpeg")
		buf, err = d.decodeViaFFmpeg(path, info)
	} else {
		buf, err = d.decodeNative(path)
		if err != nil {
			log.Debug().Err(err).Msg("Native decode unavailable, transcoding with ffmpeg")
			buf, err = d.decodeViaFFmpeg(path, info)
		}
	}
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	if buf.SampleRate != opts.SampleRate {
		log.Debug().
			Int("source_rate", buf.SampleRate).
			Int("target_rate", opts.SampleRate).
			Msg("Sample rate mismatch, transcoding with ffmpeg")
		buf, err = d.decodeViaFFmpeg(path, info)
		if err != nil {
			return nil, &DecodeError{Path: path, Err: err}
		}
	}
	buf = buf.Remix(opts.Channels)

	if err := buf.Validate(); err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}

	title, artist := ReadFileTags(d.tags, path)
	track := &Track{
		ID:     path,
		Title:  title,
		Artist: artist,
		PCM:    buf,
		Source: info,
	}

	log.Debug().
		Dur("duration", track.Duration()).
		Int("sample_rate", buf.SampleRate).
		Int("channels", buf.Channels).
		Str("title", track.DisplayName()).
		Dur("elapsed", time.Since(startTime)).
		Msg("Track decoded")

	return track, nil
}

func (d *DecoderImpl) decodeNative(path string) (*Buffer, error) {
	switch DetectFormat(path) {
	case FormatWAV:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()
		return DecodeWAV(file)
	case FormatMP3:
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = file.Close() }()
		return DecodeMP3(file)
	default:
		return nil, fmt.Errorf("no native decoder for %s", filepath.Ext(path))
	}
}

// decodeViaFFmpeg transcodes path to canonical PCM WAV and decodes that.
// A nil info means the file has not been probed yet.
func (d *DecoderImpl) decodeViaFFmpeg(path string, info *AudioInfo) (*Buffer, error) {
	if info == nil {
		if err := d.processor.ValidateFile(path); err != nil {
			return nil, err
		}
	}

	tmp, err := os.CreateTemp(d.tempDir, "hypemix_decode_*.wav")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	if !d.keepTemp {
		defer func() { _ = os.Remove(tmpPath) }()
	}

	if err := d.processor.ConvertToAudio(path, tmpPath, FormatWAV); err != nil {
		return nil, err
	}

	file, err := os.Open(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcoded file: %w", err)
	}
	defer func() { _ = file.Close() }()
	return DecodeWAV(file)
}

// DecodeWAV decodes an integer PCM WAV stream
func DecodeWAV(r io.ReadSeeker) (*Buffer, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAV file")
	}

	pcm, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if pcm.Format == nil || pcm.Format.NumChannels <= 0 {
		return nil, fmt.Errorf("missing WAV format information")
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth <= 0 || bitDepth > 32 {
		return nil, fmt.Errorf("unsupported bit depth %d", bitDepth)
	}

	samples := make([]float64, len(pcm.Data))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned
		for i, v := range pcm.Data {
			samples[i] = float64(v-128) / 128
		}
	} else {
		scale := float64(int64(1) << uint(bitDepth-1))
		for i, v := range pcm.Data {
			samples[i] = float64(v) / scale
		}
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: pcm.Format.SampleRate,
		Channels:   pcm.Format.NumChannels,
	}, nil
}

// DecodeMP3 decodes an MP3 stream. go-mp3 always yields 16-bit stereo.
func DecodeMP3(r io.Reader) (*Buffer, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("creating MP3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("decoding MP3: %w", err)
	}
	if len(pcm) == 0 {
		return nil, fmt.Errorf("MP3 file contains no audio data")
	}

	samples := pcm16ToFloat(pcm)

	// drop a dangling half frame
	if len(samples)%2 != 0 {
		samples = samples[:len(samples)-1]
	}

	return &Buffer{
		Samples:    samples,
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}

// pcm16ToFloat converts interleaved little-endian int16 PCM to [-1, 1).
// A trailing odd byte is ignored.
func pcm16ToFloat(pcm []byte) []float64 {
	samples := make([]float64, len(pcm)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(pcm[2*i:]))) / 32768.0
	}
	return samples
}
