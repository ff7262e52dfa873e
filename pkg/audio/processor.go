package audio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/eternnoir/hypemix/pkg/logger"
)

// ProcessorOptions configures ffmpeg conversions
type ProcessorOptions struct {
	SampleRate int    // Target sample rate for conversions
	Channels   int    // Target channel count for conversions
	Bitrate    string // MP3 bitrate, e.g. "192k"
}

// DefaultProcessorOptions returns CD quality stereo at 192k
func DefaultProcessorOptions() ProcessorOptions {
	return ProcessorOptions{
		SampleRate: 44100,
		Channels:   2,
		Bitrate:    "192k",
	}
}

// ProcessorImpl implements the Processor interface on top of ffmpeg
type ProcessorImpl struct {
	tempDir string
	options ProcessorOptions
}

// NewProcessor creates a new audio processor
func NewProcessor(tempDir string, options ProcessorOptions) *ProcessorImpl {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	defaults := DefaultProcessorOptions()
	if options.SampleRate <= 0 {
		options.SampleRate = defaults.SampleRate
	}
	if options.Channels <= 0 {
		options.Channels = defaults.Channels
	}
	if options.Bitrate == "" {
		options.Bitrate = defaults.Bitrate
	}
	return &ProcessorImpl{
		tempDir: tempDir,
		options: options,
	}
}

// Options returns the conversion options in effect
func (p *ProcessorImpl) Options() ProcessorOptions {
	return p.options
}

// GetAudioInfo extracts metadata from an audio file
func (p *ProcessorImpl) GetAudioInfo(filePath string) (*AudioInfo, error) {
	log := logger.WithComponent("audio-processor").WithField("file", filepath.Base(filePath))

	if !fileExists(filePath) {
		return nil, fmt.Errorf("file does not exist: %s", filePath)
	}

	log.Debug().Msg("Probing file with ffprobe")
	info, err := ffmpeg.Probe(filePath)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to probe file")
		return nil, fmt.Errorf("failed to probe file: %w", err)
	}

	audioInfo := &AudioInfo{FilePath: filePath}
	if err := parseProbeInfo(info, audioInfo); err != nil {
		return nil, fmt.Errorf("failed to parse probe info: %w", err)
	}

	log.Debug().
		Dur("duration", audioInfo.Duration).
		Str("format", string(audioInfo.Format)).
		Int("sample_rate", audioInfo.SampleRate).
		Int("channels", audioInfo.Channels).
		Msg("Audio information extracted")

	return audioInfo, nil
}

// ConvertToAudio converts inputPath into format at the configured rate and channel count
func (p *ProcessorImpl) ConvertToAudio(inputPath, outputPath string, format AudioFormat) error {
	log := logger.WithComponent("audio-converter").
		WithField("input", filepath.Base(inputPath)).
		WithField("output", filepath.Base(outputPath))

	if !fileExists(inputPath) {
		return fmt.Errorf("input file does not exist: %s", inputPath)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	args, err := p.outputArgs(format)
	if err != nil {
		return err
	}

	log.Debug().Str("format", string(format)).Interface("args", args).Msg("Running ffmpeg conversion")
	startTime := time.Now()
	err = ffmpeg.Input(inputPath).
		Output(outputPath, args).
		OverWriteOutput().
		ErrorToStdOut().
		Run()
	if err != nil {
		log.Error().Err(err).Dur("elapsed", time.Since(startTime)).Msg("FFmpeg conversion failed")
		return fmt.Errorf("ffmpeg conversion failed: %w", err)
	}

	if !fileExists(outputPath) {
		return fmt.Errorf("output file was not created: %s", outputPath)
	}

	log.Debug().Dur("elapsed", time.Since(startTime)).Msg("Conversion completed")
	return nil
}

func (p *ProcessorImpl) outputArgs(format AudioFormat) (ffmpeg.KwArgs, error) {
	rate := strconv.Itoa(p.options.SampleRate)
	channels := strconv.Itoa(p.options.Channels)

	switch format {
	case FormatMP3:
		return ffmpeg.KwArgs{"acodec": "libmp3lame", "ab": p.options.Bitrate, "ar": rate, "ac": channels}, nil
	case FormatWAV:
		return ffmpeg.KwArgs{"acodec": "pcm_s16le", "ar": rate, "ac": channels}, nil
	case FormatFLAC:
		return ffmpeg.KwArgs{"acodec": "flac", "ar": rate, "ac": channels}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// ValidateFile checks that filePath exists and that ffprobe can read it.
// The extension is not consulted.
func (p *ProcessorImpl) ValidateFile(filePath string) error {
	if !fileExists(filePath) {
		return fmt.Errorf("file does not exist: %s", filePath)
	}
	if _, err := ffmpeg.Probe(filePath); err != nil {
		return fmt.Errorf("invalid or corrupted file: %w", err)
	}
	return nil
}

func fileExists(filePath string) bool {
	_, err := os.Stat(filePath)
	return !os.IsNotExist(err)
}

// parseProbeInfo parses ffprobe JSON output into info
func parseProbeInfo(probeData string, info *AudioInfo) error {
	var probe struct {
		Format struct {
			FormatName string `json:"format_name"`
			Duration   string `json:"duration"`
			BitRate    string `json:"bit_rate"`
			Size       string `json:"size"`
		} `json:"format"`
		Streams []struct {
			CodecType  string `json:"codec_type"`
			SampleRate string `json:"sample_rate"`
			Channels   int    `json:"channels"`
		} `json:"streams"`
	}

	if err := json.Unmarshal([]byte(probeData), &probe); err != nil {
		return fmt.Errorf("failed to parse probe JSON: %w", err)
	}

	if seconds, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	if bitRate, err := strconv.ParseInt(probe.Format.BitRate, 10, 64); err == nil {
		info.BitRate = int(bitRate)
	}
	if size, err := strconv.ParseInt(probe.Format.Size, 10, 64); err == nil {
		info.Size = size
	}

	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}
		if rate, err := strconv.Atoi(stream.SampleRate); err == nil {
			info.SampleRate = rate
		}
		info.Channels = stream.Channels
		break
	}

	info.Format = DetectFormat(info.FilePath)
	if info.Format == "" && probe.Format.FormatName != "" {
		// ffprobe lists aliases, e.g. "matroska,webm"
		name, _, _ := strings.Cut(probe.Format.FormatName, ",")
		info.Format = AudioFormat(name)
	}
	info.MimeType = GetMimeType(info.Format)
	return nil
}

// GetMimeType returns the MIME type for the audio format
func GetMimeType(format AudioFormat) string {
	switch format {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatM4A:
		return "audio/m4a"
	case FormatFLAC:
		return "audio/flac"
	case FormatOGG:
		return "audio/ogg"
	default:
		return "application/octet-stream"
	}
}

// DetectFormat detects audio format from file extension
func DetectFormat(filePath string) AudioFormat {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".wav", ".wave":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".m4a", ".aac":
		return FormatM4A
	case ".flac":
		return FormatFLAC
	case ".ogg", ".oga":
		return FormatOGG
	default:
		return ""
	}
}
