package audio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/eternnoir/hypemix/pkg/logger"
)

// ExporterImpl writes rendered buffers as WAV directly or through ffmpeg for
// compressed formats
type ExporterImpl struct {
	processor Processor
	tempDir   string
	keepTemp  bool
}

// NewExporter creates an exporter
func NewExporter(processor Processor, tempDir string, keepTemp bool) *ExporterImpl {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &ExporterImpl{
		processor: processor,
		tempDir:   tempDir,
		keepTemp:  keepTemp,
	}
}

// Export writes buf to outputPath, picking the container from the extension.
// Unknown extensions are exported as MP3.
func (e *ExporterImpl) Export(buf *Buffer, outputPath string) error {
	log := logger.WithComponent("exporter").WithField("output", filepath.Base(outputPath))

	if err := buf.Validate(); err != nil {
		return fmt.Errorf("nothing to export: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	format := DetectFormat(outputPath)
	if format == FormatWAV {
		return writeWAVFile(buf, outputPath)
	}
	if format == "" {
		format = FormatMP3
	}

	tmp, err := os.CreateTemp(e.tempDir, "hypemix_render_*.wav")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	if !e.keepTemp {
		defer func() { _ = os.Remove(tmpPath) }()
	}

	if err := writeWAVFile(buf, tmpPath); err != nil {
		return err
	}

	log.Debug().Str("format", string(format)).Str("intermediate", tmpPath).Msg("Encoding rendered mashup")
	if err := e.processor.ConvertToAudio(tmpPath, outputPath, format); err != nil {
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}

	if stat, err := os.Stat(outputPath); err == nil {
		log.Info().Int64("size_bytes", stat.Size()).Dur("duration", buf.Duration()).Msg("Mashup exported")
	}
	return nil
}

func writeWAVFile(buf *Buffer, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create WAV file: %w", err)
	}
	if err := WriteWAV(file, buf); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// WriteWAV encodes buf as 16-bit PCM WAV. Samples are clipped to [-1, 1].
func WriteWAV(w io.WriteSeeker, buf *Buffer) error {
	encoder := wav.NewEncoder(w, buf.SampleRate, 16, buf.Channels, 1)

	data := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		data[i] = int(s * 32767.0)
	}

	intBuf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: buf.Channels,
			SampleRate:  buf.SampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	}

	if err := encoder.Write(intBuf); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %w", err)
	}
	return nil
}
