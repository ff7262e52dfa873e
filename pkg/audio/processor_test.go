package audio

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewProcessor(t *testing.T) {
	tests := []struct {
		name        string
		tempDir     string
		options     ProcessorOptions
		wantDir     string
		wantRate    int
		wantBitrate string
	}{
		{
			name:        "defaults",
			tempDir:     "",
			wantDir:     os.TempDir(),
			wantRate:    44100,
			wantBitrate: "192k",
		},
		{
			name:        "custom options",
			tempDir:     "/custom/temp",
			options:     ProcessorOptions{SampleRate: 22050, Channels: 1, Bitrate: "128k"},
			wantDir:     "/custom/temp",
			wantRate:    22050,
			wantBitrate: "128k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			processor := NewProcessor(tt.tempDir, tt.options)
			if processor.tempDir != tt.wantDir {
				t.Errorf("NewProcessor() tempDir = %v, want %v", processor.tempDir, tt.wantDir)
			}
			if processor.Options().SampleRate != tt.wantRate {
				t.Errorf("SampleRate = %v, want %v", processor.Options().SampleRate, tt.wantRate)
			}
			if processor.Options().Bitrate != tt.wantBitrate {
				t.Errorf("Bitrate = %v, want %v", processor.Options().Bitrate, tt.wantBitrate)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filePath string
		want     AudioFormat
	}{
		{"track.wav", FormatWAV},
		{"TRACK.WAV", FormatWAV},
		{"track.mp3", FormatMP3},
		{"track.m4a", FormatM4A},
		{"track.flac", FormatFLAC},
		{"track.ogg", FormatOGG},
		{"track.txt", ""},
		{"track", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filePath, func(t *testing.T) {
			if got := DetectFormat(tt.filePath); got != tt.want {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filePath, got, tt.want)
			}
		})
	}
}

func TestGetMimeType(t *testing.T) {
	tests := []struct {
		format AudioFormat
		want   string
	}{
		{FormatWAV, "audio/wav"},
		{FormatMP3, "audio/mpeg"},
		{FormatFLAC, "audio/flac"},
		{AudioFormat("xyz"), "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := GetMimeType(tt.format); got != tt.want {
				t.Errorf("GetMimeType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseProbeInfo(t *testing.T) {
	probe := `{
		"format": {"duration": "12.500000", "bit_rate": "192000", "size": "300000"},
		"streams": [
			{"codec_type": "video"},
			{"codec_type": "audio", "sample_rate": "48000", "channels": 2}
		]
	}`

	info := &AudioInfo{FilePath: "/music/song.mp3"}
	if err := parseProbeInfo(probe, info); err != nil {
		t.Fatalf("parseProbeInfo() error = %v", err)
	}

	if info.Duration != 12500*time.Millisecond {
		t.Errorf("Duration = %v, want 12.5s", info.Duration)
	}
	if info.SampleRate != 48000 || info.Channels != 2 {
		t.Errorf("stream = %d Hz / %d ch, want 48000 / 2", info.SampleRate, info.Channels)
	}
	if info.BitRate != 192000 || info.Size != 300000 {
		t.Errorf("BitRate/Size = %d/%d", info.BitRate, info.Size)
	}
	if info.Format != FormatMP3 || info.MimeType != "audio/mpeg" {
		t.Errorf("Format = %v (%v), want mp3", info.Format, info.MimeType)
	}

	opus := &AudioInfo{FilePath: "/music/song.opus"}
	if err := parseProbeInfo(`{"format": {"format_name": "ogg"}, "streams": []}`, opus); err != nil {
		t.Fatalf("parseProbeInfo() error = %v", err)
	}
	if opus.Format != FormatOGG || opus.MimeType != "audio/ogg" {
		t.Errorf("Format = %v (%v), want ogg from format_name", opus.Format, opus.MimeType)
	}

	webm := &AudioInfo{FilePath: "/music/song.webm"}
	if err := parseProbeInfo(`{"format": {"format_name": "matroska,webm"}}`, webm); err != nil {
		t.Fatalf("parseProbeInfo() error = %v", err)
	}
	if webm.Format != "matroska" {
		t.Errorf("Format = %v, want first format_name alias", webm.Format)
	}

	if err := parseProbeInfo("not json", &AudioInfo{}); err == nil {
		t.Error("parseProbeInfo() should fail on invalid JSON")
	}
}

func TestValidateFile(t *testing.T) {
	processor := NewProcessor("", ProcessorOptions{})
	testDir := t.TempDir()

	tests := []struct {
		name      string
		filePath  string
		setupFunc func() error
		wantError bool
	}{
		{
			name:      "file does not exist",
			filePath:  filepath.Join(testDir, "missing.mp3"),
			setupFunc: func() error { return nil },
			wantError: true,
		},
		{
			name:     "unreadable content",
			filePath: filepath.Join(testDir, "notes.txt"),
			setupFunc: func() error {
				return os.WriteFile(filepath.Join(testDir, "notes.txt"), []byte("x"), 0o644)
			},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.setupFunc(); err != nil {
				t.Fatalf("Setup failed: %v", err)
			}
			err := processor.ValidateFile(tt.filePath)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateFile() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateFileLeavesFormatToProbe(t *testing.T) {
	processor := NewProcessor("", ProcessorOptions{})
	testDir := t.TempDir()

	for _, name := range []string{"clip.opus", "clip.aiff", "clip.webm"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(testDir, name)
			if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
				t.Fatalf("Setup failed: %v", err)
			}

			err := processor.ValidateFile(path)
			if err == nil {
				t.Fatal("ValidateFile() should fail for unreadable content")
			}
			if !strings.Contains(err.Error(), "invalid or corrupted file") {
				t.Errorf("ValidateFile() error = %v, want the probe to reject it", err)
			}
		})
	}
}

func TestConvertToAudioValidation(t *testing.T) {
	processor := NewProcessor("", ProcessorOptions{})
	testDir := t.TempDir()

	if err := processor.ConvertToAudio(filepath.Join(testDir, "missing.wav"), filepath.Join(testDir, "out.mp3"), FormatMP3); err == nil {
		t.Error("ConvertToAudio() should fail for a missing input")
	}

	input := filepath.Join(testDir, "in.wav")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	if err := processor.ConvertToAudio(input, filepath.Join(testDir, "out.m4a"), FormatM4A); err == nil {
		t.Error("ConvertToAudio() should reject unsupported output formats")
	}
}

// Integration test with real audio file (requires testdata)
func TestGetAudioInfoIntegration(t *testing.T) {
	testFile := "../../testdata/audio.wav"
	if _, err := os.Stat(testFile); os.IsNotExist(err) {
		t.Skip("Skipping integration test: testdata/audio.wav not found")
	}

	info, err := NewProcessor("", ProcessorOptions{}).GetAudioInfo(testFile)
	if err != nil {
		t.Fatalf("GetAudioInfo() failed: %v", err)
	}
	if info.Duration <= 0 {
		t.Errorf("Duration should be positive, got %v", info.Duration)
	}
}
