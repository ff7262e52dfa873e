package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/eternnoir/hypemix/pkg/config"
	"github.com/eternnoir/hypemix/pkg/logger"
	"github.com/eternnoir/hypemix/pkg/mashup"
)

// mixCmd represents the mix command
var mixCmd = &cobra.Command{
	Use:   "mix [files...]",
	Short: "Build a mashup from audio files",
	Long: `Build one mashup from the high-energy moments of the given tracks.

Each track is decoded, profiled for short-time RMS energy and contributes up
to 1, 2 or 3 slices depending on the intensity. Slices are joined in input
order with linear crossfades.

Examples:
  # Medium intensity, default 1.5s crossfades
  hypemix mix a.mp3 b.mp3 c.wav

  # Three slices per track with short transitions
  hypemix mix *.mp3 --intensity high --transition 500 -o party.mp3

  # Pin the first track's slice to 42.5 seconds
  hypemix mix intro.wav drop.mp3 --cue 0=42.5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMix,
}

func init() {
	rootCmd.AddCommand(mixCmd)

	defaults := config.DefaultConfig()

	// Mashup options
	mixCmd.Flags().StringP("intensity", "i", defaults.Mashup.Intensity, "slices per track (low, medium, high)")
	mixCmd.Flags().IntP("transition", "t", defaults.Mashup.TransitionMs, "crossfade length in milliseconds (100-3000)")
	mixCmd.Flags().StringArray("cue", nil, "cue point as index=seconds, may be repeated")

	// Output options
	mixCmd.Flags().StringP("output", "o", defaults.Output.Path, "output file path (extension picks the format)")
	mixCmd.Flags().Bool("metadata", defaults.Output.WriteMetadata, "write a JSON sidecar next to the output")
	mixCmd.Flags().String("bitrate", defaults.Output.Bitrate, "MP3 bitrate")

	// Processing options
	mixCmd.Flags().Int("workers", defaults.Analysis.Workers, "number of tracks decoded and profiled concurrently")
	mixCmd.Flags().Bool("no-cache", false, "do not read or write the profile cache")
	mixCmd.Flags().Bool("no-history", false, "do not record this mashup in history")
	mixCmd.Flags().Bool("progress", true, "show progress bars")

	bindFlag(mixCmd, "mashup.intensity", "intensity")
	bindFlag(mixCmd, "mashup.transition_ms", "transition")
	bindFlag(mixCmd, "output.path", "output")
	bindFlag(mixCmd, "output.write_metadata", "metadata")
	bindFlag(mixCmd, "output.bitrate", "bitrate")
	bindFlag(mixCmd, "analysis.workers", "workers")
}

func runMix(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("mix")
	cfg := appConfig

	intensity, err := mashup.ParseIntensity(cfg.Mashup.Intensity)
	if err != nil {
		return err
	}

	cueFlags, _ := cmd.Flags().GetStringArray("cue")
	cues, err := parseCues(cueFlags, len(args))
	if err != nil {
		return err
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	noHistory, _ := cmd.Flags().GetBool("no-history")
	c, err := newComponents(cfg, !noCache, !noHistory)
	if err != nil {
		return err
	}
	defer c.Close()

	showProgress, _ := cmd.Flags().GetBool("progress")
	progress := newMixProgress(showProgress, len(args))

	options := c.sequencerOptions(cfg)
	options.OnProfiled = func(int, error) { progress.profiled() }
	sequencer := mashup.NewSequencer(c.profileSource(), options)
	mixer := mashup.NewMixer(c.decoder, c.exporter, sequencer, c.historySink(), cfg.Analysis.Workers)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Int("files", len(args)).
		Str("intensity", intensity.String()).
		Int("transition_ms", cfg.Mashup.TransitionMs).
		Int("cues", len(cues)).
		Msg("Starting mashup")

	report, err := mixer.Mix(ctx, args, mashup.MixOptions{
		Intensity:     intensity,
		Transition:    time.Duration(cfg.Mashup.TransitionMs) * time.Millisecond,
		CuePoints:     cues,
		OutputPath:    cfg.Output.Path,
		WriteMetadata: cfg.Output.WriteMetadata,
		OnDecoded:     func(string, error) { progress.decoded() },
	})
	progress.finish()

	if errors.Is(err, mashup.ErrInsufficientSegments) {
		fmt.Println("Nothing to mix: no track produced a usable segment.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mashup failed: %w", err)
	}

	printReport(report)
	return nil
}

// parseCues turns "index=seconds" values into a cue map
func parseCues(values []string, fileCount int) (map[int]float64, error) {
	if len(values) == 0 {
		return nil, nil
	}

	cues := make(map[int]float64, len(values))
	for _, value := range values {
		indexStr, secondsStr, ok := strings.Cut(value, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q is not index=seconds", mashup.ErrInvalidCue, value)
		}
		index, err := strconv.Atoi(strings.TrimSpace(indexStr))
		if err != nil {
			return nil, fmt.Errorf("%w: bad track index in %q", mashup.ErrInvalidCue, value)
		}
		seconds, err := strconv.ParseFloat(strings.TrimSpace(secondsStr), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad seconds in %q", mashup.ErrInvalidCue, value)
		}
		if index < 0 || index >= fileCount {
			return nil, fmt.Errorf("%w: track index %d out of range (0-%d)", mashup.ErrInvalidCue, index, fileCount-1)
		}
		if seconds < 0 {
			return nil, fmt.Errorf("%w: negative cue %v", mashup.ErrInvalidCue, seconds)
		}
		if _, dup := cues[index]; dup {
			return nil, fmt.Errorf("%w: track %d cued twice", mashup.ErrInvalidCue, index)
		}
		cues[index] = seconds
	}
	return cues, nil
}

func printReport(report *mashup.Report) {
	result := report.Result

	fmt.Println("\n=== Mashup ===")
	fmt.Printf("ID: %s\n", report.ID)
	fmt.Printf("Output: %s\n", report.OutputPath)
	if report.MetadataPath != "" {
		fmt.Printf("Metadata: %s\n", report.MetadataPath)
	}
	fmt.Printf("Intensity: %s\n", result.Intensity)
	fmt.Printf("Transition: %dms\n", result.TransitionMs)
	fmt.Printf("Segment length: %.0fms\n", result.SegmentLengthMs)
	fmt.Printf("Duration: %.2fs from %.2fs of input\n", result.TotalDuration, result.InputDuration)
	fmt.Printf("Segments: %d\n", len(result.Segments))

	for _, skipped := range report.Skipped {
		fmt.Printf("Skipped (undecodable): %s\n", skipped)
	}

	fmt.Println("\n=== Tracks ===")
	for _, contrib := range result.Contributions {
		fmt.Printf("[%d] %s: %d segment(s), %.2fs\n",
			contrib.TrackIndex, contrib.Title, contrib.Segments, contrib.Seconds)
	}
}

// mixProgress drives the decode and profile bars. A nil progress container
// turns every method into a no-op.
type mixProgress struct {
	p          *mpb.Progress
	decodeBar  *mpb.Bar
	analyzeBar *mpb.Bar
}

func newMixProgress(enabled bool, total int) *mixProgress {
	if !enabled {
		return &mixProgress{}
	}

	p := mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
	newBar := func(name string) *mpb.Bar {
		return p.AddBar(int64(total),
			mpb.PrependDecorators(
				decor.Name(name),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
		)
	}

	return &mixProgress{
		p:          p,
		decodeBar:  newBar("Decoding:  "),
		analyzeBar: newBar("Analyzing: "),
	}
}

func (mp *mixProgress) decoded() {
	if mp.decodeBar != nil {
		mp.decodeBar.Increment()
	}
}

func (mp *mixProgress) profiled() {
	if mp.analyzeBar != nil {
		mp.analyzeBar.Increment()
	}
}

// finish completes both bars at their current count and waits for rendering.
// Skipped and cued tracks are never profiled, so the analyze bar may stop short.
func (mp *mixProgress) finish() {
	if mp.p == nil {
		return
	}
	mp.decodeBar.SetTotal(-1, true)
	mp.analyzeBar.SetTotal(-1, true)
	mp.p.Wait()
}
