package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eternnoir/hypemix/pkg/audio"
	"github.com/eternnoir/hypemix/pkg/config"
	"github.com/eternnoir/hypemix/pkg/energy"
	"github.com/eternnoir/hypemix/pkg/logger"
	"github.com/eternnoir/hypemix/pkg/mashup"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Print the energy profile of audio files",
	Long: `Decode audio files and print their energy profiles as JSON: the RMS
threshold and every candidate timestamp the mix command would pick from.

Examples:
  # Candidates only
  hypemix analyze track.mp3

  # Include the per-frame RMS curve and write it to a file
  hypemix analyze track.mp3 --frames -o track.profile.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	defaults := config.DefaultConfig().Analysis
	analyzeCmd.Flags().StringP("output", "o", "", "write JSON to this file instead of stdout")
	analyzeCmd.Flags().Bool("frames", false, "include the per-frame RMS curve (bypasses the cache)")
	analyzeCmd.Flags().Int("frame-size", defaults.FrameSize, "analysis window in samples")
	analyzeCmd.Flags().Int("hop-size", defaults.HopSize, "samples between analysis windows")
	analyzeCmd.Flags().Float64("threshold", defaults.ThresholdMultiplier, "candidate threshold as a multiple of the mean RMS")
	analyzeCmd.Flags().Int("workers", defaults.Workers, "number of files analyzed concurrently")

	bindFlag(analyzeCmd, "analysis.frame_size", "frame-size")
	bindFlag(analyzeCmd, "analysis.hop_size", "hop-size")
	bindFlag(analyzeCmd, "analysis.threshold_multiplier", "threshold")
	bindFlag(analyzeCmd, "analysis.workers", "workers")
}

// trackAnalysis is one entry of the analyze output
type trackAnalysis struct {
	File    string           `json:"file"`
	Title   string           `json:"title,omitempty"`
	Source  *audio.AudioInfo `json:"source,omitempty"`
	Error   string           `json:"error,omitempty"`
	Profile *energy.Profile  `json:"profile,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("analyze")
	cfg := appConfig

	withFrames, _ := cmd.Flags().GetBool("frames")
	c, err := newComponents(cfg, !withFrames, false)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	results := make([]trackAnalysis, len(args))
	tracks := make([]*audio.Track, 0, len(args))
	slots := make([]int, 0, len(args))
	for i, path := range args {
		results[i].File = path
		track, err := c.decoder.DecodeFile(ctx, path)
		if err != nil {
			if !errors.Is(err, audio.ErrDecode) {
				return err
			}
			log.Warn().Err(err).Str("file", path).Msg("Skipping undecodable file")
			results[i].Error = err.Error()
			continue
		}
		results[i].Title = track.DisplayName()
		results[i].Source = track.Source
		tracks = append(tracks, track)
		slots = append(slots, i)
	}

	options := c.sequencerOptions(cfg)
	options.OnProfiled = func(index int, err error) {
		if err != nil {
			results[slots[index]].Error = err.Error()
		}
	}
	sequencer := mashup.NewSequencer(c.profileSource(), options)
	for i, profile := range sequencer.ProfileAll(ctx, tracks, nil) {
		if profile != nil && !withFrames {
			profile.Frames = nil
		}
		results[slots[i]].Profile = profile
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	out := os.Stdout
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		out = file
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(results); err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}
