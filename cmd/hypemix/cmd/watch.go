package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eternnoir/hypemix/pkg/config"
	"github.com/eternnoir/hypemix/pkg/logger"
	"github.com/eternnoir/hypemix/pkg/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a music directory and analyze new tracks ahead of time",
	Long: `Watch a directory for new audio files and store their energy profiles in
the profile cache, so a later mix only has to decode and render.

Examples:
  # Watch a crate
  hypemix watch ~/Music/crate

  # Watch recursively with more workers
  hypemix watch ~/Music -r --max-workers 4

  # Analyze what is already there and exit
  hypemix watch ./set --once`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	defaults := config.DefaultConfig().Watch

	// Watch options
	watchCmd.Flags().StringSlice("pattern", defaults.Patterns, "file patterns to watch (comma-separated)")
	watchCmd.Flags().BoolP("recursive", "r", defaults.Recursive, "watch subdirectories recursively")
	watchCmd.Flags().Duration("interval", defaults.Interval, "interval between rescans of the directory")
	watchCmd.Flags().Bool("once", false, "analyze existing files and exit")
	watchCmd.Flags().Bool("no-existing", false, "skip analyzing existing files on startup")

	// Processing options
	watchCmd.Flags().Duration("stability-wait", defaults.StabilityWait, "time to wait for file stability")
	watchCmd.Flags().Duration("analysis-timeout", 2*time.Minute, "maximum time to decode and profile a single file")
	watchCmd.Flags().Int("max-workers", defaults.MaxWorkers, "maximum concurrent analysis workers")
	watchCmd.Flags().Bool("retry-failed", false, "retry files that failed to decode before")

	bindFlag(watchCmd, "watch.patterns", "pattern")
	bindFlag(watchCmd, "watch.recursive", "recursive")
	bindFlag(watchCmd, "watch.interval", "interval")
	bindFlag(watchCmd, "watch.stability_wait", "stability-wait")
	bindFlag(watchCmd, "watch.max_workers", "max-workers")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	watchDir := args[0]
	log.Info().Str("directory", watchDir).Msg("Starting watch mode")

	info, err := os.Stat(watchDir)
	if err != nil {
		return fmt.Errorf("invalid watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path must be a directory")
	}

	appCfg := appConfig
	if !appCfg.Cache.Enabled {
		return fmt.Errorf("watch mode stores profiles in the cache; enable cache.enabled")
	}

	c, err := newComponents(appCfg, true, false)
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := loadWatchConfig(cmd, appCfg, watchDir)
	log.Debug().Interface("config", cfg).Msg("Loaded watch configuration")

	analyzer := watcher.NewFileAnalyzer(cfg, c.decoder, c.cache, c.cached, appCfg.Audio.SampleRate)
	crateWatcher, err := watcher.NewCrateWatcher(cfg, analyzer)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create crate watcher")
		return fmt.Errorf("failed to create crate watcher: %w", err)
	}

	crateWatcher.SetProgressCallback(func(event *watcher.ProgressEvent) {
		switch event.Type {
		case watcher.EventFound:
			fmt.Printf("Found: %s\n", event.FilePath)
		case watcher.EventAnalyzing:
			fmt.Printf("Analyzing: %s\n", event.FilePath)
		case watcher.EventCompleted:
			fmt.Printf("Completed: %s - %d candidates\n", event.FilePath, event.Candidates)
		case watcher.EventFailed:
			fmt.Printf("Failed: %s - %v\n", event.FilePath, event.Error)
		case watcher.EventSkipped:
			fmt.Printf("Skipped: %s - %s\n", event.FilePath, event.Message)
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := crateWatcher.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start crate watcher")
		return fmt.Errorf("failed to start crate watcher: %w", err)
	}

	once, _ := cmd.Flags().GetBool("once")
	if once {
		log.Info().Msg("Running in once mode, will exit after analyzing existing files")

		done := make(chan struct{})
		go func() {
			crateWatcher.WaitForInitialScan().Wait()
			close(done)
		}()
		select {
		case <-done:
			log.Info().Msg("Initial scan completed, exiting")
		case <-sigChan:
			fmt.Println("\nInterrupted")
		}
	} else {
		fmt.Printf("\nWatching directory: %s\n", watchDir)
		if cfg.Recursive {
			fmt.Println("   Recursive: Yes")
		}
		fmt.Printf("   Patterns: %s\n", strings.Join(cfg.Patterns, ", "))
		fmt.Printf("   Workers: %d\n", cfg.MaxWorkers)
		fmt.Printf("   Cache: %s\n", appCfg.Cache.Path)
		fmt.Println("\nPress Ctrl+C to stop watching...")

		go displayStats(ctx, crateWatcher)

		<-sigChan
		fmt.Println("\n\nShutting down...")
	}

	cancel()
	if err := crateWatcher.Stop(); err != nil {
		log.Error().Err(err).Msg("Error stopping crate watcher")
		return fmt.Errorf("error stopping crate watcher: %w", err)
	}

	stats := crateWatcher.GetStats()
	fmt.Printf("\nFinal Statistics:\n")
	fmt.Printf("   Analyzed: %d files\n", stats.AnalyzedCount)
	fmt.Printf("   Failed: %d files\n", stats.FailedCount)
	fmt.Printf("   Skipped: %d files\n", stats.SkippedCount)
	fmt.Printf("   Duration: %v\n", time.Since(stats.StartTime).Round(time.Second))

	return nil
}

func loadWatchConfig(cmd *cobra.Command, appCfg *config.Config, watchDir string) *watcher.WatchConfig {
	cfg := watcher.DefaultWatchConfig()
	cfg.WatchDir = watchDir

	if len(appCfg.Watch.Patterns) > 0 {
		cfg.Patterns = appCfg.Watch.Patterns
	}
	cfg.Recursive = appCfg.Watch.Recursive
	cfg.Interval = appCfg.Watch.Interval
	cfg.StabilityWait = appCfg.Watch.StabilityWait
	cfg.MaxWorkers = appCfg.Watch.MaxWorkers
	cfg.ProcessExisting = appCfg.Watch.ProcessExisting

	cfg.AnalysisTimeout, _ = cmd.Flags().GetDuration("analysis-timeout")
	cfg.RetryFailed, _ = cmd.Flags().GetBool("retry-failed")

	if noExisting, _ := cmd.Flags().GetBool("no-existing"); noExisting {
		cfg.ProcessExisting = false
	}

	return cfg
}

func displayStats(ctx context.Context, cw watcher.CrateWatcher) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := cw.GetStats()
			if stats.AnalyzedCount > 0 || stats.FailedCount > 0 {
				fmt.Printf("\rStats - Analyzed: %d | Failed: %d | In Progress: %d",
					stats.AnalyzedCount, stats.FailedCount, stats.InProgress)
			}
		}
	}
}
