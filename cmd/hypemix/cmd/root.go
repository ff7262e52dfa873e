package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eternnoir/hypemix/pkg/config"
	"github.com/eternnoir/hypemix/pkg/logger"
)

var (
	cfgFile   string
	appConfig *config.Config
)

// flagBinding ties a command flag to a config key
type flagBinding struct {
	cmd  *cobra.Command
	key  string
	flag string
}

var bindings []flagBinding

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hypemix",
	Short: "Energy-driven automatic mashup builder",
	Long: `hypemix cuts the loudest moments out of a set of tracks and stitches them
into one continuous, crossfaded mashup.

Features:
- Decodes WAV and MP3 natively, anything else through ffmpeg
- Short-time RMS energy analysis to find high-energy moments
- Three intensity levels controlling how many slices each track contributes
- Manual cue points to pin a track's slice
- Profile cache and crate watcher to analyze music ahead of time
- Mashup history with per-segment detail`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Version = version

	defaults := config.DefaultConfig()

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.hypemix.yaml or $HOME/.hypemix.yaml)")
	rootCmd.PersistentFlags().String("temp-dir", defaults.Audio.TempDir, "temporary directory for ffmpeg conversions")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", defaults.Logging.Level, "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", defaults.Logging.Format, "log format (console, json)")
	rootCmd.PersistentFlags().String("log-output", defaults.Logging.Output, "log output (stdout, stderr, file path)")
	rootCmd.PersistentFlags().Bool("log-no-color", false, "disable colored log output")
	rootCmd.PersistentFlags().Bool("log-caller", defaults.Logging.Caller, "include caller information in logs")

	bindFlag(rootCmd, "audio.temp_dir", "temp-dir")
	bindFlag(rootCmd, "logging.level", "log-level")
	bindFlag(rootCmd, "logging.format", "log-format")
	bindFlag(rootCmd, "logging.output", "log-output")
	bindFlag(rootCmd, "logging.caller", "log-caller")
}

// bindFlag registers a flag whose value overrides key when the command runs
func bindFlag(cmd *cobra.Command, key, flag string) {
	bindings = append(bindings, flagBinding{cmd: cmd, key: key, flag: flag})
}

// initConfig loads the configuration file, HYPEMIX_* environment variables
// and the flags of the running command, then sets up the logger.
func initConfig(cmd *cobra.Command, _ []string) error {
	loader := config.NewLoader(cfgFile)
	v := loader.Viper()

	for _, b := range bindings {
		if b.cmd != cmd && b.cmd != cmd.Root() {
			continue
		}
		if f := cmd.Flags().Lookup(b.flag); f != nil {
			if err := v.BindPFlag(b.key, f); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", b.flag, err)
			}
		}
	}

	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	if noColor, _ := cmd.Flags().GetBool("log-no-color"); noColor {
		cfg.Logging.PrettyMode = false
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if used := v.ConfigFileUsed(); used != "" {
		logger.Debug().Str("config_file", used).Msg("Loaded configuration file")
	}

	appConfig = cfg
	return nil
}
