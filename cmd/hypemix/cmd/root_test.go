package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

// setFlag sets a flag for one test and restores its default afterwards
func setFlag(t *testing.T, cmd *cobra.Command, name, value string) {
	t.Helper()
	f := cmd.Flags().Lookup(name)
	if f == nil {
		t.Fatalf("flag %s not defined on %s", name, cmd.Name())
	}
	if err := f.Value.Set(value); err != nil {
		t.Fatalf("set %s: %v", name, err)
	}
	f.Changed = true
	t.Cleanup(func() {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
}

func useConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hypemix.yaml")
	if content != "" {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := cfgFile
	cfgFile = path
	t.Cleanup(func() { cfgFile = old })
}

func TestInitConfigAppliesCommandFlags(t *testing.T) {
	useConfigFile(t, "mashup:\n  intensity: low\n  transition_ms: 900\n")
	setFlag(t, mixCmd, "intensity", "high")

	if err := initConfig(mixCmd, nil); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}
	if appConfig.Mashup.Intensity != "high" {
		t.Errorf("Intensity = %q, want flag value high", appConfig.Mashup.Intensity)
	}
	if appConfig.Mashup.TransitionMs != 900 {
		t.Errorf("TransitionMs = %d, want file value 900", appConfig.Mashup.TransitionMs)
	}
}

func TestInitConfigIgnoresOtherCommandsFlags(t *testing.T) {
	useConfigFile(t, "")
	setFlag(t, analyzeCmd, "workers", "9")

	if err := initConfig(mixCmd, nil); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}
	if appConfig.Analysis.Workers == 9 {
		t.Error("a flag of the analyze command leaked into the mix configuration")
	}
}

func TestInitConfigRejectsOutOfRangeTransition(t *testing.T) {
	for _, value := range []string{"0", "50", "3001"} {
		t.Run(value, func(t *testing.T) {
			useConfigFile(t, "")
			setFlag(t, mixCmd, "transition", value)

			if err := initConfig(mixCmd, nil); err == nil {
				t.Errorf("initConfig() with --transition %s should fail", value)
			}
		})
	}
}

func TestExecuteRunsPersistentPreRun(t *testing.T) {
	dir := t.TempDir()
	config := "history:\n  path: " + filepath.Join(dir, "history.db") + "\n" +
		"cache:\n  path: " + filepath.Join(dir, "cache.db") + "\n"
	path := filepath.Join(dir, "hypemix.yaml")
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}
	old := cfgFile
	t.Cleanup(func() { cfgFile = old })

	appConfig = nil
	rootCmd.SetArgs([]string{"--config", path, "history", "--limit", "1"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if appConfig == nil {
		t.Fatal("configuration was not loaded before the command ran")
	}
	if _, err := os.Stat(filepath.Join(dir, "history.db")); err != nil {
		t.Errorf("history database not created at configured path: %v", err)
	}
}
