package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eternnoir/hypemix/pkg/store"
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List previously built mashups",
	Long: `List mashups recorded in the history database, newest first.

Examples:
  hypemix history
  hypemix history --limit 5
  hypemix history show 2f1c9a6e-...`,
	Args: cobra.NoArgs,
	RunE: runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show the segments of one mashup",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)

	historyCmd.Flags().Int("limit", 20, "maximum number of mashups to list")
}

func openHistory() (*store.Store, error) {
	if !appConfig.History.Enabled {
		return nil, fmt.Errorf("history is disabled (history.enabled: false)")
	}
	return store.Open(appConfig.History.Path)
}

func runHistoryList(cmd *cobra.Command, _ []string) error {
	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	mashups, err := history.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if len(mashups) == 0 {
		fmt.Println("No mashups recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCREATED\tINTENSITY\tTRACKS\tDURATION\tOUTPUT")
	for _, m := range mashups {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.1fs\t%s\n",
			m.ID,
			m.CreatedAt.Local().Format(time.DateTime),
			m.Intensity,
			m.TrackCount,
			m.Duration,
			m.OutputPath)
	}
	return w.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	history, err := openHistory()
	if err != nil {
		return err
	}
	defer history.Close()

	m, err := history.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("mashup %s not found", args[0])
	}

	fmt.Printf("ID: %s\n", m.ID)
	fmt.Printf("Created: %s\n", m.CreatedAt.Local().Format(time.DateTime))
	fmt.Printf("Output: %s\n", m.OutputPath)
	fmt.Printf("Intensity: %s\n", m.Intensity)
	fmt.Printf("Transition: %dms\n", m.TransitionMs)
	fmt.Printf("Tracks: %d (%d skipped)\n", m.TrackCount, m.SkippedCount)
	fmt.Printf("Segment length: %.0fms\n", m.SegmentLengthMs)
	fmt.Printf("Duration: %.2fs\n\n", m.Duration)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTRACK\tAT\tLENGTH\tOFFSET\tCUE")
	for i, seg := range m.Segments {
		cue := ""
		if seg.Cue {
			cue = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%.3fs\t%.0fms\t%.0fms\t%s\n",
			i, seg.TrackID, seg.Timestamp, seg.LengthMs, seg.OffsetMs, cue)
	}
	return w.Flush()
}
