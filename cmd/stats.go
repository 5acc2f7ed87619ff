package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/scholarsieve/review-cli/internal/funnel"
	"github.com/scholarsieve/review-cli/internal/model"
)

var statsJSON bool

// orderedReasonList fixes the reporting order of exclusion reasons to the
// order the checks run in.
var orderedReasonList = []model.ExclusionReason{
	model.ExcludedDuplicate,
	model.ExcludedLanguage,
	model.ExcludedYearRange,
	model.ExcludedShortAbstract,
	model.ExcludedNonResearch,
	model.ExcludedOffTopic,
	model.ExcludedLowScore,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the current selection funnel",
	Long: `Derives the funnel from stored paper state and prints it. The figures are
computed fresh on every call; there are no cached counters to go stale.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := funnel.New(st).Snapshot(ctx)
		if err != nil {
			return err
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}

		fmt.Println("Selection funnel")
		fmt.Println("----------------")
		printFunnel(stats)
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "emit JSON instead of text")
	rootCmd.AddCommand(statsCmd)
}
