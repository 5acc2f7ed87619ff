package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scholarsieve/review-cli/internal/funnel"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full recompute pipeline",
	Long: `Recomputes all derived state from the ingested corpus: duplicate flags,
relevance scores and selection stages. Running it again on an unchanged corpus
changes nothing, so it is the recovery path after any partial pass.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := buildPipeline(st)
		if err != nil {
			return err
		}

		result, err := p.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Pipeline complete in %s: %d records, %d duplicates, %d scored\n\n",
			result.Elapsed.Round(time.Millisecond), result.Dedup.Total, result.Dedup.Duplicates, result.Scored)
		printFunnel(result.Stats)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// printFunnel renders the selection flow in reading order.
func printFunnel(s *funnel.Stats) {
	fmt.Printf("Records retrieved:        %d\n", s.TotalRecords)
	fmt.Printf("Duplicates removed:       %d\n", s.Duplicates)
	fmt.Printf("Unique records:           %d\n", s.Identified)
	fmt.Printf("Records screened:         %d\n", s.Screened)
	fmt.Printf("Assessed for eligibility: %d\n", s.ReachedEligibility)
	fmt.Printf("Included:                 %d\n", s.Included)
	fmt.Printf("Excluded:                 %d\n", s.Excluded)
	if s.Pending > 0 {
		fmt.Printf("Pending screening:        %d\n", s.Pending)
	}

	if len(s.ExclusionReasons) > 0 {
		fmt.Println("\nExclusion reasons:")
		for _, reason := range orderedReasonList {
			if n, ok := s.ExclusionReasons[reason]; ok {
				fmt.Printf("  %-22s %d\n", string(reason)+":", n)
			}
		}
	}
}
