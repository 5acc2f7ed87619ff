package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Recompute relevance scores",
	Long: `Scores every canonical paper against the technique and domain lexicons.
Scoring is deterministic: the same corpus and lexicon always produce the same
scores.`,
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

		n, err := p.Score(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Scored %d papers\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
