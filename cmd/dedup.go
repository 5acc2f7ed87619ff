package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var dedupCmd = &cobra.Command{
	Use:   "dedup",
	Short: "Recompute duplicate flags",
	Long: `Resets all derived state and reruns duplicate detection. Flagged papers are
excluded in place and point at their canonical representative; nothing is
deleted. Canonical papers return to screening, so follow up with the score
and select passes (or just use run).`,
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

		result, err := p.Dedup(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("%d records: %d canonical, %d duplicates in %d groups\n",
			result.Total, result.Canonical, result.Duplicates, result.Groups)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dedupCmd)
}
