package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var selectCmd = &cobra.Command{
	Use:   "select",
	Short: "Apply the selection protocol",
	Long: `Classifies every canonical paper through the ordered screening checks and
the relevance threshold. Scores must already be computed; run score first
(or just use run). Each excluded paper records exactly one reason: the first
check it failed.`,
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

		n, err := p.Select(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Classified %d papers\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selectCmd)
}
