package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scholarsieve/review-cli/internal/ingest"
	"github.com/scholarsieve/review-cli/internal/model"
)

var ingestFormat string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load harvested records from CSV or JSONL dumps",
	Long: `Reads one or more harvest dumps, normalizes every record and stores the
new ones. Records already present (same source and identity) are skipped, so
re-running an ingest is always safe.

Examples:
  review-cli ingest openalex.jsonl crossref.jsonl
  review-cli ingest --format csv scopus_export.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFormat, "format", "", "input format: csv or jsonl (default: by file extension)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	in := ingest.New(st)
	total := ingest.Report{}

	for _, path := range args {
		records, err := readRecords(path)
		if err != nil {
			return err
		}

		report, err := in.Ingest(ctx, records)
		if err != nil {
			return err
		}
		zap.L().Info("ingest: file done",
			zap.String("file", path),
			zap.Int("accepted", report.Accepted),
			zap.Int("skipped", report.Skipped),
			zap.Int("rejected", report.Rejected),
		)
		total.Accepted += report.Accepted
		total.Skipped += report.Skipped
		total.Rejected += report.Rejected
	}

	fmt.Printf("Ingested %d records (%d skipped, %d rejected)\n", total.Accepted, total.Skipped, total.Rejected)
	return nil
}

func readRecords(path string) ([]model.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	format := ingestFormat
	if format == "" {
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv":
			format = "csv"
		case ".jsonl", ".ndjson", ".json":
			format = "jsonl"
		default:
			return nil, eris.Errorf("ingest: cannot infer format of %s, pass --format", path)
		}
	}

	switch format {
	case "csv":
		return ingest.ReadCSV(f)
	case "jsonl":
		return ingest.ReadJSONL(f)
	default:
		return nil, eris.Errorf("ingest: unknown format %q", format)
	}
}
