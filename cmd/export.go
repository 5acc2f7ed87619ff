package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/scholarsieve/review-cli/internal/export"
	"github.com/scholarsieve/review-cli/internal/model"
	"github.com/scholarsieve/review-cli/internal/store"
)

var (
	exportFormat string
	exportOut    string
	exportStage  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export papers and funnel figures",
	Long: `Writes the corpus to a file. Formats:

  csv     all papers (or one stage with --stage), flat columns
  xlsx    workbook with a papers sheet and a funnel sheet
  bibtex  citation entries for the included papers

Examples:
  review-cli export --format xlsx
  review-cli export --format csv --stage included --out included.csv
  review-cli export --format bibtex`,
	RunE: runExport,
}

func init() {
	f := exportCmd.Flags()
	f.StringVar(&exportFormat, "format", "csv", "output format: csv, xlsx or bibtex")
	f.StringVar(&exportOut, "out", "", "output path (default: <export dir>/papers.<ext>)")
	f.StringVar(&exportStage, "stage", "", "restrict csv/xlsx to one selection stage")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	out := exportOut
	if out == "" {
		ext := exportFormat
		if ext == "bibtex" {
			ext = "bib"
		}
		if err := os.MkdirAll(cfg.Export.Dir, 0o755); err != nil {
			return eris.Wrapf(err, "export: create dir %s", cfg.Export.Dir)
		}
		out = filepath.Join(cfg.Export.Dir, "papers."+ext)
	}

	filter := store.Filter{}
	if exportStage != "" {
		filter.Stage = model.SelectionStage(exportStage)
	}

	e := export.New(st)
	var n int
	switch exportFormat {
	case "csv":
		n, err = e.CSV(ctx, out, filter)
	case "xlsx":
		n, err = e.XLSX(ctx, out, filter)
	case "bibtex":
		n, err = e.BibTeX(ctx, out)
	default:
		return eris.Errorf("export: unknown format %q", exportFormat)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d papers to %s\n", n, out)
	return nil
}
