package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-fitment/engine/app"
	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/ingest"
)

var success = color.New(color.FgGreen)

func (c *cli) importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import fitment guides and product catalogs",
	}
	cmd.AddCommand(c.importFitmentCmd(), c.importMaestroCmd(), c.importCatalogCmd())
	return cmd
}

type importFlags struct {
	sheet  string
	out    string
	batch  int
	quiet  bool
	strict bool
}

func (fl *importFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&fl.sheet, "sheet", "", "XLSX sheet name (default: first sheet)")
	f.StringVarP(&fl.out, "out", "o", "", "also write the imported records as JSON to this file")
	f.IntVar(&fl.batch, "batch", ingest.DefaultBatchSize, "records per store write")
	f.BoolVarP(&fl.quiet, "quiet", "q", false, "no progress bar")
	f.BoolVar(&fl.strict, "strict", false, "fail when any row is skipped")
}

func (fl *importFlags) importer(c *cli, a *app.App, stderr io.Writer) *ingest.Importer {
	opts := []ingest.Option{
		ingest.WithLogger(c.logger),
		ingest.WithMetrics(a.Metrics),
		ingest.WithBatchSize(fl.batch),
	}
	if !fl.quiet {
		opts = append(opts, ingest.WithProgress(stderr))
	}
	return ingest.New(opts...)
}

func (c *cli) importFitmentCmd() *cobra.Command {
	var (
		fl      importFlags
		kind    string
		toGraph bool
	)
	cmd := &cobra.Command{
		Use:   "fitment <file>...",
		Short: "Import Metra radio and speaker guides (CSV or XLSX)",
		Long: `Reads Metra installation guides and merges their rows into one fitment
record per vehicle. Radio (Sheet1) and speaker (Sheet2) files may be given
together; rows for the same make, model, years and trim are merged.`,
		Example: `  fitment import fitment radio.csv speakers.csv --out data/fitment.json
  fitment import fitment metra.xlsx --sheet Sheet2 --graph`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if fl.out == "" && !toGraph {
				return errors.New("nothing to write: pass --out and/or --graph")
			}
			k, err := ingest.ParseKind(kind)
			if err != nil {
				return err
			}

			a := app.New(c.cfg, c.logger)
			defer a.Close()
			im := fl.importer(c, a, cmd.ErrOrStderr())

			var (
				records []domain.FitmentRecord
				total   ingest.Report
			)
			for _, path := range args {
				rows, err := ingest.ReadFile(path, fl.sheet)
				if err != nil {
					return err
				}
				recs, report := im.Fitment(ctx, rows, k)
				records = append(records, recs...)
				reportSkips(cmd.ErrOrStderr(), path, report)
				total.Rows += report.Rows
				total.Skipped += report.Skipped
			}
			records = ingest.Merge(records)
			if fl.strict && total.Skipped > 0 {
				return fmt.Errorf("%d rows skipped", total.Skipped)
			}

			if fl.out != "" {
				if err := writeFile(fl.out, func(w io.Writer) error { return ingest.WriteDataset(w, records) }); err != nil {
					return err
				}
			}
			if toGraph {
				store, err := a.OpenGraph(ctx)
				if err != nil {
					return err
				}
				if err := store.EnsureSchema(ctx); err != nil {
					return err
				}
				if _, err := im.SaveFitment(ctx, store, records); err != nil {
					return err
				}
			}
			success.Fprintf(cmd.OutOrStdout(), "imported %d vehicles from %d rows (%d skipped)\n", len(records), total.Rows, total.Skipped)
			return nil
		},
	}
	fl.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "auto", "sheet layout: auto, radio or speakers")
	cmd.Flags().BoolVar(&toGraph, "graph", false, "write records to Neo4j")
	return cmd
}

func (c *cli) importMaestroCmd() *cobra.Command {
	var fl importFlags
	cmd := &cobra.Command{
		Use:   "maestro <file>...",
		Short: "Import Maestro radio-interface sheets (CSV or XLSX)",
		Long: `Reads Maestro sheets (Make, Model, Year, Radio, Features, Notes) into a
dataset served next to the fitment records via fitment.maestro_file.`,
		Example: `  fitment import maestro maestro.csv --out data/maestro.json`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fl.out == "" {
				return errors.New("nothing to write: pass --out")
			}
			a := app.New(c.cfg, c.logger)
			defer a.Close()
			im := fl.importer(c, a, cmd.ErrOrStderr())

			var (
				records []domain.MaestroRecord
				total   ingest.Report
			)
			for _, path := range args {
				rows, err := ingest.ReadFile(path, fl.sheet)
				if err != nil {
					return err
				}
				recs, report := im.Maestro(cmd.Context(), rows)
				records = append(records, recs...)
				reportSkips(cmd.ErrOrStderr(), path, report)
				total.Rows += report.Rows
				total.Skipped += report.Skipped
			}
			if fl.strict && total.Skipped > 0 {
				return fmt.Errorf("%d rows skipped", total.Skipped)
			}
			if err := writeFile(fl.out, func(w io.Writer) error { return ingest.WriteMaestro(w, records) }); err != nil {
				return err
			}
			success.Fprintf(cmd.OutOrStdout(), "imported %d maestro entries from %d rows (%d skipped)\n", len(records), total.Rows, total.Skipped)
			return nil
		},
	}
	fl.register(cmd)
	return cmd
}

func (c *cli) importCatalogCmd() *cobra.Command {
	var fl importFlags
	cmd := &cobra.Command{
		Use:   "catalog <file>",
		Short: "Import a product catalog (CSV or XLSX) into the SQL and Qdrant catalogs",
		Example: `  fitment import catalog products.csv --catalog-sql-driver sqlite3 --catalog-sql-dsn catalog.db
  fitment import catalog products.xlsx --out data/products.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := app.New(c.cfg, c.logger)
			defer a.Close()

			sinks, err := a.OpenSinks(ctx)
			if err != nil {
				return err
			}
			if len(sinks) == 0 && fl.out == "" {
				return errors.New("nothing to write: configure catalog.sql.driver or qdrant.addr, or pass --out")
			}

			rows, err := ingest.ReadFile(args[0], fl.sheet)
			if err != nil {
				return err
			}
			im := fl.importer(c, a, cmd.ErrOrStderr())
			products, report := im.Products(ctx, rows)
			reportSkips(cmd.ErrOrStderr(), args[0], report)
			if fl.strict && report.Skipped > 0 {
				return fmt.Errorf("%d rows skipped", report.Skipped)
			}

			if fl.out != "" {
				err := writeFile(fl.out, func(w io.Writer) error {
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string][]domain.Product{"products": products})
				})
				if err != nil {
					return err
				}
			}
			written, err := im.SaveProducts(ctx, products, sinks...)
			if err != nil {
				// Sinks are independent; report what made it.
				warn.Fprintf(cmd.ErrOrStderr(), "some stores failed: %v\n", err)
			}
			success.Fprintf(cmd.OutOrStdout(), "imported %d products from %d rows (%d skipped, %d writes)\n",
				len(products), report.Rows, report.Skipped, written)
			return err
		},
	}
	fl.register(cmd)
	return cmd
}

func reportSkips(w io.Writer, path string, r ingest.Report) {
	for _, e := range r.Errors {
		warn.Fprintf(w, "%s: %v\n", path, e)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
