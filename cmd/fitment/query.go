package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-fitment/engine/app"
	"github.com/WessleyAI/wessley-fitment/engine/domain"
	"github.com/WessleyAI/wessley-fitment/engine/fitment"
	"github.com/WessleyAI/wessley-fitment/engine/recommend"
)

var (
	heading = color.New(color.Bold)
	warn    = color.New(color.FgYellow)
)

func (c *cli) yearsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "years",
		Short: "List every covered model year, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.engine(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			years, err := a.Index.YearOptions(cmd.Context())
			if err != nil {
				return err
			}
			for _, y := range years {
				fmt.Fprintln(cmd.OutOrStdout(), y)
			}
			return nil
		},
	}
}

func (c *cli) makesCmd() *cobra.Command {
	var year int
	cmd := &cobra.Command{
		Use:   "makes",
		Short: "List makes, optionally for one model year",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.engine(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			makes, err := a.Index.MakeOptions(cmd.Context(), year)
			if err != nil {
				return err
			}
			printLines(cmd.OutOrStdout(), makes)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "model year")
	return cmd
}

func (c *cli) modelsCmd() *cobra.Command {
	var (
		year int
		mk   string
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List models, optionally for a year and make",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.engine(cmd.Context(), app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			models, err := a.Index.ModelOptions(cmd.Context(), year, mk)
			if err != nil {
				return err
			}
			printLines(cmd.OutOrStdout(), models)
			return nil
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "model year")
	cmd.Flags().StringVar(&mk, "make", "", "vehicle make")
	return cmd
}

func (c *cli) lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <year> <make> <model> | <free text>",
		Short: "Show the fitment record and required parts for a vehicle",
		Example: `  fitment lookup 2020 Honda Civic
  fitment lookup "'19 chevy silverado"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.engine(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			sel := selectorFromArgs(ctx, a, args)
			rec, err := a.Resolver.Find(ctx, sel)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rec == nil {
				warn.Fprintf(out, "No fitment found for %s\n", sel)
				return nil
			}
			req := fitment.ExtractRequirements(rec)
			maestro, err := a.Resolver.Maestro(ctx, sel)
			if err != nil {
				return err
			}
			return writeJSON(out, struct {
				Fitment      *domain.FitmentRecord `json:"fitment"`
				Requirements domain.Requirements   `json:"requirements"`
				Maestro      *domain.MaestroRecord `json:"maestro,omitempty"`
			}{rec, req, maestro})
		},
	}
}

func (c *cli) recommendCmd() *cobra.Command {
	var (
		sel    domain.Selector
		f      recommend.Filters
		sortBy string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "recommend [free text]",
		Short: "Recommend products for a vehicle",
		Example: `  fitment recommend --year 2020 --make Honda --model Civic --category Speakers --sort low-high
  fitment recommend 2020 honda civic --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.engine(ctx, app.Options{RemoteCatalog: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if len(args) > 0 {
				parsed := selectorFromArgs(ctx, a, args)
				sel.Year = max(sel.Year, parsed.Year)
				if sel.Make == "" {
					sel.Make = parsed.Make
				}
				if sel.Model == "" {
					sel.Model = parsed.Model
				}
			}
			f.Sort = recommend.ParseSort(sortBy)
			f.Locale = c.cfg.Sort.Locale

			res, err := a.Service.Recommend(ctx, sel, f)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.IntVar(&sel.Year, "year", 0, "model year")
	fl.StringVar(&sel.Make, "make", "", "vehicle make")
	fl.StringVar(&sel.Model, "model", "", "vehicle model")
	fl.StringVar(&f.Category, "category", "", "category filter (Speakers, Subwoofers, Amplifiers, Install, Other)")
	fl.StringVar(&f.Location, "location", "", "speaker location filter, e.g. Front or \"Front - Front Door\"")
	fl.StringVar(&f.Brand, "brand", "", "speaker brand filter")
	fl.StringVar(&sortBy, "sort", string(recommend.SortRecommended), "recommended, low-high, high-low, brand-az or brand-za")
	fl.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// selectorFromArgs reads "<year> <make> <model>" positionally, or parses
// the arguments as free text when they do not start with a year.
func selectorFromArgs(ctx context.Context, a *app.App, args []string) domain.Selector {
	text := strings.Join(args, " ")
	if ex, err := a.Extractor(ctx); err == nil {
		if m := ex.ExtractBest(text); m != nil && m.Complete() {
			return domain.Selector{Year: m.Year, Make: m.Make, Model: m.Model}
		}
	} else {
		a.Logger.Warn("free-text parsing unavailable", "error", err)
	}

	fields := strings.Fields(text)
	if len(fields) < 3 {
		return domain.Selector{}
	}
	year, err := strconv.Atoi(fields[0])
	if err != nil {
		return domain.Selector{}
	}
	return domain.Selector{Year: year, Make: fields[1], Model: strings.Join(fields[2:], " ")}
}

func printResult(w io.Writer, res recommend.Result) {
	if res.Fitment != nil {
		r := res.Fitment
		heading.Fprintln(w, strings.TrimSpace(fmt.Sprintf("%d-%d %s %s %s", r.YearStart, r.YearEnd, r.Make, r.Model, r.Trim)))
	}
	if m := res.Maestro; m != nil {
		fmt.Fprintf(w, "Maestro: %s radio, retains %s\n", orDash(m.RadioType), orDash(m.Retention))
	}
	if len(res.Products) == 0 {
		warn.Fprintln(w, res.Message)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tBRAND\tNAME\tPRICE\tLOCATIONS")
	for _, p := range res.Products {
		price := "-"
		if !p.Price.IsZero() {
			price = p.Price.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.ID, p.CategoryNorm, p.Brand, p.Name, price, strings.Join(p.Locations, ", "))
	}
	tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printLines(w io.Writer, lines []string) {
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
