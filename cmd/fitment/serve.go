package main

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-fitment/engine/app"
	"github.com/WessleyAI/wessley-fitment/engine/catalog"
	"github.com/WessleyAI/wessley-fitment/engine/ingest"
	"github.com/WessleyAI/wessley-fitment/engine/recommend"
	"github.com/WessleyAI/wessley-fitment/pkg/natsutil"
)

func (c *cli) catalogServeCmd() *cobra.Command {
	var updates bool
	cmd := &cobra.Command{
		Use:   "catalog-serve",
		Short: "Answer catalog queries over NATS from the local catalog",
		Long: `Serves this store's catalog on nats.catalog_subject so other fitment
engines can use it as a remote source. With --updates it also applies
product updates published on ` + ingest.UpdateSubject + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.engine(ctx, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			nc, err := a.OpenNATS()
			if err != nil {
				return err
			}
			src, err := a.StoreSource()
			if err != nil {
				return err
			}
			resp, err := catalog.Serve(nc, c.cfg.NATS.CatalogSubject, src, c.logger)
			if err != nil {
				return err
			}
			defer resp.Close()

			if updates {
				sinks := a.CatalogSinks()
				if len(sinks) == 0 {
					return fmt.Errorf("--updates needs a writable catalog: set catalog.sql.driver or qdrant.addr")
				}
				sub, err := ingest.StartConsumer(nc, ingest.ConsumerDeps{
					Sinks:   sinks,
					Caches:  a.Caches,
					Metrics: a.Metrics,
					Logger:  c.logger,
				})
				if err != nil {
					return err
				}
				defer sub.Unsubscribe()
			}

			heading.Fprintf(cmd.OutOrStdout(), "serving %s on %s\n", src.Name(), c.cfg.NATS.CatalogSubject)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&updates, "updates", false, "apply product updates from "+ingest.UpdateSubject)
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var (
		terminal string
		bridge   bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print recommendations as POS terminals receive them",
		Long: `Subscribes to the recommendations published for a terminal (or all
terminals) and prints each one. With --bridge this process also answers
vehicle selections itself.`,
		Example: `  fitment watch --terminal till-7
  fitment watch --bridge`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := c.engine(ctx, app.Options{RemoteCatalog: true})
			if err != nil {
				return err
			}
			defer a.Close()

			nc, err := a.OpenNATS()
			if err != nil {
				return err
			}
			if bridge {
				b := recommend.NewBridge(nc, a.Service,
					recommend.WithBridgeLogger(c.logger),
					recommend.WithBridgeMetrics(a.Metrics),
					recommend.WithLocale(c.cfg.Sort.Locale),
				)
				if err := b.Start(); err != nil {
					return err
				}
				defer b.Stop()
			}

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			sub, err := natsutil.Subscribe(nc, recommend.RecommendationsSubject(terminal),
				func(_ context.Context, rec recommend.Recommendations) {
					mu.Lock()
					defer mu.Unlock()
					printRecommendations(out, rec)
				})
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&terminal, "terminal", "*", "terminal id to watch")
	cmd.Flags().BoolVar(&bridge, "bridge", false, "answer vehicle selections in this process")
	return cmd
}

func printRecommendations(w io.Writer, rec recommend.Recommendations) {
	heading.Fprintf(w, "[%s] %s\n", rec.Terminal, rec.Selector)
	printResult(w, recommend.Result{
		Fitment:  rec.Fitment,
		Maestro:  rec.Maestro,
		Products: rec.Products,
		Facets:   rec.Facets,
		Message:  rec.Message,
	})
	fmt.Fprintln(w)
}

func (c *cli) statsCmd() *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show node counts and the largest makes in the fitment graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a := app.New(c.cfg, c.logger)
			defer a.Close()

			store, err := a.OpenGraph(ctx)
			if err != nil {
				return err
			}
			nodes, err := store.NodeCounts(ctx)
			if err != nil {
				return err
			}
			rels, err := store.RelationshipCounts(ctx)
			if err != nil {
				return err
			}
			makes, err := store.TopMakes(ctx, top)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printCounts(out, "Nodes", nodes)
			printCounts(out, "Relationships", rels)
			heading.Fprintln(out, "Top makes")
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MAKE\tMODELS\tFITMENTS")
			for _, m := range makes {
				fmt.Fprintf(tw, "%s\t%d\t%d\n", m.Name, m.Models, m.Fitments)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of makes to list")
	return cmd
}

func printCounts(w io.Writer, title string, counts map[string]int64) {
	heading.Fprintln(w, title)
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		fmt.Fprintf(w, "  %-14s %d\n", k, counts[k])
	}
	fmt.Fprintln(w, strings.Repeat("-", 20))
}
