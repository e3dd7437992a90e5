// Package app assembles the engine from a resolved configuration. Both the
// HTTP server and the CLI build their fitment source, catalog sources and
// recommendation service here.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/WessleyAI/wessley-fitment/engine/catalog"
	"github.com/WessleyAI/wessley-fitment/engine/fitment"
	"github.com/WessleyAI/wessley-fitment/engine/graph"
	"github.com/WessleyAI/wessley-fitment/engine/ingest"
	"github.com/WessleyAI/wessley-fitment/engine/match"
	"github.com/WessleyAI/wessley-fitment/engine/recommend"
	"github.com/WessleyAI/wessley-fitment/engine/semantic"
	"github.com/WessleyAI/wessley-fitment/pkg/config"
	"github.com/WessleyAI/wessley-fitment/pkg/fn"
	"github.com/WessleyAI/wessley-fitment/pkg/metrics"
	"github.com/WessleyAI/wessley-fitment/pkg/resilience"
	"github.com/WessleyAI/wessley-fitment/pkg/vehiclenlp"
)

// connectRetry bounds startup connection attempts to remote stores.
var connectRetry = fn.RetryOpts{
	MaxAttempts: 4,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     5 * time.Second,
	Jitter:      true,
}

// Options selects which parts Build wires.
type Options struct {
	// RemoteCatalog adds the NATS catalog source when nats.url is set. The
	// catalog-serve command turns it off so it never queries itself.
	RemoteCatalog bool
}

// App holds the wired engine. Fields for optional stores are nil when the
// configuration leaves them out.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *metrics.Registry
	Metrics  *metrics.Fitment

	FitmentSource fitment.Source
	Index         *fitment.Index
	Resolver      *fitment.Resolver
	Matcher       *match.Matcher
	Service       *recommend.Service

	// Local are the catalog sources this process owns; Sources adds the
	// remote ones and is what the matcher queries.
	Local   []catalog.Source
	Sources []catalog.Source
	Caches  []ingest.Invalidator

	Graph  *graph.FitmentStore
	SQL    *catalog.SQLSource
	Qdrant *semantic.CatalogStore
	NATS   *nats.Conn

	closers []func() error
}

// Build wires every configured component. On error, whatever was opened is
// closed again.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	a := New(cfg, logger)
	if err := a.openFitment(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCatalog(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}

	a.Index = fitment.NewIndex(a.FitmentSource)
	a.Resolver = fitment.NewResolver(a.FitmentSource, logger)
	if cfg.Fitment.MaestroFile != "" {
		table, err := fitment.LoadMaestroFile(cfg.Fitment.MaestroFile, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Resolver.WithMaestro(table)
	}
	a.Matcher = match.New(a.Sources, match.WithLogger(logger), match.WithMetrics(a.Metrics))
	a.Service = recommend.NewService(a.Resolver, a.Matcher, a.Metrics, logger)

	logger.Info("engine ready",
		"fitment_source", cfg.Fitment.Source,
		"catalog_sources", sourceNames(a.Sources),
	)
	return a, nil
}

// New returns an App with nothing opened yet. Import jobs use it to open
// only the stores they write to.
func New(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	reg := metrics.New()
	return &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.NewFitment(reg),
	}
}

func (a *App) openFitment(ctx context.Context) error {
	switch a.Config.Fitment.Source {
	case "neo4j":
		store, err := a.OpenGraph(ctx)
		if err != nil {
			return err
		}
		a.FitmentSource = store
	default:
		src, err := fitment.LoadFile(a.Config.Fitment.File, a.Logger)
		if err != nil {
			return err
		}
		a.FitmentSource = src
	}
	return nil
}

// OpenGraph connects to Neo4j, retrying while the database comes up.
func (a *App) OpenGraph(ctx context.Context) (*graph.FitmentStore, error) {
	if a.Graph != nil {
		return a.Graph, nil
	}
	c := a.Config.Neo4j
	driver, err := neo4j.NewDriverWithContext(c.URL, neo4j.BasicAuth(c.User, c.Pass, ""))
	if err != nil {
		return nil, fmt.Errorf("app: neo4j driver: %w", err)
	}
	res := fn.Retry(ctx, connectRetry, func(ctx context.Context) fn.Result[struct{}] {
		if err := driver.VerifyConnectivity(ctx); err != nil {
			a.Logger.Warn("neo4j not reachable yet", "url", c.URL, "error", err)
			return fn.Err[struct{}](err)
		}
		return fn.Ok(struct{}{})
	})
	if _, err := res.Unwrap(); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("app: neo4j connect: %w", err)
	}
	a.onClose(func() error { return driver.Close(context.Background()) })
	a.Graph = graph.New(driver).WithLogger(a.Logger)
	return a.Graph, nil
}

func (a *App) openCatalog(ctx context.Context, opts Options) error {
	cfg := a.Config

	for _, path := range cfg.Catalog.Files {
		src, err := catalog.LoadFile("file:"+filepath.Base(path), path, a.Logger)
		if err != nil {
			return err
		}
		a.Local = append(a.Local, src)
	}

	var cache catalog.Cache
	if cfg.Redis.Addr != "" {
		rc, err := catalog.NewRedisCache(ctx, catalog.RedisConfig{Addr: cfg.Redis.Addr, Prefix: cfg.Redis.Prefix})
		if err != nil {
			// Redis only speeds things up; run without it.
			a.Logger.Warn("catalog cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			cache = rc
			a.onClose(rc.Close)
		}
	}

	if err := a.openStores(ctx); err != nil {
		return err
	}
	var remote []catalog.Source
	if a.SQL != nil {
		remote = append(remote, a.SQL)
	}
	if a.Qdrant != nil {
		remote = append(remote, a.Qdrant)
	}
	if cfg.NATS.URL != "" {
		if _, err := a.OpenNATS(); err != nil {
			return err
		}
	}

	a.Sources = append(a.Sources, a.Local...)
	for _, src := range remote {
		guarded := a.guard(src, cache)
		a.Local = append(a.Local, guarded)
		a.Sources = append(a.Sources, guarded)
	}
	if opts.RemoteCatalog && a.NATS != nil {
		a.Sources = append(a.Sources, a.guard(catalog.NewNATSSource(a.NATS, cfg.NATS.CatalogSubject), cache))
	}
	if len(a.Sources) == 0 {
		a.Logger.Warn("no catalog sources configured; recommendations will be empty")
	}
	return nil
}

// openStores opens the SQL and Qdrant catalogs when configured. Calling it
// again is a no-op for stores already open.
func (a *App) openStores(ctx context.Context) error {
	cfg := a.Config
	if cfg.Catalog.SQLDriver != "" && a.SQL == nil {
		sqlSrc, err := catalog.OpenSQL(cfg.Catalog.SQLDriver, cfg.Catalog.SQLDSN)
		if err != nil {
			return err
		}
		a.onClose(sqlSrc.Close)
		if err := sqlSrc.Migrate(ctx); err != nil {
			return err
		}
		a.SQL = sqlSrc
	}
	if cfg.Qdrant.Addr != "" && a.Qdrant == nil {
		store, err := semantic.New(cfg.Qdrant.Addr, cfg.Qdrant.Collection)
		if err != nil {
			return err
		}
		a.onClose(store.Close)
		a.Qdrant = store
	}
	return nil
}

// OpenSinks opens the writable catalog stores and returns them. The Qdrant
// collection is created if missing.
func (a *App) OpenSinks(ctx context.Context) ([]ingest.CatalogSink, error) {
	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	if a.Qdrant != nil {
		if err := a.Qdrant.EnsureCollection(ctx); err != nil {
			return nil, err
		}
	}
	return a.CatalogSinks(), nil
}

// OpenNATS connects to nats.url once.
func (a *App) OpenNATS() (*nats.Conn, error) {
	if a.NATS != nil {
		return a.NATS, nil
	}
	if a.Config.NATS.URL == "" {
		return nil, errors.New("app: nats.url is not set")
	}
	nc, err := nats.Connect(a.Config.NATS.URL, nats.Name("fitment"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("app: nats connect: %w", err)
	}
	a.onClose(func() error { return nc.Drain() })
	a.NATS = nc
	return nc, nil
}

// guard wraps a remote source in the breaker and limiter and, when a cache
// is available, a read-through cache in front of them.
func (a *App) guard(src catalog.Source, cache catalog.Cache) catalog.Source {
	r := a.Config.Resilience
	logger := a.Logger
	var out catalog.Source = catalog.NewGuardedSource(src, catalog.GuardOpts{
		Breaker: resilience.BreakerOpts{
			FailThreshold: r.FailThreshold,
			OnStateChange: func(name string, from, to resilience.State) {
				logger.Warn("catalog breaker state changed", "source", name, "from", from.String(), "to", to.String())
			},
		},
		Limiter: resilience.LimiterOpts{Rate: r.Rate, Burst: r.Burst},
		Timeout: r.Timeout,
	})
	if cache != nil {
		cached := catalog.NewCachedSource(out, cache, a.Config.Redis.TTL, logger)
		a.Caches = append(a.Caches, cached)
		out = cached
	}
	return out
}

// StoreSource is the local source a catalog responder should answer from:
// the SQL catalog when configured, otherwise the first local source.
func (a *App) StoreSource() (catalog.Source, error) {
	for _, src := range a.Local {
		if a.SQL != nil && src.Name() == a.SQL.Name() {
			return src, nil
		}
	}
	if len(a.Local) == 0 {
		return nil, errors.New("app: no local catalog source to serve")
	}
	return a.Local[0], nil
}

// CatalogSinks are the writable catalog stores for imports and updates.
func (a *App) CatalogSinks() []ingest.CatalogSink {
	var sinks []ingest.CatalogSink
	if a.SQL != nil {
		sinks = append(sinks, a.SQL)
	}
	if a.Qdrant != nil {
		sinks = append(sinks, a.Qdrant)
	}
	return sinks
}

// Extractor builds a free-text vehicle parser over the current fitment
// options.
func (a *App) Extractor(ctx context.Context) (*vehiclenlp.Extractor, error) {
	vocab, err := vehiclenlp.Load(ctx, a.Index)
	if err != nil {
		return nil, err
	}
	return vehiclenlp.New(vocab), nil
}

func (a *App) onClose(f func() error) { a.closers = append(a.closers, f) }

// Close releases every connection in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}

func sourceNames(srcs []catalog.Source) []string {
	return fn.Map(srcs, catalog.Source.Name)
}
