// Package main implements the fitment API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/WessleyAI/wessley-fitment/engine/app"
	"github.com/WessleyAI/wessley-fitment/engine/ingest"
	"github.com/WessleyAI/wessley-fitment/engine/recommend"
	"github.com/WessleyAI/wessley-fitment/pkg/config"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

// loadConfig resolves configuration from defaults, files, the environment
// and args.
func loadConfig(args []string) (config.Config, error) {
	flags := pflag.NewFlagSet("fitmentd", pflag.ContinueOnError)
	file := flags.String("config", "", "config file (default: ./fitment.yaml)")
	flags.String(config.FlagName("http.port"), "", "listen port")
	flags.String(config.FlagName("fitment.file"), "", "fitment dataset (JSON or YAML)")
	flags.String(config.FlagName("fitment.maestro_file"), "", "Maestro radio-interface dataset (JSON or YAML)")
	flags.String(config.FlagName("fitment.source"), "", "fitment source: memory or neo4j")
	flags.StringSlice(config.FlagName("catalog.files"), nil, "catalog files")
	flags.String(config.FlagName("logging.level"), "", "log level")
	if err := flags.Parse(args); err != nil {
		return config.Config{}, err
	}

	v := config.New()
	if err := config.Load(v, config.Options{File: *file}); err != nil {
		return config.Config{}, err
	}
	if err := config.BindFlags(v, flags); err != nil {
		return config.Config{}, err
	}
	return config.Resolve(v)
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Engine ---
	a, err := app.Build(ctx, cfg, logger, app.Options{RemoteCatalog: true})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer a.Close()

	srv := newServer(a)
	if ex, err := a.Extractor(ctx); err != nil {
		logger.Warn("free-text vehicle lookup disabled", "error", err)
	} else {
		srv.extractor = ex
	}

	// --- POS terminals over NATS ---
	if a.NATS != nil {
		bridge := recommend.NewBridge(a.NATS, a.Service,
			recommend.WithBridgeLogger(logger),
			recommend.WithBridgeMetrics(a.Metrics),
			recommend.WithLocale(cfg.Sort.Locale),
		)
		if err := bridge.Start(); err != nil {
			return fmt.Errorf("start terminal bridge: %w", err)
		}
		defer bridge.Stop()

		if sinks := a.CatalogSinks(); len(sinks) > 0 {
			sub, err := ingest.StartConsumer(a.NATS, ingest.ConsumerDeps{
				Sinks:   sinks,
				Caches:  a.Caches,
				Metrics: a.Metrics,
				Logger:  logger,
			})
			if err != nil {
				return fmt.Errorf("start product consumer: %w", err)
			}
			defer sub.Unsubscribe()
		}
	}

	// --- HTTP ---
	servers := []*http.Server{{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      srv.routes(cfg.Metrics.Port == ""),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}}
	if cfg.Metrics.Port != "" {
		servers = append(servers, &http.Server{
			Addr:              ":" + cfg.Metrics.Port,
			Handler:           a.Registry.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		})
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, len(servers))
	for _, s := range servers {
		go func() {
			logger.Info("listening", "addr", s.Addr)
			errCh <- s.ListenAndServe()
		}()
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var errs []error
	for _, s := range servers {
		errs = append(errs, s.Shutdown(shutCtx))
	}
	return errors.Join(errs...)
}
