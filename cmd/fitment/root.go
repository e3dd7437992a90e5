package main

import (
	"context"
	"log/slog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/WessleyAI/wessley-fitment/engine/app"
	"github.com/WessleyAI/wessley-fitment/pkg/config"
)

// cli carries state shared by every command.
type cli struct {
	v       *viper.Viper
	cfgFile string
	noColor bool

	cfg    config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}
	// The CLI talks to a person: quiet text logs unless asked otherwise.
	c.v.SetDefault("logging.format", "text")
	c.v.SetDefault("logging.level", "warn")

	root := &cobra.Command{
		Use:   "fitment",
		Short: "Vehicle fitment lookup and car-audio product recommendations",
		Long: `fitment resolves a vehicle (year, make, model) against the fitment
knowledge base, lists the installation parts it needs and recommends
matching products from every configured catalog.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.cfgFile, "config", "c", "", "config file (default: ./fitment.yaml)")
	pf.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	pf.String(config.FlagName("fitment.source"), "", "fitment source: memory or neo4j")
	pf.String(config.FlagName("fitment.file"), "", "fitment dataset (JSON or YAML)")
	pf.String(config.FlagName("fitment.maestro_file"), "", "Maestro radio-interface dataset (JSON or YAML)")
	pf.StringSlice(config.FlagName("catalog.files"), nil, "catalog files (JSON or YAML)")
	pf.String(config.FlagName("catalog.sql.driver"), "", "catalog SQL driver: sqlite3 or postgres")
	pf.String(config.FlagName("catalog.sql.dsn"), "", "catalog SQL data source name")
	pf.String(config.FlagName("qdrant.addr"), "", "Qdrant gRPC address")
	pf.String(config.FlagName("nats.url"), "", "NATS server URL")
	pf.String(config.FlagName("logging.level"), "", "log level: debug, info, warn or error")

	root.AddCommand(
		c.yearsCmd(),
		c.makesCmd(),
		c.modelsCmd(),
		c.lookupCmd(),
		c.recommendCmd(),
		c.importCmd(),
		c.catalogServeCmd(),
		c.watchCmd(),
		c.statsCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	if err := config.Load(c.v, config.Options{File: c.cfgFile}); err != nil {
		return err
	}
	if err := config.BindFlags(c.v, cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Resolve(c.v)
	if err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.cfg, c.logger = cfg, logger
	if c.noColor {
		color.NoColor = true
	}
	return nil
}

// engine builds the full engine; callers must Close it.
func (c *cli) engine(ctx context.Context, opts app.Options) (*app.App, error) {
	return app.Build(ctx, c.cfg, c.logger, opts)
}
