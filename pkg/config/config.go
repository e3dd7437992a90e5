// Package config loads service configuration from defaults, an optional
// fitment.yaml, a .env file, FITMENT_* environment variables and bound
// command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// EnvPrefix prefixes every environment variable, e.g. FITMENT_HTTP_PORT.
const EnvPrefix = "FITMENT"

// Config is the resolved configuration.
type Config struct {
	HTTP       HTTP
	Logging    Logging
	Fitment    Fitment
	Catalog    Catalog
	Neo4j      Neo4j
	Qdrant     Qdrant
	NATS       NATS
	Redis      Redis
	Resilience Resilience
	Sort       Sort
	Metrics    Metrics
}

type HTTP struct {
	Port       string
	CORSOrigin string
}

type Logging struct {
	Level  string
	Format string
}

// Fitment selects the fitment source: "memory" reads File, "neo4j" queries
// the graph.
type Fitment struct {
	Source string
	File   string
	// MaestroFile is an optional Maestro radio-interface dataset.
	MaestroFile string
}

type Catalog struct {
	Files     []string
	SQLDriver string
	SQLDSN    string
}

type Neo4j struct {
	URL  string
	User string
	Pass string
}

type Qdrant struct {
	Addr       string
	Collection string
}

type NATS struct {
	URL            string
	CatalogSubject string
}

type Redis struct {
	Addr   string
	Prefix string
	TTL    time.Duration
}

type Resilience struct {
	Rate          float64
	Burst         int
	FailThreshold int
	Timeout       time.Duration
}

type Sort struct {
	Locale language.Tag
}

type Metrics struct {
	Port string
}

// Defaults are applied before any file, env or flag.
var Defaults = map[string]any{
	"http.port":                 "8080",
	"http.cors_origin":          "*",
	"logging.level":             "info",
	"logging.format":            "json",
	"fitment.source":            "memory",
	"fitment.file":              "data/fitment.json",
	"fitment.maestro_file":      "",
	"catalog.files":             []string{"data/products.json"},
	"catalog.sql.driver":        "",
	"catalog.sql.dsn":           "",
	"neo4j.url":                 "neo4j://localhost:7687",
	"neo4j.user":                "neo4j",
	"neo4j.pass":                "password",
	"qdrant.addr":               "",
	"qdrant.collection":         "catalog",
	"nats.url":                  "",
	"nats.catalog_subject":      "pos.catalog.query",
	"redis.addr":                "",
	"redis.prefix":              "fitment:",
	"redis.ttl":                 5 * time.Minute,
	"resilience.rate":           50.0,
	"resilience.burst":          10,
	"resilience.fail_threshold": 5,
	"resilience.timeout":        2 * time.Second,
	"sort.locale":               "en",
	"metrics.port":              "",
}

// New returns a viper instance with defaults and env binding set up.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range Defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Options says where to look for files.
type Options struct {
	// File is an explicit config file. Empty searches for fitment.yaml in
	// the working directory and $HOME/.config/fitment.
	File string
	// EnvFiles are loaded into the environment first. Missing files are
	// ignored. Nil means ".env".
	EnvFiles []string
}

// Load reads .env files and the config file into v. A missing default
// config file is not an error; a missing explicit one is.
func Load(v *viper.Viper, opts Options) error {
	envFiles := opts.EnvFiles
	if envFiles == nil {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	if opts.File != "" {
		v.SetConfigFile(opts.File)
	} else {
		v.SetConfigName("fitment")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.config/fitment")
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.File == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("config: read: %w", err)
	}
	return nil
}

// BindFlags binds flags to keys. Flag names are the keys with dots and
// underscores turned into dashes (http.cors_origin -> http-cors-origin);
// flags without a matching key are ignored.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		if key, ok := keyForFlag(f.Name); ok && err == nil {
			err = v.BindPFlag(key, f)
		}
	})
	return err
}

func keyForFlag(name string) (string, bool) {
	for key := range Defaults {
		if FlagName(key) == name {
			return key, true
		}
	}
	return "", false
}

// FlagName is the flag spelling of a key.
func FlagName(key string) string {
	return strings.NewReplacer(".", "-", "_", "-").Replace(key)
}

// Resolve reads the typed configuration out of v.
func Resolve(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTP:    HTTP{Port: v.GetString("http.port"), CORSOrigin: v.GetString("http.cors_origin")},
		Logging: Logging{Level: strings.ToLower(v.GetString("logging.level")), Format: strings.ToLower(v.GetString("logging.format"))},
		Fitment: Fitment{
			Source:      strings.ToLower(v.GetString("fitment.source")),
			File:        v.GetString("fitment.file"),
			MaestroFile: v.GetString("fitment.maestro_file"),
		},
		Catalog: Catalog{
			Files:     splitList(v.GetStringSlice("catalog.files")),
			SQLDriver: v.GetString("catalog.sql.driver"),
			SQLDSN:    v.GetString("catalog.sql.dsn"),
		},
		Neo4j:  Neo4j{URL: v.GetString("neo4j.url"), User: v.GetString("neo4j.user"), Pass: v.GetString("neo4j.pass")},
		Qdrant: Qdrant{Addr: v.GetString("qdrant.addr"), Collection: v.GetString("qdrant.collection")},
		NATS:   NATS{URL: v.GetString("nats.url"), CatalogSubject: v.GetString("nats.catalog_subject")},
		Redis:  Redis{Addr: v.GetString("redis.addr"), Prefix: v.GetString("redis.prefix"), TTL: v.GetDuration("redis.ttl")},
		Resilience: Resilience{
			Rate:          v.GetFloat64("resilience.rate"),
			Burst:         v.GetInt("resilience.burst"),
			FailThreshold: v.GetInt("resilience.fail_threshold"),
			Timeout:       v.GetDuration("resilience.timeout"),
		},
		Metrics: Metrics{Port: v.GetString("metrics.port")},
	}

	switch cfg.Fitment.Source {
	case "memory", "neo4j":
	default:
		return cfg, fmt.Errorf("config: fitment.source %q: want memory or neo4j", cfg.Fitment.Source)
	}
	if _, err := ParseLevel(cfg.Logging.Level); err != nil {
		return cfg, err
	}
	tag, err := language.Parse(v.GetString("sort.locale"))
	if err != nil {
		return cfg, fmt.Errorf("config: sort.locale: %w", err)
	}
	cfg.Sort.Locale = tag
	return cfg, nil
}

// splitList also splits comma-separated entries, since a list read from the
// environment arrives as one string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// ParseLevel maps a level name onto slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("config: invalid log level %q", level)
}

// NewLogger builds the logger described by l, writing to w. Format "json"
// gives JSON lines; "text" and "console" give logfmt-style text.
func NewLogger(l Logging, w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	switch l.Format {
	case "json", "":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "console":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("config: invalid log format %q", l.Format)
}
