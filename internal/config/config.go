// Package config loads corpusql settings from defaults, an optional YAML
// file, an optional .env file and CORPUSQL_ environment variables, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/roach88/corpusql/internal/store"
)

// EnvPrefix prefixes every environment variable read by Load.
// CORPUSQL_DB_DSN sets db.dsn.
const EnvPrefix = "CORPUSQL"

// Config is the complete configuration.
type Config struct {
	DB      DB      `mapstructure:"db"`
	Schema  Schema  `mapstructure:"schema"`
	Search  Search  `mapstructure:"search"`
	Log     Log     `mapstructure:"log"`
	Metrics Metrics `mapstructure:"metrics"`
}

// DB selects the backing store.
type DB struct {
	// Driver is "sqlite3" or "pgx".
	Driver       string `mapstructure:"driver"`
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// Schema locates the layer schema file. An empty path means the standard
// layers only.
type Schema struct {
	Path string `mapstructure:"path"`
}

// Search tunes the engine.
type Search struct {
	Workers  int `mapstructure:"workers"`
	PageSize int `mapstructure:"page_size"`
	// OverlapMaxPercent enables the overlap filter when positive.
	OverlapMaxPercent float64 `mapstructure:"overlap_max_percent"`
	// PerTranscript enables the per-transcript cap when positive.
	PerTranscript int `mapstructure:"per_transcript"`
}

// Log sets the log level: debug, info, warn or error.
type Log struct {
	Level string `mapstructure:"level"`
}

// Metrics sets the address Prometheus metrics are served on. Empty
// disables the endpoint.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

var defaults = map[string]any{
	"db.driver":                  "sqlite3",
	"db.dsn":                     "corpus.db",
	"db.max_open_conns":          0,
	"schema.path":                "",
	"search.workers":             4,
	"search.page_size":           500,
	"search.overlap_max_percent": 0.0,
	"search.per_transcript":      0,
	"log.level":                  "info",
	"metrics.addr":               "",
}

// Load reads the configuration. path names a YAML file and may be empty.
// A .env file in the working directory is loaded into the environment
// first when present.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values Load cannot fix up.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "sqlite3", store.SQLiteDriver, store.PostgresDriver:
	default:
		return fmt.Errorf("db.driver: unknown driver %q", c.DB.Driver)
	}
	if c.Search.Workers < 1 {
		return fmt.Errorf("search.workers: must be at least 1, got %d", c.Search.Workers)
	}
	if c.Search.OverlapMaxPercent < 0 || c.Search.OverlapMaxPercent > 100 {
		return fmt.Errorf("search.overlap_max_percent: must be within [0, 100], got %v", c.Search.OverlapMaxPercent)
	}
	if c.Search.PerTranscript < 0 {
		return fmt.Errorf("search.per_transcript: must not be negative, got %d", c.Search.PerTranscript)
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// StoreOptions converts the db section into store options.
func (c *Config) StoreOptions() store.Options {
	driver := c.DB.Driver
	if driver == "sqlite3" {
		driver = store.SQLiteDriver
	}
	return store.Options{Driver: driver, DSN: c.DB.DSN, MaxOpenConns: c.DB.MaxOpenConns}
}

// SlogLevel parses the level name.
func (l Log) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
