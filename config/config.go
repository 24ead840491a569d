// Package config loads zombietrail settings from a TOML or YAML file.
// Defaults are applied before the file is decoded, so a file only needs the
// keys it wants to change.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/lukemcguire/zombietrail/record"
)

type Config struct {
	Crawler  CrawlerConfig  `toml:"crawler" yaml:"crawler"`
	Resolver ResolverConfig `toml:"resolver" yaml:"resolver"`
	Report   ReportConfig   `toml:"report" yaml:"report"`
	Storage  StorageConfig  `toml:"storage" yaml:"storage"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging"`
}

type CrawlerConfig struct {
	StartURLs       []string `toml:"start_urls" yaml:"start_urls"`
	AllowedDomains  []string `toml:"allowed_domains" yaml:"allowed_domains"`
	MaxPages        int      `toml:"max_pages" yaml:"max_pages"`
	Concurrency     int      `toml:"concurrency" yaml:"concurrency"`
	RateLimit       int      `toml:"rate_limit" yaml:"rate_limit"`
	RequestTimeout  string   `toml:"request_timeout" yaml:"request_timeout"`
	UserAgent       string   `toml:"user_agent" yaml:"user_agent"`
	HandledStatuses []int    `toml:"handled_statuses" yaml:"handled_statuses"`
	Retries         int      `toml:"retries" yaml:"retries"`
	RetryDelay      string   `toml:"retry_delay" yaml:"retry_delay"`
}

type ResolverConfig struct {
	BrokenStatuses []int  `toml:"broken_statuses" yaml:"broken_statuses"`
	Strategy       string `toml:"strategy" yaml:"strategy"`
	MemoryLimitMB  int64  `toml:"memory_limit_mb" yaml:"memory_limit_mb"`
}

type ReportConfig struct {
	Format string `toml:"format" yaml:"format"`
}

// StorageConfig selects where crawl records are kept. The csv driver uses
// the -fname file and ignores DSN.
type StorageConfig struct {
	Driver string `toml:"driver" yaml:"driver"`
	DSN    string `toml:"dsn" yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	File   string `toml:"file" yaml:"file"`
}

// Storage drivers.
const (
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultRetryDelay     = time.Second
)

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Crawler: CrawlerConfig{
			MaxPages:        10000,
			Concurrency:     10,
			RateLimit:       10,
			RequestTimeout:  defaultRequestTimeout.String(),
			HandledStatuses: record.DefaultHandledStatuses().Codes(),
			Retries:         2,
			RetryDelay:      defaultRetryDelay.String(),
		},
		Resolver: ResolverConfig{
			BrokenStatuses: record.DefaultBrokenStatuses().Codes(),
			Strategy:       "auto",
			MemoryLimitMB:  512,
		},
		Report:  ReportConfig{Format: "csv"},
		Storage: StorageConfig{Driver: DriverCSV},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// Load reads a config file. The decoder is chosen by extension: .toml, or
// .yaml and .yml. Unknown keys are rejected so typos do not go unnoticed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(cfg)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(cfg)
		if errors.Is(err, io.EOF) {
			err = nil
		}
	default:
		return nil, fmt.Errorf("unsupported config extension %q (want .toml, .yaml or .yml)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, a ...any) { errs = append(errs, fmt.Errorf(format, a...)) }

	if c.Crawler.MaxPages <= 0 {
		add("crawler.max_pages must be positive, got %d", c.Crawler.MaxPages)
	}
	if c.Crawler.Concurrency <= 0 {
		add("crawler.concurrency must be positive, got %d", c.Crawler.Concurrency)
	}
	if c.Crawler.RateLimit < 0 {
		add("crawler.rate_limit must not be negative, got %d", c.Crawler.RateLimit)
	}
	if c.Crawler.Retries < 0 {
		add("crawler.retries must not be negative, got %d", c.Crawler.Retries)
	}
	if err := checkDuration("crawler.request_timeout", c.Crawler.RequestTimeout); err != nil {
		errs = append(errs, err)
	}
	if err := checkDuration("crawler.retry_delay", c.Crawler.RetryDelay); err != nil {
		errs = append(errs, err)
	}
	if err := checkStatuses("crawler.handled_statuses", c.Crawler.HandledStatuses); err != nil {
		errs = append(errs, err)
	}
	if err := checkStatuses("resolver.broken_statuses", c.Resolver.BrokenStatuses); err != nil {
		errs = append(errs, err)
	}
	if !oneOf(c.Resolver.Strategy, "", "auto", "two-pass", "buffered") {
		add("resolver.strategy %q is not one of auto, two-pass, buffered", c.Resolver.Strategy)
	}
	if c.Resolver.MemoryLimitMB < 0 {
		add("resolver.memory_limit_mb must not be negative, got %d", c.Resolver.MemoryLimitMB)
	}
	if !oneOf(c.Report.Format, "csv", "json", "xlsx") {
		add("report.format %q is not one of csv, json, xlsx", c.Report.Format)
	}
	switch c.Storage.Driver {
	case DriverCSV:
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" && c.Storage.Driver == DriverPostgres {
			add("storage.dsn is required for the postgres driver")
		}
	default:
		add("storage.driver %q is not one of csv, sqlite3, postgres", c.Storage.Driver)
	}
	if !oneOf(c.Logging.Level, "trace", "debug", "info", "warn", "error", "disabled") {
		add("logging.level %q is not a known level", c.Logging.Level)
	}
	if !oneOf(c.Logging.Format, "console", "json") {
		add("logging.format %q is not one of console, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetRequestTimeout returns the per-request timeout, falling back to the
// default when the value does not parse.
func (c *CrawlerConfig) GetRequestTimeout() time.Duration {
	return parseDuration(c.RequestTimeout, defaultRequestTimeout)
}

// GetRetryDelay returns the base retry delay, falling back to the default
// when the value does not parse.
func (c *CrawlerConfig) GetRetryDelay() time.Duration {
	return parseDuration(c.RetryDelay, defaultRetryDelay)
}

// HandledStatusSet returns the statuses the crawler records.
func (c *CrawlerConfig) HandledStatusSet() record.StatusSet {
	return record.NewStatusSet(c.HandledStatuses...)
}

// BrokenStatusSet returns the statuses that mark a failing page.
func (c *ResolverConfig) BrokenStatusSet() record.StatusSet {
	return record.NewStatusSet(c.BrokenStatuses...)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func checkDuration(key, raw string) error {
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", key, raw)
	}
	return nil
}

func checkStatuses(key string, codes []int) error {
	if len(codes) == 0 {
		return fmt.Errorf("%s must not be empty", key)
	}
	for _, code := range codes {
		if code < 100 || code > 599 {
			return fmt.Errorf("%s: status %d out of range 100-599", key, code)
		}
	}
	return nil
}

func oneOf(value string, allowed ...string) bool {
	return slices.Contains(allowed, value)
}
