// Package main provides the zombietrail CLI entrypoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lukemcguire/zombietrail/audit"
	"github.com/lukemcguire/zombietrail/config"
	"github.com/lukemcguire/zombietrail/crawler"
	"github.com/lukemcguire/zombietrail/logging"
	"github.com/lukemcguire/zombietrail/record"
	"github.com/lukemcguire/zombietrail/resolver"
	"github.com/lukemcguire/zombietrail/result"
	"github.com/lukemcguire/zombietrail/tui"
)

const maxRetryDelay = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cliFlags holds the parsed command line. Only flags the user set override
// the config file.
type cliFlags struct {
	configPath   string
	fname        string
	number       int
	format       string
	storeDriver  string
	dsn          string
	concurrency  int
	rateLimit    int
	retries      int
	retryDelay   time.Duration
	userAgent    string
	broken       string
	strategy     string
	logLevel     string
	skipCrawl    bool
	noTUI        bool
	failOnBroken bool
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, *flag.FlagSet, error) {
	fs := flag.NewFlagSet("zombietrail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintln(stderr, "Usage: zombietrail [flags] <url>...")
		_, _ = fmt.Fprintln(stderr, "Flags:")
		fs.PrintDefaults()
	}

	f := &cliFlags{}
	fs.StringVar(&f.configPath, "config", "", "path to a TOML or YAML config file")
	fs.StringVar(&f.fname, "fname", "hyperlinks", "base name of the crawl record store; the report is broken_<fname>")
	fs.IntVar(&f.number, "number", 10000, "maximum number of pages to crawl")
	fs.StringVar(&f.format, "format", "csv", "report format: csv, json or xlsx")
	fs.StringVar(&f.storeDriver, "store", config.DriverCSV, "record store: csv, sqlite3 or postgres")
	fs.StringVar(&f.dsn, "dsn", "", "database DSN for the sqlite3 and postgres stores")
	fs.IntVar(&f.concurrency, "concurrency", 10, "number of concurrent workers")
	fs.IntVar(&f.rateLimit, "rate-limit", 10, "requests per second, 0 adapts to server response times")
	fs.IntVar(&f.retries, "retries", 2, "number of retries for transient errors")
	fs.DurationVar(&f.retryDelay, "retry-delay", time.Second, "base delay between retries")
	fs.StringVar(&f.userAgent, "user-agent", crawler.DefaultUserAgent, "user agent string")
	fs.StringVar(&f.broken, "broken-statuses", "400,401,404", "statuses that mark a page as broken")
	fs.StringVar(&f.strategy, "strategy", string(resolver.StrategyAuto), "resolver strategy: auto, two-pass or buffered")
	fs.StringVar(&f.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error or disabled")
	fs.BoolVar(&f.skipCrawl, "skip-crawl", false, "resolve the existing record store without crawling")
	fs.BoolVar(&f.noTUI, "no-tui", false, "log progress instead of showing the terminal UI")
	fs.BoolVar(&f.failOnBroken, "fail-on-broken", false, "exit 1 when broken links are found")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs, nil
}

// loadConfig merges defaults, the config file, the flags the user set and
// the positional URLs, in that order.
func loadConfig(f *cliFlags, fs *flag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	var errs []error
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "number":
			cfg.Crawler.MaxPages = f.number
		case "format":
			cfg.Report.Format = f.format
		case "store":
			cfg.Storage.Driver = f.storeDriver
		case "dsn":
			cfg.Storage.DSN = f.dsn
		case "concurrency":
			cfg.Crawler.Concurrency = f.concurrency
		case "rate-limit":
			cfg.Crawler.RateLimit = f.rateLimit
		case "retries":
			cfg.Crawler.Retries = f.retries
		case "retry-delay":
			cfg.Crawler.RetryDelay = f.retryDelay.String()
		case "user-agent":
			cfg.Crawler.UserAgent = f.userAgent
		case "broken-statuses":
			set, err := record.ParseStatusSet(f.broken)
			if err != nil {
				errs = append(errs, fmt.Errorf("-broken-statuses: %w", err))
				return
			}
			cfg.Resolver.BrokenStatuses = set.Codes()
		case "strategy":
			cfg.Resolver.Strategy = f.strategy
		case "log-level":
			cfg.Logging.Level = f.logLevel
		}
	})
	if fs.NArg() > 0 {
		cfg.Crawler.StartURLs = fs.Args()
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func auditOptions(cfg *config.Config, fname string) (audit.Options, error) {
	format, err := result.ParseFormat(cfg.Report.Format)
	if err != nil {
		return audit.Options{}, err
	}
	strategy, err := resolver.ParseStrategy(cfg.Resolver.Strategy)
	if err != nil {
		return audit.Options{}, err
	}

	crawlCfg := crawler.DefaultConfig(cfg.Crawler.StartURLs...)
	crawlCfg.AllowedDomains = cfg.Crawler.AllowedDomains
	crawlCfg.MaxPages = cfg.Crawler.MaxPages
	crawlCfg.Concurrency = cfg.Crawler.Concurrency
	crawlCfg.RateLimit = cfg.Crawler.RateLimit
	crawlCfg.RequestTimeout = cfg.Crawler.GetRequestTimeout()
	if cfg.Crawler.UserAgent != "" {
		crawlCfg.UserAgent = cfg.Crawler.UserAgent
	}
	crawlCfg.RetryPolicy = crawler.RetryPolicy{
		MaxRetries: cfg.Crawler.Retries,
		BaseDelay:  cfg.Crawler.GetRetryDelay(),
		MaxDelay:   maxRetryDelay,
	}
	crawlCfg.HandledStatuses = cfg.Crawler.HandledStatusSet()

	return audit.Options{
		Crawler: crawlCfg,
		Resolver: resolver.Config{
			BrokenStatuses: cfg.Resolver.BrokenStatusSet(),
			Strategy:       strategy,
			MemoryLimitMB:  cfg.Resolver.MemoryLimitMB,
		},
		Format: format,
		Fname:  fname,
		Driver: cfg.Storage.Driver,
		DSN:    cfg.Storage.DSN,
	}, nil
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags, fs, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	cfg, err := loadConfig(flags, fs)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if !flags.skipCrawl && len(cfg.Crawler.StartURLs) == 0 {
		fs.Usage()
		return 1
	}

	logOpts := logging.FromConfig(cfg.Logging)
	logOpts.Stderr = stderr
	logOpts.Quiet = !flags.noTUI
	logger, err := logging.New(logOpts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Close() }()
	log := logger.Logger

	opts, err := auditOptions(cfg, flags.fname)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	runner, err := audit.New(opts, log)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		if closeErr := runner.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("close record store")
		}
	}()

	log.Info().
		Strs("start_urls", cfg.Crawler.StartURLs).
		Str("store", runner.StoreName()).
		Str("report", runner.ReportPath()).
		Bool("skip_crawl", flags.skipCrawl).
		Msg("audit starting")

	var res *result.Result
	if flags.noTUI {
		summary, runErr := runner.Run(ctx, flags.skipCrawl)
		if runErr != nil {
			log.Error().Err(runErr).Msg("audit failed")
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", runErr)
			return 1
		}
		res = summary.Result
		result.PrintResults(stdout, res)
		_, _ = fmt.Fprintf(stdout, "Report written to %s\n", summary.ReportPath)
	} else {
		tuiCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		program := tea.NewProgram(tui.NewModel(tuiCtx, cancel, runner, flags.skipCrawl), tea.WithContext(ctx))
		finalModel, runErr := program.Run()
		if runErr != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", runErr)
			return 1
		}
		final := finalModel.(tui.Model)
		if final.Cancelled() {
			return 1
		}
		if final.Err() != nil {
			log.Error().Err(final.Err()).Msg("audit failed")
			return 1
		}
		res = final.GetResult()
	}

	if flags.failOnBroken && res != nil && len(res.BrokenLinks) > 0 {
		return 1
	}
	return 0
}
