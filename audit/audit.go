// Package audit runs the stages of a broken link audit: crawl the site into
// a record store, resolve the store into broken links, and write the report.
package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lukemcguire/zombietrail/config"
	"github.com/lukemcguire/zombietrail/crawler"
	"github.com/lukemcguire/zombietrail/record"
	"github.com/lukemcguire/zombietrail/resolver"
	"github.com/lukemcguire/zombietrail/result"
	"github.com/lukemcguire/zombietrail/store"
)

// Options configures a Runner.
type Options struct {
	Crawler  crawler.Config
	Resolver resolver.Config
	Format   result.Format
	Fname    string // Base name of the record store and report
	Driver   string // config.DriverCSV, DriverSQLite or DriverPostgres
	DSN      string // Database DSN; SQLite defaults to <fname>.db
}

// Summary is the outcome of a complete audit.
type Summary struct {
	Crawl      *crawler.CrawlStats // nil when the crawl was skipped
	Result     *result.Result
	ReportPath string
}

// Runner executes audit stages against one record store.
type Runner struct {
	opts       Options
	log        zerolog.Logger
	storePath  string
	reportPath string
	sql        *store.SQLStore
}

// New prepares a Runner. No store is opened until a stage needs it.
func New(opts Options, log zerolog.Logger) (*Runner, error) {
	if opts.Format == "" {
		opts.Format = result.FormatCSV
	}
	if opts.Fname == "" {
		opts.Fname = "hyperlinks"
	}
	switch opts.Driver {
	case "", config.DriverCSV:
		opts.Driver = config.DriverCSV
	case config.DriverSQLite:
		if opts.DSN == "" {
			opts.DSN = trimCSVExt(opts.Fname) + ".db"
		}
	case config.DriverPostgres:
		if opts.DSN == "" {
			return nil, errors.New("postgres store requires a DSN")
		}
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}

	storePath, reportPath := Paths(opts.Fname, opts.Format)
	return &Runner{
		opts:       opts,
		log:        log,
		storePath:  storePath,
		reportPath: reportPath,
	}, nil
}

// Paths derives the CSV record store and report paths from a base name.
// The report is broken_<base> next to the store, with the format's
// extension.
func Paths(fname string, format result.Format) (storePath, reportPath string) {
	base := trimCSVExt(fname)
	dir, name := filepath.Split(base)
	return base + ".csv", filepath.Join(dir, "broken_"+name+format.Extension())
}

func trimCSVExt(fname string) string {
	if strings.EqualFold(filepath.Ext(fname), ".csv") {
		return fname[:len(fname)-len(".csv")]
	}
	return fname
}

// StoreName identifies the record store in logs and messages.
func (r *Runner) StoreName() string {
	if r.opts.Driver == config.DriverCSV {
		return r.storePath
	}
	if r.sql != nil {
		return r.sql.Name()
	}
	return r.opts.Driver
}

// ReportPath is where WriteReport puts the report.
func (r *Runner) ReportPath() string {
	return r.reportPath
}

// Crawl runs the crawler into a fresh record store, replacing the previous
// one only when the crawl completes. progressCh is optional and is closed
// when Crawl returns.
func (r *Runner) Crawl(ctx context.Context, progressCh chan<- crawler.CrawlEvent) (*crawler.CrawlStats, error) {
	if progressCh != nil {
		defer close(progressCh)
	}

	c, err := crawler.New(r.opts.Crawler, r.log, progressCh)
	if err != nil {
		return nil, fmt.Errorf("configure crawler: %w", err)
	}
	sink, err := r.sink(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := c.Run(ctx, sink)
	if err != nil {
		return nil, fmt.Errorf("crawl: %w", err)
	}
	return stats, nil
}

// Resolve reads the record store and returns the broken links. progressCh
// is optional and is closed when Resolve returns.
func (r *Runner) Resolve(ctx context.Context, progressCh chan<- resolver.PhaseEvent) (*result.Result, error) {
	if progressCh != nil {
		defer close(progressCh)
	}

	src, err := r.source(ctx)
	if err != nil {
		return nil, err
	}
	res, err := resolver.New(r.opts.Resolver, r.log, progressCh).Run(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", r.StoreName(), err)
	}
	return res, nil
}

// WriteReport writes the broken links to ReportPath atomically.
func (r *Runner) WriteReport(res *result.Result) error {
	if err := result.WriteReportFile(r.reportPath, r.opts.Format, res.BrokenLinks); err != nil {
		return err
	}
	r.log.Info().Str("report", r.reportPath).Int("rows", len(res.BrokenLinks)).Msg("report written")
	return nil
}

// Run executes every stage without progress events. With skipCrawl the
// existing record store is resolved as is.
func (r *Runner) Run(ctx context.Context, skipCrawl bool) (*Summary, error) {
	summary := &Summary{ReportPath: r.reportPath}
	if !skipCrawl {
		stats, err := r.Crawl(ctx, nil)
		if err != nil {
			return nil, err
		}
		summary.Crawl = stats
	}

	res, err := r.Resolve(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := r.WriteReport(res); err != nil {
		return nil, err
	}
	summary.Result = res
	return summary, nil
}

// Close releases the SQL store, if one was opened.
func (r *Runner) Close() error {
	if r.sql == nil {
		return nil
	}
	err := r.sql.Close()
	r.sql = nil
	if err != nil {
		return fmt.Errorf("close record store: %w", err)
	}
	return nil
}

func (r *Runner) openSQL(ctx context.Context) (*store.SQLStore, error) {
	if r.sql != nil {
		return r.sql, nil
	}
	st, err := store.Open(ctx, r.opts.Driver, r.opts.DSN, r.log)
	if err != nil {
		return nil, err
	}
	r.sql = st
	return st, nil
}

func (r *Runner) sink(ctx context.Context) (record.Sink, error) {
	if r.opts.Driver == config.DriverCSV {
		sink, err := record.NewCSVSink(r.storePath)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	st, err := r.openSQL(ctx)
	if err != nil {
		return nil, err
	}
	sink, err := st.NewSink(ctx)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func (r *Runner) source(ctx context.Context) (record.Source, error) {
	if r.opts.Driver == config.DriverCSV {
		return record.CSVFile{Path: r.storePath}, nil
	}
	st, err := r.openSQL(ctx)
	if err != nil {
		return nil, err
	}
	return st, nil
}
