// Package crawler produces crawl records. It walks a site breadth-first from
// its start pages, fetching every in-domain page once, and writes one record
// per outbound link of each working page or one origin-only record for each
// failing page.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lukemcguire/zombietrail/record"
	"github.com/lukemcguire/zombietrail/result"
	"github.com/lukemcguire/zombietrail/urlutil"
)

// ErrNoStartURLs is returned by New when the configuration has no usable
// start URL.
var ErrNoStartURLs = errors.New("no start URLs")

// Crawler coordinates BFS page fetching with a concurrent worker pool. Only
// the coordinator goroutine writes to the record sink.
type Crawler struct {
	cfg        Config
	startURLs  []string
	client     *http.Client
	limiter    *AdaptiveLimiter
	robots     *RobotsChecker
	log        zerolog.Logger
	progressCh chan<- CrawlEvent
}

// New creates a Crawler with the given configuration. Start URLs are
// normalized and, when AllowedDomains is empty, their hosts become the
// allowed domains. The progressCh parameter is optional; pass nil to disable
// progress events.
func New(cfg Config, log zerolog.Logger, progressCh chan<- CrawlEvent) (*Crawler, error) {
	defaults := DefaultConfig()
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaults.MaxPages
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaults.RequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}
	if cfg.RetryPolicy == (RetryPolicy{}) {
		cfg.RetryPolicy = defaults.RetryPolicy
	}
	if cfg.HandledStatuses.Len() == 0 {
		cfg.HandledStatuses = defaults.HandledStatuses
	}

	startURLs := make([]string, 0, len(cfg.StartURLs))
	for _, raw := range cfg.StartURLs {
		normalized, err := urlutil.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("normalize start URL %q: %w", raw, err)
		}
		if !urlutil.IsHTTPScheme(normalized) {
			return nil, fmt.Errorf("start URL %q: scheme must be http or https", raw)
		}
		startURLs = append(startURLs, normalized)
	}
	if len(startURLs) == 0 {
		return nil, ErrNoStartURLs
	}
	if len(cfg.AllowedDomains) == 0 {
		for _, start := range startURLs {
			cfg.AllowedDomains = append(cfg.AllowedDomains, urlutil.Hostname(start))
		}
	}

	limiter := NewAdaptiveLimiter(defaults.RateLimit, defaultTargetRTT)
	if cfg.RateLimit > 0 {
		limiter.SetRate(cfg.RateLimit)
	}

	return &Crawler{
		cfg:       cfg,
		startURLs: startURLs,
		client: &http.Client{
			// Redirect targets are recorded as links, never followed.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter:    limiter,
		robots:     NewRobotsChecker(&http.Client{Timeout: 5 * time.Second}, cfg.UserAgent),
		log:        log.With().Str("component", "crawler").Logger(),
		progressCh: progressCh,
	}, nil
}

// Config returns the effective configuration after defaults.
func (c *Crawler) Config() Config {
	return c.cfg
}

// frontier is the coordinator's BFS state.
type frontier struct {
	visited   *VisitedTracker
	queue     []CrawlJob
	scheduled int
	limit     int
}

func (f *frontier) full() bool {
	return f.scheduled >= f.limit
}

// Run crawls from the start URLs and writes every record to sink. The sink
// is committed when the crawl completes and aborted on any error, including
// cancellation.
func (c *Crawler) Run(ctx context.Context, sink record.Sink) (stats *CrawlStats, err error) {
	start := time.Now()
	stats = &CrawlStats{Errors: result.Tally{}}

	defer func() {
		if err == nil {
			return
		}
		if abortErr := sink.Abort(); abortErr != nil {
			c.log.Error().Err(abortErr).Msg("abort record sink")
		}
		stats = nil
	}()

	visited, err := NewVisitedTracker(c.cfg.MaxPages)
	if err != nil {
		return nil, fmt.Errorf("create visited tracker: %w", err)
	}
	defer func() {
		if closeErr := visited.Close(); closeErr != nil {
			c.log.Warn().Err(closeErr).Msg("close visited tracker")
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	front := &frontier{visited: visited, limit: c.cfg.MaxPages}
	for _, startURL := range c.startURLs {
		c.schedule(ctx, front, startURL, "")
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("crawl interrupted: %w", ctxErr)
	}
	if len(front.queue) == 0 {
		return nil, fmt.Errorf("start URLs %v are disallowed by robots.txt", c.startURLs)
	}

	jobs := make(chan CrawlJob)
	results := make(chan CrawlResult, c.cfg.Concurrency)

	errGroup, groupCtx := errgroup.WithContext(ctx)
	for range c.cfg.Concurrency {
		errGroup.Go(func() error {
			for job := range jobs {
				results <- c.fetch(groupCtx, job)
			}
			return nil
		})
	}

	// Coordinator: dispatch from the queue and consume results. Every
	// dispatched job yields exactly one result, so draining stops when
	// nothing is in flight.
	var sinkErr error
	inFlight := 0
	for {
		var sendCh chan<- CrawlJob
		var next CrawlJob
		if len(front.queue) > 0 && ctx.Err() == nil {
			sendCh = jobs
			next = front.queue[0]
		}
		if sendCh == nil && inFlight == 0 {
			break
		}

		select {
		case sendCh <- next:
			front.queue = front.queue[1:]
			inFlight++
		case res := <-results:
			inFlight--
			if sinkErr != nil {
				continue
			}
			if handleErr := c.handle(ctx, front, stats, sink, res); handleErr != nil && sinkErr == nil {
				sinkErr = handleErr
				cancel()
			}
		}
	}

	close(jobs)
	if waitErr := errGroup.Wait(); waitErr != nil {
		return nil, fmt.Errorf("wait for workers: %w", waitErr)
	}

	stats.RobotsDisallowed = c.robots.Disallowed()
	stats.Duration = time.Since(start)

	if sinkErr != nil {
		return nil, fmt.Errorf("write crawl record: %w", sinkErr)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("crawl interrupted: %w", ctxErr)
	}
	if commitErr := sink.Commit(); commitErr != nil {
		return nil, fmt.Errorf("commit crawl records: %w", commitErr)
	}

	c.log.Info().
		Int("pages", stats.PagesFetched).
		Uint64("urls_seen", visited.Claimed()).
		Int("records", stats.Records).
		Int("failing_pages", stats.FailingPages).
		Int("fetch_errors", stats.Errors.Total()).
		Int("final_rps", c.limiter.CurrentRate()).
		Bool("adaptive", c.limiter.Adaptive()).
		Dur("avg_rtt", c.limiter.CurrentEMA()).
		Dur("duration", stats.Duration).
		Msg("crawl complete")
	if flushErr := visited.LastError(); flushErr != nil {
		c.log.Warn().Err(flushErr).Msg("visited set could not be mirrored to disk")
	}

	return stats, nil
}

// fetch runs one job in a worker: wait for the limiter, fetch with retries,
// and feed the response time back to the limiter.
func (c *Crawler) fetch(ctx context.Context, job CrawlJob) CrawlResult {
	if err := c.limiter.Wait(ctx); err != nil {
		return CrawlResult{Job: job, Err: fmt.Errorf("rate limiter wait: %w", err)}
	}
	res := FetchWithRetry(ctx, c.client, job, c.cfg, c.cfg.RetryPolicy)
	if res.StatusCode > 0 {
		c.limiter.ObserveRTT(res.RTT)
	}
	return res
}

// handle turns one fetch result into records and schedules the page's links.
// It returns an error only when the sink rejects a record.
func (c *Crawler) handle(ctx context.Context, front *frontier, stats *CrawlStats, sink record.Sink, res CrawlResult) error {
	stats.PagesFetched++
	evt := CrawlEvent{URL: res.Job.URL, StatusCode: res.StatusCode}

	switch {
	case res.StatusCode == 0:
		cat := result.ClassifyError(res.Err, 0)
		stats.Errors.Add(cat)
		evt.ErrorCategory = cat
		if res.Err != nil {
			evt.Error = res.Err.Error()
		}
		c.log.Debug().Err(res.Err).Str("url", res.Job.URL).Str("category", string(cat)).Msg("fetch failed")

	case !c.cfg.HandledStatuses.Contains(res.StatusCode):
		stats.SkippedStatus++
		evt.ErrorCategory = result.ClassifyError(nil, res.StatusCode)
		stats.Errors.Add(evt.ErrorCategory)
		c.log.Debug().Str("url", res.Job.URL).Int("status", res.StatusCode).Msg("status not handled, page skipped")

	default:
		origin := record.Origin{
			URL:         res.Job.URL,
			Status:      res.StatusCode,
			Description: record.StatusDescription(res.StatusCode),
		}
		if res.StatusCode >= 400 {
			if err := sink.Write(record.OriginOnly{Origin: origin}); err != nil {
				return err
			}
			stats.Records++
			stats.FailingPages++
			break
		}

		if res.Err != nil {
			evt.Error = res.Err.Error()
			c.log.Warn().Err(res.Err).Str("url", res.Job.URL).Msg("page links unavailable")
		}
		for _, link := range res.Links {
			if err := sink.Write(record.NewEdge(origin, link.Text, link.URL)); err != nil {
				return err
			}
			stats.Records++
			c.schedule(ctx, front, link.URL, res.Job.URL)
		}
	}

	evt.Checked = stats.PagesFetched
	evt.Records = stats.Records
	evt.Failing = stats.FailingPages
	evt.Queued = len(front.queue)
	c.emit(ctx, evt)
	return nil
}

// schedule queues pageURL unless it was seen before, the page budget is
// spent, or robots.txt disallows it.
func (c *Crawler) schedule(ctx context.Context, front *frontier, pageURL, referrer string) {
	if front.full() || ctx.Err() != nil {
		return
	}
	if !front.visited.VisitIfNew(pageURL) {
		return
	}
	allowed, err := c.robots.Allowed(ctx, pageURL)
	if err != nil {
		c.log.Debug().Err(err).Str("url", pageURL).Msg("robots.txt unavailable, allowing")
	}
	if !allowed {
		return
	}
	front.scheduled++
	front.queue = append(front.queue, CrawlJob{URL: pageURL, Referrer: referrer})
}

func (c *Crawler) emit(ctx context.Context, evt CrawlEvent) {
	if c.progressCh == nil {
		return
	}
	select {
	case c.progressCh <- evt:
	case <-ctx.Done():
	}
}
