package crawler

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/lukemcguire/zombietrail/record"
	"github.com/lukemcguire/zombietrail/urlutil"
)

// Config holds crawler configuration.
type Config struct {
	StartURLs       []string         // Pages the crawl starts from
	AllowedDomains  []string         // Domains to follow, subdomains included (default: start hosts)
	MaxPages        int              // Maximum pages fetched (default 10000)
	Concurrency     int              // Number of concurrent workers (default 10)
	RequestTimeout  time.Duration    // Per-request timeout (default 10s)
	RateLimit       int              // Requests per second; 0 adapts to server response times
	UserAgent       string           // User-Agent header and robots.txt agent
	RetryPolicy     RetryPolicy      // Retries for transient failures
	HandledStatuses record.StatusSet // Page statuses that produce records
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(startURLs ...string) Config {
	return Config{
		StartURLs:       startURLs,
		MaxPages:        10000,
		Concurrency:     10,
		RequestTimeout:  10 * time.Second,
		RateLimit:       10,
		UserAgent:       DefaultUserAgent,
		RetryPolicy:     DefaultRetryPolicy(),
		HandledStatuses: record.DefaultHandledStatuses(),
	}
}

// DefaultUserAgent identifies the crawler to servers and robots.txt.
const DefaultUserAgent = "zombietrail/1.0 (+https://github.com/lukemcguire/zombietrail)"

// CrawlJob represents a page to be fetched.
type CrawlJob struct {
	URL      string // Normalized page URL
	Referrer string // The page where this URL was first found
}

// PageLink is one outbound link found on a page.
type PageLink struct {
	URL  string // Normalized absolute target
	Text string // Visible anchor text
}

// CrawlResult represents the outcome of fetching a page.
type CrawlResult struct {
	Job        CrawlJob      // The original job
	StatusCode int           // Page status, 0 if no response was received
	Links      []PageLink    // In-domain outbound links in document order
	RTT        time.Duration // Time to response headers
	RetryAfter time.Duration // Server-requested delay on 429 and 503
	Err        error         // Transport or extraction error
}

// FetchPage fetches a page with GET and extracts its in-domain links.
// Redirects are not followed: the Location target becomes the page's only
// link, with empty anchor text.
func FetchPage(ctx context.Context, client *http.Client, job CrawlJob, cfg Config) (res CrawlResult) {
	res.Job = job

	reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, job.URL, nil)
	if err != nil {
		res.Err = fmt.Errorf("create request: %w", err)
		return
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.RTT = time.Since(start)
	if err != nil {
		res.Err = err
		return
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && res.Err == nil {
			res.Err = fmt.Errorf("close response body: %w", closeErr)
		}
	}()

	res.StatusCode = resp.StatusCode
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		res.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	switch {
	case resp.StatusCode >= 400:
		return
	case resp.StatusCode >= 300:
		rawLocation := resp.Header.Get("Location")
		if rawLocation == "" {
			return
		}
		location, locErr := urlutil.ResolveReference(job.URL, rawLocation)
		if locErr != nil {
			return
		}
		if link, ok := pageLink(location, "", cfg.AllowedDomains); ok {
			res.Links = []PageLink{link}
		}
		return
	}

	if isBinaryContentType(resp.Header.Get("Content-Type")) {
		res.Links = []PageLink{}
		return
	}

	links, extractErr := ExtractLinks(resp.Body, resp.Request.URL)
	if extractErr != nil {
		res.Err = fmt.Errorf("extract links from %s: %w", job.URL, extractErr)
		return
	}
	res.Links = filterDomains(links, cfg.AllowedDomains)
	return
}

// pageLink normalizes target and keeps it only if it is in one of domains.
func pageLink(target, text string, domains []string) (PageLink, bool) {
	if !urlutil.IsHTTPScheme(target) {
		return PageLink{}, false
	}
	normalized, err := urlutil.Normalize(target)
	if err != nil || !urlutil.InDomains(normalized, domains) {
		return PageLink{}, false
	}
	return PageLink{URL: normalized, Text: text}, true
}

func filterDomains(links []PageLink, domains []string) []PageLink {
	kept := make([]PageLink, 0, len(links))
	for _, link := range links {
		if urlutil.InDomains(link.URL, domains) {
			kept = append(kept, link)
		}
	}
	return kept
}

// binaryTypePrefixes lists media types that never contain links.
var binaryTypePrefixes = []string{
	"application/pdf",
	"application/zip",
	"application/x-zip-compressed",
	"application/gzip",
	"application/vnd.rar",
	"application/x-7z-compressed",
	"application/octet-stream",
	"image/",
	"video/",
	"audio/",
	"font/",
}

// isBinaryContentType reports whether a Content-Type header names a binary
// format whose body should not be parsed for links.
func isBinaryContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	if mediaType == "" {
		return false
	}
	for _, prefix := range binaryTypePrefixes {
		if strings.HasPrefix(mediaType, prefix) {
			return true
		}
	}
	return false
}
