package crawler

import (
	"time"

	"github.com/lukemcguire/zombietrail/result"
)

// CrawlEvent reports progress for a single fetched page.
type CrawlEvent struct {
	URL           string
	StatusCode    int
	Error         string
	ErrorCategory result.ErrorCategory
	Checked       int // Pages fetched so far
	Records       int // Records written so far
	Failing       int // Pages recorded with a failing status so far
	Queued        int // Pages waiting to be fetched
}

// CrawlStats summarizes a finished crawl.
type CrawlStats struct {
	PagesFetched     int
	Records          int
	FailingPages     int
	SkippedStatus    int          // Pages whose status is not handled
	RobotsDisallowed int          // Links skipped because robots.txt disallows them
	Errors           result.Tally // Fetches that produced no record, by category
	Duration         time.Duration
}
