package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/temoto/robotstxt"
)

// maxRobotsBytes caps how much of a robots.txt body is read.
const maxRobotsBytes = 512 << 10

// RobotsChecker answers robots.txt questions for one user agent. Rules are
// fetched once per origin and kept for the life of the checker, which is
// one crawl.
type RobotsChecker struct {
	client    *http.Client
	userAgent string

	mu    sync.Mutex
	rules map[string]*robotstxt.Group // origin -> group, nil allows all

	disallowed atomic.Int64
}

// NewRobotsChecker creates a RobotsChecker that evaluates rules for userAgent.
func NewRobotsChecker(client *http.Client, userAgent string) *RobotsChecker {
	return &RobotsChecker{
		client:    client,
		userAgent: userAgent,
		rules:     make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be crawled. When the rules cannot be
// fetched or parsed the answer is true and the error is returned for
// logging; the origin is then treated as unrestricted for the whole crawl.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) (bool, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return true, fmt.Errorf("parse URL: %w", err)
	}
	if target.Host == "" {
		return true, nil
	}

	group, err := r.groupFor(ctx, target.Scheme+"://"+target.Host)
	if group == nil || group.Test(target.RequestURI()) {
		return true, err
	}
	r.disallowed.Add(1)
	return false, nil
}

// Disallowed returns how many URLs Allowed has rejected.
func (r *RobotsChecker) Disallowed() int {
	return int(r.disallowed.Load())
}

func (r *RobotsChecker) groupFor(ctx context.Context, origin string) (*robotstxt.Group, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if group, ok := r.rules[origin]; ok {
		return group, nil
	}
	group, err := r.fetch(ctx, origin)
	r.rules[origin] = group
	return group, err
}

func (r *RobotsChecker) fetch(ctx context.Context, origin string) (*robotstxt.Group, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, fmt.Errorf("create robots.txt request for %s: %w", origin, err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots.txt for %s: %w", origin, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Missing rules and server errors both leave the site open.
	if resp.StatusCode >= 400 {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots.txt for %s: %w", origin, err)
	}
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots.txt for %s: %w", origin, err)
	}
	return data.FindGroup(r.userAgent), nil
}
