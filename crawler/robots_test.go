package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// robotsServer serves body with status at /robots.txt, 200 elsewhere, and
// counts robots.txt fetches.
func robotsServer(t *testing.T, status int, body string, fetches *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			return
		}
		if fetches != nil {
			fetches.Add(1)
		}
		w.WriteHeader(status)
		if _, err := w.Write([]byte(body)); err != nil {
			t.Errorf("write robots.txt: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRobotsCheckerAllowed(t *testing.T) {
	const privateRules = "User-agent: *\nDisallow: /private/"
	tests := []struct {
		name   string
		status int
		body   string
		agent  string
		path   string
		want   bool
	}{
		{"disallowed path", 200, privateRules, "testbot", "/private/secret", false},
		{"allowed path", 200, privateRules, "testbot", "/public/page", true},
		{"query rule", 200, "User-agent: *\nDisallow: /search?", "testbot", "/search?q=x", false},
		{"escaped path", 200, privateRules, "testbot", "/private/a%20b", false},
		{"missing robots.txt", 404, "", "testbot", "/private/x", true},
		{"server error", 500, privateRules, "testbot", "/private/x", true},
		{"empty file", 200, "", "testbot", "/anything", true},
		{"named agent blocked", 200, "User-agent: EvilBot\nDisallow: /", "EvilBot", "/page", false},
		{"other agent unaffected", 200, "User-agent: EvilBot\nDisallow: /", "GoodBot", "/page", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := robotsServer(t, tt.status, tt.body, nil)
			checker := NewRobotsChecker(server.Client(), tt.agent)

			got, err := checker.Allowed(context.Background(), server.URL+tt.path)
			if err != nil {
				t.Errorf("Allowed() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allowed(%s) = %v, want %v", tt.path, got, tt.want)
			}
			wantDisallowed := 1
			if tt.want {
				wantDisallowed = 0
			}
			if n := checker.Disallowed(); n != wantDisallowed {
				t.Errorf("Disallowed() = %d, want %d", n, wantDisallowed)
			}
		})
	}
}

// TestRobotsCheckerFetchesOncePerOrigin has concurrent callers ask about
// one origin and expects a single robots.txt request.
func TestRobotsCheckerFetchesOncePerOrigin(t *testing.T) {
	var fetches atomic.Int32
	server := robotsServer(t, 200, "User-agent: *\nDisallow: /blocked/", &fetches)
	checker := NewRobotsChecker(server.Client(), "testbot")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			path := "/open/page"
			if i%2 == 0 {
				path = "/blocked/page"
			}
			if _, err := checker.Allowed(context.Background(), server.URL+path); err != nil {
				t.Errorf("Allowed() error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := fetches.Load(); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
	if got := checker.Disallowed(); got != 10 {
		t.Errorf("Disallowed() = %d, want 10", got)
	}
}

func TestRobotsCheckerUnreachableAllowsAll(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	checker := NewRobotsChecker(&http.Client{Timeout: 20 * time.Millisecond}, "testbot")

	allowed, err := checker.Allowed(context.Background(), server.URL+"/page")
	if !allowed || err == nil {
		t.Errorf("Allowed() = (%v, %v), want (true, error)", allowed, err)
	}

	// The failure is remembered so the origin is not retried.
	allowed, err = checker.Allowed(context.Background(), server.URL+"/other")
	if !allowed || err != nil {
		t.Errorf("second Allowed() = (%v, %v), want (true, nil)", allowed, err)
	}
}

func TestRobotsCheckerRelativeURL(t *testing.T) {
	checker := NewRobotsChecker(http.DefaultClient, "testbot")
	if allowed, err := checker.Allowed(context.Background(), "/no/host"); !allowed || err != nil {
		t.Errorf("Allowed(relative) = (%v, %v), want (true, nil)", allowed, err)
	}
}
