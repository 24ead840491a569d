package audit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/lukemcguire/zombietrail/config"
	"github.com/lukemcguire/zombietrail/crawler"
	"github.com/lukemcguire/zombietrail/record"
	"github.com/lukemcguire/zombietrail/resolver"
	"github.com/lukemcguire/zombietrail/result"
)

// newSite serves a two page site where both pages link to /missing.
func newSite() *httptest.Server {
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			if _, err := fmt.Fprint(w, body); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		page(`<a href="/about">About</a> <a href="/missing">Dead, link</a>`)(w, r)
	})
	mux.HandleFunc("/about", page(`<a href="/missing#top">Gone</a> <a href="/">Home</a>`))
	return httptest.NewServer(mux)
}

func testOptions(t *testing.T, startURL string) Options {
	t.Helper()
	cfg := crawler.DefaultConfig(startURL)
	cfg.Concurrency = 2
	cfg.RateLimit = 100
	cfg.RetryPolicy.MaxRetries = 0
	return Options{
		Crawler:  cfg,
		Resolver: resolver.Config{Strategy: resolver.StrategyTwoPass},
		Format:   result.FormatCSV,
		Fname:    filepath.Join(t.TempDir(), "site"),
	}
}

func TestPaths(t *testing.T) {
	tests := []struct {
		fname      string
		format     result.Format
		wantStore  string
		wantReport string
	}{
		{"hyperlinks", result.FormatCSV, "hyperlinks.csv", "broken_hyperlinks.csv"},
		{"hyperlinks.csv", result.FormatCSV, "hyperlinks.csv", "broken_hyperlinks.csv"},
		{"out/site.CSV", result.FormatJSON, "out/site.csv", filepath.Join("out", "broken_site.json")},
		{"my.site", result.FormatXLSX, "my.site.csv", "broken_my.site.xlsx"},
	}

	for _, tt := range tests {
		t.Run(tt.fname, func(t *testing.T) {
			storePath, reportPath := Paths(tt.fname, tt.format)
			if storePath != tt.wantStore || reportPath != tt.wantReport {
				t.Errorf("Paths(%q) = %q, %q, want %q, %q", tt.fname, storePath, reportPath, tt.wantStore, tt.wantReport)
			}
		})
	}
}

func TestNewRejectsBadStore(t *testing.T) {
	if _, err := New(Options{Driver: "mysql"}, zerolog.Nop()); err == nil {
		t.Error("New() with unknown driver should fail")
	}
	if _, err := New(Options{Driver: config.DriverPostgres}, zerolog.Nop()); err == nil {
		t.Error("New() with postgres and no DSN should fail")
	}
}

func TestRunCSV(t *testing.T) {
	server := newSite()
	defer server.Close()

	opts := testOptions(t, server.URL+"/")
	runner, err := New(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer func() { _ = runner.Close() }()

	summary, err := runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if summary.Crawl == nil || summary.Crawl.PagesFetched != 3 {
		t.Fatalf("Crawl stats = %+v, want 3 pages fetched", summary.Crawl)
	}
	root := server.URL + "/"
	want := []result.ResolvedLink{
		{
			OriginURL: root, OriginStatus: 200, StatusDescription: "OK",
			AnchorText: "Dead  link", DestinationURL: server.URL + "/missing",
			DestinationStatus: 404, DestinationDescription: "Not Found",
		},
		{
			OriginURL: server.URL + "/about", OriginStatus: 200, StatusDescription: "OK",
			AnchorText: "Gone", DestinationURL: server.URL + "/missing",
			DestinationStatus: 404, DestinationDescription: "Not Found",
		},
	}
	if diff := cmp.Diff(want, summary.Result.BrokenLinks); diff != "" {
		t.Errorf("broken links mismatch (-want +got):\n%s", diff)
	}

	storePath, reportPath := Paths(opts.Fname, result.FormatCSV)
	if summary.ReportPath != reportPath {
		t.Errorf("ReportPath = %q, want %q", summary.ReportPath, reportPath)
	}
	if _, err := os.Stat(storePath); err != nil {
		t.Errorf("record store missing: %v", err)
	}
	report, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(report)), "\n")
	if len(lines) != 3 {
		t.Fatalf("report has %d lines, want header + 2: %q", len(lines), report)
	}
	if lines[0] != strings.Join(result.Header, ",") {
		t.Errorf("report header = %q", lines[0])
	}
}

func TestRunSkipCrawl(t *testing.T) {
	opts := testOptions(t, "https://example.com/")
	storePath, reportPath := Paths(opts.Fname, result.FormatCSV)

	sink, err := record.NewCSVSink(storePath)
	if err != nil {
		t.Fatalf("NewCSVSink() error: %v", err)
	}
	origin := record.Origin{URL: "https://example.com/", Status: 200, Description: "OK"}
	for _, rec := range []record.Record{
		record.NewEdge(origin, "Old", "https://example.com/old"),
		record.OriginOnly{Origin: record.Origin{URL: "https://example.com/old", Status: 401, Description: "Unauthorized"}},
	} {
		if err := sink.Write(rec); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	if err := sink.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	runner, err := New(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	summary, err := runner.Run(context.Background(), true)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if summary.Crawl != nil {
		t.Error("Crawl stats should be nil when the crawl is skipped")
	}
	if got := len(summary.Result.BrokenLinks); got != 1 {
		t.Fatalf("broken links = %d, want 1", got)
	}
	if got := summary.Result.BrokenLinks[0].DestinationStatus; got != 401 {
		t.Errorf("DestinationStatus = %d, want 401", got)
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Errorf("report missing: %v", err)
	}
}

func TestRunSkipCrawlMissingStore(t *testing.T) {
	opts := testOptions(t, "https://example.com/")
	runner, err := New(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = runner.Run(context.Background(), true)
	var unavailable *record.InputUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Run() error = %v, want InputUnavailableError", err)
	}
	if _, statErr := os.Stat(runner.ReportPath()); !os.IsNotExist(statErr) {
		t.Errorf("report should not exist after a failed run, stat error: %v", statErr)
	}
}

func TestRunSQLite(t *testing.T) {
	server := newSite()
	defer server.Close()

	opts := testOptions(t, server.URL+"/")
	opts.Driver = config.DriverSQLite
	opts.Format = result.FormatJSON
	opts.Resolver.Strategy = resolver.StrategyAuto

	runner, err := New(opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer func() {
		if err := runner.Close(); err != nil {
			t.Errorf("Close() error: %v", err)
		}
	}()

	summary, err := runner.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if got := len(summary.Result.BrokenLinks); got != 2 {
		t.Errorf("broken links = %d, want 2", got)
	}
	if !strings.HasSuffix(runner.StoreName(), "site.db") {
		t.Errorf("StoreName() = %q, want the sqlite file", runner.StoreName())
	}
	if !strings.HasSuffix(summary.ReportPath, "broken_site.json") {
		t.Errorf("ReportPath = %q", summary.ReportPath)
	}
}

func TestCrawlClosesProgressChannel(t *testing.T) {
	server := newSite()
	defer server.Close()

	runner, err := New(testOptions(t, server.URL+"/"), zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	crawlCh := make(chan crawler.CrawlEvent, 16)
	done := make(chan error, 1)
	go func() {
		_, err := runner.Crawl(context.Background(), crawlCh)
		done <- err
	}()
	events := 0
	for range crawlCh {
		events++
	}
	if err := <-done; err != nil {
		t.Fatalf("Crawl() error: %v", err)
	}
	if events != 3 {
		t.Errorf("crawl events = %d, want 3", events)
	}

	phaseCh := make(chan resolver.PhaseEvent, 4)
	if _, err := runner.Resolve(context.Background(), phaseCh); err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	var phases []resolver.Phase
	for evt := range phaseCh {
		phases = append(phases, evt.Phase)
	}
	if diff := cmp.Diff([]resolver.Phase{resolver.PhaseIndexing, resolver.PhaseResolving, resolver.PhaseDone}, phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
}
