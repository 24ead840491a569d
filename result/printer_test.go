package result

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestPrintResults_NoBrokenLinks(t *testing.T) {
	var buf bytes.Buffer
	r := &Result{
		Stats: ResolveStats{RecordsScanned: 10, Duration: time.Second},
	}

	PrintResults(&buf, r)

	got := buf.String()
	want := "No broken links found!\nScanned 10 records, found 0 broken links on 0 pages\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrintResults_WithBrokenLinks(t *testing.T) {
	var buf bytes.Buffer
	r := &Result{
		BrokenLinks: []ResolvedLink{
			{OriginURL: "http://example.com/", AnchorText: "Dead", DestinationURL: "http://example.com/dead", DestinationStatus: 404, DestinationDescription: "Not Found"},
			{OriginURL: "http://example.com/about", DestinationURL: "http://example.com/locked", DestinationStatus: 401},
			{OriginURL: "http://example.com/blog", AnchorText: "again", DestinationURL: "http://example.com/dead", DestinationStatus: 404, DestinationDescription: "Not Found"},
		},
		Stats: ResolveStats{RecordsScanned: 50, BrokenCount: 3, AffectedOrigins: 3},
	}

	PrintResults(&buf, r)
	got := buf.String()

	for _, want := range []string{
		"Broken Links:",
		"URL: http://example.com/dead",
		"Status: 404 Not Found",
		`Found on: http://example.com/ ("Dead")`,
		`Found on: http://example.com/blog ("again")`,
		"URL: http://example.com/locked",
		"Status: 401\n",
		"Found on: http://example.com/about\n",
		"Scanned 50 records, found 3 broken links on 3 pages",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	// Destinations are listed in first-seen order.
	if strings.Index(got, "/dead") > strings.Index(got, "/locked") {
		t.Error("expected /dead group before /locked group")
	}
}

func TestGroupByDestination(t *testing.T) {
	links := []ResolvedLink{
		{OriginURL: "o1", DestinationURL: "a"},
		{OriginURL: "o2", DestinationURL: "b"},
		{OriginURL: "o3", DestinationURL: "a"},
	}

	groups := GroupByDestination(links)
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if len(groups[0]) != 2 || groups[0][0].OriginURL != "o1" || groups[0][1].OriginURL != "o3" {
		t.Errorf("unexpected first group: %+v", groups[0])
	}
	if len(groups[1]) != 1 || groups[1][0].OriginURL != "o2" {
		t.Errorf("unexpected second group: %+v", groups[1])
	}
}
