package resolver

import (
	"context"
	"fmt"
	"slices"

	"github.com/lukemcguire/zombietrail/record"
)

// IndexEntry is the status recorded for a failing page.
type IndexEntry struct {
	Status      int
	Description string
}

// FailingPageIndex maps each failing page URL to its recorded status. It is
// not modified after BuildIndex returns.
type FailingPageIndex struct {
	entries map[string]IndexEntry
}

// Lookup returns the entry for url. The fragment, if any, is ignored.
func (ix *FailingPageIndex) Lookup(url string) (IndexEntry, bool) {
	if ix == nil {
		return IndexEntry{}, false
	}
	entry, ok := ix.entries[record.StripFragment(url)]
	return entry, ok
}

// Len returns the number of failing pages.
func (ix *FailingPageIndex) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.entries)
}

// URLs returns the failing page URLs in lexical order.
func (ix *FailingPageIndex) URLs() []string {
	if ix == nil {
		return nil
	}
	urls := make([]string, 0, len(ix.entries))
	for url := range ix.entries {
		urls = append(urls, url)
	}
	slices.Sort(urls)
	return urls
}

// indexBuilder accumulates failing pages during the indexing scan.
type indexBuilder struct {
	broken  record.StatusSet
	entries map[string]IndexEntry
	scanned int
}

func newIndexBuilder(broken record.StatusSet) *indexBuilder {
	return &indexBuilder{
		broken:  broken,
		entries: make(map[string]IndexEntry),
	}
}

// add indexes rec if its origin status is broken. A later record for the
// same URL replaces the earlier one.
func (b *indexBuilder) add(rec record.Record) {
	b.scanned++
	origin := rec.OriginPage()
	if !b.broken.Contains(origin.Status) {
		return
	}
	b.entries[record.StripFragment(origin.URL)] = IndexEntry{
		Status:      origin.Status,
		Description: origin.Description,
	}
}

func (b *indexBuilder) build() *FailingPageIndex {
	return &FailingPageIndex{entries: b.entries}
}

// BuildIndex scans src once and returns the index of pages whose own status
// is in broken.
func BuildIndex(ctx context.Context, src record.Source, broken record.StatusSet) (*FailingPageIndex, error) {
	builder := newIndexBuilder(broken)
	err := src.Scan(ctx, func(rec record.Record) error {
		builder.add(rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("build failing page index: %w", err)
	}
	return builder.build(), nil
}
