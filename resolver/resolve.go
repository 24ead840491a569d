package resolver

import (
	"context"
	"fmt"

	"github.com/lukemcguire/zombietrail/record"
	"github.com/lukemcguire/zombietrail/result"
)

// Resolve scans src and returns every edge whose destination is a failing
// page in ix, in scan order. The returned slice is never nil.
func Resolve(ctx context.Context, src record.Source, ix *FailingPageIndex) ([]result.ResolvedLink, error) {
	links := []result.ResolvedLink{}
	err := src.Scan(ctx, func(rec record.Record) error {
		if link, ok := resolveEdge(rec, ix); ok {
			links = append(links, link)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve edges: %w", err)
	}
	return links, nil
}

// resolveEdge joins a single record against the index. Origin-only records
// never resolve.
func resolveEdge(rec record.Record, ix *FailingPageIndex) (result.ResolvedLink, bool) {
	edge, ok := rec.(record.Edge)
	if !ok {
		return result.ResolvedLink{}, false
	}
	entry, ok := ix.Lookup(edge.DestinationURL)
	if !ok {
		return result.ResolvedLink{}, false
	}
	return result.ResolvedLink{
		OriginURL:              edge.Origin.URL,
		OriginStatus:           edge.Origin.Status,
		StatusDescription:      edge.Origin.Description,
		AnchorText:             edge.AnchorText,
		DestinationURL:         record.StripFragment(edge.DestinationURL),
		DestinationStatus:      entry.Status,
		DestinationDescription: entry.Description,
	}, true
}
