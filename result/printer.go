package result

import (
	"fmt"
	"io"
)

// PrintResults writes broken link details and a summary to w. Links to the
// same destination are listed together, destinations in first-seen order.
func PrintResults(w io.Writer, res *Result) {
	writef := func(format string, a ...any) { _, _ = fmt.Fprintf(w, format, a...) }

	if len(res.BrokenLinks) == 0 {
		writef("No broken links found!\n")
	} else {
		groups := GroupByDestination(res.BrokenLinks)
		writef("Broken Links:\n")
		for i, group := range groups {
			first := group[0]
			writef("  URL: %s\n", first.DestinationURL)
			if first.DestinationDescription != "" {
				writef("  Status: %d %s\n", first.DestinationStatus, first.DestinationDescription)
			} else {
				writef("  Status: %d\n", first.DestinationStatus)
			}
			for _, link := range group {
				if link.AnchorText != "" {
					writef("  Found on: %s (%q)\n", link.OriginURL, link.AnchorText)
				} else {
					writef("  Found on: %s\n", link.OriginURL)
				}
			}
			if i < len(groups)-1 {
				writef("\n")
			}
		}
	}
	writef("Scanned %d records, found %d broken links on %d pages\n",
		res.Stats.RecordsScanned, res.Stats.BrokenCount, res.Stats.AffectedOrigins)
}

// GroupByDestination splits links into runs sharing a destination URL.
// Groups appear in the order their destination first occurs, and links
// keep their relative order inside a group.
func GroupByDestination(links []ResolvedLink) [][]ResolvedLink {
	index := make(map[string]int)
	var groups [][]ResolvedLink
	for _, link := range links {
		i, ok := index[link.DestinationURL]
		if !ok {
			i = len(groups)
			index[link.DestinationURL] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], link)
	}
	return groups
}
