package result

import "time"

// ResolvedLink is an edge whose destination is a failing page, reported
// together with the origin page it was found on.
type ResolvedLink struct {
	OriginURL              string `json:"origin_url"`                  // Page containing the link
	OriginStatus           int    `json:"origin_status_code"`          // Status of the origin page
	StatusDescription      string `json:"status_description"`          // Label for OriginStatus
	AnchorText             string `json:"outbound_anchor_text"`        // Visible link text
	DestinationURL         string `json:"outbound_hyperlink"`          // The failing page
	DestinationStatus      int    `json:"outbound_status_code"`        // Status recorded for the failing page
	DestinationDescription string `json:"outbound_status_description"` // Label recorded for the failing page
}

// ResolveStats contains aggregate statistics for a resolution run.
type ResolveStats struct {
	RecordsScanned  int           // Records read during indexing
	EdgesScanned    int           // Edge records joined against the index
	FailingPages    int           // Distinct failing pages in the index
	BrokenCount     int           // Number of resolved links
	AffectedOrigins int           // Distinct origin pages with at least one broken link
	Passes          int           // Full reads of the record store (1 or 2)
	Duration        time.Duration // Total time taken for resolution
}

// Result represents the complete output of a resolution run.
type Result struct {
	BrokenLinks []ResolvedLink // In crawl record order
	Stats       ResolveStats
}
