// Package record defines crawl records, the edge observations a crawl emits,
// and the stores they are persisted to between the crawl and resolution.
package record

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ErrEmptyDestination is returned by sinks for an Edge whose destination is
// empty once its fragment is removed. Such a row could not be read back.
var ErrEmptyDestination = errors.New("edge destination is empty")

// Origin describes the page a record was observed on.
type Origin struct {
	URL         string // The page that was fetched
	Status      int    // HTTP status of the page (0 if unknown)
	Description string // Human-readable label for Status
}

// Record is one observation from a crawl: either an OriginOnly for a page
// whose own fetch failed, or an Edge for one outbound link of a page.
type Record interface {
	// OriginPage returns the page the record was observed on.
	OriginPage() Origin
	isRecord()
}

// OriginOnly records a page whose fetch failed. It carries no outbound link.
type OriginOnly struct {
	Origin Origin
}

// Edge records a single outbound link found on an origin page.
type Edge struct {
	Origin         Origin
	AnchorText     string // Visible link text, may be empty
	DestinationURL string // Link target without fragment, never empty
}

func (r OriginOnly) OriginPage() Origin { return r.Origin }
func (r Edge) OriginPage() Origin       { return r.Origin }

func (OriginOnly) isRecord() {}
func (Edge) isRecord()       {}

// NewEdge builds an Edge with the anchor text sanitized and the fragment
// stripped from the destination.
func NewEdge(origin Origin, anchorText, destinationURL string) Edge {
	return Edge{
		Origin:         origin,
		AnchorText:     SanitizeAnchorText(anchorText),
		DestinationURL: StripFragment(destinationURL),
	}
}

// Source is a finite, re-readable sequence of records. Each call to Scan
// starts from the first record and visits every record in store order.
// Returning an error from fn stops the scan and Scan returns that error.
type Source interface {
	Scan(ctx context.Context, fn func(Record) error) error
}

// Sink accepts records from a crawl. Nothing written becomes visible to a
// Source until Commit succeeds; Abort discards everything written.
type Sink interface {
	Write(rec Record) error
	Commit() error
	Abort() error
}

// Records is an in-memory Source.
type Records []Record

// Scan visits the records in slice order.
func (rs Records) Scan(_ context.Context, fn func(Record) error) error {
	for _, rec := range rs {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// StripFragment removes everything from the first '#' onwards, so that two
// URLs differing only by fragment identify the same page.
func StripFragment(rawURL string) string {
	if i := strings.IndexByte(rawURL, '#'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

// SanitizeAnchorText trims link text and replaces each comma and each line
// break with a single space so the text is safe as a standalone cell.
// Line breaks are CR, LF, CRLF, VT, FF, the file, group and record
// separators, NEL, U+2028 and U+2029. A break at the very end is dropped
// rather than turned into a space.
func SanitizeAnchorText(text string) string {
	text = strings.TrimSpace(text)
	text = strings.ReplaceAll(text, ",", " ")
	if strings.HasSuffix(text, "\r\n") {
		text = text[:len(text)-2]
	} else if r, size := utf8.DecodeLastRuneInString(text); isLineBreak(r) {
		text = text[:len(text)-size]
	}

	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case r == '\r' && strings.HasPrefix(text[i+size:], "\n"):
			b.WriteByte(' ')
			size++
		case isLineBreak(r):
			b.WriteByte(' ')
		default:
			b.WriteString(text[i : i+size])
		}
		i += size
	}
	return b.String()
}

func isLineBreak(r rune) bool {
	switch r {
	case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
		return true
	default:
		return false
	}
}

// statusDescriptions labels the statuses a crawl records by default.
var statusDescriptions = map[int]string{
	200: "OK",
	301: "Moved Permanently",
	302: "Found",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
}

// StatusDescription returns the label recorded next to a status code: the
// fixed label for handled statuses, else the standard reason phrase, else
// "Unknown".
func StatusDescription(status int) string {
	if text, ok := statusDescriptions[status]; ok {
		return text
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return "Unknown"
}
