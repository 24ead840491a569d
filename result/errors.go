// Package result holds the broken-link report: resolved links, their
// encodings, and the classification of fetch failures seen while crawling.
package result

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"syscall"
)

// ErrorCategory classifies a page fetch that produced no crawl record.
type ErrorCategory string

const (
	CategoryTimeout           ErrorCategory = "timeout"
	CategoryDNSFailure        ErrorCategory = "dns_failure"
	CategoryConnectionRefused ErrorCategory = "connection_refused"
	CategoryTLS               ErrorCategory = "tls"
	Category4xx               ErrorCategory = "4xx"
	Category5xx               ErrorCategory = "5xx"
	CategoryOtherStatus       ErrorCategory = "other_status"
	CategoryUnknown           ErrorCategory = "unknown"
)

// ClassifyError picks the category for a fetch. A non-zero statusCode means
// the server answered with a status the crawler does not record; otherwise
// err is the transport failure.
func ClassifyError(err error, statusCode int) ErrorCategory {
	switch {
	case statusCode >= 500:
		return Category5xx
	case statusCode >= 400:
		return Category4xx
	case statusCode > 0:
		return CategoryOtherStatus
	case err == nil:
		return CategoryUnknown
	}

	var (
		dnsErr    *net.DNSError
		certErr   *tls.CertificateVerificationError
		unknownCA x509.UnknownAuthorityError
		hostErr   x509.HostnameError
		netErr    net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return CategoryTimeout
	case errors.As(err, &dnsErr):
		return CategoryDNSFailure
	case errors.Is(err, syscall.ECONNREFUSED):
		return CategoryConnectionRefused
	case errors.As(err, &certErr), errors.As(err, &unknownCA), errors.As(err, &hostErr):
		return CategoryTLS
	case errors.As(err, &netErr) && netErr.Timeout():
		return CategoryTimeout
	default:
		return CategoryUnknown
	}
}

// FormatCategory returns the label shown for a category in summaries.
func FormatCategory(cat ErrorCategory) string {
	if label, ok := categoryLabels[cat]; ok {
		return label
	}
	return categoryLabels[CategoryUnknown]
}

var categoryLabels = map[ErrorCategory]string{
	CategoryTimeout:           "Timeouts",
	CategoryDNSFailure:        "DNS Failures",
	CategoryConnectionRefused: "Connection Refused",
	CategoryTLS:               "TLS Errors",
	Category4xx:               "Unhandled Client Errors (4xx)",
	Category5xx:               "Server Errors (5xx)",
	CategoryOtherStatus:       "Other Unhandled Statuses",
	CategoryUnknown:           "Other Errors",
}

// categoryOrder lists categories from most to least actionable.
var categoryOrder = []ErrorCategory{
	Category5xx,
	Category4xx,
	CategoryTimeout,
	CategoryDNSFailure,
	CategoryConnectionRefused,
	CategoryTLS,
	CategoryOtherStatus,
	CategoryUnknown,
}

// CategoryCount pairs a category with the number of failures in it.
type CategoryCount struct {
	Category ErrorCategory
	Count    int
}

// Tally counts failures per category. The zero value is not usable; make
// one with a composite literal.
type Tally map[ErrorCategory]int

// Add records one failure.
func (t Tally) Add(cat ErrorCategory) {
	t[cat]++
}

// Total returns the number of failures across all categories.
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Sorted returns the non-empty categories in display order.
func (t Tally) Sorted() []CategoryCount {
	var out []CategoryCount
	for _, cat := range categoryOrder {
		if n := t[cat]; n > 0 {
			out = append(out, CategoryCount{Category: cat, Count: n})
		}
	}
	return out
}
