package record

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// StatusSet is an immutable set of HTTP status codes.
type StatusSet struct {
	codes map[int]struct{}
}

// NewStatusSet builds a set from the given codes. Duplicates are ignored.
func NewStatusSet(codes ...int) StatusSet {
	set := StatusSet{codes: make(map[int]struct{}, len(codes))}
	for _, code := range codes {
		set.codes[code] = struct{}{}
	}
	return set
}

// DefaultBrokenStatuses is the set of origin statuses that make a page a
// failing page. 403 is deliberately absent: forbidden pages are handled by
// the crawler but are not reported as broken destinations unless configured.
func DefaultBrokenStatuses() StatusSet {
	return NewStatusSet(400, 401, 404)
}

// DefaultHandledStatuses is the set of page statuses the crawler records.
// Pages answering with any other status produce no records.
func DefaultHandledStatuses() StatusSet {
	return NewStatusSet(200, 301, 302, 400, 401, 403, 404)
}

// ParseStatusSet parses a comma-separated list such as "400,401,404".
func ParseStatusSet(list string) (StatusSet, error) {
	var codes []int
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		code, err := strconv.Atoi(field)
		if err != nil {
			return StatusSet{}, fmt.Errorf("parse status %q: %w", field, err)
		}
		if code < 100 || code > 599 {
			return StatusSet{}, fmt.Errorf("status %d out of range 100-599", code)
		}
		codes = append(codes, code)
	}
	if len(codes) == 0 {
		return StatusSet{}, fmt.Errorf("status list %q is empty", list)
	}
	return NewStatusSet(codes...), nil
}

// Contains reports whether code is in the set.
func (s StatusSet) Contains(code int) bool {
	_, ok := s.codes[code]
	return ok
}

// Len returns the number of codes in the set.
func (s StatusSet) Len() int {
	return len(s.codes)
}

// Codes returns the codes in ascending order.
func (s StatusSet) Codes() []int {
	out := make([]int, 0, len(s.codes))
	for code := range s.codes {
		out = append(out, code)
	}
	slices.Sort(out)
	return out
}

func (s StatusSet) String() string {
	codes := s.Codes()
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = strconv.Itoa(code)
	}
	return strings.Join(parts, ",")
}
