package record

import "fmt"

// MalformedRecordError reports a stored record that cannot be interpreted,
// such as a missing required field or a link without a destination.
type MalformedRecordError struct {
	Line   int    // 1-based line (CSV) or row id (SQL), 0 if unknown
	Field  string // Offending field, empty when the whole record is bad
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed record at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed record at line %d: field %s: %s", e.Line, e.Field, e.Reason)
}

// InputUnavailableError reports that the record store could not be opened
// or read.
type InputUnavailableError struct {
	Path string
	Err  error
}

func (e *InputUnavailableError) Error() string {
	return fmt.Sprintf("input %s unavailable: %v", e.Path, e.Err)
}

func (e *InputUnavailableError) Unwrap() error {
	return e.Err
}
