package result

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/lukemcguire/zombietrail/atomicfile"
)

// Format selects the report encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want csv, json or xlsx)", name)
	}
}

// Extension returns the file extension used for the format, with the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// Header is the report column order.
var Header = []string{
	"origin_url",
	"origin_status_code",
	"status_description",
	"outbound_anchor_text",
	"outbound_hyperlink",
	"outbound_status_code",
}

// xlsxSheet is the worksheet name used by WriteXLSX.
const xlsxSheet = "Broken Links"

// OutputWriteError reports that a report could not be written. No report
// exists at Path after this error.
type OutputWriteError struct {
	Path string
	Err  error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("write report %s: %v", e.Path, e.Err)
}

func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// WriteReportFile writes links to path in the given format. The file is
// written to a temporary name and renamed into place only when complete.
func WriteReportFile(path string, format Format, links []ResolvedLink) error {
	file, err := atomicfile.Create(path)
	if err != nil {
		return &OutputWriteError{Path: path, Err: err}
	}
	defer func() { _ = file.Abort() }()

	if err := Write(file, format, links); err != nil {
		return &OutputWriteError{Path: path, Err: err}
	}
	if err := file.Commit(); err != nil {
		return &OutputWriteError{Path: path, Err: err}
	}
	return nil
}

// Write encodes links to w in the given format.
func Write(w io.Writer, format Format, links []ResolvedLink) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, links)
	case FormatJSON:
		return WriteJSON(w, links)
	case FormatXLSX:
		return WriteXLSX(w, links)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteJSON writes the broken links as a formatted JSON array to the writer.
// Uses flat array format (not wrapped with metadata) for simpler CI integration.
func WriteJSON(w io.Writer, links []ResolvedLink) error {
	if links == nil {
		links = []ResolvedLink{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(links); err != nil {
		return fmt.Errorf("write json output: %w", err)
	}
	return nil
}

// WriteCSV writes the broken links as CSV to the writer.
// Always includes a header row, even if there are no broken links.
func WriteCSV(w io.Writer, links []ResolvedLink) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, link := range links {
		if err := cw.Write(row(link)); err != nil {
			return fmt.Errorf("write csv record for %s: %w", link.DestinationURL, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv output: %w", err)
	}
	return nil
}

// WriteXLSX writes the broken links as a single-sheet spreadsheet with the
// same columns as the CSV report.
func WriteXLSX(w io.Writer, links []ResolvedLink) error {
	book := excelize.NewFile()
	defer func() { _ = book.Close() }()

	if err := book.SetSheetName("Sheet1", xlsxSheet); err != nil {
		return fmt.Errorf("name xlsx sheet: %w", err)
	}

	stream, err := book.NewStreamWriter(xlsxSheet)
	if err != nil {
		return fmt.Errorf("open xlsx stream: %w", err)
	}

	header := make([]any, len(Header))
	for i, col := range Header {
		header[i] = col
	}
	if err := stream.SetRow("A1", header); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}

	for i, link := range links {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx cell for row %d: %w", i+2, err)
		}
		values := []any{
			link.OriginURL,
			link.OriginStatus,
			link.StatusDescription,
			link.AnchorText,
			link.DestinationURL,
			link.DestinationStatus,
		}
		if err := stream.SetRow(cell, values); err != nil {
			return fmt.Errorf("write xlsx record for %s: %w", link.DestinationURL, err)
		}
	}

	if err := stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx stream: %w", err)
	}
	if _, err := book.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx output: %w", err)
	}
	return nil
}

func row(link ResolvedLink) []string {
	return []string{
		link.OriginURL,
		statusCodeStr(link.OriginStatus),
		link.StatusDescription,
		link.AnchorText,
		link.DestinationURL,
		statusCodeStr(link.DestinationStatus),
	}
}

// statusCodeStr converts an HTTP status code to a string.
// Returns empty string for 0 (no HTTP status).
func statusCodeStr(code int) string {
	if code == 0 {
		return ""
	}
	return strconv.Itoa(code)
}
