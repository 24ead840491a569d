package record

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lukemcguire/zombietrail/atomicfile"
)

// Column names of the CSV crawl store.
const (
	ColOriginURL         = "origin_url"
	ColOriginStatus      = "origin_status_code"
	ColStatusDescription = "status_description"
	ColAnchorText        = "outbound_anchor_text"
	ColDestinationURL    = "outbound_hyperlink"
)

// Header is the column order written by CSVSink.
var Header = []string{ColOriginURL, ColOriginStatus, ColStatusDescription, ColAnchorText, ColDestinationURL}

// CSVFile is a Source backed by a CSV crawl store on disk. Every Scan
// reopens the file, so the store can be read any number of times.
//
// Columns are located by header name. Extra columns are ignored, which
// keeps files that carry an empty outbound_status_code column readable.
type CSVFile struct {
	Path string
}

// Scan reads the file from the top and calls fn for every row.
func (f CSVFile) Scan(ctx context.Context, fn func(Record) error) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return &InputUnavailableError{Path: f.Path, Err: err}
	}
	defer func() { _ = file.Close() }()

	return ReadCSV(ctx, file, f.Path, fn)
}

// ReadCSV decodes crawl records from r. name identifies the input in errors.
func ReadCSV(ctx context.Context, r io.Reader, name string, fn func(Record) error) error {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return &MalformedRecordError{Line: 1, Reason: "missing header row"}
	}
	if err != nil {
		return readError(name, err)
	}
	cols, err := locateColumns(header)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return readError(name, err)
		}
		line, _ := reader.FieldPos(0)

		rec, err := cols.decode(row, line)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func readError(name string, err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &MalformedRecordError{Line: parseErr.Line, Reason: parseErr.Err.Error()}
	}
	return &InputUnavailableError{Path: name, Err: err}
}

type columns struct {
	originURL, status, description, anchor, destination int
}

func locateColumns(header []string) (columns, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))
		index[name] = i
	}

	var cols columns
	targets := []struct {
		name string
		dst  *int
	}{
		{ColOriginURL, &cols.originURL},
		{ColOriginStatus, &cols.status},
		{ColStatusDescription, &cols.description},
		{ColAnchorText, &cols.anchor},
		{ColDestinationURL, &cols.destination},
	}
	for _, target := range targets {
		i, ok := index[target.name]
		if !ok {
			return columns{}, &MalformedRecordError{Line: 1, Field: target.name, Reason: "missing column in header"}
		}
		*target.dst = i
	}
	return cols, nil
}

func (c columns) decode(row []string, line int) (Record, error) {
	originURL := strings.TrimSpace(row[c.originURL])
	if originURL == "" {
		return nil, &MalformedRecordError{Line: line, Field: ColOriginURL, Reason: "empty value"}
	}

	origin := Origin{
		URL:         originURL,
		Status:      parseStatus(row[c.status]),
		Description: row[c.description],
	}

	rawDestination := strings.TrimSpace(row[c.destination])
	anchor := row[c.anchor]
	if rawDestination == "" {
		if anchor != "" {
			return nil, &MalformedRecordError{Line: line, Field: ColDestinationURL, Reason: "anchor text without destination"}
		}
		return OriginOnly{Origin: origin}, nil
	}

	destination := StripFragment(rawDestination)
	if destination == "" {
		return nil, &MalformedRecordError{Line: line, Field: ColDestinationURL, Reason: "destination is only a fragment"}
	}
	return Edge{Origin: origin, AnchorText: anchor, DestinationURL: destination}, nil
}

// parseStatus returns 0 for values that are not integers. An unknown status
// is a valid record that simply never matches a broken-status set.
func parseStatus(raw string) int {
	status, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return status
}

// CSVSink writes records to a CSV crawl store. The file only appears at its
// path once Commit succeeds.
type CSVSink struct {
	file *atomicfile.File
	w    *csv.Writer
}

// NewCSVSink starts a new crawl store at path and writes the header row.
func NewCSVSink(path string) (*CSVSink, error) {
	file, err := atomicfile.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create crawl store: %w", err)
	}
	sink := &CSVSink{file: file, w: csv.NewWriter(file)}
	if err := sink.w.Write(Header); err != nil {
		_ = file.Abort()
		return nil, fmt.Errorf("write crawl store header: %w", err)
	}
	return sink, nil
}

// Write appends one record.
func (s *CSVSink) Write(rec Record) error {
	origin := rec.OriginPage()
	row := []string{origin.URL, statusString(origin.Status), origin.Description, "", ""}
	if edge, ok := rec.(Edge); ok {
		row[3] = SanitizeAnchorText(edge.AnchorText)
		row[4] = StripFragment(edge.DestinationURL)
		if row[4] == "" {
			return fmt.Errorf("write record for %s: %w", origin.URL, ErrEmptyDestination)
		}
	}
	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("write record for %s: %w", origin.URL, err)
	}
	return nil
}

// Commit flushes the records and moves the store into place.
func (s *CSVSink) Commit() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		_ = s.file.Abort()
		return fmt.Errorf("flush crawl store: %w", err)
	}
	if err := s.file.Commit(); err != nil {
		return fmt.Errorf("commit crawl store: %w", err)
	}
	return nil
}

// Abort discards the store.
func (s *CSVSink) Abort() error {
	return s.file.Abort()
}

func statusString(status int) string {
	if status == 0 {
		return ""
	}
	return strconv.Itoa(status)
}
