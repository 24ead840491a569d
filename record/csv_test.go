package record

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func collect(t *testing.T, src Source) ([]Record, error) {
	t.Helper()
	var out []Record
	err := src.Scan(context.Background(), func(rec Record) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyperlinks.csv")
	ok := Origin{URL: "https://a/", Status: 200, Description: "OK"}
	bad := Origin{URL: "https://a/bad", Status: 404, Description: "Not Found"}

	written := []Record{
		NewEdge(ok, "Bad, \"quoted\"\nlink", "https://a/bad#frag"),
		NewEdge(ok, "", "https://a/img"),
		OriginOnly{Origin: bad},
	}

	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("NewCSVSink() error: %v", err)
	}
	for _, rec := range written {
		if err := sink.Write(rec); err != nil {
			t.Fatalf("Write() error: %v", err)
		}
	}
	if err := sink.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	got, err := collect(t, CSVFile{Path: path})
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	want := []Record{
		Edge{Origin: ok, AnchorText: "Bad  \"quoted\" link", DestinationURL: "https://a/bad"},
		Edge{Origin: ok, AnchorText: "", DestinationURL: "https://a/img"},
		OriginOnly{Origin: bad},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	// The store is re-readable.
	again, err := collect(t, CSVFile{Path: path})
	if err != nil {
		t.Fatalf("second Scan() error: %v", err)
	}
	if len(again) != len(want) {
		t.Errorf("second scan saw %d records, want %d", len(again), len(want))
	}
}

// TestCSVSinkRejectsFragmentOnlyDestination keeps the sink from writing a
// row its own reader would refuse.
func TestCSVSinkRejectsFragmentOnlyDestination(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyperlinks.csv")
	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("NewCSVSink() error: %v", err)
	}
	home := Origin{URL: "https://a/", Status: 200, Description: "OK"}

	err = sink.Write(NewEdge(home, "Top", "#top"))
	if !errors.Is(err, ErrEmptyDestination) {
		t.Fatalf("Write(fragment-only edge) error = %v, want ErrEmptyDestination", err)
	}
	if err := sink.Write(NewEdge(home, "Next", "https://a/next")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := sink.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}

	got, err := collect(t, CSVFile{Path: path})
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	want := []Record{Edge{Origin: home, AnchorText: "Next", DestinationURL: "https://a/next"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVSinkAbortLeavesNoStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hyperlinks.csv")
	sink, err := NewCSVSink(path)
	if err != nil {
		t.Fatalf("NewCSVSink() error: %v", err)
	}
	if err := sink.Write(OriginOnly{Origin: Origin{URL: "https://a/x", Status: 404}}); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if err := sink.Abort(); err != nil {
		t.Fatalf("Abort() error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("store exists after Abort, stat err = %v", err)
	}
}

func TestReadCSVToleratesExtraColumn(t *testing.T) {
	input := "origin_url,origin_status_code,status_description,outbound_anchor_text,outbound_hyperlink,outbound_status_code\n" +
		"https://a/,200,OK,Home,https://a/home,\n" +
		"https://a/gone,404,Not Found,,,\n"

	var got []Record
	err := ReadCSV(context.Background(), strings.NewReader(input), "inline", func(rec Record) error {
		got = append(got, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadCSV() error: %v", err)
	}
	want := []Record{
		Edge{Origin: Origin{URL: "https://a/", Status: 200, Description: "OK"}, AnchorText: "Home", DestinationURL: "https://a/home"},
		OriginOnly{Origin: Origin{URL: "https://a/gone", Status: 404, Description: "Not Found"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVColumnOrderFromHeader(t *testing.T) {
	input := "outbound_hyperlink,outbound_anchor_text,status_description,origin_status_code,origin_url\n" +
		"https://a/x#frag,X,OK,200,https://a/\n"

	var got []Record
	err := ReadCSV(context.Background(), strings.NewReader(input), "inline", func(rec Record) error {
		got = append(got, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadCSV() error: %v", err)
	}
	want := []Record{
		Edge{Origin: Origin{URL: "https://a/", Status: 200, Description: "OK"}, AnchorText: "X", DestinationURL: "https://a/x"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestReadCSVUnknownStatusIsNotAnError(t *testing.T) {
	input := strings.Join(Header, ",") + "\n" +
		"https://a/,,,,\n" +
		"https://a/b,abc,Weird,,\n"

	var got []Record
	err := ReadCSV(context.Background(), strings.NewReader(input), "inline", func(rec Record) error {
		got = append(got, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadCSV() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	for _, rec := range got {
		if rec.OriginPage().Status != 0 {
			t.Errorf("status for %s = %d, want 0", rec.OriginPage().URL, rec.OriginPage().Status)
		}
	}
}

func TestReadCSVMalformed(t *testing.T) {
	header := strings.Join(Header, ",") + "\n"
	tests := []struct {
		name      string
		input     string
		wantLine  int
		wantField string
	}{
		{
			name:     "empty input",
			input:    "",
			wantLine: 1,
		},
		{
			name:      "missing column",
			input:     "origin_url,origin_status_code,status_description,outbound_anchor_text\n",
			wantLine:  1,
			wantField: ColDestinationURL,
		},
		{
			name:      "empty origin",
			input:     header + "https://a/,200,OK,A,https://a/x\n,200,OK,B,https://a/y\n",
			wantLine:  3,
			wantField: ColOriginURL,
		},
		{
			name:      "anchor without destination",
			input:     header + "https://a/,200,OK,dangling,\n",
			wantLine:  2,
			wantField: ColDestinationURL,
		},
		{
			name:      "fragment-only destination",
			input:     header + "https://a/,200,OK,top,#top\n",
			wantLine:  2,
			wantField: ColDestinationURL,
		},
		{
			name:     "wrong field count",
			input:    header + "https://a/,200,OK\n",
			wantLine: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ReadCSV(context.Background(), strings.NewReader(tt.input), "inline", func(Record) error { return nil })
			var malformed *MalformedRecordError
			if !errors.As(err, &malformed) {
				t.Fatalf("ReadCSV() error = %v, want MalformedRecordError", err)
			}
			if malformed.Line != tt.wantLine {
				t.Errorf("Line = %d, want %d", malformed.Line, tt.wantLine)
			}
			if malformed.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", malformed.Field, tt.wantField)
			}
		})
	}
}

func TestCSVFileMissingIsInputUnavailable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.csv")
	_, err := collect(t, CSVFile{Path: path})

	var unavailable *InputUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Scan() error = %v, want InputUnavailableError", err)
	}
	if unavailable.Path != path {
		t.Errorf("Path = %q, want %q", unavailable.Path, path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected error to wrap os.ErrNotExist, got %v", err)
	}
}
