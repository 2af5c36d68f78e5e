package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"mercator-hq/rampart/pkg/audit"
)

func testRecords() []*audit.Record {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	return []*audit.Record{
		{
			ID:            "r1",
			Identifier:    "app/page.ts",
			Verdict:       "block",
			PolicyVersion: "v1",
			RecordedAt:    at,
			Violations:    1,
			Entries: []audit.Entry{
				{RuleID: "baseline", Domain: "input-validation", ClauseKind: "prohibition", Outcome: "violation", Severity: "fatal", Reason: "uses eval, which is prohibited"},
				{RuleID: "web", Domain: "secrets", ClauseKind: "prohibition", Outcome: "pass", Severity: "fatal"},
			},
		},
		{
			ID:         "r2",
			Identifier: "README.md",
			Verdict:    "allow",
			RecordedAt: at,
		},
	}
}

func TestJSONExporter(t *testing.T) {
	tests := []struct {
		name    string
		pretty  bool
		records []*audit.Record
		want    int
	}{
		{"compact", false, testRecords(), 2},
		{"pretty", true, testRecords(), 2},
		{"single record stays an array", false, testRecords()[:1], 1},
		{"empty", false, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := NewJSONExporter(tt.pretty).Export(context.Background(), tt.records, &buf); err != nil {
				t.Fatalf("Export() error = %v", err)
			}

			var decoded []*audit.Record
			if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
				t.Fatalf("output is not a JSON array: %v\n%s", err, buf.String())
			}
			if len(decoded) != tt.want {
				t.Errorf("decoded %d records, want %d", len(decoded), tt.want)
			}
			if tt.pretty != strings.Contains(buf.String(), "\n  ") {
				t.Errorf("pretty=%v but output indentation mismatch:\n%s", tt.pretty, buf.String())
			}
		})
	}
}

func TestCSVExporter(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(true).Export(context.Background(), testRecords(), &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("got %d rows, want header + 2 entries + 1 empty record", len(rows))
	}
	if !reflect.DeepEqual(rows[0], Header) {
		t.Errorf("header = %v", rows[0])
	}

	want := []string{"r1", "app/page.ts", "block", "v1", "2026-05-01T10:00:00Z", "1",
		"0", "baseline", "input-validation", "prohibition", "violation", "fatal", "uses eval, which is prohibited"}
	if !reflect.DeepEqual(rows[1], want) {
		t.Errorf("row 1 =\n%v\nwant\n%v", rows[1], want)
	}
	if rows[3][0] != "r2" || rows[3][7] != "" {
		t.Errorf("record without entries row = %v", rows[3])
	}
	for i, row := range rows {
		if len(row) != len(Header) {
			t.Errorf("row %d has %d columns, want %d", i, len(row), len(Header))
		}
	}
}

func TestCSVExporterNoHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := NewCSVExporter(false).Export(context.Background(), testRecords()[1:], &buf); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if strings.HasPrefix(buf.String(), "record_id") {
		t.Error("header written when IncludeHeader is false")
	}
}

func TestExportCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, format := range []string{FormatJSON, FormatCSV} {
		exp, err := New(format, false)
		if err != nil {
			t.Fatalf("New(%s) error = %v", format, err)
		}
		err = exp.Export(ctx, testRecords(), &bytes.Buffer{})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%s Export() error = %v, want context.Canceled", format, err)
		}
	}
}

func TestNewUnsupported(t *testing.T) {
	_, err := New("xml", false)
	var ee *audit.ExportError
	if !errors.As(err, &ee) || ee.Format != "xml" {
		t.Errorf("New(xml) error = %v, want ExportError", err)
	}
}
