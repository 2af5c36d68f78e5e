package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"mercator-hq/rampart/pkg/audit"
)

// CSVExporter exports audit records as CSV, one row per entry.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header is the CSV column order.
var Header = []string{
	"record_id", "identifier", "verdict", "policy_version", "recorded_at", "violations",
	"position", "rule_id", "domain", "clause_kind", "outcome", "severity", "reason",
}

// Export writes records to w.
func (e *CSVExporter) Export(ctx context.Context, records []*audit.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return audit.NewExportError(FormatCSV, len(records), err)
		}
	}

	for i, record := range records {
		if i%100 == 0 {
			if err := ctx.Err(); err != nil {
				return audit.NewExportError(FormatCSV, len(records), err)
			}
		}
		for _, row := range recordRows(record) {
			if err := writer.Write(row); err != nil {
				return audit.NewExportError(FormatCSV, len(records), err)
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return audit.NewExportError(FormatCSV, len(records), err)
	}
	return nil
}

func recordRows(r *audit.Record) [][]string {
	base := []string{
		r.ID,
		r.Identifier,
		r.Verdict,
		r.PolicyVersion,
		formatTime(r.RecordedAt),
		strconv.Itoa(r.Violations),
	}

	if len(r.Entries) == 0 {
		return [][]string{append(base, "", "", "", "", "", "", "")}
	}

	rows := make([][]string, 0, len(r.Entries))
	for i, e := range r.Entries {
		row := make([]string, 0, len(Header))
		row = append(row, base...)
		row = append(row, strconv.Itoa(i), e.RuleID, e.Domain, e.ClauseKind, e.Outcome, e.Severity, e.Reason)
		rows = append(rows, row)
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
