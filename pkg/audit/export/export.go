package export

import (
	"fmt"

	"mercator-hq/rampart/pkg/audit"
)

// Supported export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// New returns the exporter for format.
func New(format string, pretty bool) (audit.Exporter, error) {
	switch format {
	case FormatJSON, "":
		return NewJSONExporter(pretty), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, audit.NewExportError(format, 0, fmt.Errorf("unsupported format %q (supported: json, csv)", format))
	}
}
