// Package export writes stored audit records as JSON or CSV.
//
// JSON output is always an array of records, indented when Pretty is set.
// CSV output has one row per audit entry with the record columns repeated;
// a record without entries yields a single row with empty entry columns.
package export
