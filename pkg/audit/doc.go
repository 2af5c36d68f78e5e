// Package audit turns evaluation decisions into structured audit records and
// defines how those records are stored and exported.
//
// # Records
//
// Render packages a decision into a Record: an ordered list of
// (rule id, domain, clause kind, outcome) entries mirroring the decision's
// audit trail, followed by one entry per violation. Rendering never fails.
//
//	record := audit.Render(decision)
//
// RenderWith additionally stamps the record with an id, a timestamp and
// the document-set version, ready for storage:
//
//	record := audit.RenderWith(decision, audit.Meta{PolicyVersion: g.Version()})
//
// # Persistence
//
// Storage backends implement Storage. The storage subpackage provides a
// SQLite backend (modernc.org/sqlite, WAL mode) and an in-memory backend.
// The recorder subpackage hands records to storage asynchronously, export
// writes them as JSON or CSV, and retention prunes old records on a cron
// schedule.
package audit
