// Package storage provides audit record storage backends.
//
// SQLiteStorage persists records with the pure-Go modernc.org/sqlite driver
// in WAL mode. Each record is one row in audit_records; its entries are rows
// in audit_entries keyed by record id and position, so rule id filters use
// an index instead of scanning serialized entries.
//
// MemoryStorage keeps records in a map and is intended for tests.
//
// Both backends apply the same query semantics: inclusive time range,
// exact-match filters, recorded-time ordering (newest first by default) and
// audit.DefaultQueryLimit when no limit is set.
package storage
