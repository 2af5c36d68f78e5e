// Package retention prunes stored audit records by age and count.
//
// Prune runs two phases. The age phase deletes records recorded before
// now minus RetentionDays. The count phase, when MaxRecords is set, deletes
// the oldest records until at most MaxRecords remain; records sharing the
// cutoff timestamp are deleted together. With ArchiveBeforeDelete set,
// records are exported as JSON to ArchivePath before they are deleted.
//
// Scheduler runs Prune on a standard five-field cron expression
// ("0 3 * * *" by default) using robfig/cron.
package retention
