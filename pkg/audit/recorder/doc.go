// Package recorder hands audit records to storage without blocking the
// evaluation path.
//
// Record enqueues onto a buffered channel drained by one background worker.
// When the buffer is full the record is dropped and counted rather than
// stalling the caller; Dropped reports the running total. Close stops
// accepting records, drains what is queued and waits for the writes.
package recorder
