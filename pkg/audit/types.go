package audit

import (
	"context"
	"io"
	"time"
)

// Record is the audit record of one evaluation.
type Record struct {
	// ID is a UUID v4, empty for records produced by Render.
	ID string `json:"id"`

	// Identifier is the artifact that was evaluated.
	Identifier string `json:"identifier"`

	// Verdict is the evaluation verdict.
	Verdict string `json:"verdict"`

	// PolicyVersion identifies the document set evaluated against.
	PolicyVersion string `json:"policy_version"`

	// RecordedAt is when the record was stamped.
	RecordedAt time.Time `json:"recorded_at"`

	// Violations is the number of violations in the decision.
	Violations int `json:"violations"`

	// Entries lists the trail entries in trail order, then one entry per
	// violation.
	Entries []Entry `json:"entries"`
}

// Entry is one row of an audit record.
type Entry struct {
	RuleID     string `json:"rule_id"`
	Domain     string `json:"domain"`
	ClauseKind string `json:"clause_kind"`
	Outcome    string `json:"outcome"`
	Severity   string `json:"severity,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// Query defines filter parameters for querying audit records.
type Query struct {
	// Time range, inclusive.
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Filters
	Identifier    string `json:"identifier,omitempty"`
	Verdict       string `json:"verdict,omitempty"`
	PolicyVersion string `json:"policy_version,omitempty"`
	RuleID        string `json:"rule_id,omitempty"`

	// Pagination. A zero Limit returns DefaultQueryLimit records.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	// SortOrder is "asc" or "desc" by recorded time. Default: desc.
	SortOrder string `json:"sort_order,omitempty"`
}

// DefaultQueryLimit bounds queries that set no limit.
const DefaultQueryLimit = 100

// Validate checks the query for unusable values.
func (q *Query) Validate() error {
	if q.StartTime != nil && q.EndTime != nil && q.EndTime.Before(*q.StartTime) {
		return NewQueryError(q, errEndBeforeStart)
	}
	if q.Limit < 0 || q.Offset < 0 {
		return NewQueryError(q, errNegativePagination)
	}
	switch q.SortOrder {
	case "", "asc", "desc":
	default:
		return NewQueryError(q, errBadSortOrder)
	}
	return nil
}

// Storage defines the interface for audit storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Store persists a record. The record must have an ID.
	Store(ctx context.Context, record *Record) error

	// Query retrieves records matching the filters. It returns an empty
	// slice when nothing matches.
	Query(ctx context.Context, query *Query) ([]*Record, error)

	// Count returns the number of records matching the filters. Limit and
	// Offset are ignored.
	Count(ctx context.Context, query *Query) (int64, error)

	// Delete removes records matching the filters and returns how many
	// were removed. Limit and Offset are ignored.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases any resources held by the backend.
	Close() error
}

// Exporter writes records to a writer in one format.
type Exporter interface {
	Export(ctx context.Context, records []*Record, w io.Writer) error
}
