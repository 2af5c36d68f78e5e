package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/rampart/pkg/audit"
)

// MemoryStorage implements audit.Storage using an in-memory map.
// It is intended for testing only.
type MemoryStorage struct {
	records map[string]*audit.Record
	closed  bool
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*audit.Record),
	}
}

// Store persists a copy of record.
func (s *MemoryStorage) Store(ctx context.Context, record *audit.Record) error {
	if record.ID == "" {
		return audit.NewStorageError("memory", "store", audit.ErrMissingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return audit.NewStorageError("memory", "store", audit.ErrClosed)
	}
	s.records[record.ID] = copyRecord(record)
	return nil
}

// Query retrieves records matching the query filters.
func (s *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := s.matching(query)
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if !a.RecordedAt.Equal(b.RecordedAt) {
			if query.SortOrder == "asc" {
				return a.RecordedAt.Before(b.RecordedAt)
			}
			return a.RecordedAt.After(b.RecordedAt)
		}
		return a.ID < b.ID
	})

	start := query.Offset
	if start > len(results) {
		return []*audit.Record{}, nil
	}
	limit := query.Limit
	if limit == 0 {
		limit = audit.DefaultQueryLimit
	}
	end := start + limit
	if end > len(results) {
		end = len(results)
	}

	out := make([]*audit.Record, 0, end-start)
	for _, r := range results[start:end] {
		out = append(out, copyRecord(r))
	}
	return out, nil
}

// Count returns the number of records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.matching(query))), nil
}

// Delete removes records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	if err := query.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.matching(query)
	for _, r := range matched {
		delete(s.records, r.ID)
	}
	return int64(len(matched)), nil
}

// Close marks the storage closed.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// matching returns the stored records matching query. Callers hold s.mu.
func (s *MemoryStorage) matching(query *audit.Query) []*audit.Record {
	var out []*audit.Record
	for _, r := range s.records {
		if matchesQuery(r, query) {
			out = append(out, r)
		}
	}
	return out
}

func matchesQuery(r *audit.Record, q *audit.Query) bool {
	if q.StartTime != nil && r.RecordedAt.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.RecordedAt.After(*q.EndTime) {
		return false
	}
	if q.Identifier != "" && r.Identifier != q.Identifier {
		return false
	}
	if q.Verdict != "" && r.Verdict != q.Verdict {
		return false
	}
	if q.PolicyVersion != "" && r.PolicyVersion != q.PolicyVersion {
		return false
	}
	if q.RuleID != "" {
		found := false
		for _, e := range r.Entries {
			if e.RuleID == q.RuleID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func copyRecord(r *audit.Record) *audit.Record {
	out := *r
	out.Entries = append([]audit.Entry(nil), r.Entries...)
	return &out
}
