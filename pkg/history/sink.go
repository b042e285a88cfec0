// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"sync"
)

// TimelineSink receives completed timeline records. Implementations must be
// safe for concurrent use; batch runs share one sink across matches.
type TimelineSink interface {
	Write(ctx context.Context, rec Record) error
}

// SinkFunc adapts a function to TimelineSink.
type SinkFunc func(ctx context.Context, rec Record) error

// Write implements TimelineSink.
func (f SinkFunc) Write(ctx context.Context, rec Record) error { return f(ctx, rec) }

// RecordFilter limits record queries.
type RecordFilter struct {
	MatchID string
	Kind    RecordKind
	Limit   int
}

func (f RecordFilter) match(rec Record) bool {
	if f.MatchID != "" && rec.MatchID != f.MatchID {
		return false
	}
	if f.Kind != "" && rec.Kind != f.Kind {
		return false
	}
	return true
}

// MemorySink keeps records in memory.
type MemorySink struct {
	mu      sync.Mutex
	records []Record
}

// NewMemorySink returns an in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends a record.
func (s *MemorySink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// List returns filtered records in write order.
func (s *MemorySink) List(_ context.Context, filter RecordFilter) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if !filter.match(rec) {
			continue
		}
		out = append(out, rec)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}
