package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"clinic-core/internal/domain"

	"github.com/google/uuid"
)

// MemoryAccessLogStore keeps access logs in process memory.
type MemoryAccessLogStore struct {
	mu      sync.RWMutex
	entries map[string][]domain.AccessLogEntry // tenant -> entries
	ids     map[string]struct{}
}

func NewMemoryAccessLogStore() *MemoryAccessLogStore {
	return &MemoryAccessLogStore{
		entries: map[string][]domain.AccessLogEntry{},
		ids:     map[string]struct{}{},
	}
}

var (
	_ AccessLogSink   = (*MemoryAccessLogStore)(nil)
	_ AccessLogReader = (*MemoryAccessLogStore)(nil)
)

func (s *MemoryAccessLogStore) WriteAccessLogs(_ context.Context, entries []domain.AccessLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, e := range entries {
		if e.TenantSlug == "" {
			errs = append(errs, &TenantWriteError{Entries: 1, Err: errNoTenant})
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if _, dup := s.ids[e.ID]; dup {
			continue
		}
		s.ids[e.ID] = struct{}{}
		e.UserAgent = domain.TruncateUserAgent(e.UserAgent)
		s.entries[e.TenantSlug] = append(s.entries[e.TenantSlug], e)
	}
	return errors.Join(errs...)
}

func (s *MemoryAccessLogStore) ListAccessLogs(_ context.Context, p *Partition, filter AccessLogFilter) ([]domain.AccessLogEntry, error) {
	slug, err := partitionTenant(p)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.AccessLogEntry
	for i := range s.entries[slug] {
		if filter.match(&s.entries[slug][i]) {
			out = append(out, s.entries[slug][i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

// Len returns the number of stored entries for tenant.
func (s *MemoryAccessLogStore) Len(tenant string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[tenant])
}
