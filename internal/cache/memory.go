package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/segment-rules/internal/domain"
)

type memEntry struct {
	list    []domain.Segment
	seg     *domain.Segment
	expires time.Time
}

// Memory is a process-local cache with the same keys, TTL and generation
// semantics as Redis. Stored values are deep-copied in and out, so callers
// never share rule groups with the cache.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memEntry
	gens    map[int64]uint64
}

// NewMemory creates an empty cache. A non-positive ttl uses DefaultTTL.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memEntry),
		gens:    make(map[int64]uint64),
	}
}

func cloneSegment(s domain.Segment) domain.Segment {
	if s.Rules != nil {
		g := *s.Rules
		g.Rules = append([]domain.Rule(nil), s.Rules.Rules...)
		s.Rules = &g
	}
	return s
}

func cloneSegments(in []domain.Segment) []domain.Segment {
	if in == nil {
		return nil
	}
	out := make([]domain.Segment, len(in))
	for i := range in {
		out[i] = cloneSegment(in[i])
	}
	return out
}

func (m *Memory) lookup(key string) (memEntry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if m.now().After(e.expires) {
		delete(m.entries, key)
		return memEntry{}, false
	}
	return e, true
}

func (m *Memory) Generation(_ context.Context, tenantID int64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gens[tenantID], nil
}

func (m *Memory) GetList(_ context.Context, tenantID int64) ([]domain.Segment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(listKey(tenantID))
	if !ok {
		return nil, false, nil
	}
	return cloneSegments(e.list), true, nil
}

func (m *Memory) SetList(_ context.Context, tenantID int64, gen uint64, segments []domain.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[tenantID] != gen {
		return nil
	}
	m.entries[listKey(tenantID)] = memEntry{
		list:    cloneSegments(segments),
		expires: m.now().Add(m.ttl),
	}
	return nil
}

func (m *Memory) GetSegment(_ context.Context, tenantID, id int64) (*domain.Segment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(segmentKey(tenantID, id))
	if !ok {
		return nil, false, nil
	}
	cp := cloneSegment(*e.seg)
	return &cp, true, nil
}

func (m *Memory) SetSegment(_ context.Context, tenantID int64, gen uint64, seg *domain.Segment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gens[tenantID] != gen {
		return nil
	}
	cp := cloneSegment(*seg)
	m.entries[segmentKey(tenantID, seg.ID)] = memEntry{seg: &cp, expires: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Invalidate(_ context.Context, tenantID int64, ids ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gens[tenantID]++
	delete(m.entries, listKey(tenantID))
	for _, id := range ids {
		delete(m.entries, segmentKey(tenantID, id))
	}
	return nil
}
