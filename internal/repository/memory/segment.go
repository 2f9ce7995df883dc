// Package memory is an in-process segment store for the stub API and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/repository"
)

// SegmentStore keeps segments per tenant in memory. Safe for concurrent use.
type SegmentStore struct {
	mu       sync.RWMutex
	nextID   int64
	segments map[int64]*domain.Segment
	now      func() time.Time
}

// NewSegmentStore creates an empty store.
func NewSegmentStore() *SegmentStore {
	return &SegmentStore{segments: make(map[int64]*domain.Segment), now: time.Now}
}

func clone(s *domain.Segment) domain.Segment {
	cp := *s
	if s.Rules != nil {
		rules := domain.RuleGroup{Operator: s.Rules.Operator, Rules: append([]domain.Rule{}, s.Rules.Rules...)}
		cp.Rules = &rules
	}
	return cp
}

// List returns the tenant's segments ordered created_at DESC, id DESC.
func (s *SegmentStore) List(_ context.Context, tenantID int64) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Segment, 0)
	for _, seg := range s.segments {
		if seg.TenantID == tenantID {
			out = append(out, clone(seg))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *SegmentStore) Get(_ context.Context, tenantID, id int64) (*domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seg, ok := s.segments[id]
	if !ok || seg.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	cp := clone(seg)
	return &cp, nil
}

// nameTaken must be called with mu held.
func (s *SegmentStore) nameTaken(tenantID, exceptID int64, name string) bool {
	for _, seg := range s.segments {
		if seg.TenantID == tenantID && seg.ID != exceptID && strings.EqualFold(seg.Name, name) {
			return true
		}
	}
	return false
}

func (s *SegmentStore) Create(_ context.Context, tenantID int64, in domain.SegmentInput) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(tenantID, 0, in.Name) {
		return nil, repository.ErrDuplicateName
	}
	s.nextID++
	now := s.now().UTC()
	rules := in.Rules
	seg := &domain.Segment{
		ID:        s.nextID,
		TenantID:  tenantID,
		Name:      in.Name,
		Type:      in.Type,
		Rules:     &rules,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.segments[seg.ID] = seg
	cp := clone(seg)
	return &cp, nil
}

func (s *SegmentStore) Update(_ context.Context, tenantID, id int64, p domain.SegmentPatch) (*domain.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok || seg.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	if p.Name != nil {
		if s.nameTaken(tenantID, id, *p.Name) {
			return nil, repository.ErrDuplicateName
		}
		seg.Name = *p.Name
	}
	if p.Type != nil {
		seg.Type = *p.Type
	}
	if p.Rules != nil {
		rules := domain.RuleGroup{Operator: p.Rules.Operator, Rules: append([]domain.Rule{}, p.Rules.Rules...)}
		seg.Rules = &rules
	}
	seg.UpdatedAt = s.now().UTC()
	cp := clone(seg)
	return &cp, nil
}

func (s *SegmentStore) Delete(_ context.Context, tenantID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.segments[id]
	if !ok || seg.TenantID != tenantID {
		return repository.ErrNotFound
	}
	delete(s.segments, id)
	return nil
}

// Ping always succeeds; it lets the store stand in for a database in
// readiness checks.
func (s *SegmentStore) Ping(context.Context) error { return nil }
