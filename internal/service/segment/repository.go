package segment

import (
	"context"

	"github.com/ignite/segment-rules/internal/domain"
)

// Repository is the contract of the external segment store, already scoped
// to one tenant. Implementations must be safe for concurrent use.
type Repository interface {
	// List returns every segment of the tenant, newest first
	// (created_at DESC, id DESC).
	List(ctx context.Context) ([]domain.Segment, error)

	// Get returns a single segment. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id int64) (*domain.Segment, error)

	// Create persists a new segment and returns it with its assigned id and
	// match_count.
	Create(ctx context.Context, in domain.SegmentInput) (*domain.Segment, error)

	// Update replaces name, type and the whole rule group of a segment.
	Update(ctx context.Context, id int64, in domain.SegmentInput) (*domain.Segment, error)

	// Delete removes a segment. Returns ErrNotFound if it doesn't exist.
	Delete(ctx context.Context, id int64) error

	// Preview returns a sample of matching contacts and the total.
	Preview(ctx context.Context, id int64) (*domain.SegmentPreview, error)
}

// Cache holds tenant-scoped copies of segment reads. Entries are only ever
// invalidated after a mutation, never patched.
//
// Every Invalidate advances the tenant's generation. Readers take the
// generation before fetching from the repository and hand it to SetList or
// SetSegment, which store nothing if an Invalidate happened in between.
type Cache interface {
	Generation(ctx context.Context, tenantID int64) (uint64, error)
	GetList(ctx context.Context, tenantID int64) ([]domain.Segment, bool, error)
	SetList(ctx context.Context, tenantID int64, gen uint64, segments []domain.Segment) error
	GetSegment(ctx context.Context, tenantID, id int64) (*domain.Segment, bool, error)
	SetSegment(ctx context.Context, tenantID int64, gen uint64, seg *domain.Segment) error
	// Invalidate drops the tenant's list and the given segment entries and
	// advances the generation.
	Invalidate(ctx context.Context, tenantID int64, ids ...int64) error
}

type nopCache struct{}

func (nopCache) Generation(context.Context, int64) (uint64, error)              { return 0, nil }
func (nopCache) GetList(context.Context, int64) ([]domain.Segment, bool, error) { return nil, false, nil }
func (nopCache) SetList(context.Context, int64, uint64, []domain.Segment) error { return nil }
func (nopCache) GetSegment(context.Context, int64, int64) (*domain.Segment, bool, error) {
	return nil, false, nil
}
func (nopCache) SetSegment(context.Context, int64, uint64, *domain.Segment) error { return nil }
func (nopCache) Invalidate(context.Context, int64, ...int64) error                { return nil }
