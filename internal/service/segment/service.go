package segment

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/pkg/logger"
	"github.com/ignite/segment-rules/internal/segmentation"
)

// Draft is what a user submits from the segment form. Rules may still hold
// blank rows and a non-"and" combinator; both are normalized away.
type Draft struct {
	Name  string
	Type  domain.SegmentType
	Rules domain.RuleGroup
}

// Service implements the segment mutation boundary for one tenant.
// All public methods are safe for concurrent use if the underlying
// repository and cache are concurrency-safe.
type Service struct {
	repo     Repository
	cache    Cache
	notifier Notifier
	tenantID int64
}

// Option configures a Service.
type Option func(*Service)

// WithCache sets the read cache. Without it every read hits the repository.
func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithNotifier sets where mutation outcomes are reported. Defaults to
// LogNotifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// NewService creates a segment service backed by the given repository.
func NewService(repo Repository, tenantID int64, opts ...Option) *Service {
	s := &Service{repo: repo, cache: nopCache{}, notifier: LogNotifier{}, tenantID: tenantID}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prepare returns the exact payload Create and Update would send for d, or a
// *ValidationError.
func Prepare(d Draft) (domain.SegmentInput, error) {
	in := segmentation.NormalizeInput(domain.SegmentInput{Name: d.Name, Type: d.Type, Rules: d.Rules})
	if problems := segmentation.ValidateInput(in); len(problems) > 0 {
		return in, &ValidationError{Fields: problems}
	}
	return in, nil
}

// List returns all segments of the tenant in repository order.
func (s *Service) List(ctx context.Context) ([]domain.Segment, error) {
	gen, genErr := s.cache.Generation(ctx, s.tenantID)
	if genErr != nil {
		logger.Warn("[segment.Service] cache generation read failed", "tenant_id", s.tenantID, "error", genErr)
	} else if cached, ok, err := s.cache.GetList(ctx, s.tenantID); err != nil {
		logger.Warn("[segment.Service] list cache read failed", "tenant_id", s.tenantID, "error", err)
	} else if ok {
		return cached, nil
	}

	segments, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return segments, nil
	}
	if err := s.cache.SetList(ctx, s.tenantID, gen, segments); err != nil {
		logger.Warn("[segment.Service] list cache write failed", "tenant_id", s.tenantID, "error", err)
	}
	return segments, nil
}

// Get returns a single segment.
func (s *Service) Get(ctx context.Context, id int64) (*domain.Segment, error) {
	gen, genErr := s.cache.Generation(ctx, s.tenantID)
	if genErr != nil {
		logger.Warn("[segment.Service] cache generation read failed", "tenant_id", s.tenantID, "error", genErr)
	} else if cached, ok, err := s.cache.GetSegment(ctx, s.tenantID, id); err != nil {
		logger.Warn("[segment.Service] segment cache read failed", "segment_id", id, "error", err)
	} else if ok {
		return cached, nil
	}

	seg, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		return seg, nil
	}
	if err := s.cache.SetSegment(ctx, s.tenantID, gen, seg); err != nil {
		logger.Warn("[segment.Service] segment cache write failed", "segment_id", id, "error", err)
	}
	return seg, nil
}

// Preview returns sample contacts matched by a segment. Previews are never
// cached; the match set moves with the contact base.
func (s *Service) Preview(ctx context.Context, id int64) (*domain.SegmentPreview, error) {
	return s.repo.Preview(ctx, id)
}

// Create normalizes, validates and persists a new segment.
func (s *Service) Create(ctx context.Context, d Draft) (*domain.Segment, error) {
	in, err := Prepare(d)
	if err != nil {
		s.fail(msgCreateFailed, err)
		return nil, err
	}

	seg, err := s.repo.Create(ctx, in)
	if err != nil {
		s.fail(msgCreateFailed, err)
		return nil, err
	}

	s.invalidate(ctx, seg.ID)
	s.notifier.Notify(Notice{Kind: NoticeSuccess, Message: msgCreated})
	logger.Info("[segment.Service] segment created", "segment_id", seg.ID, "rules", len(in.Rules.Rules))
	return seg, nil
}

// Update replaces a segment's name, type and whole rule group.
func (s *Service) Update(ctx context.Context, id int64, d Draft) (*domain.Segment, error) {
	in, err := Prepare(d)
	if err != nil {
		s.fail(msgUpdateFailed, err)
		return nil, err
	}

	seg, err := s.repo.Update(ctx, id, in)
	if err != nil {
		s.fail(msgUpdateFailed, err)
		return nil, err
	}

	s.invalidate(ctx, id)
	s.notifier.Notify(Notice{Kind: NoticeSuccess, Message: msgUpdated})
	logger.Info("[segment.Service] segment updated", "segment_id", id, "rules", len(in.Rules.Rules))
	return seg, nil
}

// Delete removes a segment. Deleting a segment that is already gone is not
// an error.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		logger.Debug("[segment.Service] delete of missing segment", "segment_id", id)
		err = nil
	}
	if err != nil {
		err = fmt.Errorf("delete segment %d: %w", id, err)
		s.fail(msgDeleteFailed, err)
		return err
	}

	s.invalidate(ctx, id)
	s.notifier.Notify(Notice{Kind: NoticeSuccess, Message: msgDeleted})
	return nil
}

func (s *Service) fail(msg string, err error) {
	s.notifier.Notify(Notice{Kind: NoticeFailure, Message: msg, Err: err})
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if err := s.cache.Invalidate(ctx, s.tenantID, id); err != nil {
		logger.Error("[segment.Service] cache invalidation failed", "tenant_id", s.tenantID, "segment_id", id, "error", err)
	}
}
