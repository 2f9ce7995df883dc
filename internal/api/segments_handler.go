package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/pkg/httputil"
	"github.com/ignite/segment-rules/internal/pkg/logger"
	"github.com/ignite/segment-rules/internal/repository"
	"github.com/ignite/segment-rules/internal/segmentation"
)

// SegmentStore is the persistence behind the stub repository. Both
// memory.SegmentStore and postgres.SegmentRepo satisfy it.
type SegmentStore interface {
	List(ctx context.Context, tenantID int64) ([]domain.Segment, error)
	Get(ctx context.Context, tenantID, id int64) (*domain.Segment, error)
	Create(ctx context.Context, tenantID int64, in domain.SegmentInput) (*domain.Segment, error)
	Update(ctx context.Context, tenantID, id int64, p domain.SegmentPatch) (*domain.Segment, error)
	Delete(ctx context.Context, tenantID, id int64) error
	Ping(ctx context.Context) error
}

const msgDuplicateName = "a segment with this name already exists"

// SegmentsHandler serves /api/email/segments.
type SegmentsHandler struct {
	store SegmentStore
}

// NewSegmentsHandler creates the handler.
func NewSegmentsHandler(store SegmentStore) *SegmentsHandler {
	return &SegmentsHandler{store: store}
}

// RegisterRoutes mounts the segment routes on r.
func (h *SegmentsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
		r.Get("/preview", h.HandlePreview)
	})
}

func segmentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httputil.BadRequest(w, "invalid segment id")
		return 0, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		httputil.NotFound(w, "segment not found")
	case errors.Is(err, repository.ErrDuplicateName):
		httputil.Conflict(w, "name", msgDuplicateName)
	default:
		httputil.InternalError(w, err)
	}
}

// HandleList returns every segment of the tenant, newest first.
//
//	GET /api/email/segments
func (h *SegmentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFromContext(r.Context())
	segs, err := h.store.List(r.Context(), tenantID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.OK(w, segs)
}

// HandleGet returns a single segment.
//
//	GET /api/email/segments/{id}
func (h *SegmentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	tenantID, _ := TenantFromContext(r.Context())
	seg, err := h.store.Get(r.Context(), tenantID, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.OK(w, seg)
}

// HandleCreate stores a new segment. Rules are validated as sent; blank rows
// are rejected rather than dropped.
//
//	POST /api/email/segments
func (h *SegmentsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in domain.SegmentInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Type == "" {
		in.Type = domain.SegmentDynamic
	}
	if problems := segmentation.ValidateInput(in); len(problems) > 0 {
		httputil.ValidationFailed(w, problems)
		return
	}

	tenantID, _ := TenantFromContext(r.Context())
	seg, err := h.store.Create(r.Context(), tenantID, in)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logger.Info("[segments] created", "tenant_id", tenantID, "segment_id", seg.ID, "rules", len(in.Rules.Rules))
	httputil.Created(w, seg)
}

// HandleUpdate applies the provided fields. A rule group, when present,
// replaces the stored one wholesale.
//
//	PUT /api/email/segments/{id}
func (h *SegmentsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	var p domain.SegmentPatch
	if !httputil.Decode(w, r, &p) {
		return
	}

	problems := segmentation.Problems{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			problems.Add("name", "name is required")
		}
		p.Name = &name
	}
	if p.Type != nil && !p.Type.Valid() {
		problems.Add("type", "type must be \"dynamic\" or \"static\"")
	}
	if p.Rules != nil {
		for field, reason := range segmentation.ValidateRuleGroup(*p.Rules) {
			problems.Add(field, reason)
		}
	}
	if len(problems) > 0 {
		httputil.ValidationFailed(w, problems)
		return
	}

	tenantID, _ := TenantFromContext(r.Context())
	seg, err := h.store.Update(r.Context(), tenantID, id, p)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	logger.Info("[segments] updated", "tenant_id", tenantID, "segment_id", id)
	httputil.OK(w, seg)
}

// HandleDelete removes a segment.
//
//	DELETE /api/email/segments/{id}
func (h *SegmentsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	tenantID, _ := TenantFromContext(r.Context())
	if err := h.store.Delete(r.Context(), tenantID, id); err != nil {
		writeStoreError(w, err)
		return
	}
	logger.Info("[segments] deleted", "tenant_id", tenantID, "segment_id", id)
	httputil.NoContent(w)
}

// HandlePreview reports the stored match count. The stub holds no contacts,
// so the sample is always empty.
//
//	GET /api/email/segments/{id}/preview
func (h *SegmentsHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	tenantID, _ := TenantFromContext(r.Context())
	seg, err := h.store.Get(r.Context(), tenantID, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.OKWithTotal(w, []domain.Contact{}, seg.MatchCount)
}
