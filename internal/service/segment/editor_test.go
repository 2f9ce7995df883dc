package segment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/segmentation"
	"github.com/ignite/segment-rules/internal/service/segment"
)

// gatedMutator blocks every call until release receives a result.
type gatedMutator struct {
	started chan segment.Draft
	release chan error
}

func newGatedMutator() *gatedMutator {
	return &gatedMutator{started: make(chan segment.Draft, 1), release: make(chan error, 1)}
}

func (g *gatedMutator) Create(_ context.Context, d segment.Draft) (*domain.Segment, error) {
	g.started <- d
	if err := <-g.release; err != nil {
		return nil, err
	}
	return &domain.Segment{ID: 1, Name: d.Name}, nil
}

func (g *gatedMutator) Update(_ context.Context, id int64, d segment.Draft) (*domain.Segment, error) {
	g.started <- d
	if err := <-g.release; err != nil {
		return nil, err
	}
	return &domain.Segment{ID: id, Name: d.Name}, nil
}

func TestEditorCreateFlow(t *testing.T) {
	svc, _, _, _ := newTestService()
	ed := segment.NewEditor(svc)
	ctx := context.Background()

	assert.Equal(t, segment.StateClosed, ed.Snapshot().State)
	require.NoError(t, ed.OpenCreate())

	f := ed.Snapshot()
	assert.Equal(t, segment.StateCreating, f.State)
	assert.Equal(t, domain.SegmentDynamic, f.Type)
	assert.Equal(t, segmentation.DefaultRuleGroup(), f.Rules)

	require.NoError(t, ed.SetName("Gmail users"))
	require.NoError(t, ed.SetRuleValue(0, "gmail.com"))
	require.NoError(t, ed.AddRule())
	require.NoError(t, ed.SetRuleField(1, domain.FieldCountry))
	require.NoError(t, ed.SetRuleValue(1, "  "))

	seg, err := ed.Submit(ctx)
	require.NoError(t, err)
	require.NotNil(t, seg.Rules)
	assert.Len(t, seg.Rules.Rules, 1, "blank rule is dropped on submit")
	assert.Equal(t, segment.StateClosed, ed.Snapshot().State)
}

func TestEditorOpenEdit(t *testing.T) {
	ed := segment.NewEditor(newGatedMutator())

	seg := &domain.Segment{ID: 9, Name: "VIP", Type: domain.SegmentStatic, Rules: &domain.RuleGroup{
		Operator: domain.CombinatorAnd,
		Rules:    []domain.Rule{{Field: domain.FieldTag, Operator: domain.OpHasTag, Value: "vip"}},
	}}
	require.NoError(t, ed.OpenEdit(seg))

	f := ed.Snapshot()
	assert.Equal(t, segment.StateEditing, f.State)
	assert.Equal(t, int64(9), f.SegmentID)
	assert.Equal(t, seg.Rules.Rules, f.Rules.Rules)

	require.NoError(t, ed.SetRuleValue(0, "gold"))
	assert.Equal(t, "vip", seg.Rules.Rules[0].Value, "editing must not alias the source segment")

	require.NoError(t, ed.OpenEdit(&domain.Segment{ID: 10, Name: "No rules"}))
	assert.Equal(t, []domain.Rule{segmentation.EmptyRule()}, ed.Snapshot().Rules.Rules)
}

func TestEditorOpenEditNil(t *testing.T) {
	ed := segment.NewEditor(newGatedMutator())
	assert.ErrorIs(t, ed.OpenEdit(nil), segment.ErrNoSegment)
	assert.Equal(t, segment.StateClosed, ed.Snapshot().State)

	require.NoError(t, ed.OpenCreate())
	assert.ErrorIs(t, ed.OpenEdit(nil), segment.ErrNoSegment)
	assert.Equal(t, segment.StateCreating, ed.Snapshot().State, "open session is kept")
}

func TestEditorRuleEditing(t *testing.T) {
	ed := segment.NewEditor(newGatedMutator())
	require.NoError(t, ed.OpenCreate())

	assert.ErrorIs(t, ed.SetRuleOperator(0, domain.OpHasTag), segment.ErrOperatorNotAllowed)
	require.NoError(t, ed.SetRuleOperator(0, domain.OpEndsWith))
	require.NoError(t, ed.SetRuleValue(0, "@corp.io"))

	require.NoError(t, ed.SetRuleField(0, domain.FieldTag))
	r := ed.Snapshot().Rules.Rules[0]
	assert.Equal(t, domain.Rule{Field: domain.FieldTag, Operator: domain.OpHasTag}, r)

	assert.ErrorIs(t, ed.SetRuleValue(5, "x"), segment.ErrRuleIndex)
	assert.ErrorIs(t, ed.RemoveRule(-1), segment.ErrRuleIndex)

	require.NoError(t, ed.RemoveRule(0))
	assert.Len(t, ed.Snapshot().Rules.Rules, 1, "the last rule stays")
}

func TestEditorClosedRejectsEdits(t *testing.T) {
	ed := segment.NewEditor(newGatedMutator())
	assert.ErrorIs(t, ed.SetName("x"), segment.ErrEditorClosed)
	assert.ErrorIs(t, ed.AddRule(), segment.ErrEditorClosed)
	_, err := ed.Submit(context.Background())
	assert.ErrorIs(t, err, segment.ErrEditorClosed)
}

func TestEditorSubmitPending(t *testing.T) {
	g := newGatedMutator()
	ed := segment.NewEditor(g)
	require.NoError(t, ed.OpenCreate())
	require.NoError(t, ed.SetName("Pending"))
	require.NoError(t, ed.SetRuleValue(0, "a"))

	done := make(chan error, 1)
	go func() {
		_, err := ed.Submit(context.Background())
		done <- err
	}()
	<-g.started

	assert.True(t, ed.Pending())
	assert.Equal(t, segment.StateSubmitting, ed.Snapshot().State)
	_, err := ed.Submit(context.Background())
	assert.ErrorIs(t, err, segment.ErrSubmitPending)
	assert.ErrorIs(t, ed.SetName("changed"), segment.ErrSubmitPending)

	g.release <- nil
	require.NoError(t, <-done)
	assert.False(t, ed.Pending())
	assert.Equal(t, segment.StateClosed, ed.Snapshot().State)
}

func TestEditorFailureKeepsForm(t *testing.T) {
	g := newGatedMutator()
	ed := segment.NewEditor(g)
	require.NoError(t, ed.OpenEdit(&domain.Segment{ID: 4, Name: "Keep me", Type: domain.SegmentDynamic}))
	require.NoError(t, ed.SetRuleValue(0, "kept.io"))
	before := ed.Snapshot()

	g.release <- &segment.ValidationError{StatusCode: 409, Fields: map[string]string{"name": "already exists"}}
	_, err := ed.Submit(context.Background())
	<-g.started

	assert.True(t, segment.IsValidation(err))
	after := ed.Snapshot()
	assert.Equal(t, segment.StateEditing, after.State)
	assert.Equal(t, before, after)

	// Retry succeeds with the same form.
	g.release <- nil
	seg, err := ed.Submit(context.Background())
	<-g.started
	require.NoError(t, err)
	assert.Equal(t, int64(4), seg.ID)
}

func TestEditorCloseDuringSubmit(t *testing.T) {
	g := newGatedMutator()
	ed := segment.NewEditor(g)
	require.NoError(t, ed.OpenCreate())
	require.NoError(t, ed.SetName("Late"))
	require.NoError(t, ed.SetRuleValue(0, "x"))

	done := make(chan error, 1)
	go func() {
		_, err := ed.Submit(context.Background())
		done <- err
	}()
	<-g.started

	ed.Close()
	assert.Equal(t, segment.StateClosed, ed.Snapshot().State)
	require.NoError(t, ed.OpenCreate())
	require.NoError(t, ed.SetName("Fresh"))

	g.release <- errors.New("boom")
	select {
	case err := <-done:
		assert.EqualError(t, err, "boom")
	case <-time.After(time.Second):
		t.Fatal("submit did not return")
	}

	f := ed.Snapshot()
	assert.Equal(t, segment.StateCreating, f.State, "stale completion must not touch the new session")
	assert.Equal(t, "Fresh", f.Name)
	assert.False(t, f.Pending)
}
