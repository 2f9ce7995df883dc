package segment

import (
	"context"
	"sync"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/segmentation"
)

// EditorState is the phase of an edit session.
type EditorState string

const (
	StateClosed     EditorState = "closed"
	StateCreating   EditorState = "creating"
	StateEditing    EditorState = "editing"
	StateSubmitting EditorState = "submitting"
)

// Mutator is the part of Service the Editor submits through.
type Mutator interface {
	Create(ctx context.Context, d Draft) (*domain.Segment, error)
	Update(ctx context.Context, id int64, d Draft) (*domain.Segment, error)
}

// Form is a point-in-time copy of the editor.
type Form struct {
	State     EditorState
	SegmentID int64 // zero unless editing
	Name      string
	Type      domain.SegmentType
	Rules     domain.RuleGroup
	Pending   bool
}

// Editor holds one create/edit session. It is safe for concurrent use and
// never holds its lock across a repository call.
type Editor struct {
	mu sync.Mutex

	svc     Mutator
	state   EditorState
	resume  EditorState // state to return to when a submit fails
	id      int64
	name    string
	typ     domain.SegmentType
	rules   domain.RuleGroup
	pending bool
	gen     uint64 // bumped on every open/close; stale submits compare against it
}

// NewEditor returns a closed editor submitting through svc.
func NewEditor(svc Mutator) *Editor {
	return &Editor{svc: svc, state: StateClosed}
}

// OpenCreate starts a blank create session.
func (e *Editor) OpenCreate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending {
		return ErrSubmitPending
	}
	e.reset()
	e.state = StateCreating
	e.typ = domain.SegmentDynamic
	e.rules = segmentation.DefaultRuleGroup()
	return nil
}

// OpenEdit starts an edit session seeded from seg. A nil seg returns
// ErrNoSegment and leaves the editor as it was.
func (e *Editor) OpenEdit(seg *domain.Segment) error {
	if seg == nil {
		return ErrNoSegment
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending {
		return ErrSubmitPending
	}
	e.reset()
	e.state = StateEditing
	e.id = seg.ID
	e.name = seg.Name
	e.typ = seg.Type
	e.rules = domain.RuleGroup{Operator: domain.CombinatorAnd, Rules: segmentation.RulesForEdit(seg)}
	return nil
}

// Close discards the session. A submit still in flight completes against
// the repository but no longer affects the editor.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Editor) reset() {
	e.gen++
	e.state = StateClosed
	e.resume = ""
	e.id = 0
	e.name = ""
	e.typ = ""
	e.rules = domain.RuleGroup{}
	e.pending = false
}

// editable must be called with mu held.
func (e *Editor) editable() error {
	switch e.state {
	case StateClosed:
		return ErrEditorClosed
	case StateSubmitting:
		return ErrSubmitPending
	}
	return nil
}

func (e *Editor) ruleAt(i int) error {
	if err := e.editable(); err != nil {
		return err
	}
	if i < 0 || i >= len(e.rules.Rules) {
		return ErrRuleIndex
	}
	return nil
}

// SetName sets the segment name as typed; trimming happens on submit.
func (e *Editor) SetName(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editable(); err != nil {
		return err
	}
	e.name = name
	return nil
}

// SetType sets the segment type.
func (e *Editor) SetType(t domain.SegmentType) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editable(); err != nil {
		return err
	}
	e.typ = t
	return nil
}

// SetRuleField moves rule i to field, resetting its operator when needed and
// clearing its value.
func (e *Editor) SetRuleField(i int, field domain.FieldKey) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ruleAt(i); err != nil {
		return err
	}
	e.rules.Rules[i] = segmentation.UpdateRuleField(e.rules.Rules[i], field)
	return nil
}

// SetRuleOperator changes the operator of rule i. Only operators allowed for
// the rule's field are accepted.
func (e *Editor) SetRuleOperator(i int, op domain.Operator) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ruleAt(i); err != nil {
		return err
	}
	if !segmentation.OperatorAllowed(e.rules.Rules[i].Field, op) {
		return ErrOperatorNotAllowed
	}
	e.rules.Rules[i].Operator = op
	return nil
}

// SetRuleValue sets the raw value of rule i.
func (e *Editor) SetRuleValue(i int, value string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ruleAt(i); err != nil {
		return err
	}
	e.rules.Rules[i].Value = value
	return nil
}

// AddRule appends an empty rule.
func (e *Editor) AddRule() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.editable(); err != nil {
		return err
	}
	e.rules = segmentation.AddRule(e.rules)
	return nil
}

// RemoveRule deletes rule i. The last remaining rule is never removed.
func (e *Editor) RemoveRule(i int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ruleAt(i); err != nil {
		return err
	}
	e.rules = segmentation.RemoveRule(e.rules, i)
	return nil
}

// Pending reports whether a submit is outstanding.
func (e *Editor) Pending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pending
}

// Snapshot returns a copy of the current form.
func (e *Editor) Snapshot() Form {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

func (e *Editor) snapshot() Form {
	rules := domain.RuleGroup{Operator: e.rules.Operator}
	if e.rules.Rules != nil {
		rules.Rules = append([]domain.Rule(nil), e.rules.Rules...)
	}
	return Form{
		State:     e.state,
		SegmentID: e.id,
		Name:      e.name,
		Type:      e.typ,
		Rules:     rules,
		Pending:   e.pending,
	}
}

// Submit sends the form through the service. On success the editor closes;
// on failure it returns to the form with every value intact.
func (e *Editor) Submit(ctx context.Context) (*domain.Segment, error) {
	e.mu.Lock()
	if e.pending {
		e.mu.Unlock()
		return nil, ErrSubmitPending
	}
	if e.state == StateClosed {
		e.mu.Unlock()
		return nil, ErrEditorClosed
	}
	form := e.snapshot()
	gen := e.gen
	e.resume = e.state
	e.state = StateSubmitting
	e.pending = true
	e.mu.Unlock()

	draft := Draft{Name: form.Name, Type: form.Type, Rules: form.Rules}
	var (
		seg *domain.Segment
		err error
	)
	if form.State == StateEditing {
		seg, err = e.svc.Update(ctx, form.SegmentID, draft)
	} else {
		seg, err = e.svc.Create(ctx, draft)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen {
		return seg, err
	}
	e.pending = false
	if err != nil {
		e.state = e.resume
		return nil, err
	}
	e.reset()
	return seg, nil
}
