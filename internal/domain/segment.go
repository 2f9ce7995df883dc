package domain

import "time"

// FieldKey identifies a filterable contact attribute.
type FieldKey string

const (
	FieldEmail            FieldKey = "email"
	FieldFirstName        FieldKey = "first_name"
	FieldLastName         FieldKey = "last_name"
	FieldSource           FieldKey = "source"
	FieldCountry          FieldKey = "country"
	FieldTag              FieldKey = "tag"
	FieldSubscribedToList FieldKey = "subscribed_to_list"
	FieldCreatedAfter     FieldKey = "created_after"
	FieldCreatedBefore    FieldKey = "created_before"
)

// Operator is a comparison applied by a rule. Which operators are legal
// depends on the rule's field.
type Operator string

const (
	OpContains Operator = "contains"
	OpEquals   Operator = "equals"
	OpEndsWith Operator = "ends_with"
	OpHasTag   Operator = "has_tag"
	OpHasNoTag Operator = "has_no_tag"
)

// ValueKind tells the editor how a rule value should be entered and parsed.
type ValueKind string

const (
	ValueText ValueKind = "text"
	ValueDate ValueKind = "date"
)

// Combinator joins the rules of a group.
type Combinator string

const (
	CombinatorAnd Combinator = "and"
	CombinatorOr  Combinator = "or"
)

// SegmentType distinguishes live segments from frozen snapshots.
type SegmentType string

const (
	SegmentDynamic SegmentType = "dynamic"
	SegmentStatic  SegmentType = "static"
)

// Valid reports whether t is a known segment type.
func (t SegmentType) Valid() bool {
	return t == SegmentDynamic || t == SegmentStatic
}

// DateLayout is the wire format of date-field rule values.
const DateLayout = time.DateOnly

// Rule is a single field/operator/value predicate.
type Rule struct {
	Field    FieldKey `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value"`
}

// RuleGroup is an ordered set of rules joined by one combinator. It is both
// the wire format and the in-memory representation.
type RuleGroup struct {
	Operator Combinator `json:"operator"`
	Rules    []Rule     `json:"rules"`
}

// Segment is a named contact subset as persisted by the segment repository.
// MatchCount is computed by the repository and is never sent by clients.
type Segment struct {
	ID         int64       `json:"id" db:"id"`
	TenantID   int64       `json:"tenant_id" db:"tenant_id"`
	Name       string      `json:"name" db:"name"`
	Type       SegmentType `json:"type" db:"type"`
	Rules      *RuleGroup  `json:"rules" db:"rules"`
	MatchCount int         `json:"match_count" db:"match_count"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// SegmentInput is the create/replace payload. Update requests always carry
// the full rule group; the repository replaces rather than merges.
type SegmentInput struct {
	Name  string      `json:"name"`
	Type  SegmentType `json:"type"`
	Rules RuleGroup   `json:"rules"`
}

// SegmentPatch is the server-side view of an update body, where every field
// is optional.
type SegmentPatch struct {
	Name  *string      `json:"name,omitempty"`
	Type  *SegmentType `json:"type,omitempty"`
	Rules *RuleGroup   `json:"rules,omitempty"`
}
