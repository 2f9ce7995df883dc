// Package segmentation implements the audience segment rule model: the field
// registry that scopes operators to contact attributes, and the pure
// functions that keep a rule group consistent while it is edited and before
// it is persisted.
package segmentation

import "github.com/ignite/segment-rules/internal/domain"

// FieldInfo describes one filterable contact attribute.
type FieldInfo struct {
	Key       domain.FieldKey   `json:"key"`
	Label     string            `json:"label"`
	Kind      domain.ValueKind  `json:"kind"`
	Operators []domain.Operator `json:"operators"`
}

// registryOrder is the order fields are offered in.
var registryOrder = []domain.FieldKey{
	domain.FieldEmail,
	domain.FieldFirstName,
	domain.FieldLastName,
	domain.FieldSource,
	domain.FieldCountry,
	domain.FieldTag,
	domain.FieldSubscribedToList,
	domain.FieldCreatedAfter,
	domain.FieldCreatedBefore,
}

// lookup is the single source of truth for the registry. The switch is kept
// exhaustive over domain.FieldKey; every known key returns a non-empty
// operator list whose first entry is the default selection.
func lookup(field domain.FieldKey) (FieldInfo, bool) {
	switch field {
	case domain.FieldEmail:
		return FieldInfo{field, "Email", domain.ValueText,
			[]domain.Operator{domain.OpContains, domain.OpEquals, domain.OpEndsWith}}, true
	case domain.FieldFirstName:
		return FieldInfo{field, "First Name", domain.ValueText,
			[]domain.Operator{domain.OpContains, domain.OpEquals}}, true
	case domain.FieldLastName:
		return FieldInfo{field, "Last Name", domain.ValueText,
			[]domain.Operator{domain.OpContains, domain.OpEquals}}, true
	case domain.FieldSource:
		return FieldInfo{field, "Source", domain.ValueText, []domain.Operator{domain.OpEquals}}, true
	case domain.FieldCountry:
		return FieldInfo{field, "Country", domain.ValueText, []domain.Operator{domain.OpEquals}}, true
	case domain.FieldTag:
		return FieldInfo{field, "Tag", domain.ValueText,
			[]domain.Operator{domain.OpHasTag, domain.OpHasNoTag}}, true
	case domain.FieldSubscribedToList:
		return FieldInfo{field, "Subscribed to List", domain.ValueText, []domain.Operator{domain.OpEquals}}, true
	case domain.FieldCreatedAfter:
		return FieldInfo{field, "Created After", domain.ValueDate, []domain.Operator{domain.OpEquals}}, true
	case domain.FieldCreatedBefore:
		return FieldInfo{field, "Created Before", domain.ValueDate, []domain.Operator{domain.OpEquals}}, true
	}
	return FieldInfo{}, false
}

// Fields returns the whole registry in display order.
func Fields() []FieldInfo {
	out := make([]FieldInfo, 0, len(registryOrder))
	for _, key := range registryOrder {
		info, _ := lookup(key)
		out = append(out, info)
	}
	return out
}

// IsKnownField reports whether field is part of the registry.
func IsKnownField(field domain.FieldKey) bool {
	_, ok := lookup(field)
	return ok
}

// OperatorsFor returns the operators allowed for field, default first.
// The returned slice is owned by the caller. Unknown fields yield nil.
func OperatorsFor(field domain.FieldKey) []domain.Operator {
	info, _ := lookup(field)
	return info.Operators
}

// OperatorAllowed reports whether op may be used with field.
func OperatorAllowed(field domain.FieldKey, op domain.Operator) bool {
	for _, allowed := range OperatorsFor(field) {
		if allowed == op {
			return true
		}
	}
	return false
}

// IsDateField is true only for created_after and created_before.
func IsDateField(field domain.FieldKey) bool {
	return ValueKindOf(field) == domain.ValueDate
}

// ValueKindOf returns how values for field are entered.
func ValueKindOf(field domain.FieldKey) domain.ValueKind {
	info, ok := lookup(field)
	if !ok {
		return domain.ValueText
	}
	return info.Kind
}

// FieldLabel returns the human label of field, or the raw key when unknown.
func FieldLabel(field domain.FieldKey) string {
	if info, ok := lookup(field); ok {
		return info.Label
	}
	return string(field)
}

// OperatorLabel returns the human label of op.
func OperatorLabel(op domain.Operator) string {
	switch op {
	case domain.OpEndsWith:
		return "ends with"
	case domain.OpHasTag:
		return "has tag"
	case domain.OpHasNoTag:
		return "does not have tag"
	}
	return string(op)
}
