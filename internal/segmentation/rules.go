package segmentation

import (
	"strings"

	"github.com/ignite/segment-rules/internal/domain"
)

// EmptyRule is the template for a freshly added rule.
func EmptyRule() domain.Rule {
	return domain.Rule{Field: domain.FieldEmail, Operator: domain.OpContains, Value: ""}
}

// DefaultRuleGroup is the rule group of a blank segment form.
func DefaultRuleGroup() domain.RuleGroup {
	return domain.RuleGroup{Operator: domain.CombinatorAnd, Rules: []domain.Rule{EmptyRule()}}
}

// UpdateRuleField moves rule to a new field. The operator falls back to the
// field's default when it is not allowed there, and the value is always
// cleared so a value typed for one field never leaks into another.
func UpdateRuleField(rule domain.Rule, field domain.FieldKey) domain.Rule {
	rule.Field = field
	if !OperatorAllowed(field, rule.Operator) {
		if ops := OperatorsFor(field); len(ops) > 0 {
			rule.Operator = ops[0]
		}
	}
	rule.Value = ""
	return rule
}

// AddRule appends an empty rule.
func AddRule(group domain.RuleGroup) domain.RuleGroup {
	rules := make([]domain.Rule, 0, len(group.Rules)+1)
	rules = append(rules, group.Rules...)
	group.Rules = append(rules, EmptyRule())
	return group
}

// RemoveRule drops the rule at index. A group being edited always keeps at
// least one rule slot, so removing from a single-rule group (or with an
// index out of range) returns the group unchanged.
func RemoveRule(group domain.RuleGroup, index int) domain.RuleGroup {
	if len(group.Rules) <= 1 || index < 0 || index >= len(group.Rules) {
		return group
	}
	rules := make([]domain.Rule, 0, len(group.Rules)-1)
	rules = append(rules, group.Rules[:index]...)
	group.Rules = append(rules, group.Rules[index+1:]...)
	return group
}

// IsActive reports whether rule carries a value worth persisting.
func IsActive(rule domain.Rule) bool {
	return strings.TrimSpace(rule.Value) != ""
}

// ToPersistableRuleGroup is the exact rule group sent to the repository:
// blank rules are dropped silently and the combinator is always "and".
func ToPersistableRuleGroup(group domain.RuleGroup) domain.RuleGroup {
	rules := make([]domain.Rule, 0, len(group.Rules))
	for _, r := range group.Rules {
		if IsActive(r) {
			rules = append(rules, r)
		}
	}
	return domain.RuleGroup{Operator: domain.CombinatorAnd, Rules: rules}
}

// RulesForEdit returns an editable copy of a persisted segment's rules, or a
// single empty rule when it has none.
func RulesForEdit(seg *domain.Segment) []domain.Rule {
	if seg == nil || seg.Rules == nil || len(seg.Rules.Rules) == 0 {
		return []domain.Rule{EmptyRule()}
	}
	out := make([]domain.Rule, len(seg.Rules.Rules))
	copy(out, seg.Rules.Rules)
	return out
}

// FilterByName keeps the segments whose name contains query, ignoring case.
// An empty query keeps everything.
func FilterByName(segments []domain.Segment, query string) []domain.Segment {
	q := strings.ToLower(query)
	out := make([]domain.Segment, 0, len(segments))
	for _, s := range segments {
		if strings.Contains(strings.ToLower(s.Name), q) {
			out = append(out, s)
		}
	}
	return out
}
