package segmentation

import (
	"fmt"
	"strings"
	"time"

	"github.com/ignite/segment-rules/internal/domain"
)

// Problems maps an input field path (e.g. "name", "rules[2].operator") to a
// human-readable reason. A nil or empty map means the input is valid.
type Problems map[string]string

// Add records reason for field unless a reason is already present.
func (p Problems) Add(field, reason string) {
	if _, ok := p[field]; !ok {
		p[field] = reason
	}
}

// ReasonNoActiveRules is the reason reported when a segment has nothing to match on.
const ReasonNoActiveRules = "at least one rule must have a value"

// NormalizeInput applies the client-side submit normalization: the name is
// trimmed, an empty type defaults to dynamic and the rule group is reduced
// to its persistable form.
func NormalizeInput(in domain.SegmentInput) domain.SegmentInput {
	in.Name = strings.TrimSpace(in.Name)
	if in.Type == "" {
		in.Type = domain.SegmentDynamic
	}
	in.Rules = ToPersistableRuleGroup(in.Rules)
	return in
}

// ValidateInput checks a segment payload. It does not normalize; callers that
// want blank rules dropped run NormalizeInput first, in which case a blank
// value can never be reported here.
func ValidateInput(in domain.SegmentInput) Problems {
	p := Problems{}
	if strings.TrimSpace(in.Name) == "" {
		p.Add("name", "name is required")
	}
	if !in.Type.Valid() {
		p.Add("type", fmt.Sprintf("type must be %q or %q", domain.SegmentDynamic, domain.SegmentStatic))
	}
	for field, reason := range ValidateRuleGroup(in.Rules) {
		p.Add(field, reason)
	}
	return p
}

// ValidateRuleGroup checks the combinator and every rule of group.
func ValidateRuleGroup(group domain.RuleGroup) Problems {
	p := Problems{}
	if group.Operator != domain.CombinatorAnd && group.Operator != domain.CombinatorOr {
		p.Add("rules.operator", fmt.Sprintf("combinator must be %q or %q", domain.CombinatorAnd, domain.CombinatorOr))
	}
	if len(group.Rules) == 0 {
		p.Add("rules", ReasonNoActiveRules)
	}
	for i, r := range group.Rules {
		validateRule(p, fmt.Sprintf("rules[%d]", i), r)
	}
	return p
}

func validateRule(p Problems, path string, r domain.Rule) {
	if !IsKnownField(r.Field) {
		p.Add(path+".field", fmt.Sprintf("unknown field %q", r.Field))
		return
	}
	if !OperatorAllowed(r.Field, r.Operator) {
		p.Add(path+".operator", fmt.Sprintf("operator %q is not allowed for %s", r.Operator, FieldLabel(r.Field)))
	}
	if !IsActive(r) {
		p.Add(path+".value", "value is required")
		return
	}
	if IsDateField(r.Field) {
		if _, err := time.Parse(domain.DateLayout, strings.TrimSpace(r.Value)); err != nil {
			p.Add(path+".value", "value must be a date in YYYY-MM-DD form")
		}
	}
}
