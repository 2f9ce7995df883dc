package segmentation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/segmentation"
)

func TestNormalizeInput(t *testing.T) {
	got := segmentation.NormalizeInput(domain.SegmentInput{
		Name: "  Gmail users  ",
		Rules: domain.RuleGroup{Operator: domain.CombinatorOr, Rules: []domain.Rule{
			{Field: domain.FieldEmail, Operator: domain.OpContains, Value: "gmail.com"},
			{Field: domain.FieldCountry, Operator: domain.OpEquals, Value: ""},
		}},
	})

	assert.Equal(t, "Gmail users", got.Name)
	assert.Equal(t, domain.SegmentDynamic, got.Type)
	assert.Equal(t, domain.CombinatorAnd, got.Rules.Operator)
	assert.Len(t, got.Rules.Rules, 1)
}

func TestValidateInput(t *testing.T) {
	valid := domain.SegmentInput{
		Name: "Recent",
		Type: domain.SegmentStatic,
		Rules: domain.RuleGroup{Operator: domain.CombinatorAnd, Rules: []domain.Rule{
			{Field: domain.FieldCreatedAfter, Operator: domain.OpEquals, Value: "2024-01-01"},
		}},
	}

	tests := []struct {
		name   string
		mutate func(in *domain.SegmentInput)
		field  string
	}{
		{"valid", func(*domain.SegmentInput) {}, ""},
		{"blank name", func(in *domain.SegmentInput) { in.Name = "   " }, "name"},
		{"bad type", func(in *domain.SegmentInput) { in.Type = "frozen" }, "type"},
		{"bad combinator", func(in *domain.SegmentInput) { in.Rules.Operator = "xor" }, "rules.operator"},
		{"no rules", func(in *domain.SegmentInput) { in.Rules.Rules = nil }, "rules"},
		{"unknown field", func(in *domain.SegmentInput) { in.Rules.Rules[0].Field = "phone" }, "rules[0].field"},
		{"operator not allowed", func(in *domain.SegmentInput) { in.Rules.Rules[0].Operator = domain.OpContains }, "rules[0].operator"},
		{"bad date", func(in *domain.SegmentInput) { in.Rules.Rules[0].Value = "01/02/2024" }, "rules[0].value"},
		{"blank value", func(in *domain.SegmentInput) { in.Rules.Rules[0].Value = " " }, "rules[0].value"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			in.Rules.Rules = append([]domain.Rule(nil), valid.Rules.Rules...)
			tt.mutate(&in)

			problems := segmentation.ValidateInput(in)
			if tt.field == "" {
				assert.Empty(t, problems)
				return
			}
			assert.Contains(t, problems, tt.field)
		})
	}
}

func TestValidateInputEmptyAfterNormalization(t *testing.T) {
	in := segmentation.NormalizeInput(domain.SegmentInput{Name: "Empty", Rules: segmentation.DefaultRuleGroup()})
	problems := segmentation.ValidateInput(in)
	assert.Equal(t, segmentation.ReasonNoActiveRules, problems["rules"])
}
