package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/segmentation"
)

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

// describeRules renders a rule group with registry labels, e.g.
// "Email contains gmail.com AND Tag has tag vip".
func describeRules(g *domain.RuleGroup) string {
	if g == nil || len(g.Rules) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(g.Rules))
	for _, r := range g.Rules {
		parts = append(parts, fmt.Sprintf("%s %s %s",
			segmentation.FieldLabel(r.Field), segmentation.OperatorLabel(r.Operator), r.Value))
	}
	join := " " + strings.ToUpper(string(g.Operator)) + " "
	if g.Operator == "" {
		join = " AND "
	}
	return strings.Join(parts, join)
}

func (a *app) printFields(fields []segmentation.FieldInfo) error {
	if a.jsonOutput() {
		return a.printJSON(fields)
	}
	tw := a.table()
	fmt.Fprintln(tw, "FIELD\tLABEL\tVALUE\tOPERATORS")
	for _, f := range fields {
		ops := make([]string, 0, len(f.Operators))
		for _, op := range f.Operators {
			ops = append(ops, string(op))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Key, f.Label, f.Kind, strings.Join(ops, ", "))
	}
	return tw.Flush()
}

func (a *app) printSegments(segs []domain.Segment) error {
	if a.jsonOutput() {
		return a.printJSON(segs)
	}
	if len(segs) == 0 {
		fmt.Fprintln(a.out, "No segments found.")
		return nil
	}
	tw := a.table()
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tMATCHES\tCREATED\tRULES")
	for _, s := range segs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.Name, s.Type, s.MatchCount, formatTime(s.CreatedAt), describeRules(s.Rules))
	}
	return tw.Flush()
}

func (a *app) printSegment(s *domain.Segment, p *domain.SegmentPreview) error {
	if a.jsonOutput() {
		if p == nil {
			return a.printJSON(s)
		}
		return a.printJSON(struct {
			*domain.Segment
			PreviewTotal int `json:"preview_total"`
		}{s, p.Total})
	}
	tw := a.table()
	fmt.Fprintf(tw, "ID:\t%d\n", s.ID)
	fmt.Fprintf(tw, "Name:\t%s\n", s.Name)
	fmt.Fprintf(tw, "Type:\t%s\n", s.Type)
	fmt.Fprintf(tw, "Matches:\t%d\n", s.MatchCount)
	if p != nil {
		fmt.Fprintf(tw, "Preview total:\t%d\n", p.Total)
	}
	fmt.Fprintf(tw, "Created:\t%s\n", formatTime(s.CreatedAt))
	fmt.Fprintf(tw, "Rules:\t%s\n", describeRules(s.Rules))
	return tw.Flush()
}

func (a *app) printPreview(p *domain.SegmentPreview) error {
	if a.jsonOutput() {
		return a.printJSON(p)
	}
	tw := a.table()
	fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tCOUNTRY\tSOURCE")
	for _, c := range p.Contacts {
		name := strings.TrimSpace(c.FirstName + " " + c.LastName)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Email, name, c.Country, c.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Showing %d of %d matching contacts\n", len(p.Contacts), p.Total)
	return nil
}
