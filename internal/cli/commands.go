package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/segment-rules/internal/domain"
	"github.com/ignite/segment-rules/internal/segmentation"
	"github.com/ignite/segment-rules/internal/service/segment"
)

// parseRules turns --rule flags of the form field:operator:value into a rule
// group. An empty operator selects the field's default.
func parseRules(specs []string) (domain.RuleGroup, error) {
	group := domain.RuleGroup{Operator: domain.CombinatorAnd, Rules: make([]domain.Rule, 0, len(specs))}
	for _, raw := range specs {
		parts := strings.SplitN(raw, ":", 3)
		if len(parts) < 2 {
			return group, fmt.Errorf("invalid rule %q: want field:operator:value", raw)
		}
		rule := segmentation.UpdateRuleField(segmentation.EmptyRule(), domain.FieldKey(strings.TrimSpace(parts[0])))
		if op := strings.TrimSpace(parts[1]); op != "" {
			rule.Operator = domain.Operator(op)
		}
		if len(parts) == 3 {
			rule.Value = parts[2]
		}
		group.Rules = append(group.Rules, rule)
	}
	return group, nil
}

type draftFlags struct {
	name  string
	typ   string
	rules []string
}

func (f *draftFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "segment name")
	cmd.Flags().StringVar(&f.typ, "type", "", "dynamic or static (default dynamic)")
	cmd.Flags().StringArrayVar(&f.rules, "rule", nil, "rule as field:operator:value (repeatable)")
}

func (f *draftFlags) draft() (segment.Draft, error) {
	rules, err := parseRules(f.rules)
	if err != nil {
		return segment.Draft{}, err
	}
	return segment.Draft{Name: f.name, Type: domain.SegmentType(f.typ), Rules: rules}, nil
}

func (a *app) fieldsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List filterable fields and their operators",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.printFields(segmentation.Fields())
		},
	}
}

func (a *app) validateCommand() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Normalize and validate a segment without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := f.draft()
			if err != nil {
				return err
			}
			in, err := segment.Prepare(d)
			if err != nil {
				return err
			}
			return a.printJSON(in)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) listCommand() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the tenant's segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			segs, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			return a.printSegments(segmentation.FilterByName(segs, filter))
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "case-insensitive name filter")
	return cmd
}

func (a *app) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a segment with its current match total",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			var (
				seg     *domain.Segment
				preview *domain.SegmentPreview
			)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				var err error
				seg, err = svc.Get(ctx, id)
				return err
			})
			g.Go(func() error {
				var err error
				preview, err = svc.Preview(ctx, id)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			return a.printSegment(seg, preview)
		},
	}
}

func (a *app) createCommand() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a segment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := f.draft()
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			seg, err := svc.Create(cmd.Context(), d)
			if err != nil {
				return err
			}
			return a.printSegment(seg, nil)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) updateCommand() *cobra.Command {
	var f draftFlags
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update a segment; --rule flags replace every rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			current, err := svc.Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			d := segment.Draft{
				Name:  current.Name,
				Type:  current.Type,
				Rules: domain.RuleGroup{Operator: domain.CombinatorAnd, Rules: segmentation.RulesForEdit(current)},
			}
			if cmd.Flags().Changed("name") {
				d.Name = f.name
			}
			if cmd.Flags().Changed("type") {
				d.Type = domain.SegmentType(f.typ)
			}
			if cmd.Flags().Changed("rule") {
				if d.Rules, err = parseRules(f.rules); err != nil {
					return err
				}
			}

			seg, err := svc.Update(cmd.Context(), id, d)
			if err != nil {
				return err
			}
			return a.printSegment(seg, nil)
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			return svc.Delete(cmd.Context(), id)
		},
	}
}

func (a *app) previewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "preview ID",
		Short: "Show sample contacts matched by a segment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}
			p, err := svc.Preview(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printPreview(p)
		},
	}
}
