package cli

import (
	"fmt"
	"strings"

	"github.com/lazypower/rapport/internal/rules"
	"github.com/spf13/cobra"
)

var ruleCmd = &cobra.Command{
	Use:   "rule",
	Short: "Manage reminder rules",
}

var (
	ruleID        string
	ruleType      string
	ruleDays      int
	rulePattern   string
	ruleThreshold float64
	ruleTags      []string
	ruleMinScore  float64
	ruleDisabled  bool
)

var ruleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace a rule",
	Long: "Add a rule. --days applies to inactivity and recurring rules, --pattern (MM-DD) " +
		"to date rules and --threshold to decay rules. Unset values take the type's default.",
	Args: cobra.NoArgs,
	RunE: runRuleAdd,
}

var ruleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	Args:  cobra.NoArgs,
	RunE:  runRuleList,
}

func init() {
	ruleAddCmd.Flags().StringVar(&ruleID, "id", "", "Rule id (generated when empty)")
	ruleAddCmd.Flags().StringVar(&ruleType, "type", "", "Rule type: inactivity, recurring, date, decay")
	ruleAddCmd.Flags().IntVar(&ruleDays, "days", 0, "Inactivity or recurring interval in days")
	ruleAddCmd.Flags().StringVar(&rulePattern, "pattern", "", "Date pattern MM-DD")
	ruleAddCmd.Flags().Float64Var(&ruleThreshold, "threshold", 0, "Decay score threshold 0-100")
	ruleAddCmd.Flags().StringSliceVar(&ruleTags, "tag", nil, "Only apply to contacts with this tag (repeatable)")
	ruleAddCmd.Flags().Float64Var(&ruleMinScore, "min-score", 0, "Skip contacts scoring below this")
	ruleAddCmd.Flags().BoolVar(&ruleDisabled, "disabled", false, "Store the rule disabled")
	ruleAddCmd.MarkFlagRequired("type")

	ruleCmd.AddCommand(ruleAddCmd)
	ruleCmd.AddCommand(ruleListCmd)
}

// ruleSpec builds a spec from the flags that were actually set.
func ruleSpec(cmd *cobra.Command) (rules.Spec, error) {
	spec := rules.Spec{
		ID:      ruleID,
		Type:    rules.Type(strings.ToLower(ruleType)),
		Enabled: !ruleDisabled,
		Tags:    ruleTags,
	}
	flags := cmd.Flags()

	if flags.Changed("days") {
		days := ruleDays
		switch spec.Type {
		case rules.TypeInactivity:
			spec.Config.InactivityDays = &days
		case rules.TypeRecurring:
			spec.Config.RecurringDays = &days
		default:
			return spec, fmt.Errorf("--days does not apply to %s rules", spec.Type)
		}
	}
	if flags.Changed("pattern") {
		p := rulePattern
		spec.Config.DatePattern = &p
	}
	if flags.Changed("threshold") {
		t := ruleThreshold
		spec.Config.ScoreThreshold = &t
	}
	if flags.Changed("min-score") {
		m := ruleMinScore
		spec.MinRelationshipScore = &m
	}
	return spec, nil
}

func runRuleAdd(cmd *cobra.Command, args []string) error {
	spec, err := ruleSpec(cmd)
	if err != nil {
		return err
	}

	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	r, err := rt.svc.AddRule(cmd.Context(), spec)
	if err != nil {
		return fmt.Errorf("add rule: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s rule %s\n", r.Type(), r.ID)
	return nil
}

func runRuleList(cmd *cobra.Command, args []string) error {
	rt, err := openRuntime(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	list, err := rt.svc.Rules()
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(list) == 0 {
		fmt.Fprintln(out, "No rules. Add one with `rapport rule add`.")
		return nil
	}
	for _, r := range list {
		state := "enabled"
		if !r.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(out, "  %s  %-10s %s%s\n", r.ID, r.Type(), state, describeRule(r))
	}
	return nil
}

func describeRule(r rules.Rule) string {
	var parts []string
	switch c := r.Config.(type) {
	case rules.InactivityConfig:
		parts = append(parts, fmt.Sprintf("after %d days", c.InactivityDays))
	case rules.RecurringConfig:
		parts = append(parts, fmt.Sprintf("every %d days", c.RecurringDays))
	case rules.DateConfig:
		parts = append(parts, "on "+c.Pattern)
	case rules.DecayConfig:
		parts = append(parts, fmt.Sprintf("below %.0f", c.ScoreThreshold))
	}
	if len(r.Tags) > 0 {
		parts = append(parts, "tags "+strings.Join(r.Tags, ","))
	}
	if r.MinRelationshipScore != nil {
		parts = append(parts, fmt.Sprintf("min score %.0f", *r.MinRelationshipScore))
	}
	return ", " + strings.Join(parts, ", ")
}
