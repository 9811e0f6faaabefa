package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/inkgate/inkgate/internal/config"
	"github.com/inkgate/inkgate/internal/policy"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage permission rules",
	Long: `Manage the permission rules consulted before a tool call is
escalated to you. A subject is a tool name ("bash") or a scoped one
("bash:git status"). Deny beats allow for the same subject; anything
without a rule asks for approval.`,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show permission rules",
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := openRules()
		if err != nil {
			return err
		}

		list := rules.Rules()
		if len(list) == 0 {
			fmt.Println(headerStyle.Render("No rules configured (every tool call asks)"))
			return nil
		}

		fmt.Println(headerStyle.Render(fmt.Sprintf("%d rule(s)", len(list))))
		fmt.Println()

		w := tabwriter.NewWriter(lipgloss.DefaultRenderer().Output(), 0, 0, 3, ' ', 0)
		_, _ = fmt.Fprintln(w, titleStyle.Render("Subject")+"\t"+titleStyle.Render("Effect")+"\t")
		_, _ = fmt.Fprintln(w, strings.Repeat("─", 50))
		for _, r := range list {
			effect := countStyle.Render(string(r.Effect))
			if r.Effect == policy.Deny {
				effect = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Render(string(r.Effect))
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t\n", r.Subject, effect)
		}
		_ = w.Flush()
		return nil
	},
}

var rulesAllowCmd = &cobra.Command{
	Use:   "allow <subject>",
	Short: "Add an allow rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addRule(args[0], policy.Allow)
	},
}

var rulesDenyCmd = &cobra.Command{
	Use:   "deny <subject>",
	Short: "Add a deny rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return addRule(args[0], policy.Deny)
	},
}

var rulesRemoveCmd = &cobra.Command{
	Use:   "remove <subject>",
	Short: "Remove all rules for a subject",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := openRules()
		if err != nil {
			return err
		}
		n, err := rules.Remove(args[0])
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println(headerStyle.Render("No rules matched " + args[0]))
			return nil
		}
		fmt.Println(headerStyle.Render(fmt.Sprintf("Removed %d rule(s) for %s", n, args[0])))
		return nil
	},
}

func openRules() (*policy.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return policy.Load(cfg.RulesPath())
}

func addRule(subject string, effect policy.Effect) error {
	rules, err := openRules()
	if err != nil {
		return err
	}
	if err := rules.Add(policy.Rule{Subject: subject, Effect: effect}); err != nil {
		return err
	}
	fmt.Println(headerStyle.Render(fmt.Sprintf("Added rule: %s = %s", subject, effect)))
	return nil
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesAllowCmd)
	rulesCmd.AddCommand(rulesDenyCmd)
	rulesCmd.AddCommand(rulesRemoveCmd)
}
