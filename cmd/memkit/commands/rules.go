package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/memory"
	"github.com/haivivi/memkit/pkg/store"
)

var (
	rulesShared      bool
	ruleScope        string
	ruleEnforcement  string
	ruleNewScope     string
	ruleNewCondition string
	ruleNewEnforce   string
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage standing rules",
	Long: `Rules are standing instructions the assistant checks before
acting: "scope: condition (enforcement)". Enforcement is one of suggest,
enforce or block. With --shared, rules live in the team plane and every
member sees them.

Examples:
  memkit rules add "never force-push to main" --scope git --enforcement block
  memkit rules list
  memkit rules trigger a1b2c3d4e5f6`,
}

var rulesAddCmd = &cobra.Command{
	Use:   "add <condition>",
	Short: "Add a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		tc, err := env.requireTenant()
		if err != nil {
			return err
		}

		r, err := env.eng.AddRule(cmd.Context(), tc, memory.RuleSpec{
			Scope:       ruleScope,
			Condition:   args[0],
			Enforcement: ruleEnforcement,
			Team:        rulesShared,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Added rule %s: %s\n", r.ID, r.Content)
		return nil
	},
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rules",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		tc, err := env.requireTenant()
		if err != nil {
			return err
		}

		rs, err := env.eng.ListRules(cmd.Context(), tc, rulesShared)
		if err != nil {
			return err
		}
		if len(rs) == 0 {
			fmt.Println("No rules.")
			return nil
		}
		for _, r := range rs {
			fmt.Println(ruleLine(r))
		}
		return nil
	},
}

var rulesUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var upd store.RuleUpdate
		if cmd.Flags().Changed("scope") {
			upd.Scope = &ruleNewScope
		}
		if cmd.Flags().Changed("condition") {
			upd.Condition = &ruleNewCondition
		}
		if cmd.Flags().Changed("enforcement") {
			upd.Enforcement = &ruleNewEnforce
		}

		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		tc, err := env.requireTenant()
		if err != nil {
			return err
		}

		if err := env.eng.UpdateRule(cmd.Context(), tc, args[0], upd, rulesShared); err != nil {
			return err
		}
		fmt.Printf("Updated rule %s\n", args[0])
		return nil
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a rule",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		tc, err := env.requireTenant()
		if err != nil {
			return err
		}

		if err := env.eng.DeleteRule(cmd.Context(), tc, args[0], rulesShared); err != nil {
			return err
		}
		fmt.Printf("Deleted rule %s\n", args[0])
		return nil
	},
}

var rulesTriggerCmd = &cobra.Command{
	Use:   "trigger <id>",
	Short: "Record that a rule fired",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()
		tc, err := env.requireTenant()
		if err != nil {
			return err
		}

		if err := env.eng.TriggerRule(cmd.Context(), tc, args[0], rulesShared); err != nil {
			return err
		}
		fmt.Printf("Triggered rule %s\n", args[0])
		return nil
	},
}

func ruleLine(r *store.Rule) string {
	line := fmt.Sprintf("%s  %s", r.ID, r.Content)
	if !r.LastTriggered.IsZero() {
		line += fmt.Sprintf("  (last triggered %s)", r.LastTriggered.UTC().Format("2006-01-02"))
	}
	return line
}

func init() {
	rulesCmd.PersistentFlags().BoolVar(&rulesShared, "shared", false, "operate on the team's shared rules")
	rulesAddCmd.Flags().StringVarP(&ruleScope, "scope", "s", "", "where the rule applies (default global)")
	rulesAddCmd.Flags().StringVarP(&ruleEnforcement, "enforcement", "e", "", "suggest, enforce or block (default suggest)")
	rulesUpdateCmd.Flags().StringVarP(&ruleNewScope, "scope", "s", "", "new scope")
	rulesUpdateCmd.Flags().StringVar(&ruleNewCondition, "condition", "", "new condition")
	rulesUpdateCmd.Flags().StringVarP(&ruleNewEnforce, "enforcement", "e", "", "new enforcement")

	rulesCmd.AddCommand(rulesAddCmd)
	rulesCmd.AddCommand(rulesListCmd)
	rulesCmd.AddCommand(rulesUpdateCmd)
	rulesCmd.AddCommand(rulesDeleteCmd)
	rulesCmd.AddCommand(rulesTriggerCmd)
	rootCmd.AddCommand(rulesCmd)
}
