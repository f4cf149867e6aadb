package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/memory"
)

var (
	rememberGate    string
	rememberPerson  string
	rememberProject string
	rememberShared  bool
)

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Save a memory through the write gates",
	Long: `Save one memory. The gate decides how it decays:

  behavioral   preferences and habits (fast decay)
  relational   facts about people (slow decay)
  epistemic    knowledge and insights (moderate decay)
  promissory   commitments (never decay)
  correction   supersedes an earlier memory (moderate decay)

Without --gate the content is classified by keyword heuristics.

Examples:
  memkit remember "prefers tabs over spaces" --gate behavioral
  memkit remember "Dana moved to the platform team" --person Dana
  memkit remember "release branch cut is thursdays" --shared`,
	Args: cobra.ExactArgs(1),
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

		req := memory.RememberRequest{
			Content: args[0],
			Gate:    rememberGate,
			Person:  rememberPerson,
			Project: rememberProject,
		}
		if rememberShared {
			req.Visibility = "team"
		}

		out, err := env.eng.Remember(cmd.Context(), tc, req)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	rememberCmd.Flags().StringVarP(&rememberGate, "gate", "g", "", "write gate (behavioral, relational, epistemic, promissory, correction)")
	rememberCmd.Flags().StringVarP(&rememberPerson, "person", "p", "", "person this memory is about")
	rememberCmd.Flags().StringVar(&rememberProject, "project", "", "project this memory belongs to")
	rememberCmd.Flags().BoolVar(&rememberShared, "shared", false, "share with the configured team")

	rootCmd.AddCommand(rememberCmd)
}
