package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/store"
)

var (
	teamsGate  string
	teamsLimit int
)

var teamsCmd = &cobra.Command{
	Use:   "teams",
	Short: "List the team's shared memories",
	Long: `List memories shared with the configured team, newest first.
Requires a team in the config or --team.

Examples:
  memkit teams
  memkit teams --gate promissory`,
	Args: cobra.NoArgs,
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

		ms, err := env.eng.TeamMemories(cmd.Context(), tc, store.ListOptions{
			Gate:  teamsGate,
			Limit: teamsLimit,
		})
		if err != nil {
			return err
		}
		if len(ms) == 0 {
			fmt.Println("No shared memories.")
			return nil
		}
		fmt.Printf("%d shared memories:\n\n", len(ms))
		for _, m := range ms {
			line := memoryLine(m)
			if m.CreatedBy != "" {
				line += fmt.Sprintf("  (by %s)", m.CreatedBy)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	teamsCmd.Flags().StringVarP(&teamsGate, "gate", "g", "", "filter by gate")
	teamsCmd.Flags().IntVarP(&teamsLimit, "limit", "n", 0, "maximum rows (0 = driver default)")

	rootCmd.AddCommand(teamsCmd)
}
