package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search memories by meaning and keywords",
	Long: `Retrieve memories relevant to a query. Semantic and keyword
rankings are fused; when results are sparse the relation graph is walked
from the top hits and linked memories are appended.

Examples:
  memkit recall "what editor does the user prefer"
  memkit recall "deploy freeze"`,
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

		out, err := env.eng.Recall(cmd.Context(), tc, args[0])
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recallCmd)
}
