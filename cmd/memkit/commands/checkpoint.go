package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/memory"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint <content>",
	Short: "Save a session checkpoint",
	Long: `Save a checkpoint describing where the current session left off.
Prime surfaces the latest one at the start of the next session.

Examples:
  memkit checkpoint "refactoring the billing worker, tests red on retry path"
  memkit checkpoint show`,
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

		if err := env.eng.Checkpoint(cmd.Context(), tc, args[0]); err != nil {
			return err
		}
		fmt.Println("Checkpoint saved.")
		return nil
	},
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the latest checkpoint",
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

		cp, err := env.eng.LatestCheckpoint(cmd.Context(), tc)
		if err != nil {
			if memory.IsNotFound(err) {
				fmt.Println("No checkpoint yet.")
				return nil
			}
			return err
		}
		fmt.Printf("[%s] %s\n", cp.Timestamp.UTC().Format("2006-01-02 15:04"), cp.Content)
		return nil
	},
}

func init() {
	checkpointCmd.AddCommand(checkpointShowCmd)
	rootCmd.AddCommand(checkpointCmd)
}
