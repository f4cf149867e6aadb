package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forgetReason string

var forgetCmd = &cobra.Command{
	Use:   "forget <id>",
	Short: "Delete a memory",
	Long: `Delete one memory by id. A reason is required and is logged with
the deletion. Team memories can only be deleted by their creator or a
team admin.

Example:
  memkit forget mem_20250601_100000_ab12 --reason "no longer true"`,
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

		out, err := env.eng.Forget(cmd.Context(), tc, args[0], forgetReason)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	forgetCmd.Flags().StringVarP(&forgetReason, "reason", "r", "", "why this memory is being deleted (required)")
	forgetCmd.MarkFlagRequired("reason")

	rootCmd.AddCommand(forgetCmd)
}
