package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var primeCmd = &cobra.Command{
	Use:   "prime",
	Short: "Print the session-start context block",
	Long: `Assemble the block an assistant loads at session start: the
identity card, the last checkpoint, recent journal activity and the
team's rules. Prints nothing for a brand-new tenant.`,
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

		out, err := env.eng.Prime(cmd.Context(), tc)
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Println(out)
		}
		return nil
	},
}

var observeCmd = &cobra.Command{
	Use:   "observe <content>",
	Short: "Log an observation to the journal",
	Long: `Append a low-signal observation to the journal without creating a
memory. Observations feed weekly digests but are skipped by prime.

Example:
  memkit observe "spent the afternoon in the profiler"`,
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

		if err := env.eng.Observe(cmd.Context(), tc, args[0]); err != nil {
			return err
		}
		fmt.Println("Noted.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(primeCmd)
	rootCmd.AddCommand(observeCmd)
}
