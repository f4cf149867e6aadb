package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Consolidate the journal and age out faded memories",
	Long: `Run the maintenance pass: journal days older than two weeks are
consolidated into weekly digests, memories whose decayed confidence
dropped below threshold are archived, and the identity card is
regenerated from recent activity.

Consolidation and identity regeneration need a synthesizer key; without
one only archival runs.`,
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

		out, err := env.eng.Reflect(cmd.Context(), tc)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reflectCmd)
}
