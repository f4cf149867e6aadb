package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	classifyForce bool
	reclassifyWhy string
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Run sensitivity classification over stored memories",
	Long: `Classify unclassified memories as safe, sensitive or critical
using the configured synthesizer. Pass --force to reclassify everything.

Example:
  memkit classify`,
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

		out, err := env.eng.Classify(cmd.Context(), tc, classifyForce)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan memories for PII patterns",
	Long: `Pattern-scan every memory for emails, phone numbers, card
numbers, API keys and other secrets. Runs locally, no synthesizer
needed.`,
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

		out, err := env.eng.Scan(cmd.Context(), tc)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	},
}

var reclassifyCmd = &cobra.Command{
	Use:   "reclassify <id> <level>",
	Short: "Override a memory's sensitivity level",
	Long: `Set the sensitivity of one memory by hand. Level is safe,
sensitive or critical.

Example:
  memkit reclassify mem_x critical --reason "contains a live token"`,
	Args: cobra.ExactArgs(2),
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

		if err := env.eng.Reclassify(cmd.Context(), tc, args[0], args[1], reclassifyWhy); err != nil {
			return err
		}
		fmt.Printf("Reclassified %s as %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVarP(&classifyForce, "force", "f", false, "reclassify already-classified memories too")
	reclassifyCmd.Flags().StringVarP(&reclassifyWhy, "reason", "r", "", "why the level was overridden")

	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(reclassifyCmd)
}
