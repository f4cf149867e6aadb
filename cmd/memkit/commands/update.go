package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/store"
)

var (
	updContent    string
	updGate       string
	updDecay      string
	updPerson     string
	updProject    string
	updConfidence float64
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Edit fields of a memory",
	Long: `Update fields of one memory. Only flags you pass change; a gate
change re-derives the decay class unless --decay is passed too. Editing
the content re-embeds the memory.

Examples:
  memkit update mem_x --content "prefers rust for CLI tools now"
  memkit update mem_x --gate promissory
  memkit update mem_x --confidence 0.5`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var upd store.MemoryUpdate
		if cmd.Flags().Changed("content") {
			upd.Content = &updContent
		}
		if cmd.Flags().Changed("gate") {
			upd.Gate = &updGate
		}
		if cmd.Flags().Changed("decay") {
			upd.DecayClass = &updDecay
		}
		if cmd.Flags().Changed("person") {
			upd.Person = &updPerson
		}
		if cmd.Flags().Changed("project") {
			upd.Project = &updProject
		}
		if cmd.Flags().Changed("confidence") {
			upd.Confidence = &updConfidence
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

		if err := env.eng.UpdateMemory(cmd.Context(), tc, args[0], upd); err != nil {
			return err
		}
		fmt.Printf("Updated %s\n", args[0])
		return nil
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Exempt a memory from decay",
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

		if err := env.eng.Pin(cmd.Context(), tc, args[0]); err != nil {
			return err
		}
		fmt.Printf("Pinned %s\n", args[0])
		return nil
	},
}

var unpinCmd = &cobra.Command{
	Use:   "unpin <id>",
	Short: "Let a memory decay again",
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

		if err := env.eng.Unpin(cmd.Context(), tc, args[0]); err != nil {
			return err
		}
		fmt.Printf("Unpinned %s\n", args[0])
		return nil
	},
}

func init() {
	updateCmd.Flags().StringVar(&updContent, "content", "", "replacement content")
	updateCmd.Flags().StringVarP(&updGate, "gate", "g", "", "new gate")
	updateCmd.Flags().StringVar(&updDecay, "decay", "", "new decay class (fast, moderate, slow, never)")
	updateCmd.Flags().StringVarP(&updPerson, "person", "p", "", "new person")
	updateCmd.Flags().StringVar(&updProject, "project", "", "new project")
	updateCmd.Flags().Float64Var(&updConfidence, "confidence", 0, "new confidence (0..1)")

	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(unpinCmd)
}
