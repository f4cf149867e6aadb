package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/memory"
	"github.com/haivivi/memkit/pkg/store"
)

var (
	identityPerson  string
	identityProject string
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Show or set the identity card",
	Long: `The identity card is a compact self-description of the tenant,
regenerated by reflect and loaded first by prime. Show it with no
arguments or replace it with 'identity set'.`,
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

		card, err := env.eng.GetIdentity(cmd.Context(), tc)
		if err != nil {
			if memory.IsNotFound(err) {
				fmt.Println("No identity card yet. Run 'memkit reflect' or 'memkit identity set <content>'.")
				return nil
			}
			return err
		}
		if card.Person != "" {
			fmt.Printf("person:  %s\n", card.Person)
		}
		if card.Project != "" {
			fmt.Printf("project: %s\n", card.Project)
		}
		fmt.Println(card.Content)
		fmt.Printf("\nlast updated: %s\n", card.LastUpdated.UTC().Format("2006-01-02 15:04"))
		return nil
	},
}

var identitySetCmd = &cobra.Command{
	Use:   "set <content>",
	Short: "Replace the identity card",
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

		card := &store.Identity{
			Person:  identityPerson,
			Project: identityProject,
			Content: args[0],
		}
		if err := env.eng.SetIdentity(cmd.Context(), tc, card); err != nil {
			return err
		}
		fmt.Println("Identity card saved.")
		return nil
	},
}

func init() {
	identitySetCmd.Flags().StringVarP(&identityPerson, "person", "p", "", "who this card describes")
	identitySetCmd.Flags().StringVar(&identityProject, "project", "", "project the card belongs to")

	identityCmd.AddCommand(identitySetCmd)
	rootCmd.AddCommand(identityCmd)
}
