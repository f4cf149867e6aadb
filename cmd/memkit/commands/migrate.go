package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <from-user> <to-user>",
	Short: "Move a tenant's records to a new user id",
	Long: `Move every memory, journal entry, identity card and rule from one
user id to another. The source is emptied; team-shared records are
untouched.

Example:
  memkit migrate old-laptop sam`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		moved, err := env.eng.Migrate(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Migrated %d records from %s to %s\n", moved, args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
