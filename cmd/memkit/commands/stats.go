package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show record counts for the tenant",
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

		s, err := env.eng.Stats(cmd.Context(), tc)
		if err != nil {
			return err
		}

		head := "memkit stats"
		if tc.TeamID != "" {
			head += " " + styles.Help.Render("(team "+tc.TeamID+")")
		}
		fmt.Println(styles.Title.Render(head))
		fmt.Println()
		fmt.Printf("%s  %d\n", styles.Label.Render("memories"), s.Memories)
		fmt.Printf("%s   %d\n", styles.Label.Render("journal"), s.Journal)
		fmt.Printf("%s    %d\n", styles.Label.Render("pinned"), s.Pinned)
		if tc.TeamID != "" {
			fmt.Printf("%s    %d\n", styles.Label.Render("shared"), s.TeamShared)
		}

		if len(s.ByGate) > 0 {
			fmt.Println()
			fmt.Println(styles.Label.Render("by gate"))
			for _, k := range sortedKeys(s.ByGate) {
				fmt.Printf("  %-12s %d\n", k, s.ByGate[k])
			}
		}
		if len(s.BySensitivity) > 0 {
			fmt.Println()
			fmt.Println(styles.Label.Render("by sensitivity"))
			for _, k := range sortedKeys(s.BySensitivity) {
				fmt.Printf("  %-12s %d\n", k, s.BySensitivity[k])
			}
		}
		return nil
	},
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
