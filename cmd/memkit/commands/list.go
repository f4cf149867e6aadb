package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/pkg/store"
)

var (
	listGate         string
	listPerson       string
	listProject      string
	listSensitivity  string
	listUnclassified bool
	listLimit        int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memories",
	Long: `List the tenant's memories, newest first, with optional filters.

Examples:
  memkit list
  memkit list --gate promissory
  memkit list --person Dana --limit 20
  memkit list --unclassified`,
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

		ms, err := env.eng.ListMemories(cmd.Context(), tc, store.ListOptions{
			Gate:         listGate,
			Person:       listPerson,
			Project:      listProject,
			Sensitivity:  listSensitivity,
			Unclassified: listUnclassified,
			Limit:        listLimit,
		})
		if err != nil {
			return err
		}

		if len(ms) == 0 {
			fmt.Println("No memories.")
			return nil
		}
		fmt.Printf("%d memories:\n\n", len(ms))
		for _, m := range ms {
			fmt.Println(memoryLine(m))
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one memory in full",
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

		m, err := env.eng.GetMemory(cmd.Context(), tc, args[0])
		if err != nil {
			return err
		}
		printMemory(m)
		return nil
	},
}

// memoryLine renders one listing row.
func memoryLine(m *store.Memory) string {
	var marks []string
	if m.Pinned {
		marks = append(marks, "pinned")
	}
	if m.Sensitivity != "" && m.Sensitivity != "safe" {
		marks = append(marks, m.Sensitivity)
	}
	suffix := ""
	if len(marks) > 0 {
		suffix = " (" + strings.Join(marks, ", ") + ")"
	}
	content := m.Content
	if r := []rune(content); len(r) > 80 {
		content = string(r[:80]) + "..."
	}
	return fmt.Sprintf("%s  [%s, %s]%s %s",
		m.ID, m.Gate, m.Created.UTC().Format("2006-01-02"), suffix, content)
}

func printMemory(m *store.Memory) {
	fmt.Printf("id:          %s\n", m.ID)
	fmt.Printf("content:     %s\n", m.Content)
	fmt.Printf("gate:        %s\n", m.Gate)
	fmt.Printf("decay:       %s\n", m.DecayClass)
	fmt.Printf("confidence:  %.2f\n", m.Confidence)
	fmt.Printf("created:     %s\n", m.Created.UTC().Format(time.RFC3339))
	fmt.Printf("accessed:    %s (%d times)\n", m.LastAccessed.UTC().Format(time.RFC3339), m.AccessCount)
	if m.Person != "" {
		fmt.Printf("person:      %s\n", m.Person)
	}
	if m.Project != "" {
		fmt.Printf("project:     %s\n", m.Project)
	}
	if m.Sensitivity != "" {
		fmt.Printf("sensitivity: %s", m.Sensitivity)
		if m.SensitivityReason != "" {
			fmt.Printf(" (%s)", m.SensitivityReason)
		}
		fmt.Println()
	}
	if m.Pinned {
		fmt.Printf("pinned:      true\n")
	}
	fmt.Printf("visibility:  %s\n", m.Visibility)
	if m.TeamID != "" {
		fmt.Printf("team:        %s\n", m.TeamID)
	}
	if m.CreatedBy != "" {
		fmt.Printf("created by:  %s\n", m.CreatedBy)
	}
	for _, e := range m.Edges {
		fmt.Printf("edge:        %s -> %s\n", e.Relation, e.To)
	}
}

func init() {
	listCmd.Flags().StringVarP(&listGate, "gate", "g", "", "filter by gate")
	listCmd.Flags().StringVarP(&listPerson, "person", "p", "", "filter by person")
	listCmd.Flags().StringVar(&listProject, "project", "", "filter by project")
	listCmd.Flags().StringVar(&listSensitivity, "sensitivity", "", "filter by sensitivity level")
	listCmd.Flags().BoolVar(&listUnclassified, "unclassified", false, "only memories the classifier has not seen")
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 0, "maximum rows (0 = driver default)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
}
