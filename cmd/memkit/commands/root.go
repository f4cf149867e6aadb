package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/cmd/memkit/internal/config"
)

var (
	// Global flags
	verbose  bool
	flagUser string
	flagTeam string
	flagData string

	// Global configuration (loaded at init time)
	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "memkit",
	Short: "Persistent memory for AI assistants",
	Long: `memkit - persistent, searchable memory for AI assistants.

Writes pass through gates (behavioral, relational, epistemic, promissory,
correction) that decide how a memory decays. Recall fuses semantic and
keyword search and walks the relation graph. Reflect consolidates the
journal, archives faded memories and regenerates the identity card.

Configuration lives in the OS config directory:
  macOS:   ~/Library/Application Support/memkit/config.yaml
  Linux:   ~/.config/memkit/config.yaml
  Windows: %AppData%/memkit/config.yaml

Set "user" there (or pass --user) to name the tenant. Without a qdrant
endpoint configured, data is kept in an embedded index under
~/.local/share/memkit.

Examples:
  # Save and retrieve
  memkit remember "prefers short answers with code examples"
  memkit recall "how does the user like answers"

  # Start a session with full context
  memkit prime

  # Periodic maintenance
  memkit reflect`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&flagUser, "user", "u", "", "tenant user id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagTeam, "team", "", "team id for the shared plane (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagData, "data-dir", "", "embedded index directory (overrides config)")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := config.Load()
	if err != nil {
		// Commands that need config will get a clear error via
		// GetConfig(). This keeps 'memkit version' working.
		configLoadErr = err
		return
	}
	globalConfig = cfg
}

// GetConfig returns the global configuration.
// Returns an error if the config could not be loaded (e.g., HOME not set).
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}
