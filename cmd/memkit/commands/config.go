package commands

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/haivivi/memkit/cmd/memkit/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long: `Show or edit the memkit config file. Keys use dotted paths
matching the YAML layout.

Examples:
  memkit config
  memkit config set user sam
  memkit config set team platform
  memkit config set index.url https://xyz.cloud.qdrant.io:6334
  memkit config set synthesizer.api_key sk-ant-...
  memkit config path`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		out := *cfg
		out.Index.APIKey = maskKey(out.Index.APIKey)
		out.Embedder.APIKey = maskKey(out.Embedder.APIKey)
		out.Synthesizer.APIKey = maskKey(out.Synthesizer.APIKey)

		data, err := yaml.Marshal(&out)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Edit the file as written, not the env-overlaid view, so
		// exported variables never end up on disk.
		cfg, err := config.LoadFile()
		if err != nil {
			return err
		}
		if err := setConfigKey(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := cfg.Save(); err != nil {
			return err
		}
		fmt.Printf("Set %s\n", args[0])
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		fmt.Println(cfg.Path)
		return nil
	},
}

// setConfigKey assigns one dotted key. Unknown keys are rejected so typos
// don't silently vanish into the YAML.
func setConfigKey(cfg *config.Config, key, value string) error {
	switch key {
	case "user":
		cfg.User = value
	case "team":
		cfg.Team = value
	case "data_dir":
		cfg.DataDir = value
	case "index.mode":
		if value != "local" && value != "qdrant" {
			return fmt.Errorf("index.mode must be local or qdrant")
		}
		cfg.Index.Mode = value
	case "index.url":
		cfg.Index.URL = value
	case "index.api_key":
		cfg.Index.APIKey = value
	case "index.collection":
		cfg.Index.Collection = value
	case "index.cloud":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("index.cloud: %w", err)
		}
		cfg.Index.Cloud = b
	case "index.timeout_seconds":
		return setIntKey(&cfg.Index.TimeoutSeconds, key, value)
	case "embedder.provider":
		cfg.Embedder.Provider = value
	case "embedder.model":
		cfg.Embedder.Model = value
	case "embedder.dimension":
		return setIntKey(&cfg.Embedder.Dimension, key, value)
	case "embedder.api_key":
		cfg.Embedder.APIKey = value
	case "synthesizer.provider":
		cfg.Synthesizer.Provider = value
	case "synthesizer.model":
		cfg.Synthesizer.Model = value
	case "synthesizer.api_key":
		cfg.Synthesizer.APIKey = value
	case "synthesizer.timeout_seconds":
		return setIntKey(&cfg.Synthesizer.TimeoutSeconds, key, value)
	case "snapshots.bucket":
		cfg.Snapshots.Bucket = value
	case "snapshots.prefix":
		cfg.Snapshots.Prefix = value
	case "snapshots.region":
		cfg.Snapshots.Region = value
	case "snapshots.endpoint":
		cfg.Snapshots.Endpoint = value
	default:
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}

func setIntKey(dst *int, key, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// maskKey hides all but the tail of an API key.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}
