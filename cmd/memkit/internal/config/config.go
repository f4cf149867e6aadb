// Package config loads the memkit CLI configuration.
//
// Configuration lives in a single YAML file under os.UserConfigDir():
//
//	~/Library/Application Support/memkit/config.yaml   (macOS)
//	~/.config/memkit/config.yaml                       (Linux)
//	%AppData%/memkit/config.yaml                       (Windows)
//
// Every value can be overridden by environment variables (MEMKIT_USER,
// MEMKIT_TEAM, MEMKIT_DATA_DIR, QDRANT_URL, QDRANT_API_KEY, JINA_API_KEY,
// OPENAI_API_KEY, DASHSCOPE_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY)
// and, above those, by command-line flags. MEMKIT_CONFIG_DIR relocates the
// whole config directory, which the tests use.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// appDir is the directory name under os.UserConfigDir().
const appDir = "memkit"

// configFile is the YAML file name inside the config directory.
const configFile = "config.yaml"

// Index selects and locates the retrieval backend.
type Index struct {
	// Mode is "local" (embedded driver, the default) or "qdrant".
	Mode string `yaml:"mode,omitempty"`

	// URL locates the qdrant endpoint, e.g. "https://xyz.cloud.qdrant.io:6334"
	// or a bare "host:port". The scheme decides TLS.
	URL string `yaml:"url,omitempty"`

	APIKey string `yaml:"api_key,omitempty"`

	// Collection overrides the default collection name.
	Collection string `yaml:"collection,omitempty"`

	// Cloud marks a multi-tenant deployment (per-tenant HNSW links).
	Cloud bool `yaml:"cloud,omitempty"`

	// TimeoutSeconds bounds each index call. 0 means the driver default.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// Embedder selects the dense embedding backend.
type Embedder struct {
	// Provider is "jina" (default), "openai" or "dashscope".
	Provider string `yaml:"provider,omitempty"`

	Model     string `yaml:"model,omitempty"`
	Dimension int    `yaml:"dimension,omitempty"`
	APIKey    string `yaml:"api_key,omitempty"`
}

// Synthesizer selects the text synthesis backend.
type Synthesizer struct {
	// Provider is "anthropic" (default) or "gemini". Keys carrying the
	// relay prefix route through the hosted proxy regardless of provider.
	Provider string `yaml:"provider,omitempty"`

	Model  string `yaml:"model,omitempty"`
	APIKey string `yaml:"api_key,omitempty"`

	// TimeoutSeconds bounds each synthesis call. 0 means 60s.
	TimeoutSeconds int `yaml:"timeout_seconds,omitempty"`
}

// Snapshots configures the export/import file store. With an empty Bucket
// snapshots are plain files under <data_dir>/snapshots.
type Snapshots struct {
	Bucket   string `yaml:"bucket,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
	Region   string `yaml:"region,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"`
}

// Config is the full CLI configuration.
type Config struct {
	// User is the tenant every command runs as.
	User string `yaml:"user,omitempty"`

	// Team enables the shared plane when set.
	Team string `yaml:"team,omitempty"`

	// DataDir holds the embedded driver's files.
	// Defaults to ~/.local/share/memkit.
	DataDir string `yaml:"data_dir,omitempty"`

	Index       Index       `yaml:"index,omitempty"`
	Embedder    Embedder    `yaml:"embedder,omitempty"`
	Synthesizer Synthesizer `yaml:"synthesizer,omitempty"`
	Snapshots   Snapshots   `yaml:"snapshots,omitempty"`

	// Path is where the config was loaded from. Not serialized.
	Path string `yaml:"-"`
}

// Dir returns the config directory, honouring MEMKIT_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv("MEMKIT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine config directory: %w", err)
	}
	return filepath.Join(base, appDir), nil
}

// Load reads the config file and applies environment overrides. A missing
// file is not an error: the zero config with env overrides is returned.
func Load() (*Config, error) {
	cfg, err := LoadFile()
	if err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// LoadFile reads the config file without environment overrides. Editing
// commands use it so env values never get written back to disk.
func LoadFile() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	cfg := &Config{Path: filepath.Join(dir, configFile)}

	data, err := os.ReadFile(cfg.Path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", cfg.Path, err)
		}
	case os.IsNotExist(err):
		// First run: defaults plus environment.
	default:
		return nil, fmt.Errorf("read %s: %w", cfg.Path, err)
	}
	return cfg, nil
}

// Save writes the config back to its file, creating the directory.
func (c *Config) Save() error {
	if c.Path == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		c.Path = filepath.Join(dir, configFile)
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", c.Path, err)
	}
	return nil
}

// applyEnv layers environment variables over the file values.
func (c *Config) applyEnv() {
	setenv(&c.User, "MEMKIT_USER")
	setenv(&c.Team, "MEMKIT_TEAM")
	setenv(&c.DataDir, "MEMKIT_DATA_DIR")

	setenv(&c.Index.URL, "QDRANT_URL")
	setenv(&c.Index.APIKey, "QDRANT_API_KEY")
	if c.Index.Mode == "" && c.Index.URL != "" {
		c.Index.Mode = "qdrant"
	}

	// Provider keys: only the variable matching the selected provider
	// applies, with Jina and Anthropic as the unconfigured defaults.
	switch c.Embedder.Provider {
	case "openai":
		setenv(&c.Embedder.APIKey, "OPENAI_API_KEY")
	case "dashscope":
		setenv(&c.Embedder.APIKey, "DASHSCOPE_API_KEY")
	default:
		setenv(&c.Embedder.APIKey, "JINA_API_KEY")
	}
	switch c.Synthesizer.Provider {
	case "gemini":
		setenv(&c.Synthesizer.APIKey, "GEMINI_API_KEY")
	default:
		setenv(&c.Synthesizer.APIKey, "ANTHROPIC_API_KEY")
	}
}

func setenv(dst *string, name string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// DefaultDataDir returns ~/.local/share/memkit.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "memkit"), nil
}
