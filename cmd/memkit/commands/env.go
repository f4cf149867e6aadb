package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/haivivi/memkit/cmd/memkit/internal/config"
	"github.com/haivivi/memkit/pkg/embed"
	"github.com/haivivi/memkit/pkg/memory"
	"github.com/haivivi/memkit/pkg/store"
	"github.com/haivivi/memkit/pkg/synth"
)

// testStoreOverride lets tests run commands against a pre-built store.
var testStoreOverride store.Store

// engineEnv is the runtime environment a command operates in: the
// assembled engine plus the resolved tenant.
type engineEnv struct {
	eng     *memory.Engine
	tenant  memory.TenantContext
	cfg     *config.Config
	dataDir string

	// borrowed stores are owned by the test harness, not closed here.
	borrowed bool
}

func (e *engineEnv) close() {
	if e.eng != nil && !e.borrowed {
		_ = e.eng.Close()
	}
}

// requireTenant returns the tenant context, failing with a hint when no
// user is configured.
func (e *engineEnv) requireTenant() (memory.TenantContext, error) {
	if e.tenant.UserID == "" {
		return memory.TenantContext{}, fmt.Errorf("no user configured: set \"user\" in %s or pass --user", e.cfg.Path)
	}
	return e.tenant, nil
}

// openEngine assembles the memory engine from config, environment and
// flags. Callers must close the returned env.
func openEngine(ctx context.Context) (*engineEnv, error) {
	cfg, err := GetConfig()
	if err != nil {
		return nil, err
	}

	tenant := memory.TenantContext{UserID: cfg.User, TeamID: cfg.Team}
	if flagUser != "" {
		tenant.UserID = flagUser
	}
	if flagTeam != "" {
		tenant.TeamID = flagTeam
	}

	logger := cliLogger()

	if testStoreOverride != nil {
		eng, err := memory.New(memory.Options{Store: testStoreOverride, Logger: logger})
		if err != nil {
			return nil, err
		}
		return &engineEnv{eng: eng, tenant: tenant, cfg: cfg, borrowed: true}, nil
	}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	syn, err := buildSynth(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st, dataDir, err := buildStore(ctx, cfg, emb, logger)
	if err != nil {
		return nil, err
	}

	eng, err := memory.New(memory.Options{
		Store:        st,
		Synth:        syn,
		SynthTimeout: time.Duration(cfg.Synthesizer.TimeoutSeconds) * time.Second,
		Logger:       logger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return &engineEnv{eng: eng, tenant: tenant, cfg: cfg, dataDir: dataDir}, nil
}

// cliLogger returns a debug logger in verbose mode and a silent one
// otherwise, so badger and engine internals stay out of command output.
func cliLogger() *slog.Logger {
	if verbose {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.DiscardHandler)
}

func buildEmbedder(cfg *config.Config) (embed.Embedder, error) {
	var opts []embed.Option
	if cfg.Embedder.Model != "" {
		opts = append(opts, embed.WithModel(cfg.Embedder.Model))
	}
	if cfg.Embedder.Dimension > 0 {
		opts = append(opts, embed.WithDimension(cfg.Embedder.Dimension))
	}

	key := cfg.Embedder.APIKey
	switch cfg.Embedder.Provider {
	case "", "jina":
		if key == "" {
			return nil, fmt.Errorf("no embedder API key: set embedder.api_key in %s or export JINA_API_KEY", cfg.Path)
		}
		return embed.NewJina(key, opts...), nil
	case "openai":
		if key == "" {
			return nil, fmt.Errorf("no embedder API key: set embedder.api_key in %s or export OPENAI_API_KEY", cfg.Path)
		}
		return embed.NewOpenAI(key, opts...), nil
	case "dashscope":
		if key == "" {
			return nil, fmt.Errorf("no embedder API key: set embedder.api_key in %s or export DASHSCOPE_API_KEY", cfg.Path)
		}
		return embed.NewDashScope(key, opts...), nil
	}
	return nil, fmt.Errorf("unknown embedder provider %q (want jina, openai or dashscope)", cfg.Embedder.Provider)
}

// buildSynth returns nil without error when no synthesizer key is
// configured; the engine then skips consolidation and classification.
func buildSynth(ctx context.Context, cfg *config.Config) (synth.Synthesizer, error) {
	key := cfg.Synthesizer.APIKey
	if key == "" {
		return nil, nil
	}
	var opts []synth.Option
	if cfg.Synthesizer.Model != "" {
		opts = append(opts, synth.WithModel(cfg.Synthesizer.Model))
	}
	if cfg.Synthesizer.TimeoutSeconds > 0 {
		opts = append(opts, synth.WithTimeout(time.Duration(cfg.Synthesizer.TimeoutSeconds)*time.Second))
	}
	if cfg.Synthesizer.Provider == "gemini" && !strings.HasPrefix(key, synth.CloudKeyPrefix) {
		return synth.NewGemini(ctx, key, opts...)
	}
	// Relay-issued keys route through the hosted proxy, anything else is
	// a direct Anthropic key.
	return synth.NewForKey(key, opts...), nil
}

func buildStore(ctx context.Context, cfg *config.Config, emb embed.Embedder, logger *slog.Logger) (store.Store, string, error) {
	switch cfg.Index.Mode {
	case "qdrant":
		host, port, useTLS, err := parseIndexURL(cfg)
		if err != nil {
			return nil, "", err
		}
		st, err := store.NewQdrant(ctx, store.QdrantOptions{
			Host:       host,
			Port:       port,
			APIKey:     cfg.Index.APIKey,
			UseTLS:     useTLS,
			Cloud:      cfg.Index.Cloud,
			Collection: cfg.Index.Collection,
			Embedder:   emb,
			Timeout:    time.Duration(cfg.Index.TimeoutSeconds) * time.Second,
			Logger:     logger,
		})
		return st, "", err
	case "", "local":
		dir, err := resolveDataDir(cfg)
		if err != nil {
			return nil, "", err
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, "", fmt.Errorf("create data dir: %w", err)
		}
		st, err := store.OpenLocal(dir, emb, logger)
		return st, dir, err
	}
	return nil, "", fmt.Errorf("unknown index mode %q (want local or qdrant)", cfg.Index.Mode)
}

func resolveDataDir(cfg *config.Config) (string, error) {
	if flagData != "" {
		return flagData, nil
	}
	if cfg.DataDir != "" {
		return cfg.DataDir, nil
	}
	return config.DefaultDataDir()
}

// parseIndexURL splits the configured qdrant endpoint into gRPC dial
// parameters. The scheme decides TLS; the port defaults to 6334.
func parseIndexURL(cfg *config.Config) (host string, port int, useTLS bool, err error) {
	raw := cfg.Index.URL
	if raw == "" {
		return "", 0, false, fmt.Errorf("no qdrant endpoint: set index.url in %s or export QDRANT_URL", cfg.Path)
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, false, fmt.Errorf("parse index url: %w", err)
	}
	if u.Hostname() == "" {
		return "", 0, false, fmt.Errorf("index url %q has no host", cfg.Index.URL)
	}
	port = 6334
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", 0, false, fmt.Errorf("index url %q: bad port", cfg.Index.URL)
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}
