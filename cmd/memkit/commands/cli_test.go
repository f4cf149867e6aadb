package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/memkit/pkg/kv"
	"github.com/haivivi/memkit/pkg/store"
	"github.com/haivivi/memkit/pkg/vecstore"
)

// stubEmbed is a deterministic offline embedder: characters hash into
// vector buckets. Plenty for command plumbing tests, where the sparse
// keyword leg carries the actual matching.
type stubEmbed struct{ dim int }

func (e stubEmbed) Embed(_ context.Context, text string) ([]float32, error) {
	v := make([]float32, e.dim)
	for i, r := range strings.ToLower(text) {
		v[(i+int(r))%e.dim]++
	}
	return v, nil
}

func (e stubEmbed) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e stubEmbed) Dimension() int { return e.dim }

// setupTestEnv points the CLI at a temp config dir with a tenant
// configured, relocates the data dir, and injects a fresh in-memory
// store. Team tests opt in with the --team flag. The returned cleanup
// restores everything.
func setupTestEnv(t *testing.T) func() {
	t.Helper()

	cfgDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(cfgDir, "config.yaml"), []byte("user: tester\n"), 0600); err != nil {
		t.Fatal(err)
	}
	oldCfg := os.Getenv("MEMKIT_CONFIG_DIR")
	os.Setenv("MEMKIT_CONFIG_DIR", cfgDir)

	dataDir := t.TempDir()
	oldData := os.Getenv("MEMKIT_DATA_DIR")
	os.Setenv("MEMKIT_DATA_DIR", dataDir)

	st, err := store.NewLocal(store.LocalOptions{
		KV:       kv.NewMemory(),
		Vectors:  vecstore.NewMemory(),
		Embedder: stubEmbed{dim: 16},
		Logger:   cliLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	testStoreOverride = st

	return func() {
		testStoreOverride = nil
		restoreEnv("MEMKIT_CONFIG_DIR", oldCfg)
		restoreEnv("MEMKIT_DATA_DIR", oldData)
	}
}

func restoreEnv(name, old string) {
	if old == "" {
		os.Unsetenv(name)
	} else {
		os.Setenv(name, old)
	}
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	oldStdout := os.Stdout
	oldStderr := os.Stderr

	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout = wOut
	os.Stderr = wErr

	verbose = false
	flagUser = ""
	flagTeam = ""
	flagData = ""

	rootCmd.SetArgs(args)
	err := rootCmd.Execute()

	wOut.Close()
	wErr.Close()
	os.Stdout = oldStdout
	os.Stderr = oldStderr

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(rOut)
	errBuf.ReadFrom(rErr)

	stdout = outBuf.String()
	stderr = errBuf.String()
	if err != nil {
		exitCode = 1
		if stderr == "" {
			stderr = err.Error()
		}
	}

	resetFlags(rootCmd)
	return
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
		f.Value.Set(f.DefValue)
	})
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// cmdMemID pulls the memory id out of a remember confirmation.
func cmdMemID(t *testing.T, stdout string) string {
	t.Helper()
	i := strings.Index(stdout, "(id: ")
	if i < 0 {
		t.Fatalf("no id in output: %s", stdout)
	}
	rest := stdout[i+len("(id: "):]
	j := strings.Index(rest, ")")
	if j < 0 {
		t.Fatalf("unterminated id in output: %s", stdout)
	}
	return rest[:j]
}
