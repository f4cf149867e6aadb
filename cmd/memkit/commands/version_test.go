package commands

import (
	"strings"
	"testing"
)

func TestVersion(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "version")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "memkit") {
		t.Fatalf("expected 'memkit', got: %s", stdout)
	}
}

func TestVersionVerbose(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "version", "--verbose")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "go:") {
		t.Fatalf("expected go version line, got: %s", stdout)
	}
	if !strings.Contains(stdout, "config.yaml") {
		t.Fatalf("expected config path, got: %s", stdout)
	}
}
