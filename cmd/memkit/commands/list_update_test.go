package commands

import (
	"strings"
	"testing"
)

func TestListAndGet(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, _ := runCmd(t, "remember", "prefers tabs over spaces", "--gate", "behavioral")
	id := cmdMemID(t, stdout)
	runCmd(t, "remember", "the api gateway lives in the infra repo", "--gate", "epistemic")

	stdout, _, code := runCmd(t, "list")
	if code != 0 {
		t.Fatalf("list exit %d", code)
	}
	if !strings.Contains(stdout, "2 memories:") {
		t.Fatalf("expected two rows, got: %s", stdout)
	}
	if !strings.Contains(stdout, "prefers tabs over spaces") {
		t.Fatalf("expected first memory, got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "list", "--gate", "epistemic")
	if code != 0 {
		t.Fatalf("filtered list exit %d", code)
	}
	if !strings.Contains(stdout, "1 memories:") {
		t.Fatalf("expected one epistemic row, got: %s", stdout)
	}
	if strings.Contains(stdout, "prefers tabs") {
		t.Fatalf("behavioral row leaked through the gate filter: %s", stdout)
	}

	stdout, _, code = runCmd(t, "get", id)
	if code != 0 {
		t.Fatalf("get exit %d", code)
	}
	for _, want := range []string{"id:", id, "content:", "prefers tabs over spaces", "gate:", "behavioral", "decay:", "fast"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("get output missing %q: %s", want, stdout)
		}
	}
}

func TestListEmpty(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "list")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "No memories.") {
		t.Fatalf("expected empty message, got: %s", stdout)
	}
}

func TestUpdateGateRederivesDecay(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, _ := runCmd(t, "remember", "will review the billing pr tomorrow", "--gate", "behavioral")
	id := cmdMemID(t, stdout)

	stdout, _, code := runCmd(t, "update", id, "--gate", "promissory")
	if code != 0 {
		t.Fatalf("update exit %d", code)
	}
	if !strings.Contains(stdout, "Updated "+id) {
		t.Fatalf("expected update confirmation, got: %s", stdout)
	}

	stdout, _, _ = runCmd(t, "get", id)
	if !strings.Contains(stdout, "promissory") {
		t.Fatalf("gate not updated: %s", stdout)
	}
	if !strings.Contains(stdout, "never") {
		t.Fatalf("decay not re-derived from the new gate: %s", stdout)
	}
}

func TestUpdateInvalidGate(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, _ := runCmd(t, "remember", "something", "--gate", "epistemic")
	id := cmdMemID(t, stdout)

	_, stderr, code := runCmd(t, "update", id, "--gate", "nonsense")
	if code == 0 {
		t.Fatal("expected non-zero exit for a bad gate")
	}
	if !strings.Contains(stderr, "invalid gate") {
		t.Fatalf("expected gate error, got: %s", stderr)
	}
}

func TestPinUnpin(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, _ := runCmd(t, "remember", "always sign release tags", "--gate", "behavioral")
	id := cmdMemID(t, stdout)

	stdout, _, code := runCmd(t, "pin", id)
	if code != 0 {
		t.Fatalf("pin exit %d", code)
	}
	if !strings.Contains(stdout, "Pinned "+id) {
		t.Fatalf("expected pin confirmation, got: %s", stdout)
	}

	stdout, _, _ = runCmd(t, "list")
	if !strings.Contains(stdout, "(pinned)") {
		t.Fatalf("expected pinned mark in listing, got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "unpin", id)
	if code != 0 {
		t.Fatalf("unpin exit %d", code)
	}
	if !strings.Contains(stdout, "Unpinned "+id) {
		t.Fatalf("expected unpin confirmation, got: %s", stdout)
	}
}

func TestStats(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	runCmd(t, "remember", "met dana from the sre team", "--gate", "relational")
	stdout, _, _ := runCmd(t, "remember", "deploys go through argo", "--gate", "epistemic")
	id := cmdMemID(t, stdout)
	runCmd(t, "pin", id)

	stdout, _, code := runCmd(t, "stats")
	if code != 0 {
		t.Fatalf("stats exit %d", code)
	}
	for _, want := range []string{"memkit stats", "memories  2", "journal   2", "pinned    1", "by gate", "relational", "epistemic"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stats output missing %q: %s", want, stdout)
		}
	}
}
