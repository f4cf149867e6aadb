package commands

import (
	"strings"
	"testing"
)

func TestCheckpointAndShow(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "checkpoint", "show")
	if code != 0 {
		t.Fatalf("show exit %d", code)
	}
	if !strings.Contains(stdout, "No checkpoint yet.") {
		t.Fatalf("expected empty message, got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "checkpoint", "billing refactor half done, retry tests red")
	if code != 0 {
		t.Fatalf("checkpoint exit %d: %s", code, stdout)
	}
	if !strings.Contains(stdout, "Checkpoint saved.") {
		t.Fatalf("expected save confirmation, got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "checkpoint", "show")
	if code != 0 {
		t.Fatalf("show exit %d", code)
	}
	if !strings.Contains(stdout, "billing refactor half done, retry tests red") {
		t.Fatalf("expected checkpoint content, got: %s", stdout)
	}
}

func TestPrimeEmpty(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "prime")
	if code != 0 {
		t.Fatalf("prime exit %d", code)
	}
	if stdout != "" {
		t.Fatalf("expected silence for a fresh tenant, got: %s", stdout)
	}
}

func TestPrimeSections(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	runCmd(t, "identity", "set", "Backend engineer on the payments platform.")
	runCmd(t, "checkpoint", "migrating invoice storage to postgres")
	runCmd(t, "remember", "invoices table uses ulid primary keys", "--gate", "epistemic")

	stdout, _, code := runCmd(t, "prime")
	if code != 0 {
		t.Fatalf("prime exit %d", code)
	}
	for _, want := range []string{
		"--- Who I am ---",
		"Backend engineer on the payments platform.",
		"--- Last session checkpoint ---",
		"migrating invoice storage to postgres",
		"--- Recent context ---",
		"[epistemic] invoices table uses ulid primary keys",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("prime output missing %q: %s", want, stdout)
		}
	}
}

func TestPrimeTeamRules(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	runCmd(t, "rules", "add", "staging deploys need a second reviewer", "--shared", "--team", "platform")

	stdout, _, code := runCmd(t, "prime", "--team", "platform")
	if code != 0 {
		t.Fatalf("prime exit %d", code)
	}
	if !strings.Contains(stdout, "--- Team rules ---") {
		t.Fatalf("expected team rules section, got: %s", stdout)
	}
	if !strings.Contains(stdout, "staging deploys need a second reviewer") {
		t.Fatalf("expected the rule condition, got: %s", stdout)
	}
}

func TestObserveSkippedByPrime(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "observe", "spent the afternoon in the profiler")
	if code != 0 {
		t.Fatalf("observe exit %d", code)
	}
	if !strings.Contains(stdout, "Noted.") {
		t.Fatalf("expected confirmation, got: %s", stdout)
	}

	// Observations are journal-only and never primed.
	stdout, _, _ = runCmd(t, "prime")
	if stdout != "" {
		t.Fatalf("expected silence, got: %s", stdout)
	}
}

func TestReflectFreshTenant(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	runCmd(t, "remember", "new memory, nothing fading", "--gate", "epistemic")

	// No synthesizer configured: only archival runs, and a fresh memory
	// never qualifies.
	stdout, _, code := runCmd(t, "reflect")
	if code != 0 {
		t.Fatalf("reflect exit %d", code)
	}
	if !strings.Contains(stdout, "Nothing to reflect on.") {
		t.Fatalf("expected idle report, got: %s", stdout)
	}
}

func TestIdentitySetAndShow(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "identity")
	if code != 0 {
		t.Fatalf("identity exit %d", code)
	}
	if !strings.Contains(stdout, "No identity card yet.") {
		t.Fatalf("expected empty message, got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "identity", "set", "Infra engineer, owns the deploy tooling.", "--person", "sam")
	if code != 0 {
		t.Fatalf("set exit %d: %s", code, stdout)
	}
	if !strings.Contains(stdout, "Identity card saved.") {
		t.Fatalf("expected save confirmation, got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "identity")
	if code != 0 {
		t.Fatalf("identity exit %d", code)
	}
	for _, want := range []string{"person:  sam", "Infra engineer, owns the deploy tooling.", "last updated:"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("identity output missing %q: %s", want, stdout)
		}
	}
}
