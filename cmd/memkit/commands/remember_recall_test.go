package commands

import (
	"strings"
	"testing"
)

func TestRememberAndRecall(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "remember", "switched the gateway service to rust", "--gate", "epistemic")
	if code != 0 {
		t.Fatalf("remember exit %d: %s", code, stdout)
	}
	if !strings.Contains(stdout, "Remembered [epistemic]") {
		t.Fatalf("expected confirmation, got: %s", stdout)
	}
	if !strings.Contains(stdout, "(id: mem_") {
		t.Fatalf("expected memory id, got: %s", stdout)
	}

	stdout, _, code = runCmd(t, "recall", "gateway rust")
	if code != 0 {
		t.Fatalf("recall exit %d", code)
	}
	if !strings.Contains(stdout, "switched the gateway service to rust") {
		t.Fatalf("expected the memory back, got: %s", stdout)
	}
}

func TestRecallNoMatches(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "recall", "anything at all")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "No memories found") {
		t.Fatalf("expected empty-result message, got: %s", stdout)
	}
}

func TestRememberNoUser(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	// Point at an empty config dir so no user is configured.
	t.Setenv("MEMKIT_CONFIG_DIR", t.TempDir())

	_, stderr, code := runCmd(t, "remember", "something")
	if code == 0 {
		t.Fatal("expected non-zero exit without a user")
	}
	if !strings.Contains(stderr, "no user configured") {
		t.Fatalf("expected user hint, got: %s", stderr)
	}
}

func TestRememberSharedNeedsTeam(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	_, stderr, code := runCmd(t, "remember", "release cut thursdays", "--shared")
	if code == 0 {
		t.Fatal("expected non-zero exit without a team")
	}
	if !strings.Contains(stderr, "no team configured") {
		t.Fatalf("expected team hint, got: %s", stderr)
	}
}

func TestRememberSharedAndTeams(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, code := runCmd(t, "remember", "release cut thursdays", "--shared", "--team", "platform")
	if code != 0 {
		t.Fatalf("remember exit %d: %s", code, stdout)
	}

	stdout, _, code = runCmd(t, "teams", "--team", "platform")
	if code != 0 {
		t.Fatalf("teams exit %d", code)
	}
	if !strings.Contains(stdout, "1 shared memories") {
		t.Fatalf("expected one shared memory, got: %s", stdout)
	}
	if !strings.Contains(stdout, "release cut thursdays") {
		t.Fatalf("expected shared content, got: %s", stdout)
	}
	if !strings.Contains(stdout, "(by tester)") {
		t.Fatalf("expected creator attribution, got: %s", stdout)
	}
}

func TestForget(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	stdout, _, _ := runCmd(t, "remember", "temporary note about standup", "--gate", "behavioral")
	id := cmdMemID(t, stdout)

	stdout, _, code := runCmd(t, "forget", id, "--reason", "testing cleanup")
	if code != 0 {
		t.Fatalf("forget exit %d", code)
	}
	if !strings.Contains(stdout, "Forgotten: "+id) {
		t.Fatalf("expected deletion confirmation, got: %s", stdout)
	}

	_, _, code = runCmd(t, "get", id)
	if code == 0 {
		t.Fatal("expected get to fail after forget")
	}
}

func TestForgetRequiresReason(t *testing.T) {
	cleanup := setupTestEnv(t)
	defer cleanup()

	_, stderr, code := runCmd(t, "forget", "mem_x")
	if code == 0 {
		t.Fatal("expected non-zero exit without --reason")
	}
	if !strings.Contains(stderr, "reason") {
		t.Fatalf("expected reason in error, got: %s", stderr)
	}
}
