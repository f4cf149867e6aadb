package memory_test

import (
	"context"
	"strings"
	"testing"

	"github.com/haivivi/memkit/pkg/memory"
	"github.com/haivivi/memkit/pkg/store"
)

func TestIdentityRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1"}

	if _, err := eng.GetIdentity(ctx, tc); !memory.IsNotFound(err) {
		t.Fatalf("fresh tenant: got %v, want not found", err)
	}

	err := eng.SetIdentity(ctx, tc, &store.Identity{
		Person:  "sam",
		Project: "gateway",
		Content: "# Identity\nsam ships the gateway",
	})
	if err != nil {
		t.Fatalf("SetIdentity: %v", err)
	}

	card, err := eng.GetIdentity(ctx, tc)
	if err != nil {
		t.Fatalf("GetIdentity: %v", err)
	}
	if card.Person != "sam" || card.Project != "gateway" {
		t.Errorf("card = %q/%q", card.Person, card.Project)
	}
	if card.Content != "# Identity\nsam ships the gateway" {
		t.Errorf("content = %q", card.Content)
	}
	if card.LastUpdated.IsZero() {
		t.Error("LastUpdated not stamped")
	}
}

func TestSetIdentity_Validation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1"}

	if err := eng.SetIdentity(ctx, tc, nil); !memory.IsValidation(err) {
		t.Errorf("nil card: got %v, want validation error", err)
	}
	if err := eng.SetIdentity(ctx, tc, &store.Identity{Content: "   "}); !memory.IsValidation(err) {
		t.Errorf("blank content: got %v, want validation error", err)
	}
	long := strings.Repeat("x", 50_001)
	if err := eng.SetIdentity(ctx, tc, &store.Identity{Content: long}); !memory.IsValidation(err) {
		t.Errorf("oversize content: got %v, want validation error", err)
	}
}

func TestCheckpoint(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1"}

	if _, err := eng.LatestCheckpoint(ctx, tc); !memory.IsNotFound(err) {
		t.Fatalf("fresh tenant: got %v, want not found", err)
	}
	if err := eng.Checkpoint(ctx, tc, "  "); !memory.IsValidation(err) {
		t.Errorf("blank content: got %v, want validation error", err)
	}

	if err := eng.Checkpoint(ctx, tc, "migrating the database | next: cutover"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}
	if err := eng.Checkpoint(ctx, tc, "cutover done | next: cleanup"); err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	cp, err := eng.LatestCheckpoint(ctx, tc)
	if err != nil {
		t.Fatalf("LatestCheckpoint: %v", err)
	}
	if cp.Content != "cutover done | next: cleanup" {
		t.Errorf("checkpoint = %q, want the newest one", cp.Content)
	}
	if cp.Gate != "checkpoint" {
		t.Errorf("gate = %q", cp.Gate)
	}
}

func TestPrime(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1", TeamID: "t1"}

	err := eng.SetIdentity(ctx, tc, &store.Identity{Content: "# Identity\nI ship the gateway"})
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.Checkpoint(ctx, tc, "migrating the database | next: cutover"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Remember(ctx, tc, memory.RememberRequest{
		Content: "the gateway deploy uses blue green",
		Gate:    "epistemic",
	}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Observe(ctx, tc, "watching the build logs"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddRule(ctx, tc, memory.RuleSpec{
		Scope:       "deploy",
		Condition:   "never deploy on fridays",
		Enforcement: "block",
		Team:        true,
	}); err != nil {
		t.Fatal(err)
	}

	out, err := eng.Prime(ctx, tc)
	if err != nil {
		t.Fatalf("Prime: %v", err)
	}

	idxWho := strings.Index(out, "--- Who I am ---\n# Identity\nI ship the gateway")
	idxCp := strings.Index(out, "--- Last session checkpoint ---\nmigrating the database | next: cutover")
	idxRecent := strings.Index(out, "--- Recent context ---\n[epistemic] the gateway deploy uses blue green")
	idxRules := strings.Index(out, "--- Team rules ---\n- [deploy] never deploy on fridays (block)")
	if idxWho < 0 || idxCp < 0 || idxRecent < 0 || idxRules < 0 {
		t.Fatalf("prime = %q, missing a section", out)
	}
	if !(idxWho < idxCp && idxCp < idxRecent && idxRecent < idxRules) {
		t.Errorf("section order = %d/%d/%d/%d", idxWho, idxCp, idxRecent, idxRules)
	}

	// Checkpoints appear in their own section only, observations nowhere.
	if strings.Count(out, "migrating the database") != 1 {
		t.Errorf("checkpoint duplicated in recent context: %q", out)
	}
	if strings.Contains(out, "watching the build logs") {
		t.Errorf("observation leaked into prime: %q", out)
	}
}

func TestPrime_NewTenant(t *testing.T) {
	eng, _ := newTestEngine(t)
	out, err := eng.Prime(context.Background(), memory.TenantContext{UserID: "brand-new"})
	if err != nil {
		t.Fatalf("Prime: %v", err)
	}
	if out != "" {
		t.Errorf("prime = %q, want empty", out)
	}
}
