package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/memkit/pkg/memory"
	"github.com/haivivi/memkit/pkg/store"
)

func TestForget(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1"}

	if _, err := eng.Forget(ctx, tc, "", "cleanup"); !memory.IsValidation(err) {
		t.Errorf("blank id: got %v, want validation error", err)
	}
	if _, err := eng.Forget(ctx, tc, "mem_x", "  "); !memory.IsValidation(err) {
		t.Errorf("blank reason: got %v, want validation error", err)
	}

	out, err := eng.Remember(ctx, tc, memory.RememberRequest{
		Content: "temporary workaround for the deploy",
		Gate:    "epistemic",
	})
	if err != nil {
		t.Fatal(err)
	}
	id := rememberID(t, out)

	got, err := eng.Forget(ctx, tc, id, "superseded")
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if got != "Forgotten: "+id+" (reason: superseded)." {
		t.Errorf("confirmation = %q", got)
	}
	if _, err := s.GetMemory(ctx, "u1", "", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("memory survived: %v", err)
	}

	// A second forget is a miss, reported in text.
	got, err = eng.Forget(ctx, tc, id, "superseded")
	if err != nil {
		t.Fatal(err)
	}
	if got != "No memory found with id: "+id {
		t.Errorf("miss = %q", got)
	}
}

func TestForget_TeamCreatorOnly(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tc1 := memory.TenantContext{UserID: "u1", TeamID: "t1"}

	out, err := eng.Remember(ctx, tc1, memory.RememberRequest{
		Content:    "the deploy freeze starts friday",
		Gate:       "epistemic",
		Visibility: "team",
	})
	if err != nil {
		t.Fatal(err)
	}
	id := rememberID(t, out)

	deny, err := eng.Forget(ctx, memory.TenantContext{UserID: "u2", TeamID: "t1"}, id, "cleanup")
	if err != nil {
		t.Fatalf("Forget as member: %v", err)
	}
	if deny != "Cannot delete team memory "+id+": only the creator or a team admin can delete it." {
		t.Errorf("denial = %q", deny)
	}
	if _, err := s.GetMemory(ctx, store.TeamUser("t1"), "", id); err != nil {
		t.Fatalf("team memory deleted by non-creator: %v", err)
	}

	ok, err := eng.Forget(ctx, tc1, id, "cleanup")
	if err != nil {
		t.Fatalf("Forget as creator: %v", err)
	}
	if ok != "Forgotten: "+id+" (reason: cleanup)." {
		t.Errorf("confirmation = %q", ok)
	}
	if _, err := s.GetMemory(ctx, store.TeamUser("t1"), "", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("team memory survived: %v", err)
	}
}

func TestPinUnpin(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1"}

	seedMemory(t, s, "u1", &store.Memory{ID: "mem_pin", Content: "keep the runbook link handy"})

	if err := eng.Pin(ctx, tc, "mem_pin"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if m, _ := s.GetMemory(ctx, "u1", "", "mem_pin"); !m.Pinned {
		t.Error("not pinned")
	}
	if err := eng.Unpin(ctx, tc, "mem_pin"); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	if m, _ := s.GetMemory(ctx, "u1", "", "mem_pin"); m.Pinned {
		t.Error("still pinned")
	}
	if err := eng.Pin(ctx, tc, "mem_gone"); !memory.IsNotFound(err) {
		t.Errorf("missing id: got %v, want not found", err)
	}
}

func TestPin_TeamMember(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	out, err := eng.Remember(ctx, memory.TenantContext{UserID: "u1", TeamID: "t1"}, memory.RememberRequest{
		Content:    "the deploy freeze starts friday",
		Gate:       "epistemic",
		Visibility: "team",
	})
	if err != nil {
		t.Fatal(err)
	}
	id := rememberID(t, out)

	// Pinning team knowledge is open to every member, not just the creator.
	if err := eng.Pin(ctx, memory.TenantContext{UserID: "u2", TeamID: "t1"}, id); err != nil {
		t.Fatalf("Pin as member: %v", err)
	}
	m, err := s.GetMemory(ctx, store.TeamUser("t1"), "", id)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Pinned {
		t.Error("team memory not pinned")
	}
}

func TestUpdateMemory(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1"}

	seedMemory(t, s, "u1", &store.Memory{ID: "mem_u", Content: "standup is at 10am"})

	// A gate change re-derives the decay class.
	gate := "promissory"
	if err := eng.UpdateMemory(ctx, tc, "mem_u", store.MemoryUpdate{Gate: &gate}); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}
	m, err := s.GetMemory(ctx, "u1", "", "mem_u")
	if err != nil {
		t.Fatal(err)
	}
	if m.Gate != "promissory" || m.DecayClass != "never" {
		t.Errorf("gate/decay = %q/%q, want promissory/never", m.Gate, m.DecayClass)
	}

	// An explicit decay class wins over derivation.
	gate2, dc := "epistemic", "slow"
	if err := eng.UpdateMemory(ctx, tc, "mem_u", store.MemoryUpdate{Gate: &gate2, DecayClass: &dc}); err != nil {
		t.Fatalf("UpdateMemory: %v", err)
	}
	if m, _ := s.GetMemory(ctx, "u1", "", "mem_u"); m.DecayClass != "slow" {
		t.Errorf("DecayClass = %q, want slow", m.DecayClass)
	}

	blank := " "
	badConf := 1.5
	badGate := "vibes"
	badDC := "glacial"
	for name, upd := range map[string]store.MemoryUpdate{
		"blank content":    {Content: &blank},
		"confidence range": {Confidence: &badConf},
		"unknown gate":     {Gate: &badGate},
		"unknown decay":    {DecayClass: &badDC},
	} {
		if err := eng.UpdateMemory(ctx, tc, "mem_u", upd); !memory.IsValidation(err) {
			t.Errorf("%s: got %v, want validation error", name, err)
		}
	}
}

func TestUpdateMemory_TeamCreatorOnly(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tc1 := memory.TenantContext{UserID: "u1", TeamID: "t1"}

	out, err := eng.Remember(ctx, tc1, memory.RememberRequest{
		Content:    "the deploy freeze starts friday",
		Gate:       "epistemic",
		Visibility: "team",
	})
	if err != nil {
		t.Fatal(err)
	}
	id := rememberID(t, out)

	content := "the deploy freeze starts thursday"
	err = eng.UpdateMemory(ctx, memory.TenantContext{UserID: "u2", TeamID: "t1"}, id, store.MemoryUpdate{Content: &content})
	if !memory.IsValidation(err) || !strings.Contains(err.Error(), "only the creator") {
		t.Fatalf("member update: got %v, want creator-only validation error", err)
	}

	if err := eng.UpdateMemory(ctx, tc1, id, store.MemoryUpdate{Content: &content}); err != nil {
		t.Fatalf("creator update: %v", err)
	}
	m, err := s.GetMemory(ctx, store.TeamUser("t1"), "", id)
	if err != nil {
		t.Fatal(err)
	}
	if m.Content != content {
		t.Errorf("Content = %q", m.Content)
	}
}

func TestListMemories(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()
	tc := memory.TenantContext{UserID: "u1"}

	seedMemory(t, s, "u1", &store.Memory{ID: "mem_l1", Content: "coffee habit", Gate: "behavioral", Created: time.Now().UTC().Add(-time.Hour)})
	seedMemory(t, s, "u1", &store.Memory{ID: "mem_l2", Content: "gateway cadence", Gate: "epistemic", Created: time.Now().UTC()})

	all, err := eng.ListMemories(ctx, tc, store.ListOptions{})
	if err != nil {
		t.Fatalf("ListMemories: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}

	byGate, err := eng.ListMemories(ctx, tc, store.ListOptions{Gate: "behavioral"})
	if err != nil {
		t.Fatal(err)
	}
	if len(byGate) != 1 || byGate[0].ID != "mem_l1" {
		t.Errorf("gate filter = %+v", byGate)
	}

	if _, err := eng.ListMemories(ctx, tc, store.ListOptions{Gate: "vibes"}); !memory.IsValidation(err) {
		t.Errorf("bad gate: got %v, want validation error", err)
	}
	if _, err := eng.ListMemories(ctx, tc, store.ListOptions{Sensitivity: "spicy"}); !memory.IsValidation(err) {
		t.Errorf("bad sensitivity: got %v, want validation error", err)
	}
}

func TestTeamMemories(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	tc1 := memory.TenantContext{UserID: "u1", TeamID: "t1"}

	if _, err := eng.TeamMemories(ctx, memory.TenantContext{UserID: "u1"}, store.ListOptions{}); !memory.IsConfig(err) {
		t.Fatalf("no team: got %v, want config error", err)
	}

	if _, err := eng.Remember(ctx, tc1, memory.RememberRequest{
		Content: "deploy keys live in the vault", Gate: "epistemic",
	}); err != nil {
		t.Fatal(err)
	}
	out, err := eng.Remember(ctx, tc1, memory.RememberRequest{
		Content: "deploy freeze every friday", Gate: "epistemic", Visibility: "team",
	})
	if err != nil {
		t.Fatal(err)
	}

	shared, err := eng.TeamMemories(ctx, tc1, store.ListOptions{})
	if err != nil {
		t.Fatalf("TeamMemories: %v", err)
	}
	if len(shared) != 1 || shared[0].ID != rememberID(t, out) {
		t.Errorf("team memories = %+v", shared)
	}
}

func TestMigrate(t *testing.T) {
	eng, s := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.Migrate(ctx, "", "u2"); !memory.IsValidation(err) {
		t.Errorf("blank source: got %v, want validation error", err)
	}
	if _, err := eng.Migrate(ctx, "u2", "u2"); !memory.IsValidation(err) {
		t.Errorf("same ids: got %v, want validation error", err)
	}

	seedMemory(t, s, "mig_src", &store.Memory{ID: "mem_m1", Content: "gateway cadence"})
	seedJournal(t, s, "mig_src", "epistemic", "debugged the gateway", time.Now().UTC())
	if err := s.SetIdentity(ctx, "mig_src", &store.Identity{Content: "# Identity\ncard"}); err != nil {
		t.Fatal(err)
	}

	moved, err := eng.Migrate(ctx, "mig_src", "mig_dst")
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if moved != 3 {
		t.Errorf("moved = %d, want 3", moved)
	}

	if _, err := s.GetMemory(ctx, "mig_dst", "", "mem_m1"); err != nil {
		t.Errorf("memory not at destination: %v", err)
	}
	if _, err := s.GetIdentity(ctx, "mig_dst"); err != nil {
		t.Errorf("identity not at destination: %v", err)
	}
	if n, _ := s.CountJournal(ctx, "mig_dst"); n != 1 {
		t.Errorf("journal at destination = %d, want 1", n)
	}
	if n, _ := s.CountMemories(ctx, "mig_src"); n != 0 {
		t.Errorf("source still holds %d memories", n)
	}
}

func TestStats(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	tc1 := memory.TenantContext{UserID: "u1", TeamID: "t1"}

	if _, err := eng.Remember(ctx, tc1, memory.RememberRequest{
		Content: "prefers dark roast coffee", Gate: "behavioral",
	}); err != nil {
		t.Fatal(err)
	}
	out, err := eng.Remember(ctx, tc1, memory.RememberRequest{
		Content: "the gateway uses blue green", Gate: "epistemic",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.Remember(ctx, tc1, memory.RememberRequest{
		Content: "deploy freeze every friday", Gate: "epistemic", Visibility: "team",
	}); err != nil {
		t.Fatal(err)
	}
	if err := eng.Pin(ctx, tc1, rememberID(t, out)); err != nil {
		t.Fatal(err)
	}

	st, err := eng.Stats(ctx, tc1)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Memories != 2 {
		t.Errorf("Memories = %d, want 2", st.Memories)
	}
	if st.Journal != 3 {
		t.Errorf("Journal = %d, want 3", st.Journal)
	}
	if st.ByGate["behavioral"] != 1 || st.ByGate["epistemic"] != 1 || len(st.ByGate) != 2 {
		t.Errorf("ByGate = %v", st.ByGate)
	}
	if st.Pinned != 1 {
		t.Errorf("Pinned = %d, want 1", st.Pinned)
	}
	if st.TeamShared != 1 {
		t.Errorf("TeamShared = %d, want 1", st.TeamShared)
	}
	if len(st.BySensitivity) != 0 {
		t.Errorf("BySensitivity = %v, want empty", st.BySensitivity)
	}
}
