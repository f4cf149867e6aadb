package memory_test

import (
	"testing"
	"time"

	"github.com/haivivi/memkit/pkg/memory"
	"github.com/haivivi/memkit/pkg/store"
)

func TestGateDecayClass(t *testing.T) {
	cases := []struct {
		gate memory.Gate
		want memory.DecayClass
	}{
		{memory.GatePromissory, memory.DecayNever},
		{memory.GateRelational, memory.DecaySlow},
		{memory.GateEpistemic, memory.DecayModerate},
		{memory.GateCorrection, memory.DecayModerate},
		{memory.GateDigest, memory.DecayModerate},
		{memory.GateBehavioral, memory.DecayFast},
		{memory.GateCheckpoint, memory.DecayFast},
		{memory.GateObservation, memory.DecayFast},
	}
	for _, tc := range cases {
		if got := tc.gate.DecayClass(); got != tc.want {
			t.Errorf("%s.DecayClass() = %s, want %s", tc.gate, got, tc.want)
		}
	}
}

func TestParseGate(t *testing.T) {
	for _, s := range []string{"behavioral", "relational", "epistemic", "promissory", "correction"} {
		if _, ok := memory.ParseGate(s); !ok {
			t.Errorf("ParseGate(%q) rejected a write gate", s)
		}
	}
	// Journal-only gates and junk never parse as write gates.
	for _, s := range []string{"checkpoint", "digest", "observation", "vibes", "", "Behavioral"} {
		if _, ok := memory.ParseGate(s); ok {
			t.Errorf("ParseGate(%q) accepted", s)
		}
	}
}

func TestHalfLifeDays(t *testing.T) {
	cases := []struct {
		class memory.DecayClass
		want  float64
	}{
		{memory.DecayNever, 0},
		{memory.DecaySlow, 180},
		{memory.DecayModerate, 90},
		{memory.DecayFast, 30},
	}
	for _, tc := range cases {
		if got := tc.class.HalfLifeDays(); got != tc.want {
			t.Errorf("%s.HalfLifeDays() = %v, want %v", tc.class, got, tc.want)
		}
	}
}

func TestRecency(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	fast := &store.Memory{DecayClass: "fast", LastAccessed: now.Add(-30 * 24 * time.Hour)}
	if got := memory.Recency(fast, now); got != 0.5 {
		t.Errorf("fast at one half-life: Recency = %v, want 0.5", got)
	}

	never := &store.Memory{DecayClass: "never", LastAccessed: now.Add(-400 * 24 * time.Hour)}
	if got := memory.Recency(never, now); got != 1 {
		t.Errorf("never-decay: Recency = %v, want 1", got)
	}

	fresh := &store.Memory{DecayClass: "fast", LastAccessed: now}
	if got := memory.Recency(fresh, now); got != 1 {
		t.Errorf("just accessed: Recency = %v, want 1", got)
	}

	// A clock skew putting the access in the future must not inflate.
	future := &store.Memory{DecayClass: "fast", LastAccessed: now.Add(time.Hour)}
	if got := memory.Recency(future, now); got != 1 {
		t.Errorf("future access: Recency = %v, want 1", got)
	}
}

func TestFrequency(t *testing.T) {
	if got := memory.Frequency(&store.Memory{AccessCount: 0}); got != 0 {
		t.Errorf("count 0: Frequency = %v, want 0", got)
	}
	if got := memory.Frequency(&store.Memory{AccessCount: 1}); got != 1 {
		t.Errorf("count 1: Frequency = %v, want 1", got)
	}
	if got := memory.Frequency(&store.Memory{AccessCount: 3}); got != 2 {
		t.Errorf("count 3: Frequency = %v, want 2", got)
	}
}

func TestIsFading(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	faded := &store.Memory{DecayClass: "fast", AccessCount: 1, LastAccessed: now.Add(-150 * 24 * time.Hour)}
	if !memory.IsFading(faded, now) {
		t.Error("five half-lives old, one access: IsFading = false, want true")
	}

	never := &store.Memory{DecayClass: "never", AccessCount: 1, LastAccessed: now.Add(-400 * 24 * time.Hour)}
	if memory.IsFading(never, now) {
		t.Error("never-decay: IsFading = true, want false")
	}

	fresh := &store.Memory{DecayClass: "fast", AccessCount: 1, LastAccessed: now.Add(-24 * time.Hour)}
	if memory.IsFading(fresh, now) {
		t.Error("one day old: IsFading = true, want false")
	}

	// Pinning is an archival concern; the score itself ignores it.
	pinned := &store.Memory{DecayClass: "fast", AccessCount: 1, Pinned: true, LastAccessed: now.Add(-150 * 24 * time.Hour)}
	if !memory.IsFading(pinned, now) {
		t.Error("pinned but stale: IsFading = false, want true")
	}
}

func TestDecayScore(t *testing.T) {
	now := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	m := &store.Memory{DecayClass: "fast", AccessCount: 3, LastAccessed: now.Add(-30 * 24 * time.Hour)}
	if got := memory.DecayScore(m, now); got != 1 {
		t.Errorf("DecayScore = %v, want 1 (0.5 recency * 2 frequency)", got)
	}
}

func TestParseEnforcement(t *testing.T) {
	for _, s := range []string{"suggest", "enforce", "block"} {
		if _, ok := memory.ParseEnforcement(s); !ok {
			t.Errorf("ParseEnforcement(%q) rejected", s)
		}
	}
	if _, ok := memory.ParseEnforcement("advise"); ok {
		t.Error(`ParseEnforcement("advise") accepted`)
	}
}

func TestParseSensitivity(t *testing.T) {
	for _, s := range []string{"safe", "sensitive", "critical", "unknown"} {
		if _, ok := memory.ParseSensitivity(s); !ok {
			t.Errorf("ParseSensitivity(%q) rejected", s)
		}
	}
	if _, ok := memory.ParseSensitivity("spicy"); ok {
		t.Error(`ParseSensitivity("spicy") accepted`)
	}
}
