package memory_test

import (
	"testing"

	"github.com/haivivi/memkit/pkg/memory"
)

func TestAutoGate(t *testing.T) {
	cases := []struct {
		content string
		want    memory.Gate
	}{
		{"I will send the deck by friday", memory.GatePromissory},
		{"remind me to rotate the certs", memory.GatePromissory},
		{"actually the standup moved to 9am", memory.GateCorrection},
		{"turns out the cache was never the problem", memory.GateCorrection},
		{"prefers tabs over spaces, always", memory.GateBehavioral},
		{"my workflow starts with a failing test", memory.GateBehavioral},
		{"she works at the tokyo office", memory.GateRelational},
		{"alice is a staff engineer now", memory.GateRelational},
		{"his boss signs off on every release", memory.GateRelational},
		{"the deploy pipeline caches layers by digest", memory.GateEpistemic},
		{"profiling showed the allocator dominating", memory.GateEpistemic},
	}
	for _, tc := range cases {
		if got := memory.AutoGate(tc.content); got != tc.want {
			t.Errorf("AutoGate(%q) = %s, want %s", tc.content, got, tc.want)
		}
	}
}

// Keyword tables are checked in a fixed order, so content matching several
// gates lands on the strongest claim.
func TestAutoGate_Precedence(t *testing.T) {
	if got := memory.AutoGate("I will always review before merging"); got != memory.GatePromissory {
		t.Errorf("promissory+behavioral = %s, want promissory", got)
	}
	if got := memory.AutoGate("actually I prefer rust for this"); got != memory.GateCorrection {
		t.Errorf("correction+behavioral = %s, want correction", got)
	}
}

func TestExtractPersonProject(t *testing.T) {
	cases := []struct {
		content string
		person  string
		project string
	}{
		{"had lunch with Alice Chen yesterday", "Alice Chen", ""},
		{"got feedback from Bob about repo memkit", "Bob", "memkit"},
		{`working on "memkit" again today`, "", "memkit"},
		{"the project gateway-v2 ships in june", "", "gateway-v2"},
		{"met with Friday about the launch", "", ""},
		{"routine build log, nothing else", "", ""},
	}
	for _, tc := range cases {
		person, project := memory.ExtractPersonProject(tc.content)
		if person != tc.person || project != tc.project {
			t.Errorf("ExtractPersonProject(%q) = (%q, %q), want (%q, %q)",
				tc.content, person, project, tc.person, tc.project)
		}
	}
}
