package memory

import (
	"math"
	"time"

	"github.com/haivivi/memkit/pkg/store"
)

// Gate is the reason a memory was worth writing. Every memory passes
// exactly one gate, and the gate decides how fast it decays.
type Gate string

// The five write gates, plus the journal-only gates the engine writes
// itself (checkpoints, weekly digests, flow observations).
const (
	GateBehavioral Gate = "behavioral"
	GateRelational Gate = "relational"
	GateEpistemic  Gate = "epistemic"
	GatePromissory Gate = "promissory"
	GateCorrection Gate = "correction"

	GateCheckpoint  Gate = "checkpoint"
	GateDigest      Gate = "digest"
	GateObservation Gate = "observation"
)

// ParseGate maps a user-supplied string to one of the five write gates.
// Journal-only gates do not parse; they are never valid on a Remember call.
func ParseGate(s string) (Gate, bool) {
	switch Gate(s) {
	case GateBehavioral, GateRelational, GateEpistemic, GatePromissory, GateCorrection:
		return Gate(s), true
	}
	return "", false
}

// DecayClass buckets memories by half-life. Never-decay memories stay at
// full recency forever; the rest halve on a fixed schedule.
type DecayClass string

const (
	DecayNever    DecayClass = "never"
	DecaySlow     DecayClass = "slow"
	DecayModerate DecayClass = "moderate"
	DecayFast     DecayClass = "fast"
)

// DecayClass returns the decay bucket a gate assigns at write time.
// Commitments never fade on their own; who-people-are fades slowly;
// lessons at a moderate pace; habits and bookkeeping fast.
func (g Gate) DecayClass() DecayClass {
	switch g {
	case GatePromissory:
		return DecayNever
	case GateRelational:
		return DecaySlow
	case GateEpistemic, GateCorrection, GateDigest:
		return DecayModerate
	}
	return DecayFast
}

// HalfLifeDays returns the recency half-life in days, or 0 for classes
// that do not decay.
func (d DecayClass) HalfLifeDays() float64 {
	switch d {
	case DecaySlow:
		return 180
	case DecayModerate:
		return 90
	case DecayFast:
		return 30
	}
	return 0
}

// fadingThreshold is the decay score below which a non-pinned,
// non-never memory qualifies for archival.
const fadingThreshold = 0.05

// Recency is the exponential-decay freshness of m at `now`:
// 0.5^(days since last access / half-life). Never-decay memories and
// classes without a half-life score 1.
func Recency(m *store.Memory, now time.Time) float64 {
	d := DecayClass(m.DecayClass)
	if d == DecayNever {
		return 1
	}
	half := d.HalfLifeDays()
	if half <= 0 {
		return 1
	}
	days := now.Sub(m.LastAccessed).Hours() / 24
	if days <= 0 {
		return 1
	}
	return math.Pow(0.5, days/half)
}

// Frequency is the log-scaled access weight of m: log2(access_count + 1).
// A memory never recalled scores 0 regardless of freshness.
func Frequency(m *store.Memory) float64 {
	if m.AccessCount <= 0 {
		return 0
	}
	return math.Log2(float64(m.AccessCount) + 1)
}

// DecayScore is Recency * Frequency.
func DecayScore(m *store.Memory, now time.Time) float64 {
	return Recency(m, now) * Frequency(m)
}

// IsFading reports whether m has decayed far enough to archive.
// Never-decay memories never fade.
func IsFading(m *store.Memory, now time.Time) bool {
	if DecayClass(m.DecayClass) == DecayNever {
		return false
	}
	return DecayScore(m, now) < fadingThreshold
}

// Visibility planes for memories.
const (
	VisibilityPrivate = "private"
	VisibilityTeam    = "team"
)

// Edge relations the engine writes.
const (
	RelationContradicts = "CONTRADICTS"
	RelationFollows     = "FOLLOWS"
)

// Rule enforcement levels, weakest to strongest.
const (
	EnforcementSuggest = "suggest"
	EnforcementEnforce = "enforce"
	EnforcementBlock   = "block"
)

// ParseEnforcement validates a rule enforcement level.
func ParseEnforcement(s string) (string, bool) {
	switch s {
	case EnforcementSuggest, EnforcementEnforce, EnforcementBlock:
		return s, true
	}
	return "", false
}

// Sensitivity levels the classifier assigns.
const (
	SensitivitySafe      = "safe"
	SensitivitySensitive = "sensitive"
	SensitivityCritical  = "critical"
	SensitivityUnknown   = "unknown"
)

// ParseSensitivity validates a sensitivity level.
func ParseSensitivity(s string) (string, bool) {
	switch s {
	case SensitivitySafe, SensitivitySensitive, SensitivityCritical, SensitivityUnknown:
		return s, true
	}
	return "", false
}

// TenantContext names the resolved caller scope. UserID is required on
// every engine call; TeamID widens reads to the team's shared plane and
// enables team-visible writes. The engine never resolves identity itself,
// the caller (CLI config, API auth layer) does.
type TenantContext struct {
	UserID string
	TeamID string
}
