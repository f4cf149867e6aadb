package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haivivi/memkit/pkg/store"
)

// Similarity and recency thresholds for Remember's side-effect steps.
const (
	contradictionScore = 0.85
	correctionScore    = 0.5
	followsWindow      = 24 * time.Hour
)

// RememberRequest is one write. Content is required; everything else
// defaults.
type RememberRequest struct {
	// Content is the memory text, first person, at most 100k chars.
	Content string

	// Gate names the write gate. Empty means classify with [AutoGate];
	// anything else must parse as one of the five gates.
	Gate string

	// Person and Project scope the memory for chaining and filtering.
	// Optional, at most 500 chars each.
	Person  string
	Project string

	// Visibility is "private" (default) or "team". A team write
	// requires a TeamID on the tenant.
	Visibility string
}

// Remember validates and persists one memory, then runs the advisory
// steps: contradiction check, correction handling, FOLLOWS chaining, PII
// scan, and sensitivity classification. The returned string is the
// user-facing confirmation with any warnings appended.
//
// The journal entry is written before the memory record so the
// append-only log never misses a save, even if the memory upsert fails.
// The advisory steps are each best-effort: failures are logged and
// swallowed, never returned.
func (e *Engine) Remember(ctx context.Context, tc TenantContext, req RememberRequest) (string, error) {
	if err := requireUser(tc); err != nil {
		return "", err
	}
	content := req.Content
	if strings.TrimSpace(content) == "" {
		return "", ValidationErrorf("content is required")
	}
	if len(content) > maxContentLen {
		return "", ValidationErrorf("content exceeds %d characters", maxContentLen)
	}
	if len(req.Person) > maxFieldLen {
		return "", ValidationErrorf("person exceeds %d characters", maxFieldLen)
	}
	if len(req.Project) > maxFieldLen {
		return "", ValidationErrorf("project exceeds %d characters", maxFieldLen)
	}

	gateStr := req.Gate
	if gateStr == "" {
		gateStr = string(AutoGate(content))
	}
	gate, ok := ParseGate(gateStr)
	if !ok {
		return "", ValidationErrorf("invalid gate %q. use: behavioral, relational, epistemic, promissory, correction", req.Gate)
	}

	visibility := req.Visibility
	if visibility == "" {
		visibility = VisibilityPrivate
	}
	if visibility != VisibilityPrivate && visibility != VisibilityTeam {
		return "", ValidationErrorf("invalid visibility %q. use: private, team", req.Visibility)
	}
	if visibility == VisibilityTeam && tc.TeamID == "" {
		return "", ConfigErrorf("cannot save team memory: no team configured")
	}

	now := time.Now().UTC()
	memID := newMemoryID(now)

	entry := &store.JournalEntry{
		Timestamp: now,
		Gate:      string(gate),
		Content:   content,
		Person:    req.Person,
		Project:   req.Project,
	}
	if err := e.store.InsertJournal(ctx, tc.UserID, entry); err != nil {
		return "", wrapStore("insert journal", err)
	}

	mem := &store.Memory{
		ID:           memID,
		Content:      content,
		Gate:         string(gate),
		DecayClass:   string(gate.DecayClass()),
		Person:       req.Person,
		Project:      req.Project,
		Confidence:   0.9,
		Created:      now,
		LastAccessed: now,
		AccessCount:  1,
		Visibility:   visibility,
	}
	if visibility == VisibilityTeam {
		mem.TeamID = tc.TeamID
		mem.CreatedBy = tc.UserID
	}
	owner := tc.UserID
	if visibility == VisibilityTeam {
		owner = store.TeamUser(tc.TeamID)
	}
	if err := e.store.InsertMemory(ctx, owner, mem); err != nil {
		return "", wrapStore("insert memory", err)
	}

	// Contradiction, edges and classification are independent of each
	// other; edge writes share the new record, so correction and the
	// FOLLOWS lookup stay on one goroutine.
	var (
		g            errgroup.Group
		contraWarn   string
		classifyWarn string
	)
	g.Go(func() error {
		contraWarn = e.contradictionWarning(ctx, tc, memID, content)
		return nil
	})
	g.Go(func() error {
		if gate == GateCorrection {
			e.linkCorrection(ctx, tc.UserID, owner, memID, content)
		}
		if req.Person != "" || req.Project != "" {
			e.linkFollows(ctx, owner, memID, req.Person, req.Project, now)
		}
		return nil
	})
	if e.synth != nil {
		g.Go(func() error {
			classifyWarn = e.classifyNewMemory(ctx, owner, memID, content)
			return nil
		})
	}
	_ = g.Wait()

	warning := contraWarn
	if kinds := DetectPII(content); len(kinds) > 0 {
		warning += fmt.Sprintf(
			"\n\nWARNING: possible sensitive data (%s). consider forgetting this memory.",
			strings.Join(kinds, ", "))
	}
	warning += classifyWarn

	preview := truncateRunes(content, 80)
	return fmt.Sprintf("Remembered [%s]: %s (id: %s)%s", gate, preview, memID, warning), nil
}

// contradictionWarning searches the tenant scope for near-duplicates of
// the new memory and returns a warning for the first strong hit whose
// content actually differs.
func (e *Engine) contradictionWarning(ctx context.Context, tc TenantContext, memID, content string) string {
	hits, err := e.store.Search(ctx, store.SearchRequest{
		Query:  content,
		Limit:  3,
		UserID: tc.UserID,
		TeamID: tc.TeamID,
	})
	if err != nil {
		e.log.Warn("contradiction check failed", "err", err)
		return ""
	}
	for _, hit := range hits {
		if hit.ID == memID || hit.Score <= contradictionScore {
			continue
		}
		existing, err := e.store.GetMemory(ctx, tc.UserID, tc.TeamID, hit.ID)
		if err != nil {
			continue
		}
		if existing.Content != content {
			return fmt.Sprintf(
				"\n\nwarning: high similarity (score=%.2f) with existing memory [%s]. possible contradiction or duplicate.",
				hit.Score, hit.ID)
		}
	}
	return ""
}

// linkCorrection finds the belief the correction most likely overrides,
// links CONTRADICTS, and halves the old memory's confidence. The search
// and the downgrade stay in the private scope: a correction never
// touches team knowledge. owner is the namespace the new memory lives
// in, which differs from userID for team-visible corrections.
//
// The search runs after the correction itself is indexed, so it asks for
// two hits: the first is the correction, the second the belief it
// overrides.
func (e *Engine) linkCorrection(ctx context.Context, userID, owner, memID, content string) {
	hits, err := e.store.Search(ctx, store.SearchRequest{
		Query:  content,
		Limit:  2,
		UserID: userID,
	})
	if err != nil {
		e.log.Warn("correction handling failed", "err", err)
		return
	}
	for _, hit := range hits {
		if hit.ID == memID || hit.Score <= correctionScore {
			continue
		}
		if err := e.store.AddEdge(ctx, owner, memID, hit.ID, RelationContradicts); err != nil {
			e.log.Warn("correction handling failed", "err", err)
			return
		}
		old, err := e.store.GetMemory(ctx, userID, "", hit.ID)
		if err != nil {
			continue
		}
		if err := e.store.SetConfidence(ctx, userID, hit.ID, old.Confidence*0.5); err != nil {
			e.log.Warn("correction handling failed", "err", err)
		}
		return
	}
}

// linkFollows chains the new memory to the newest one in the same
// person/project context from the last 24 hours.
func (e *Engine) linkFollows(ctx context.Context, owner, memID, person, project string, now time.Time) {
	recentID, err := e.store.FindRecent(ctx, owner, store.RecentQuery{
		ExcludeID: memID,
		Since:     now.Add(-followsWindow),
		Person:    person,
		Project:   project,
	})
	if err != nil {
		e.log.Warn("memory chain failed", "err", err)
		return
	}
	if recentID == "" {
		return
	}
	if err := e.store.AddEdge(ctx, owner, memID, recentID, RelationFollows); err != nil {
		e.log.Warn("memory chain failed", "err", err)
	}
}

// classifyNewMemory grades the new memory's sensitivity at write time.
// Only worrying levels are persisted and surfaced; safe and unknown stay
// unclassified so the batch pass can revisit them.
func (e *Engine) classifyNewMemory(ctx context.Context, owner, memID, content string) string {
	level, reason, err := e.classifyContent(ctx, content)
	if err != nil {
		e.log.Warn("sensitivity classification failed", "err", err)
		return ""
	}
	if level == SensitivitySafe || level == SensitivityUnknown {
		return ""
	}
	if err := e.store.SetSensitivity(ctx, owner, memID, level, reason); err != nil {
		e.log.Warn("sensitivity classification failed", "err", err)
		return ""
	}
	return fmt.Sprintf("\n\nSENSITIVITY: %s (%s)", level, reason)
}
