package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haivivi/memkit/pkg/store"
)

// primeRecentLines caps the recent-context section of a primed session.
const primeRecentLines = 8

// GetIdentity returns the tenant's identity card.
func (e *Engine) GetIdentity(ctx context.Context, tc TenantContext) (*store.Identity, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	card, err := e.store.GetIdentity(ctx, tc.UserID)
	if err != nil {
		return nil, wrapStore("get identity", err)
	}
	return card, nil
}

// SetIdentity replaces the tenant's identity card. The engine stamps
// LastUpdated; person and project are stored as given.
func (e *Engine) SetIdentity(ctx context.Context, tc TenantContext, card *store.Identity) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	if card == nil || strings.TrimSpace(card.Content) == "" {
		return ValidationErrorf("identity content is required")
	}
	if len(card.Content) > maxIdentityLen {
		return ValidationErrorf("identity content exceeds %d characters", maxIdentityLen)
	}
	stamped := *card
	stamped.LastUpdated = time.Now().UTC()
	if err := e.store.SetIdentity(ctx, tc.UserID, &stamped); err != nil {
		return wrapStore("set identity", err)
	}
	return nil
}

// Checkpoint journals a where-we-left-off note for the next session.
func (e *Engine) Checkpoint(ctx context.Context, tc TenantContext, content string) error {
	return e.journalWrite(ctx, tc, GateCheckpoint, content)
}

// Observe journals a passive observation. Observations never reach the
// recent-context section of a primed session; they exist for flow-mode
// continuity and consolidation.
func (e *Engine) Observe(ctx context.Context, tc TenantContext, content string) error {
	return e.journalWrite(ctx, tc, GateObservation, content)
}

func (e *Engine) journalWrite(ctx context.Context, tc TenantContext, gate Gate, content string) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return ValidationErrorf("content is required")
	}
	if len(content) > maxContentLen {
		return ValidationErrorf("content exceeds %d characters", maxContentLen)
	}
	entry := &store.JournalEntry{
		Timestamp: time.Now().UTC(),
		Gate:      string(gate),
		Content:   content,
	}
	if err := e.store.InsertJournal(ctx, tc.UserID, entry); err != nil {
		return wrapStore("insert journal", err)
	}
	return nil
}

// LatestCheckpoint returns the newest checkpoint entry.
func (e *Engine) LatestCheckpoint(ctx context.Context, tc TenantContext) (*store.JournalEntry, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	cp, err := e.store.LatestCheckpoint(ctx, tc.UserID)
	if err != nil {
		return nil, wrapStore("latest checkpoint", err)
	}
	return cp, nil
}

// Prime assembles the session-start context: the identity card, the last
// checkpoint, the last two days of journal activity, and, in team mode,
// the team's rules. Sections a tenant does not have yet are simply
// absent; store hiccups are logged and skipped so priming never blocks a
// session. Returns "" for a brand-new tenant.
func (e *Engine) Prime(ctx context.Context, tc TenantContext) (string, error) {
	if err := requireUser(tc); err != nil {
		return "", err
	}

	var sections []string

	if card, err := e.store.GetIdentity(ctx, tc.UserID); err == nil {
		sections = append(sections, "--- Who I am ---\n"+card.Content)
	} else if !errors.Is(err, store.ErrNotFound) {
		e.log.Warn("prime: identity load failed", "err", err)
	}

	if cp, err := e.store.LatestCheckpoint(ctx, tc.UserID); err == nil {
		sections = append(sections, "--- Last session checkpoint ---\n"+cp.Content)
	} else if !errors.Is(err, store.ErrNotFound) {
		e.log.Warn("prime: checkpoint load failed", "err", err)
	}

	if recent := e.recentContext(ctx, tc.UserID); len(recent) > 0 {
		sections = append(sections, "--- Recent context ---\n"+strings.Join(recent, "\n"))
	}

	if tc.TeamID != "" {
		rules, err := e.store.ListRules(ctx, store.TeamUser(tc.TeamID))
		if err != nil {
			e.log.Warn("prime: team rules load failed", "err", err)
		} else if len(rules) > 0 {
			lines := make([]string, len(rules))
			for i, r := range rules {
				lines[i] = fmt.Sprintf("- [%s] %s (%s)", r.Scope, r.Condition, r.Enforcement)
			}
			sections = append(sections, "--- Team rules ---\n"+strings.Join(lines, "\n"))
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

// recentContext returns up to primeRecentLines rendered journal lines
// from the last two days, skipping checkpoints and observations.
func (e *Engine) recentContext(ctx context.Context, userID string) []string {
	recent, err := e.store.RecentJournal(ctx, userID, 2)
	if err != nil {
		e.log.Warn("prime: journal load failed", "err", err)
		return nil
	}
	cutoff := time.Now().UTC().Add(-identityWindow)
	var lines []string
	for _, en := range recent {
		if !en.Timestamp.After(cutoff) {
			continue
		}
		if en.Gate == string(GateCheckpoint) || en.Gate == string(GateObservation) {
			continue
		}
		lines = append(lines, fmt.Sprintf("[%s] %s", en.Gate, en.Content))
		if len(lines) == primeRecentLines {
			break
		}
	}
	return lines
}
