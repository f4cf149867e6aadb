package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/haivivi/memkit/pkg/store"
	"github.com/haivivi/memkit/pkg/synth"
)

const (
	// consolidateAfterDays is how old a journal day must be before it
	// is folded into a weekly digest.
	consolidateAfterDays = 14

	// identityWindow is how fresh journal activity must be to trigger
	// identity regeneration.
	identityWindow = 48 * time.Hour

	// reflectScanLimit caps the memory scan of one reflection pass.
	reflectScanLimit = 1000
)

// Reflect runs the maintenance pass: consolidate stale journal days into
// weekly digests, archive fading memories, and regenerate the identity
// card when there has been recent activity. Consolidation and identity
// regeneration need a Synthesizer; archival always runs.
//
// The returned report lists what happened. Synthesis failures degrade to
// report lines or logs; only store failures abort the pass.
func (e *Engine) Reflect(ctx context.Context, tc TenantContext) (string, error) {
	if err := requireUser(tc); err != nil {
		return "", err
	}

	var lines []string

	if e.synth != nil {
		weeks, err := e.consolidateJournal(ctx, tc.UserID)
		if err != nil {
			return "", err
		}
		if weeks > 0 {
			lines = append(lines, fmt.Sprintf("Consolidated %d weeks", weeks))
		} else {
			lines = append(lines, "No journals old enough to consolidate.")
		}
	}

	archived, err := e.archiveFading(ctx, tc.UserID)
	if err != nil {
		return "", err
	}
	if archived > 0 {
		lines = append(lines, fmt.Sprintf("Archived %d fading memories", archived))
	}

	if e.synth != nil {
		if line := e.regenerateIdentity(ctx, tc.UserID); line != "" {
			lines = append(lines, line)
		}
	}

	if len(lines) == 0 {
		return "Nothing to reflect on.", nil
	}
	return strings.Join(lines, "\n"), nil
}

// consolidateJournal folds journal days older than two weeks into one
// digest entry per ISO week, then deletes the source days. A week whose
// synthesis or digest write fails keeps its days and is retried on the
// next pass. Returns the number of weeks consolidated.
func (e *Engine) consolidateJournal(ctx context.Context, userID string) (int, error) {
	dates, err := e.store.StaleJournalDates(ctx, userID, consolidateAfterDays)
	if err != nil {
		return 0, wrapStore("stale journal dates", err)
	}
	weeks, keys := groupByISOWeek(dates)

	consolidated := 0
	for _, week := range keys {
		var entries []*store.JournalEntry
		for _, date := range weeks[week] {
			es, err := e.store.JournalByDate(ctx, userID, date)
			if err != nil {
				return consolidated, wrapStore("journal by date", err)
			}
			entries = append(entries, es...)
		}
		if len(entries) == 0 {
			continue
		}

		var b strings.Builder
		for _, en := range entries {
			fmt.Fprintf(&b, "[%s] %s\n", en.Gate, en.Content)
		}
		digest, err := e.synthesize(ctx, synth.ConsolidationPrompt, b.String(), synth.ConsolidationMaxTokens)
		if err != nil {
			e.log.Warn("consolidation failed", "week", week, "err", err)
			continue
		}
		if err := e.store.InsertJournal(ctx, userID, &store.JournalEntry{
			Timestamp: time.Now().UTC(),
			Gate:      string(GateDigest),
			Content:   strings.TrimSpace(digest),
			Date:      week,
		}); err != nil {
			e.log.Warn("digest insert failed", "week", week, "err", err)
			continue
		}
		for _, date := range weeks[week] {
			if err := e.store.DeleteJournalDate(ctx, userID, date); err != nil {
				e.log.Warn("journal delete failed", "date", date, "err", err)
			}
		}
		consolidated++
	}
	return consolidated, nil
}

// groupByISOWeek buckets day keys (YYYY-MM-DD) by ISO week (yyyy-Www).
// Keys that do not parse as days, such as digest week keys, are skipped,
// which keeps digests from being re-consolidated.
func groupByISOWeek(dates []string) (map[string][]string, []string) {
	weeks := make(map[string][]string)
	for _, date := range dates {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		year, wk := t.ISOWeek()
		key := fmt.Sprintf("%d-W%02d", year, wk)
		weeks[key] = append(weeks[key], date)
	}
	keys := make([]string, 0, len(weeks))
	for k := range weeks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return weeks, keys
}

// archiveFading deletes every non-pinned memory whose decay score has
// dropped below the fading threshold. Pinned and never-decay memories
// are exempt.
func (e *Engine) archiveFading(ctx context.Context, userID string) (int, error) {
	memories, err := e.store.ListMemories(ctx, userID, store.ListOptions{Limit: reflectScanLimit})
	if err != nil {
		return 0, wrapStore("list memories", err)
	}
	now := time.Now().UTC()
	archived := 0
	for _, m := range memories {
		if m.Pinned || !IsFading(m, now) {
			continue
		}
		if err := e.store.DeleteMemory(ctx, userID, m.ID); err != nil {
			e.log.Warn("archive failed", "id", m.ID, "err", err)
			continue
		}
		archived++
	}
	return archived, nil
}

// regenerateIdentity rebuilds the identity card from the last two days
// of journal activity, preserving the previous card's person and project.
// Returns a report line, or "" when there is nothing fresh to work from.
func (e *Engine) regenerateIdentity(ctx context.Context, userID string) string {
	recent, err := e.store.RecentJournal(ctx, userID, 2)
	if err != nil {
		e.log.Warn("identity regeneration skipped", "err", err)
		return ""
	}
	cutoff := time.Now().UTC().Add(-identityWindow)
	var fresh []*store.JournalEntry
	for _, en := range recent {
		if en.Timestamp.After(cutoff) {
			fresh = append(fresh, en)
		}
	}
	if len(fresh) == 0 {
		return ""
	}

	old, err := e.store.GetIdentity(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.log.Warn("identity regeneration skipped", "err", err)
		return ""
	}

	var b strings.Builder
	if old != nil {
		fmt.Fprintf(&b, "Previous card:\n%s\n\n", old.Content)
	}
	b.WriteString("Recent journal:\n")
	for _, en := range fresh {
		fmt.Fprintf(&b, "[%s] %s\n", en.Gate, en.Content)
	}

	content, err := e.synthesize(ctx, synth.IdentityPrompt, b.String(), synth.IdentityMaxTokens)
	if err != nil {
		return fmt.Sprintf("Identity regeneration failed: %s", err)
	}
	card := &store.Identity{
		Content:     strings.TrimSpace(content),
		LastUpdated: time.Now().UTC(),
	}
	if old != nil {
		card.Person = old.Person
		card.Project = old.Project
	}
	if err := e.store.SetIdentity(ctx, userID, card); err != nil {
		return fmt.Sprintf("Identity regeneration failed: %s", err)
	}
	return "Identity card regenerated."
}
