package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/haivivi/memkit/pkg/store"
)

// Forget deletes a memory and returns a user-facing confirmation. The
// private scope is tried first; in team mode the team plane is tried
// next, where only the memory's creator may delete. A denial or a miss
// is reported in the returned text, not as an error.
func (e *Engine) Forget(ctx context.Context, tc TenantContext, memoryID, reason string) (string, error) {
	if err := requireUser(tc); err != nil {
		return "", err
	}
	if strings.TrimSpace(memoryID) == "" {
		return "", ValidationErrorf("memory id is required")
	}
	if strings.TrimSpace(reason) == "" {
		return "", ValidationErrorf("reason is required")
	}

	err := e.store.DeleteMemory(ctx, tc.UserID, memoryID)
	if err == nil {
		return fmt.Sprintf("Forgotten: %s (reason: %s).", memoryID, reason), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", wrapStore("delete memory", err)
	}

	if tc.TeamID != "" {
		teamNS := store.TeamUser(tc.TeamID)
		m, gerr := e.store.GetMemory(ctx, teamNS, "", memoryID)
		switch {
		case gerr == nil:
			if m.CreatedBy != "" && m.CreatedBy != tc.UserID {
				return fmt.Sprintf("Cannot delete team memory %s: only the creator or a team admin can delete it.", memoryID), nil
			}
			if derr := e.store.DeleteMemory(ctx, teamNS, memoryID); derr == nil {
				return fmt.Sprintf("Forgotten: %s (reason: %s).", memoryID, reason), nil
			} else if !errors.Is(derr, store.ErrNotFound) {
				return "", wrapStore("delete memory", derr)
			}
		case !errors.Is(gerr, store.ErrNotFound):
			return "", wrapStore("get memory", gerr)
		}
	}

	return fmt.Sprintf("No memory found with id: %s", memoryID), nil
}

// GetMemory fetches one memory from the tenant scope, team plane
// included in team mode.
func (e *Engine) GetMemory(ctx context.Context, tc TenantContext, memoryID string) (*store.Memory, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	m, err := e.store.GetMemory(ctx, tc.UserID, tc.TeamID, memoryID)
	if err != nil {
		return nil, wrapStore("get memory", err)
	}
	return m, nil
}

// Pin exempts a memory from decay archival.
func (e *Engine) Pin(ctx context.Context, tc TenantContext, memoryID string) error {
	return e.setPinned(ctx, tc, memoryID, true)
}

// Unpin returns a memory to the normal decay lifecycle.
func (e *Engine) Unpin(ctx context.Context, tc TenantContext, memoryID string) error {
	return e.setPinned(ctx, tc, memoryID, false)
}

// setPinned resolves the memory across planes and flips the flag in the
// namespace it lives in. Any team member may pin team knowledge.
func (e *Engine) setPinned(ctx context.Context, tc TenantContext, memoryID string, pinned bool) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	m, err := e.store.GetMemory(ctx, tc.UserID, tc.TeamID, memoryID)
	if err != nil {
		return wrapStore("get memory", err)
	}
	if err := e.store.SetPinned(ctx, m.OwnerID, memoryID, pinned); err != nil {
		return wrapStore("set pinned", err)
	}
	return nil
}

// UpdateMemory applies a partial update. A gate change re-derives the
// decay class unless the update names one explicitly. Team memories may
// only be updated by their creator.
func (e *Engine) UpdateMemory(ctx context.Context, tc TenantContext, memoryID string, upd store.MemoryUpdate) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	if upd.Content != nil {
		if strings.TrimSpace(*upd.Content) == "" {
			return ValidationErrorf("content cannot be empty")
		}
		if len(*upd.Content) > maxContentLen {
			return ValidationErrorf("content exceeds %d characters", maxContentLen)
		}
	}
	if upd.Person != nil && len(*upd.Person) > maxFieldLen {
		return ValidationErrorf("person exceeds %d characters", maxFieldLen)
	}
	if upd.Project != nil && len(*upd.Project) > maxFieldLen {
		return ValidationErrorf("project exceeds %d characters", maxFieldLen)
	}
	if upd.Confidence != nil && (*upd.Confidence < 0 || *upd.Confidence > 1) {
		return ValidationErrorf("confidence must be between 0 and 1")
	}
	if upd.Gate != nil {
		gate, ok := ParseGate(*upd.Gate)
		if !ok {
			return ValidationErrorf("invalid gate %q. use: behavioral, relational, epistemic, promissory, correction", *upd.Gate)
		}
		if upd.DecayClass == nil {
			dc := string(gate.DecayClass())
			upd.DecayClass = &dc
		}
	}
	if upd.DecayClass != nil {
		switch DecayClass(*upd.DecayClass) {
		case DecayNever, DecaySlow, DecayModerate, DecayFast:
		default:
			return ValidationErrorf("invalid decay class %q. use: never, slow, moderate, fast", *upd.DecayClass)
		}
	}

	m, err := e.store.GetMemory(ctx, tc.UserID, tc.TeamID, memoryID)
	if err != nil {
		return wrapStore("get memory", err)
	}
	if m.OwnerID != tc.UserID && m.CreatedBy != "" && m.CreatedBy != tc.UserID {
		return ValidationErrorf("cannot update team memory %s: only the creator can update it", memoryID)
	}
	if err := e.store.UpdateMemory(ctx, m.OwnerID, memoryID, upd); err != nil {
		return wrapStore("update memory", err)
	}
	return nil
}

// ListMemories lists the tenant's private memories, newest first,
// narrowed by opts.
func (e *Engine) ListMemories(ctx context.Context, tc TenantContext, opts store.ListOptions) ([]*store.Memory, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	if opts.Gate != "" {
		if _, ok := ParseGate(opts.Gate); !ok {
			return nil, ValidationErrorf("invalid gate %q. use: behavioral, relational, epistemic, promissory, correction", opts.Gate)
		}
	}
	if opts.Sensitivity != "" {
		if _, ok := ParseSensitivity(opts.Sensitivity); !ok {
			return nil, ValidationErrorf("invalid sensitivity %q. use: safe, sensitive, critical, unknown", opts.Sensitivity)
		}
	}
	memories, err := e.store.ListMemories(ctx, tc.UserID, opts)
	if err != nil {
		return nil, wrapStore("list memories", err)
	}
	return memories, nil
}

// TeamMemories lists the team plane's shared memories, newest first.
// ConfigError without a team.
func (e *Engine) TeamMemories(ctx context.Context, tc TenantContext, opts store.ListOptions) ([]*store.Memory, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	if tc.TeamID == "" {
		return nil, ConfigErrorf("cannot list team memories: no team configured")
	}
	opts.Visibility = VisibilityTeam
	memories, err := e.store.ListMemories(ctx, store.TeamUser(tc.TeamID), opts)
	if err != nil {
		return nil, wrapStore("list team memories", err)
	}
	return memories, nil
}

// Migrate rewrites the owner of every record under fromID to toID and
// returns the number of records moved. Used to claim a local tenant
// into a cloud account and to pull one back out.
func (e *Engine) Migrate(ctx context.Context, fromID, toID string) (int, error) {
	if fromID == "" || toID == "" {
		return 0, ValidationErrorf("both source and destination user ids are required")
	}
	if fromID == toID {
		return 0, ValidationErrorf("source and destination are the same")
	}
	moved, err := e.store.MigrateUser(ctx, fromID, toID)
	if err != nil {
		return 0, wrapStore("migrate user", err)
	}
	return moved, nil
}

// Stats summarizes a tenant's footprint.
type Stats struct {
	Memories      int
	Journal       int
	ByGate        map[string]int
	BySensitivity map[string]int
	Pinned        int

	// TeamShared counts the team plane's memories; zero outside team
	// mode.
	TeamShared int
}

// Stats counts the tenant's records by type, gate and sensitivity.
func (e *Engine) Stats(ctx context.Context, tc TenantContext) (*Stats, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	s := &Stats{}

	var err error
	if s.Memories, err = e.store.CountMemories(ctx, tc.UserID); err != nil {
		return nil, wrapStore("count memories", err)
	}
	if s.Journal, err = e.store.CountJournal(ctx, tc.UserID); err != nil {
		return nil, wrapStore("count journal", err)
	}
	if s.ByGate, err = e.store.CountByGate(ctx, tc.UserID); err != nil {
		return nil, wrapStore("count by gate", err)
	}
	if s.BySensitivity, err = e.store.CountBySensitivity(ctx, tc.UserID); err != nil {
		return nil, wrapStore("count by sensitivity", err)
	}

	memories, err := e.store.ListMemories(ctx, tc.UserID, store.ListOptions{Limit: reflectScanLimit})
	if err != nil {
		return nil, wrapStore("list memories", err)
	}
	for _, m := range memories {
		if m.Pinned {
			s.Pinned++
		}
	}

	if tc.TeamID != "" {
		if s.TeamShared, err = e.store.CountMemories(ctx, store.TeamUser(tc.TeamID)); err != nil {
			return nil, wrapStore("count team memories", err)
		}
	}
	return s, nil
}
