package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/memkit/pkg/store"
)

// RuleSpec describes a new rule. Condition is required; Scope defaults
// to "global" and Enforcement to "suggest". Team puts the rule on the
// team plane, visible to every member, which requires a TeamID on the
// tenant.
type RuleSpec struct {
	Scope       string
	Condition   string
	Enforcement string
	Team        bool
}

// rulesOwner resolves the namespace a rules call operates on.
func rulesOwner(tc TenantContext, team bool) (string, error) {
	if !team {
		return tc.UserID, nil
	}
	if tc.TeamID == "" {
		return "", ConfigErrorf("cannot use team rules: no team configured")
	}
	return store.TeamUser(tc.TeamID), nil
}

// AddRule creates a rule and returns it as stored, rendered content
// included.
func (e *Engine) AddRule(ctx context.Context, tc TenantContext, spec RuleSpec) (*store.Rule, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	if strings.TrimSpace(spec.Condition) == "" {
		return nil, ValidationErrorf("rule condition is required")
	}
	scope := spec.Scope
	if scope == "" {
		scope = "global"
	}
	enforcement := spec.Enforcement
	if enforcement == "" {
		enforcement = EnforcementSuggest
	}
	if _, ok := ParseEnforcement(enforcement); !ok {
		return nil, ValidationErrorf("invalid enforcement %q. use: suggest, enforce, block", spec.Enforcement)
	}
	owner, err := rulesOwner(tc, spec.Team)
	if err != nil {
		return nil, err
	}

	rule := &store.Rule{
		ID:          strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Scope:       scope,
		Condition:   spec.Condition,
		Enforcement: enforcement,
		Created:     time.Now().UTC(),
	}
	if err := e.store.InsertRule(ctx, owner, rule); err != nil {
		return nil, wrapStore("insert rule", err)
	}
	stored, err := e.store.GetRule(ctx, owner, rule.ID)
	if err != nil {
		return nil, wrapStore("get rule", err)
	}
	return stored, nil
}

// ListRules returns the personal or team rules, newest first.
func (e *Engine) ListRules(ctx context.Context, tc TenantContext, team bool) ([]*store.Rule, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	owner, err := rulesOwner(tc, team)
	if err != nil {
		return nil, err
	}
	rules, err := e.store.ListRules(ctx, owner)
	if err != nil {
		return nil, wrapStore("list rules", err)
	}
	return rules, nil
}

// GetRule fetches one rule by id.
func (e *Engine) GetRule(ctx context.Context, tc TenantContext, ruleID string, team bool) (*store.Rule, error) {
	if err := requireUser(tc); err != nil {
		return nil, err
	}
	owner, err := rulesOwner(tc, team)
	if err != nil {
		return nil, err
	}
	rule, err := e.store.GetRule(ctx, owner, ruleID)
	if err != nil {
		return nil, wrapStore("get rule", err)
	}
	return rule, nil
}

// UpdateRule applies a partial update. Fields set to empty strings are
// rejected rather than blanked; enforcement must parse.
func (e *Engine) UpdateRule(ctx context.Context, tc TenantContext, ruleID string, upd store.RuleUpdate, team bool) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	if upd.Scope != nil && strings.TrimSpace(*upd.Scope) == "" {
		return ValidationErrorf("rule scope cannot be empty")
	}
	if upd.Condition != nil && strings.TrimSpace(*upd.Condition) == "" {
		return ValidationErrorf("rule condition cannot be empty")
	}
	if upd.Enforcement != nil {
		if _, ok := ParseEnforcement(*upd.Enforcement); !ok {
			return ValidationErrorf("invalid enforcement %q. use: suggest, enforce, block", *upd.Enforcement)
		}
	}
	owner, err := rulesOwner(tc, team)
	if err != nil {
		return err
	}
	if err := e.store.UpdateRule(ctx, owner, ruleID, upd); err != nil {
		return wrapStore("update rule", err)
	}
	return nil
}

// DeleteRule removes a rule.
func (e *Engine) DeleteRule(ctx context.Context, tc TenantContext, ruleID string, team bool) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	owner, err := rulesOwner(tc, team)
	if err != nil {
		return err
	}
	if err := e.store.DeleteRule(ctx, owner, ruleID); err != nil {
		return wrapStore("delete rule", err)
	}
	return nil
}

// TriggerRule stamps a rule's last_triggered, marking that it fired.
func (e *Engine) TriggerRule(ctx context.Context, tc TenantContext, ruleID string, team bool) error {
	if err := requireUser(tc); err != nil {
		return err
	}
	owner, err := rulesOwner(tc, team)
	if err != nil {
		return err
	}
	if err := e.store.TouchRule(ctx, owner, ruleID); err != nil {
		return wrapStore("touch rule", err)
	}
	return nil
}
