package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/haivivi/memkit/pkg/store"
)

// Recall stage parameters.
const (
	recallLimit       = 10
	textFallbackLimit = 5
	graphMinResults   = 3
	graphSeeds        = 2
	graphDepth        = 2
	previewLen        = 80
)

// Recall retrieves memories for a query and renders them for injection
// into a session. Three stages, each engaged only when the previous one
// came up short:
//
//  1. Hybrid search (dense + sparse, RRF-fused), top 10.
//  2. Lexical text match when hybrid returned nothing, top 5.
//  3. Graph traversal from the first two hits when fewer than three
//     results stand, appending related memories by edge.
//
// Every materialized hit is touched (last_accessed, access_count) to
// feed the decay model. Stage failures are logged and degrade to the
// next stage; Recall only fails on invalid input.
func (e *Engine) Recall(ctx context.Context, tc TenantContext, query string) (string, error) {
	if err := requireUser(tc); err != nil {
		return "", err
	}
	if strings.TrimSpace(query) == "" {
		return "", ValidationErrorf("query is required")
	}

	var (
		results []string
		seen    = make(map[string]bool)
		order   []string
		owners  = make(map[string]string)
	)

	absorb := func(hits []store.Hit, text bool) {
		for _, hit := range hits {
			if seen[hit.ID] {
				continue
			}
			seen[hit.ID] = true
			m, err := e.store.GetMemory(ctx, tc.UserID, tc.TeamID, hit.ID)
			if err != nil {
				e.log.Debug("recall hit vanished", "id", hit.ID, "err", err)
				continue
			}
			order = append(order, hit.ID)
			owners[hit.ID] = m.OwnerID
			if err := e.store.TouchMemory(ctx, m.OwnerID, hit.ID); err != nil {
				e.log.Debug("touch failed", "id", hit.ID, "err", err)
			}
			results = append(results, e.renderHit(tc, m, hit.Score, text))
		}
	}

	hits, err := e.store.Search(ctx, store.SearchRequest{
		Query:  query,
		Limit:  recallLimit,
		UserID: tc.UserID,
		TeamID: tc.TeamID,
	})
	if err != nil {
		e.log.Warn("hybrid search failed", "err", err)
	} else {
		absorb(hits, false)
	}

	if len(results) == 0 {
		hits, err := e.store.TextSearch(ctx, store.SearchRequest{
			Query:  query,
			Limit:  textFallbackLimit,
			UserID: tc.UserID,
			TeamID: tc.TeamID,
		})
		if err != nil {
			e.log.Warn("text search failed", "err", err)
		} else {
			absorb(hits, true)
		}
	}

	if len(results) < graphMinResults {
		seeds := order
		if len(seeds) > graphSeeds {
			seeds = seeds[:graphSeeds]
		}
		for _, mid := range seeds {
			related, err := e.store.FindRelated(ctx, owners[mid], mid, graphDepth)
			if err != nil {
				e.log.Debug("graph traversal failed", "id", mid, "err", err)
				continue
			}
			for _, rel := range related {
				if seen[rel.ID] {
					continue
				}
				seen[rel.ID] = true
				results = append(results, fmt.Sprintf("[graph: %s] %s (id: %s)",
					rel.Relation, truncateRunes(rel.Content, previewLen), rel.ID))
			}
		}
	}

	if len(results) == 0 {
		return "No memories found matching that query.", nil
	}
	return fmt.Sprintf("Found %d memories:\n\n", len(results)) + strings.Join(results, "\n\n"), nil
}

// renderHit formats one materialized hit. The private/team tag appears
// only when the caller is in team mode; text-fallback hits carry "text"
// where fused hits carry a score.
func (e *Engine) renderHit(tc TenantContext, m *store.Memory, score float32, text bool) string {
	tag := ""
	if tc.TeamID != "" {
		if m.Visibility == VisibilityTeam {
			tag = "[team] "
		} else {
			tag = "[private] "
		}
	}
	person := m.Person
	if person == "" {
		person = "?"
	}
	label := "text"
	if !text {
		label = fmt.Sprintf("score=%.2f", score)
	}
	return fmt.Sprintf("%s[%s, %s] (%s, %s) %s\n  id: %s",
		tag, m.Gate, label, m.Created.UTC().Format("2006-01-02"), person, m.Content, m.ID)
}
