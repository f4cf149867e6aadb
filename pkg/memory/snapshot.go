package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/haivivi/memkit/pkg/store"
)

// snapshotRecord is one JSONL line of a tenant snapshot. Exactly one of
// the payload fields is set, per Kind.
type snapshotRecord struct {
	Kind    string              `json:"kind"`
	Memory  *store.Memory       `json:"memory,omitempty"`
	Journal *store.JournalEntry `json:"journal,omitempty"`
	Card    *store.Identity     `json:"identity,omitempty"`
	Rule    *store.Rule         `json:"rule,omitempty"`
}

// Snapshot record kinds.
const (
	snapMemory   = "memory"
	snapJournal  = "journal"
	snapIdentity = "identity"
	snapRule     = "rule"
)

// maxSnapshotLine bounds one JSONL line on import: the content ceiling
// plus encoding overhead.
const maxSnapshotLine = 1 << 20

// Export streams the tenant's private plane to w as JSONL, one record
// per line: memories, journal entries, the identity card, and rules.
// Team-plane records are not exported; they belong to the team, not the
// tenant. Returns the number of records written.
func (e *Engine) Export(ctx context.Context, tc TenantContext, w io.Writer) (int, error) {
	if err := requireUser(tc); err != nil {
		return 0, err
	}

	enc := json.NewEncoder(w)
	count := 0
	write := func(rec snapshotRecord) error {
		if err := enc.Encode(rec); err != nil {
			return &Error{Kind: KindStorage, Msg: "encode snapshot record", Err: err}
		}
		count++
		return nil
	}

	memories, err := e.store.ListMemories(ctx, tc.UserID, store.ListOptions{Limit: reflectScanLimit})
	if err != nil {
		return count, wrapStore("list memories", err)
	}
	for _, m := range memories {
		if err := write(snapshotRecord{Kind: snapMemory, Memory: m}); err != nil {
			return count, err
		}
	}

	entries, err := e.store.ListJournal(ctx, tc.UserID, 0)
	if err != nil {
		return count, wrapStore("list journal", err)
	}
	for _, en := range entries {
		if err := write(snapshotRecord{Kind: snapJournal, Journal: en}); err != nil {
			return count, err
		}
	}

	if card, err := e.store.GetIdentity(ctx, tc.UserID); err == nil {
		if err := write(snapshotRecord{Kind: snapIdentity, Card: card}); err != nil {
			return count, err
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		return count, wrapStore("get identity", err)
	}

	rules, err := e.store.ListRules(ctx, tc.UserID)
	if err != nil {
		return count, wrapStore("list rules", err)
	}
	for _, r := range rules {
		if err := write(snapshotRecord{Kind: snapRule, Rule: r}); err != nil {
			return count, err
		}
	}

	return count, nil
}

// Import re-upserts a JSONL snapshot into the tenant's private plane.
// Records keep their ids and timestamps, so importing the same snapshot
// twice is idempotent. Returns the number of records imported; a
// malformed line aborts with its line number.
func (e *Engine) Import(ctx context.Context, tc TenantContext, r io.Reader) (int, error) {
	if err := requireUser(tc); err != nil {
		return 0, err
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxSnapshotLine)

	count := 0
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		var rec snapshotRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return count, ValidationErrorf("snapshot line %d: %v", line, err)
		}

		var err error
		switch {
		case rec.Kind == snapMemory && rec.Memory != nil:
			// Imports land on the private plane regardless of the
			// memory's exported visibility.
			m := *rec.Memory
			m.Visibility = VisibilityPrivate
			m.TeamID = ""
			m.CreatedBy = ""
			err = e.store.InsertMemory(ctx, tc.UserID, &m)
		case rec.Kind == snapJournal && rec.Journal != nil:
			err = e.store.InsertJournal(ctx, tc.UserID, rec.Journal)
		case rec.Kind == snapIdentity && rec.Card != nil:
			err = e.store.SetIdentity(ctx, tc.UserID, rec.Card)
		case rec.Kind == snapRule && rec.Rule != nil:
			err = e.store.InsertRule(ctx, tc.UserID, rec.Rule)
		default:
			return count, ValidationErrorf("snapshot line %d: unknown kind %q", line, rec.Kind)
		}
		if err != nil {
			return count, wrapStore(fmt.Sprintf("import line %d", line), err)
		}
		count++
	}
	if err := sc.Err(); err != nil {
		return count, &Error{Kind: KindStorage, Msg: "read snapshot", Err: err}
	}
	return count, nil
}
