// Package store persists memory records and serves hybrid retrieval over
// them. It defines the [Store] interface the memory engine consumes and two
// implementations: [Qdrant], which keeps everything in a remote Qdrant
// collection, and [Local], an embedded driver built on [kv], [vecstore] and
// a local BM25 posting index.
//
// All records live in one logical collection with a `type` discriminator
// (memory, journal, identity, rule). Numeric point IDs are derived
// deterministically from domain keys via [PointID], so an upsert for the
// same record is idempotent in either driver.
//
// Drivers own embedding: they receive an [embed.Embedder] and a
// [embed.SparseEncoder] at construction and embed content on insert and on
// query. The engine never touches raw vectors.
package store

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors.
var (
	// ErrNotFound is returned when a record does not exist in the
	// requested tenant scope.
	ErrNotFound = errors.New("store: not found")
)

// Edge is a typed directed link from one memory to another. Edges are
// stored inline on the source memory's payload.
type Edge struct {
	To       string `json:"to" msgpack:"to"`
	Relation string `json:"relation" msgpack:"relation"`
}

// Memory is the durable unit of the engine.
//
// Gate, DecayClass and Visibility are persisted as lowercase strings; the
// typed views live in the memory package. Sensitivity is empty until the
// classifier has seen the record.
type Memory struct {
	ID                string    `json:"id" msgpack:"id"`
	Content           string    `json:"content" msgpack:"content"`
	Gate              string    `json:"gate" msgpack:"gate"`
	DecayClass        string    `json:"decay_class" msgpack:"decay_class"`
	Person            string    `json:"person,omitempty" msgpack:"person"`
	Project           string    `json:"project,omitempty" msgpack:"project"`
	Confidence        float64   `json:"confidence" msgpack:"confidence"`
	Created           time.Time `json:"created" msgpack:"created"`
	LastAccessed      time.Time `json:"last_accessed" msgpack:"last_accessed"`
	AccessCount       int       `json:"access_count" msgpack:"access_count"`
	Pinned            bool      `json:"pinned" msgpack:"pinned"`
	Sensitivity       string    `json:"sensitivity,omitempty" msgpack:"sensitivity"`
	SensitivityReason string    `json:"sensitivity_reason,omitempty" msgpack:"sensitivity_reason"`
	Visibility        string    `json:"visibility" msgpack:"visibility"`
	TeamID            string    `json:"team_id,omitempty" msgpack:"team_id"`
	CreatedBy         string    `json:"created_by,omitempty" msgpack:"created_by"`
	Edges             []Edge    `json:"edges,omitempty" msgpack:"edges"`

	// OwnerID is the user id the record is stored under. Filled on read;
	// ignored on insert (the insert call names the owner explicitly).
	OwnerID string `json:"user_id,omitempty" msgpack:"-"`
}

// JournalEntry is an append-only log record. Date is the UTC day key
// (YYYY-MM-DD); digests carry an ISO week key (yyyy-Www) instead. Drivers
// fill Date from Timestamp when it is empty.
type JournalEntry struct {
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Gate      string    `json:"gate" msgpack:"gate"`
	Content   string    `json:"content" msgpack:"content"`
	Person    string    `json:"person,omitempty" msgpack:"person"`
	Project   string    `json:"project,omitempty" msgpack:"project"`
	Date      string    `json:"date" msgpack:"date"`
}

// Identity is the per-tenant identity card. Exactly one exists per user id.
type Identity struct {
	Person      string    `json:"person,omitempty" msgpack:"person"`
	Project     string    `json:"project,omitempty" msgpack:"project"`
	Content     string    `json:"content" msgpack:"content"`
	LastUpdated time.Time `json:"last_updated" msgpack:"last_updated"`
}

// Rule is a per-tenant policy record. Content is the rendered form
// "<scope>: <condition> (<enforcement>)", which is also what gets embedded.
type Rule struct {
	ID            string    `json:"id" msgpack:"id"`
	Scope         string    `json:"scope" msgpack:"scope"`
	Condition     string    `json:"condition" msgpack:"condition"`
	Enforcement   string    `json:"enforcement" msgpack:"enforcement"`
	Created       time.Time `json:"created" msgpack:"created"`
	LastTriggered time.Time `json:"last_triggered,omitempty" msgpack:"last_triggered"`
	Content       string    `json:"content" msgpack:"content"`
}

// Hit is a single retrieval result: a memory id and its fused (or
// fallback) score.
type Hit struct {
	ID    string
	Score float32
}

// Related is one neighbour discovered by graph traversal.
type Related struct {
	ID       string
	Content  string
	Gate     string
	Relation string
	Depth    int
}

// SearchRequest scopes a hybrid or text search. TeamID widens the filter
// to the caller's private memories plus the team's shared ones; empty
// TeamID searches the private scope only.
type SearchRequest struct {
	Query  string
	Limit  int
	UserID string
	TeamID string
}

// RecentQuery selects the newest memory in a user's scope matching the
// given person/project, created at or after Since, excluding ExcludeID.
type RecentQuery struct {
	ExcludeID string
	Since     time.Time
	Person    string
	Project   string
}

// ListOptions narrow a memory listing. Zero values mean "no constraint".
// Limit 0 applies the driver default (500). Unclassified selects records
// the sensitivity classifier has not seen yet.
type ListOptions struct {
	Gate         string
	Person       string
	Project      string
	Visibility   string
	TeamID       string
	Sensitivity  string
	Unclassified bool
	Limit        int
	Offset       int
}

// MemoryUpdate is a partial memory update. Nil fields are left untouched.
// A content change re-embeds the record.
type MemoryUpdate struct {
	Content    *string
	Gate       *string
	DecayClass *string
	Person     *string
	Project    *string
	Confidence *float64
	Pinned     *bool
}

// RuleUpdate is a partial rule update. Nil fields are left untouched. Any
// change re-renders and re-embeds the rule content.
type RuleUpdate struct {
	Scope       *string
	Condition   *string
	Enforcement *string
}

// Store is the persistence contract the memory engine runs on.
//
// Every method is safe for concurrent use. Tenant scoping is explicit:
// userID selects the namespace a record is stored under (a plain user id,
// or the synthetic "team:<id>" form for records owned by a team), and the
// operations that honour shared visibility take the team id separately.
// Lookup misses return [ErrNotFound]; mutations of missing records do too.
type Store interface {
	// InsertMemory embeds m.Content and upserts the record under userID.
	// m.Visibility, m.TeamID and m.CreatedBy are persisted as given.
	InsertMemory(ctx context.Context, userID string, m *Memory) error

	// GetMemory fetches one memory. With an empty teamID only records
	// owned by userID match; with a teamID set, team-visible records of
	// that team match as well, regardless of owner.
	GetMemory(ctx context.Context, userID, teamID, memoryID string) (*Memory, error)

	// UpdateMemory applies a partial update to a record owned by userID.
	UpdateMemory(ctx context.Context, userID, memoryID string, upd MemoryUpdate) error

	// DeleteMemory removes a record owned by userID along with its
	// vectors and edges.
	DeleteMemory(ctx context.Context, userID, memoryID string) error

	// TouchMemory marks an access: last_accessed=now, access_count+1.
	TouchMemory(ctx context.Context, userID, memoryID string) error

	SetPinned(ctx context.Context, userID, memoryID string, pinned bool) error
	SetConfidence(ctx context.Context, userID, memoryID string, confidence float64) error
	SetSensitivity(ctx context.Context, userID, memoryID, level, reason string) error

	// ListMemories returns records owned by userID, newest first,
	// narrowed by opts. Team-shared listings go through the synthetic
	// team user (see TeamUser).
	ListMemories(ctx context.Context, userID string, opts ListOptions) ([]*Memory, error)

	CountMemories(ctx context.Context, userID string) (int, error)
	CountByGate(ctx context.Context, userID string) (map[string]int, error)
	CountBySensitivity(ctx context.Context, userID string) (map[string]int, error)

	// Search runs hybrid retrieval: dense ANN and sparse keyword
	// prefetches under the tenant filter, fused with reciprocal rank
	// fusion. Results are fused-score descending.
	Search(ctx context.Context, req SearchRequest) ([]Hit, error)

	// TextSearch is the lexical fallback: word-tokenized full-text match
	// on content under the same tenant filter. Hits score 1.
	TextSearch(ctx context.Context, req SearchRequest) ([]Hit, error)

	// FindRecent returns the id of the newest memory in userID's scope
	// matching q, or "" when none qualifies.
	FindRecent(ctx context.Context, userID string, q RecentQuery) (string, error)

	// AddEdge appends (toID, relation) to fromID's edge list, skipping
	// exact duplicates. Missing source memories are ignored.
	AddEdge(ctx context.Context, userID, fromID, toID, relation string) error

	// FindRelated walks edges breadth-first from memoryID up to depth
	// hops within userID's scope, returning neighbours in discovery
	// order.
	FindRelated(ctx context.Context, userID, memoryID string, depth int) ([]Related, error)

	// InsertJournal embeds e.Content and appends the entry. An empty
	// e.Date is derived from e.Timestamp (UTC day).
	InsertJournal(ctx context.Context, userID string, e *JournalEntry) error

	// ListJournal returns entries newest first; limit <= 0 returns all.
	ListJournal(ctx context.Context, userID string, limit int) ([]*JournalEntry, error)

	// RecentJournal returns the newest entries, sized for roughly `days`
	// days of activity (20 per day). Callers needing a hard time cutoff
	// filter on Timestamp themselves.
	RecentJournal(ctx context.Context, userID string, days int) ([]*JournalEntry, error)

	// JournalByDate returns all entries with the given day key.
	JournalByDate(ctx context.Context, userID, date string) ([]*JournalEntry, error)

	// StaleJournalDates returns the distinct day keys of entries older
	// than maxAgeDays, sorted ascending.
	StaleJournalDates(ctx context.Context, userID string, maxAgeDays int) ([]string, error)

	// DeleteJournalDate removes every entry with the given day key.
	DeleteJournalDate(ctx context.Context, userID, date string) error

	// LatestCheckpoint returns the newest checkpoint-gated entry.
	LatestCheckpoint(ctx context.Context, userID string) (*JournalEntry, error)

	CountJournal(ctx context.Context, userID string) (int, error)

	GetIdentity(ctx context.Context, userID string) (*Identity, error)
	SetIdentity(ctx context.Context, userID string, card *Identity) error

	InsertRule(ctx context.Context, userID string, r *Rule) error
	GetRule(ctx context.Context, userID, ruleID string) (*Rule, error)

	// ListRules returns the tenant's rules newest first.
	ListRules(ctx context.Context, userID string) ([]*Rule, error)

	UpdateRule(ctx context.Context, userID, ruleID string, upd RuleUpdate) error
	DeleteRule(ctx context.Context, userID, ruleID string) error

	// TouchRule stamps last_triggered with the current time.
	TouchRule(ctx context.Context, userID, ruleID string) error

	// MigrateUser rewrites the owner of every record stored under fromID
	// to toID and returns the number of records moved.
	MigrateUser(ctx context.Context, fromID, toID string) (int, error)

	// Close flushes and releases driver resources.
	Close() error
}

// TeamUser returns the synthetic user id that owns a team's shared
// records (rules, team-created memories).
func TeamUser(teamID string) string {
	return "team:" + teamID
}
