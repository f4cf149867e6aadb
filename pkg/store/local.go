package store

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/memkit/pkg/embed"
	"github.com/haivivi/memkit/pkg/kv"
	"github.com/haivivi/memkit/pkg/storage"
	"github.com/haivivi/memkit/pkg/vecstore"
)

// Key prefixes in the kv layer. Every vector in the ANN index has a "pt"
// locator mapping its numeric point id back to the owning record, which is
// how search results are resolved and tenant-filtered.
const (
	prefixPoint    = "pt"  // pt:<pid>                 -> locator
	prefixMemory   = "mem" // mem:<user>:<id>          -> memRecord
	prefixJournal  = "jrn" // jrn:<user>:<inv-ts>:<pid> -> jrnRecord
	prefixIdentity = "idn" // idn:<user>               -> idnRecord
	prefixRule     = "rul" // rul:<user>:<rule-id>     -> rulRecord
	prefixTerm     = "tm"  // tm:<hash>:<pid>          -> doc weight
	prefixStat     = "st"  // st:ndocs                 -> memory count
)

// DefaultIndexFile is where the HNSW index is persisted inside the
// driver's FileStore.
const DefaultIndexFile = "index.hnsw"

const defaultListLimit = 500

// kindOf locator kinds, matching the collection's type discriminator.
const (
	kindMemory   = "memory"
	kindJournal  = "journal"
	kindIdentity = "identity"
	kindRule     = "rule"
)

// locator resolves a numeric point id back to its record.
type locator struct {
	Kind string `msgpack:"k"`
	User string `msgpack:"u"`
	Key  string `msgpack:"id"`
}

type memRecord struct {
	M     Memory   `msgpack:"m"`
	Pid   uint64   `msgpack:"pid"`
	Terms []uint32 `msgpack:"terms"`
}

type jrnRecord struct {
	E   JournalEntry `msgpack:"e"`
	Pid uint64       `msgpack:"pid"`
}

type idnRecord struct {
	C   Identity `msgpack:"c"`
	Pid uint64   `msgpack:"pid"`
}

type rulRecord struct {
	R   Rule   `msgpack:"r"`
	Pid uint64 `msgpack:"pid"`
}

// LocalOptions configures the embedded driver.
type LocalOptions struct {
	// KV holds the records, postings and locators. Required.
	KV kv.Store

	// Vectors is the dense ANN index. Required.
	Vectors vecstore.Index

	// Embedder produces the dense vectors. Required.
	Embedder embed.Embedder

	// Sparse produces the keyword vectors. Defaults to a standard
	// BM25 encoder.
	Sparse *embed.SparseEncoder

	// Files, when set, persists the HNSW index on Close.
	Files storage.FileStore

	// IndexFile names the persisted index inside Files.
	// Defaults to DefaultIndexFile.
	IndexFile string

	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Local is the embedded Store driver: records in a key-value store, dense
// vectors in an ANN index, sparse retrieval from an inverted posting list,
// rank fusion done in-process. It serves the single-user local mode and
// the test suite.
type Local struct {
	mu        sync.RWMutex
	kv        kv.Store
	vec       vecstore.Index
	emb       embed.Embedder
	sparse    *embed.SparseEncoder
	files     storage.FileStore
	indexFile string
	log       *slog.Logger
}

// Compile-time interface check.
var _ Store = (*Local)(nil)

// NewLocal creates an embedded driver from pre-built components.
func NewLocal(opts LocalOptions) (*Local, error) {
	if opts.KV == nil {
		return nil, errors.New("store: LocalOptions.KV is required")
	}
	if opts.Vectors == nil {
		return nil, errors.New("store: LocalOptions.Vectors is required")
	}
	if opts.Embedder == nil {
		return nil, errors.New("store: LocalOptions.Embedder is required")
	}
	if opts.Sparse == nil {
		opts.Sparse = embed.NewSparseEncoder()
	}
	if opts.IndexFile == "" {
		opts.IndexFile = DefaultIndexFile
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Local{
		kv:        opts.KV,
		vec:       opts.Vectors,
		emb:       opts.Embedder,
		sparse:    opts.Sparse,
		files:     opts.Files,
		indexFile: opts.IndexFile,
		log:       opts.Logger,
	}, nil
}

// OpenLocal opens (or initializes) an embedded store under dir: a badger
// database for records and an HNSW index persisted next to it.
func OpenLocal(dir string, embedder embed.Embedder, logger *slog.Logger) (*Local, error) {
	db, err := kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(dir, "kv"), Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("store: open kv: %w", err)
	}
	files, err := storage.NewLocal(dir)
	if err != nil {
		db.Close()
		return nil, err
	}

	var index vecstore.Index
	rc, err := files.Read(context.Background(), DefaultIndexFile)
	switch {
	case err == nil:
		h, lerr := vecstore.LoadHNSW(rc)
		rc.Close()
		if lerr != nil {
			db.Close()
			return nil, fmt.Errorf("store: load index: %w", lerr)
		}
		index = h
	case errors.Is(err, os.ErrNotExist):
		index = vecstore.NewHNSW(vecstore.HNSWConfig{Dim: embedder.Dimension()})
	default:
		db.Close()
		return nil, err
	}

	return NewLocal(LocalOptions{
		KV:       db,
		Vectors:  index,
		Embedder: embedder,
		Files:    files,
		Logger:   logger,
	})
}

// seg sanitizes a string for use as a kv key segment. The separator byte
// cannot appear in segments, and synthetic team users ("team:<id>") would
// otherwise split.
func seg(s string) string {
	return strings.ReplaceAll(s, string(kv.Separator), "\x1f")
}

func pidSeg(pid uint64) string {
	return strconv.FormatUint(pid, 10)
}

// invTimestamp formats a timestamp so lexicographic ascending order is
// newest-first.
func invTimestamp(t time.Time) string {
	return fmt.Sprintf("%019d", uint64(math.MaxInt64-t.UnixNano()))
}

func weightBytes(w float32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], math.Float32bits(w))
	return b[:]
}

func weightFromBytes(b []byte) float32 {
	if len(b) != 4 {
		return 0
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b))
}

// --- memories ---

func (l *Local) InsertMemory(ctx context.Context, userID string, m *Memory) error {
	rec := memRecord{M: *m, Pid: PointID(m.ID)}
	if rec.M.Visibility == "" {
		rec.M.Visibility = "private"
	}
	if rec.M.Created.IsZero() {
		rec.M.Created = time.Now().UTC()
	}
	if rec.M.LastAccessed.IsZero() {
		rec.M.LastAccessed = rec.M.Created
	}
	rec.M.OwnerID = ""

	dense, err := l.emb.Embed(ctx, m.Content)
	if err != nil {
		return fmt.Errorf("store: embed: %w", err)
	}
	sv := l.sparse.Encode(m.Content)
	rec.Terms = sv.Indices

	l.mu.Lock()
	defer l.mu.Unlock()

	key := kv.Key{prefixMemory, seg(userID), seg(m.ID)}
	fresh := true
	if old, err := l.getMemRecord(ctx, userID, m.ID); err == nil {
		fresh = false
		if err := l.deletePostings(ctx, old.Terms, old.Pid); err != nil {
			return err
		}
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	entries := []kv.Entry{
		{Key: key, Value: mustMarshal(rec)},
		{Key: kv.Key{prefixPoint, pidSeg(rec.Pid)}, Value: mustMarshal(locator{Kind: kindMemory, User: userID, Key: m.ID})},
	}
	for i, idx := range sv.Indices {
		entries = append(entries, kv.Entry{
			Key:   kv.Key{prefixTerm, strconv.FormatUint(uint64(idx), 10), pidSeg(rec.Pid)},
			Value: weightBytes(sv.Values[i]),
		})
	}
	if err := l.kv.BatchSet(ctx, entries); err != nil {
		return err
	}
	if err := l.vec.Insert(rec.Pid, dense); err != nil {
		return fmt.Errorf("store: index insert: %w", err)
	}
	if fresh {
		return l.bumpDocCount(ctx, 1)
	}
	return nil
}

func (l *Local) GetMemory(ctx context.Context, userID, teamID, memoryID string) (*Memory, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.getMemoryLocked(ctx, userID, teamID, memoryID)
}

func (l *Local) getMemoryLocked(ctx context.Context, userID, teamID, memoryID string) (*Memory, error) {
	rec, err := l.getMemRecord(ctx, userID, memoryID)
	if err == nil {
		m := rec.M
		m.OwnerID = userID
		return &m, nil
	}
	if !errors.Is(err, ErrNotFound) || teamID == "" {
		return nil, err
	}

	// Team-visible records are addressable through the team scope
	// regardless of which member wrote them.
	loc, err := l.getLocator(ctx, PointID(memoryID))
	if err != nil || loc.Kind != kindMemory {
		return nil, ErrNotFound
	}
	rec, err = l.getMemRecord(ctx, loc.User, memoryID)
	if err != nil {
		return nil, ErrNotFound
	}
	if rec.M.Visibility != "team" || rec.M.TeamID != teamID {
		return nil, ErrNotFound
	}
	m := rec.M
	m.OwnerID = loc.User
	return &m, nil
}

func (l *Local) UpdateMemory(ctx context.Context, userID, memoryID string, upd MemoryUpdate) error {
	var dense []float32
	var sv embed.SparseVector
	if upd.Content != nil {
		var err error
		dense, err = l.emb.Embed(ctx, *upd.Content)
		if err != nil {
			return fmt.Errorf("store: embed: %w", err)
		}
		sv = l.sparse.Encode(*upd.Content)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getMemRecord(ctx, userID, memoryID)
	if err != nil {
		return err
	}
	if upd.Gate != nil {
		rec.M.Gate = *upd.Gate
	}
	if upd.DecayClass != nil {
		rec.M.DecayClass = *upd.DecayClass
	}
	if upd.Person != nil {
		rec.M.Person = *upd.Person
	}
	if upd.Project != nil {
		rec.M.Project = *upd.Project
	}
	if upd.Confidence != nil {
		rec.M.Confidence = *upd.Confidence
	}
	if upd.Pinned != nil {
		rec.M.Pinned = *upd.Pinned
	}

	entries := []kv.Entry{}
	if upd.Content != nil {
		rec.M.Content = *upd.Content
		if err := l.deletePostings(ctx, rec.Terms, rec.Pid); err != nil {
			return err
		}
		rec.Terms = sv.Indices
		for i, idx := range sv.Indices {
			entries = append(entries, kv.Entry{
				Key:   kv.Key{prefixTerm, strconv.FormatUint(uint64(idx), 10), pidSeg(rec.Pid)},
				Value: weightBytes(sv.Values[i]),
			})
		}
	}
	entries = append(entries, kv.Entry{
		Key:   kv.Key{prefixMemory, seg(userID), seg(memoryID)},
		Value: mustMarshal(*rec),
	})
	if err := l.kv.BatchSet(ctx, entries); err != nil {
		return err
	}
	if upd.Content != nil {
		if err := l.vec.Insert(rec.Pid, dense); err != nil {
			return fmt.Errorf("store: index insert: %w", err)
		}
	}
	return nil
}

func (l *Local) DeleteMemory(ctx context.Context, userID, memoryID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getMemRecord(ctx, userID, memoryID)
	if err != nil {
		return err
	}
	if err := l.deletePostings(ctx, rec.Terms, rec.Pid); err != nil {
		return err
	}
	keys := []kv.Key{
		{prefixMemory, seg(userID), seg(memoryID)},
		{prefixPoint, pidSeg(rec.Pid)},
	}
	if err := l.kv.BatchDelete(ctx, keys); err != nil {
		return err
	}
	if err := l.vec.Delete(rec.Pid); err != nil {
		return fmt.Errorf("store: index delete: %w", err)
	}
	return l.bumpDocCount(ctx, -1)
}

func (l *Local) TouchMemory(ctx context.Context, userID, memoryID string) error {
	return l.mutateMemory(ctx, userID, memoryID, func(m *Memory) {
		m.LastAccessed = time.Now().UTC()
		m.AccessCount++
	})
}

func (l *Local) SetPinned(ctx context.Context, userID, memoryID string, pinned bool) error {
	return l.mutateMemory(ctx, userID, memoryID, func(m *Memory) { m.Pinned = pinned })
}

func (l *Local) SetConfidence(ctx context.Context, userID, memoryID string, confidence float64) error {
	return l.mutateMemory(ctx, userID, memoryID, func(m *Memory) { m.Confidence = confidence })
}

func (l *Local) SetSensitivity(ctx context.Context, userID, memoryID, level, reason string) error {
	return l.mutateMemory(ctx, userID, memoryID, func(m *Memory) {
		m.Sensitivity = level
		m.SensitivityReason = reason
	})
}

func (l *Local) mutateMemory(ctx context.Context, userID, memoryID string, fn func(*Memory)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getMemRecord(ctx, userID, memoryID)
	if err != nil {
		return err
	}
	fn(&rec.M)
	return l.kv.Set(ctx, kv.Key{prefixMemory, seg(userID), seg(memoryID)}, mustMarshal(*rec))
}

func (l *Local) ListMemories(ctx context.Context, userID string, opts ListOptions) ([]*Memory, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Memory
	for entry, err := range l.kv.List(ctx, kv.Key{prefixMemory, seg(userID)}) {
		if err != nil {
			return nil, err
		}
		var rec memRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("store: decode memory: %w", err)
		}
		if !matchesList(&rec.M, opts) {
			continue
		}
		m := rec.M
		m.OwnerID = userID
		out = append(out, &m)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesList(m *Memory, opts ListOptions) bool {
	if opts.Gate != "" && m.Gate != opts.Gate {
		return false
	}
	if opts.Person != "" && m.Person != opts.Person {
		return false
	}
	if opts.Project != "" && m.Project != opts.Project {
		return false
	}
	if opts.Visibility != "" && m.Visibility != opts.Visibility {
		return false
	}
	if opts.TeamID != "" && m.TeamID != opts.TeamID {
		return false
	}
	if opts.Sensitivity != "" && m.Sensitivity != opts.Sensitivity {
		return false
	}
	if opts.Unclassified && m.Sensitivity != "" {
		return false
	}
	return true
}

func (l *Local) CountMemories(ctx context.Context, userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, err := range l.kv.List(ctx, kv.Key{prefixMemory, seg(userID)}) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

func (l *Local) CountByGate(ctx context.Context, userID string) (map[string]int, error) {
	return l.countBy(ctx, userID, func(m *Memory) string { return m.Gate })
}

func (l *Local) CountBySensitivity(ctx context.Context, userID string) (map[string]int, error) {
	return l.countBy(ctx, userID, func(m *Memory) string { return m.Sensitivity })
}

func (l *Local) countBy(ctx context.Context, userID string, key func(*Memory) string) (map[string]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[string]int)
	for entry, err := range l.kv.List(ctx, kv.Key{prefixMemory, seg(userID)}) {
		if err != nil {
			return nil, err
		}
		var rec memRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("store: decode memory: %w", err)
		}
		if k := key(&rec.M); k != "" {
			counts[k]++
		}
	}
	return counts, nil
}

// --- retrieval ---

func (l *Local) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	prefetch := max(4*limit, 20)

	dense, err := l.emb.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("store: embed query: %w", err)
	}
	qv := l.sparse.EncodeQuery(req.Query)

	l.mu.RLock()
	defer l.mu.RUnlock()

	cache := make(map[uint64]*memRecord)

	densePids, err := l.denseCandidates(ctx, dense, prefetch, req, cache)
	if err != nil {
		return nil, err
	}
	sparsePids, err := l.sparseCandidates(ctx, qv, prefetch, req, cache)
	if err != nil {
		return nil, err
	}

	fused := fuseRRF(densePids, sparsePids)
	if len(fused) > limit {
		fused = fused[:limit]
	}
	hits := make([]Hit, 0, len(fused))
	for _, f := range fused {
		rec := cache[f.id]
		if rec == nil {
			continue
		}
		hits = append(hits, Hit{ID: rec.M.ID, Score: f.score})
	}
	return hits, nil
}

// denseCandidates runs the ANN leg and keeps the first `limit` points that
// pass the tenant filter. The raw search over-fetches because the index is
// shared across tenants and record kinds.
func (l *Local) denseCandidates(ctx context.Context, query []float32, limit int, req SearchRequest, cache map[uint64]*memRecord) ([]uint64, error) {
	matches, err := l.vec.Search(query, limit*8)
	if err != nil {
		return nil, fmt.Errorf("store: index search: %w", err)
	}
	pids := make([]uint64, 0, limit)
	for _, m := range matches {
		if len(pids) == limit {
			break
		}
		rec, err := l.resolveMemory(ctx, m.ID, cache)
		if err != nil {
			return nil, err
		}
		if rec == nil || !l.tenantOK(rec, req) {
			continue
		}
		pids = append(pids, m.ID)
	}
	return pids, nil
}

// sparseCandidates scores the posting lists of the query terms with BM25
// IDF weighting and keeps the best tenant-visible points.
func (l *Local) sparseCandidates(ctx context.Context, qv embed.SparseVector, limit int, req SearchRequest, cache map[uint64]*memRecord) ([]uint64, error) {
	if len(qv.Indices) == 0 {
		return nil, nil
	}
	total, err := l.docCount(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, nil
	}

	type posting struct {
		pid    uint64
		weight float32
	}
	scores := make(map[uint64]float64)
	for _, idx := range qv.Indices {
		var postings []posting
		for entry, err := range l.kv.List(ctx, kv.Key{prefixTerm, strconv.FormatUint(uint64(idx), 10)}) {
			if err != nil {
				return nil, err
			}
			pid, perr := strconv.ParseUint(entry.Key[len(entry.Key)-1], 10, 64)
			if perr != nil {
				continue
			}
			postings = append(postings, posting{pid: pid, weight: weightFromBytes(entry.Value)})
		}
		if len(postings) == 0 {
			continue
		}
		idf := bm25IDF(total, len(postings))
		for _, p := range postings {
			scores[p.pid] += idf * float64(p.weight)
		}
	}

	ranked := make([]uint64, 0, len(scores))
	for pid := range scores {
		ranked = append(ranked, pid)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if scores[ranked[i]] != scores[ranked[j]] {
			return scores[ranked[i]] > scores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})

	pids := make([]uint64, 0, limit)
	for _, pid := range ranked {
		if len(pids) == limit {
			break
		}
		rec, err := l.resolveMemory(ctx, pid, cache)
		if err != nil {
			return nil, err
		}
		if rec == nil || !l.tenantOK(rec, req) {
			continue
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

func bm25IDF(total, df int) float64 {
	if df > total {
		total = df
	}
	return math.Log(1 + (float64(total)-float64(df)+0.5)/(float64(df)+0.5))
}

func (l *Local) TextSearch(ctx context.Context, req SearchRequest) ([]Hit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	tokens := embed.Tokenize(req.Query)
	if len(tokens) == 0 {
		return nil, nil
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	// Full-text match requires every query token to appear: intersect
	// the posting lists, smallest first.
	var candidates map[uint64]bool
	for _, tok := range tokens {
		idx := embed.TokenHash(tok)
		seen := make(map[uint64]bool)
		for entry, err := range l.kv.List(ctx, kv.Key{prefixTerm, strconv.FormatUint(uint64(idx), 10)}) {
			if err != nil {
				return nil, err
			}
			pid, perr := strconv.ParseUint(entry.Key[len(entry.Key)-1], 10, 64)
			if perr != nil {
				continue
			}
			if candidates == nil || candidates[pid] {
				seen[pid] = true
			}
		}
		candidates = seen
		if len(candidates) == 0 {
			return nil, nil
		}
	}

	cache := make(map[uint64]*memRecord)
	recs := make([]*memRecord, 0, len(candidates))
	for pid := range candidates {
		rec, err := l.resolveMemory(ctx, pid, cache)
		if err != nil {
			return nil, err
		}
		if rec == nil || !l.tenantOK(rec, req) {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].M.Created.After(recs[j].M.Created) })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	hits := make([]Hit, len(recs))
	for i, rec := range recs {
		hits[i] = Hit{ID: rec.M.ID, Score: 1}
	}
	return hits, nil
}

// resolveMemory maps a point id to its memory record, or nil when the
// point is a different record kind. Results are memoized in cache.
func (l *Local) resolveMemory(ctx context.Context, pid uint64, cache map[uint64]*memRecord) (*memRecord, error) {
	if rec, ok := cache[pid]; ok {
		return rec, nil
	}
	loc, err := l.getLocator(ctx, pid)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			cache[pid] = nil
			return nil, nil
		}
		return nil, err
	}
	if loc.Kind != kindMemory {
		cache[pid] = nil
		return nil, nil
	}
	rec, err := l.getMemRecord(ctx, loc.User, loc.Key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			cache[pid] = nil
			return nil, nil
		}
		return nil, err
	}
	rec.M.OwnerID = loc.User
	cache[pid] = rec
	return rec, nil
}

// tenantOK applies the retrieval filter: with no team the point must be
// owned by the caller; with a team, the caller's private points and the
// team's shared points both qualify.
func (l *Local) tenantOK(rec *memRecord, req SearchRequest) bool {
	if req.TeamID == "" {
		return rec.M.OwnerID == req.UserID
	}
	if rec.M.OwnerID == req.UserID && rec.M.Visibility == "private" {
		return true
	}
	return rec.M.TeamID == req.TeamID && rec.M.Visibility == "team"
}

func (l *Local) FindRecent(ctx context.Context, userID string, q RecentQuery) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var bestID string
	var bestAt time.Time
	for entry, err := range l.kv.List(ctx, kv.Key{prefixMemory, seg(userID)}) {
		if err != nil {
			return "", err
		}
		var rec memRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return "", fmt.Errorf("store: decode memory: %w", err)
		}
		m := &rec.M
		if m.ID == q.ExcludeID {
			continue
		}
		if q.Person != "" && m.Person != q.Person {
			continue
		}
		if q.Project != "" && m.Project != q.Project {
			continue
		}
		if !q.Since.IsZero() && m.Created.Before(q.Since) {
			continue
		}
		if m.Created.After(bestAt) {
			bestAt = m.Created
			bestID = m.ID
		}
	}
	return bestID, nil
}

// --- graph ---

func (l *Local) AddEdge(ctx context.Context, userID, fromID, toID, relation string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getMemRecord(ctx, userID, fromID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	for _, e := range rec.M.Edges {
		if e.To == toID && e.Relation == relation {
			return nil
		}
	}
	rec.M.Edges = append(rec.M.Edges, Edge{To: toID, Relation: relation})
	return l.kv.Set(ctx, kv.Key{prefixMemory, seg(userID), seg(fromID)}, mustMarshal(*rec))
}

func (l *Local) FindRelated(ctx context.Context, userID, memoryID string, depth int) ([]Related, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	visited := map[string]bool{memoryID: true}
	frontier := []string{memoryID}
	var out []Related

	for d := 1; d <= depth; d++ {
		var next []string
		for _, mid := range frontier {
			rec, err := l.getMemRecord(ctx, userID, mid)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			for _, e := range rec.M.Edges {
				if e.To == "" || visited[e.To] {
					continue
				}
				visited[e.To] = true
				next = append(next, e.To)
				target, err := l.getMemRecord(ctx, userID, e.To)
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						continue
					}
					return nil, err
				}
				out = append(out, Related{
					ID:       e.To,
					Content:  target.M.Content,
					Gate:     target.M.Gate,
					Relation: e.Relation,
					Depth:    d,
				})
			}
		}
		frontier = next
	}
	return out, nil
}

// --- journal ---

func (l *Local) InsertJournal(ctx context.Context, userID string, e *JournalEntry) error {
	rec := jrnRecord{E: *e}
	if rec.E.Timestamp.IsZero() {
		rec.E.Timestamp = time.Now().UTC()
	}
	if rec.E.Date == "" {
		rec.E.Date = rec.E.Timestamp.UTC().Format("2006-01-02")
	}
	rec.Pid = PointID(journalKey(userID, rec.E.Timestamp, rec.E.Content))

	dense, err := l.emb.Embed(ctx, e.Content)
	if err != nil {
		return fmt.Errorf("store: embed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sortKey := invTimestamp(rec.E.Timestamp)
	entries := []kv.Entry{
		{Key: kv.Key{prefixJournal, seg(userID), sortKey, pidSeg(rec.Pid)}, Value: mustMarshal(rec)},
		{Key: kv.Key{prefixPoint, pidSeg(rec.Pid)}, Value: mustMarshal(locator{Kind: kindJournal, User: userID, Key: sortKey})},
	}
	if err := l.kv.BatchSet(ctx, entries); err != nil {
		return err
	}
	if err := l.vec.Insert(rec.Pid, dense); err != nil {
		return fmt.Errorf("store: index insert: %w", err)
	}
	return nil
}

func (l *Local) ListJournal(ctx context.Context, userID string, limit int) ([]*JournalEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listJournalLocked(ctx, userID, limit, nil)
}

// listJournalLocked walks the journal newest-first, keeping entries that
// pass the filter, up to limit (limit <= 0 means all).
func (l *Local) listJournalLocked(ctx context.Context, userID string, limit int, keep func(*JournalEntry) bool) ([]*JournalEntry, error) {
	var out []*JournalEntry
	for entry, err := range l.kv.List(ctx, kv.Key{prefixJournal, seg(userID)}) {
		if err != nil {
			return nil, err
		}
		var rec jrnRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("store: decode journal: %w", err)
		}
		if keep != nil && !keep(&rec.E) {
			continue
		}
		e := rec.E
		out = append(out, &e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *Local) RecentJournal(ctx context.Context, userID string, days int) ([]*JournalEntry, error) {
	if days <= 0 {
		days = 1
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listJournalLocked(ctx, userID, days*20, nil)
}

func (l *Local) JournalByDate(ctx context.Context, userID, date string) ([]*JournalEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.listJournalLocked(ctx, userID, 0, func(e *JournalEntry) bool { return e.Date == date })
}

func (l *Local) StaleJournalDates(ctx context.Context, userID string, maxAgeDays int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)

	l.mu.RLock()
	defer l.mu.RUnlock()

	dates := make(map[string]bool)
	for entry, err := range l.kv.List(ctx, kv.Key{prefixJournal, seg(userID)}) {
		if err != nil {
			return nil, err
		}
		var rec jrnRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("store: decode journal: %w", err)
		}
		if rec.E.Timestamp.Before(cutoff) && rec.E.Date != "" {
			dates[rec.E.Date] = true
		}
	}
	out := make([]string, 0, len(dates))
	for d := range dates {
		out = append(out, d)
	}
	sort.Strings(out)
	return out, nil
}

func (l *Local) DeleteJournalDate(ctx context.Context, userID, date string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var keys []kv.Key
	var pids []uint64
	for entry, err := range l.kv.List(ctx, kv.Key{prefixJournal, seg(userID)}) {
		if err != nil {
			return err
		}
		var rec jrnRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return fmt.Errorf("store: decode journal: %w", err)
		}
		if rec.E.Date != date {
			continue
		}
		keys = append(keys, entry.Key, kv.Key{prefixPoint, pidSeg(rec.Pid)})
		pids = append(pids, rec.Pid)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := l.kv.BatchDelete(ctx, keys); err != nil {
		return err
	}
	for _, pid := range pids {
		if err := l.vec.Delete(pid); err != nil {
			return fmt.Errorf("store: index delete: %w", err)
		}
	}
	return nil
}

func (l *Local) LatestCheckpoint(ctx context.Context, userID string) (*JournalEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entries, err := l.listJournalLocked(ctx, userID, 1, func(e *JournalEntry) bool { return e.Gate == "checkpoint" })
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNotFound
	}
	return entries[0], nil
}

func (l *Local) CountJournal(ctx context.Context, userID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, err := range l.kv.List(ctx, kv.Key{prefixJournal, seg(userID)}) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// --- identity ---

func (l *Local) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	raw, err := l.kv.Get(ctx, kv.Key{prefixIdentity, seg(userID)})
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec idnRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("store: decode identity: %w", err)
	}
	c := rec.C
	return &c, nil
}

func (l *Local) SetIdentity(ctx context.Context, userID string, card *Identity) error {
	dense, err := l.emb.Embed(ctx, card.Content)
	if err != nil {
		return fmt.Errorf("store: embed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec := idnRecord{C: *card, Pid: PointID(identityKey(userID))}
	if rec.C.LastUpdated.IsZero() {
		rec.C.LastUpdated = time.Now().UTC()
	}
	// Reuse the existing point so a migrated card keeps a single vector.
	if raw, err := l.kv.Get(ctx, kv.Key{prefixIdentity, seg(userID)}); err == nil {
		var old idnRecord
		if msgpack.Unmarshal(raw, &old) == nil && old.Pid != 0 {
			rec.Pid = old.Pid
		}
	}

	entries := []kv.Entry{
		{Key: kv.Key{prefixIdentity, seg(userID)}, Value: mustMarshal(rec)},
		{Key: kv.Key{prefixPoint, pidSeg(rec.Pid)}, Value: mustMarshal(locator{Kind: kindIdentity, User: userID})},
	}
	if err := l.kv.BatchSet(ctx, entries); err != nil {
		return err
	}
	if err := l.vec.Insert(rec.Pid, dense); err != nil {
		return fmt.Errorf("store: index insert: %w", err)
	}
	return nil
}

// --- rules ---

// renderRule builds the searchable form of a rule.
func renderRule(scope, condition, enforcement string) string {
	return fmt.Sprintf("%s: %s (%s)", scope, condition, enforcement)
}

func (l *Local) InsertRule(ctx context.Context, userID string, r *Rule) error {
	rec := rulRecord{R: *r, Pid: PointID(ruleKey(userID, r.ID))}
	if rec.R.Created.IsZero() {
		rec.R.Created = time.Now().UTC()
	}
	rec.R.Content = renderRule(rec.R.Scope, rec.R.Condition, rec.R.Enforcement)

	dense, err := l.emb.Embed(ctx, rec.R.Content)
	if err != nil {
		return fmt.Errorf("store: embed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entries := []kv.Entry{
		{Key: kv.Key{prefixRule, seg(userID), seg(r.ID)}, Value: mustMarshal(rec)},
		{Key: kv.Key{prefixPoint, pidSeg(rec.Pid)}, Value: mustMarshal(locator{Kind: kindRule, User: userID, Key: r.ID})},
	}
	if err := l.kv.BatchSet(ctx, entries); err != nil {
		return err
	}
	if err := l.vec.Insert(rec.Pid, dense); err != nil {
		return fmt.Errorf("store: index insert: %w", err)
	}
	return nil
}

func (l *Local) GetRule(ctx context.Context, userID, ruleID string) (*Rule, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, err := l.getRuleRecord(ctx, userID, ruleID)
	if err != nil {
		return nil, err
	}
	r := rec.R
	return &r, nil
}

func (l *Local) ListRules(ctx context.Context, userID string) ([]*Rule, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Rule
	for entry, err := range l.kv.List(ctx, kv.Key{prefixRule, seg(userID)}) {
		if err != nil {
			return nil, err
		}
		var rec rulRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return nil, fmt.Errorf("store: decode rule: %w", err)
		}
		r := rec.R
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return out, nil
}

func (l *Local) UpdateRule(ctx context.Context, userID, ruleID string, upd RuleUpdate) error {
	// Preview the rendered content outside the lock so the embedding call
	// does not block other operations, then re-apply under the lock.
	l.mu.RLock()
	cur, err := l.getRuleRecord(ctx, userID, ruleID)
	l.mu.RUnlock()
	if err != nil {
		return err
	}
	next := cur.R
	applyRuleUpdate(&next, upd)
	content := renderRule(next.Scope, next.Condition, next.Enforcement)

	dense, err := l.emb.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("store: embed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getRuleRecord(ctx, userID, ruleID)
	if err != nil {
		return err
	}
	applyRuleUpdate(&rec.R, upd)
	rec.R.Content = renderRule(rec.R.Scope, rec.R.Condition, rec.R.Enforcement)
	if err := l.kv.Set(ctx, kv.Key{prefixRule, seg(userID), seg(ruleID)}, mustMarshal(*rec)); err != nil {
		return err
	}
	if err := l.vec.Insert(rec.Pid, dense); err != nil {
		return fmt.Errorf("store: index insert: %w", err)
	}
	return nil
}

func applyRuleUpdate(r *Rule, upd RuleUpdate) {
	if upd.Scope != nil {
		r.Scope = *upd.Scope
	}
	if upd.Condition != nil {
		r.Condition = *upd.Condition
	}
	if upd.Enforcement != nil {
		r.Enforcement = *upd.Enforcement
	}
}

func (l *Local) DeleteRule(ctx context.Context, userID, ruleID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getRuleRecord(ctx, userID, ruleID)
	if err != nil {
		return err
	}
	keys := []kv.Key{
		{prefixRule, seg(userID), seg(ruleID)},
		{prefixPoint, pidSeg(rec.Pid)},
	}
	if err := l.kv.BatchDelete(ctx, keys); err != nil {
		return err
	}
	if err := l.vec.Delete(rec.Pid); err != nil {
		return fmt.Errorf("store: index delete: %w", err)
	}
	return nil
}

func (l *Local) TouchRule(ctx context.Context, userID, ruleID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.getRuleRecord(ctx, userID, ruleID)
	if err != nil {
		return err
	}
	rec.R.LastTriggered = time.Now().UTC()
	return l.kv.Set(ctx, kv.Key{prefixRule, seg(userID), seg(ruleID)}, mustMarshal(*rec))
}

// --- migration ---

func (l *Local) MigrateUser(ctx context.Context, fromID, toID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	moved := 0

	// Memories keep their point id (derived from the memory id alone);
	// only the record key and locator move.
	type move struct {
		oldKey, newKey kv.Key
		value          []byte
		pid            uint64
		kind           string
		locKey         string
	}
	var moves []move

	for entry, err := range l.kv.List(ctx, kv.Key{prefixMemory, seg(fromID)}) {
		if err != nil {
			return moved, err
		}
		var rec memRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return moved, fmt.Errorf("store: decode memory: %w", err)
		}
		moves = append(moves, move{
			oldKey: entry.Key,
			newKey: kv.Key{prefixMemory, seg(toID), seg(rec.M.ID)},
			value:  entry.Value,
			pid:    rec.Pid,
			kind:   kindMemory,
			locKey: rec.M.ID,
		})
	}
	for entry, err := range l.kv.List(ctx, kv.Key{prefixJournal, seg(fromID)}) {
		if err != nil {
			return moved, err
		}
		var rec jrnRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return moved, fmt.Errorf("store: decode journal: %w", err)
		}
		sortKey := invTimestamp(rec.E.Timestamp)
		moves = append(moves, move{
			oldKey: entry.Key,
			newKey: kv.Key{prefixJournal, seg(toID), sortKey, pidSeg(rec.Pid)},
			value:  entry.Value,
			pid:    rec.Pid,
			kind:   kindJournal,
			locKey: sortKey,
		})
	}
	if raw, err := l.kv.Get(ctx, kv.Key{prefixIdentity, seg(fromID)}); err == nil {
		var rec idnRecord
		if err := msgpack.Unmarshal(raw, &rec); err != nil {
			return moved, fmt.Errorf("store: decode identity: %w", err)
		}
		// An existing card at the destination is replaced; drop its vector.
		if old, err := l.kv.Get(ctx, kv.Key{prefixIdentity, seg(toID)}); err == nil {
			var dest idnRecord
			if msgpack.Unmarshal(old, &dest) == nil && dest.Pid != rec.Pid {
				l.vec.Delete(dest.Pid)
				l.kv.Delete(ctx, kv.Key{prefixPoint, pidSeg(dest.Pid)})
			}
		}
		moves = append(moves, move{
			oldKey: kv.Key{prefixIdentity, seg(fromID)},
			newKey: kv.Key{prefixIdentity, seg(toID)},
			value:  raw,
			pid:    rec.Pid,
			kind:   kindIdentity,
		})
	} else if !errors.Is(err, kv.ErrNotFound) {
		return moved, err
	}
	for entry, err := range l.kv.List(ctx, kv.Key{prefixRule, seg(fromID)}) {
		if err != nil {
			return moved, err
		}
		var rec rulRecord
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			return moved, fmt.Errorf("store: decode rule: %w", err)
		}
		if old, err := l.kv.Get(ctx, kv.Key{prefixRule, seg(toID), seg(rec.R.ID)}); err == nil {
			var dest rulRecord
			if msgpack.Unmarshal(old, &dest) == nil && dest.Pid != rec.Pid {
				l.vec.Delete(dest.Pid)
				l.kv.Delete(ctx, kv.Key{prefixPoint, pidSeg(dest.Pid)})
			}
		}
		moves = append(moves, move{
			oldKey: entry.Key,
			newKey: kv.Key{prefixRule, seg(toID), seg(rec.R.ID)},
			value:  entry.Value,
			pid:    rec.Pid,
			kind:   kindRule,
			locKey: rec.R.ID,
		})
	}

	for _, mv := range moves {
		entries := []kv.Entry{
			{Key: mv.newKey, Value: mv.value},
			{Key: kv.Key{prefixPoint, pidSeg(mv.pid)}, Value: mustMarshal(locator{Kind: mv.kind, User: toID, Key: mv.locKey})},
		}
		if err := l.kv.BatchSet(ctx, entries); err != nil {
			return moved, err
		}
		if err := l.kv.Delete(ctx, mv.oldKey); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

// --- internals ---

func (l *Local) getMemRecord(ctx context.Context, userID, memoryID string) (*memRecord, error) {
	raw, err := l.kv.Get(ctx, kv.Key{prefixMemory, seg(userID), seg(memoryID)})
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec memRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("store: decode memory: %w", err)
	}
	return &rec, nil
}

func (l *Local) getRuleRecord(ctx context.Context, userID, ruleID string) (*rulRecord, error) {
	raw, err := l.kv.Get(ctx, kv.Key{prefixRule, seg(userID), seg(ruleID)})
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var rec rulRecord
	if err := msgpack.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("store: decode rule: %w", err)
	}
	return &rec, nil
}

func (l *Local) getLocator(ctx context.Context, pid uint64) (*locator, error) {
	raw, err := l.kv.Get(ctx, kv.Key{prefixPoint, pidSeg(pid)})
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var loc locator
	if err := msgpack.Unmarshal(raw, &loc); err != nil {
		return nil, fmt.Errorf("store: decode locator: %w", err)
	}
	return &loc, nil
}

func (l *Local) deletePostings(ctx context.Context, terms []uint32, pid uint64) error {
	if len(terms) == 0 {
		return nil
	}
	keys := make([]kv.Key, 0, len(terms))
	for _, idx := range terms {
		keys = append(keys, kv.Key{prefixTerm, strconv.FormatUint(uint64(idx), 10), pidSeg(pid)})
	}
	return l.kv.BatchDelete(ctx, keys)
}

func (l *Local) docCount(ctx context.Context) (int, error) {
	raw, err := l.kv.Get(ctx, kv.Key{prefixStat, "ndocs"})
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, nil
	}
	return n, nil
}

func (l *Local) bumpDocCount(ctx context.Context, delta int) error {
	n, err := l.docCount(ctx)
	if err != nil {
		return err
	}
	n += delta
	if n < 0 {
		n = 0
	}
	return l.kv.Set(ctx, kv.Key{prefixStat, "ndocs"}, []byte(strconv.Itoa(n)))
}

func mustMarshal(v any) []byte {
	b, err := msgpack.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("store: marshal: %v", err))
	}
	return b
}

// Close persists the ANN index (when a FileStore is configured and the
// index supports it) and releases both backends.
func (l *Local) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	if h, ok := l.vec.(*vecstore.HNSW); ok && l.files != nil {
		if err := l.saveIndex(h); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.vec.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := l.kv.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (l *Local) saveIndex(h *vecstore.HNSW) error {
	w, err := l.files.Write(context.Background(), l.indexFile)
	if err != nil {
		return err
	}
	if err := h.Save(w); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
