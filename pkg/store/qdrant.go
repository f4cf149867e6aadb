package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/qdrant/go-client/qdrant"

	"github.com/haivivi/memkit/pkg/embed"
)

// DefaultCollection is the logical collection every record kind lives in.
const DefaultCollection = "cmk_memories"

const defaultIndexTimeout = 30 * time.Second

// keywordIndexFields get keyword payload indexes at bootstrap.
var keywordIndexFields = []string{
	"type", "gate", "sensitivity", "person", "project",
	"memory_id", "date", "rule_id", "team_id", "visibility",
}

// rangeIndexFields get float indexes so scrolls can order on them.
var rangeIndexFields = []string{"created", "timestamp"}

var gateNames = []string{
	"behavioral", "relational", "epistemic", "promissory", "correction",
	"checkpoint", "digest", "observation",
}

var sensitivityLevels = []string{"safe", "sensitive", "critical", "unknown"}

// QdrantOptions configures the remote driver.
type QdrantOptions struct {
	// Host and Port locate the gRPC endpoint (port 6334 on managed
	// clusters).
	Host string
	Port int

	APIKey string
	UseTLS bool

	// Cloud marks a multi-tenant deployment: user_id becomes a tenant
	// key and the collection defers global HNSW links to per-tenant
	// payload links.
	Cloud bool

	// Collection defaults to DefaultCollection.
	Collection string

	// Embedder produces the dense vectors. Required.
	Embedder embed.Embedder

	// Sparse produces the keyword vectors. Defaults to a standard BM25
	// encoder.
	Sparse *embed.SparseEncoder

	// Timeout bounds each index call. Defaults to 30s.
	Timeout time.Duration

	// Logger receives debug output. Defaults to slog.Default().
	Logger *slog.Logger
}

// Qdrant is the remote Store driver. All record kinds live in one
// collection under a type discriminator, with named dense and sparse
// vectors; hybrid fusion runs server-side.
type Qdrant struct {
	client     *qdrant.Client
	collection string
	cloud      bool
	emb        embed.Embedder
	sparse     *embed.SparseEncoder
	timeout    time.Duration
	log        *slog.Logger
}

// Compile-time interface check.
var _ Store = (*Qdrant)(nil)

// NewQdrant connects to the index and bootstraps the collection and its
// payload indexes.
func NewQdrant(ctx context.Context, opts QdrantOptions) (*Qdrant, error) {
	if opts.Embedder == nil {
		return nil, errors.New("store: QdrantOptions.Embedder is required")
	}
	if opts.Host == "" {
		return nil, errors.New("store: QdrantOptions.Host is required")
	}
	if opts.Port == 0 {
		opts.Port = 6334
	}
	if opts.Collection == "" {
		opts.Collection = DefaultCollection
	}
	if opts.Sparse == nil {
		opts.Sparse = embed.NewSparseEncoder()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultIndexTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant connect: %w", err)
	}

	q := &Qdrant{
		client:     client,
		collection: opts.Collection,
		cloud:      opts.Cloud,
		emb:        opts.Embedder,
		sparse:     opts.Sparse,
		timeout:    opts.Timeout,
		log:        opts.Logger,
	}
	if err := q.ensureCollection(ctx, opts.Embedder.Dimension()); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *Qdrant) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.timeout)
}

func (q *Qdrant) ensureCollection(ctx context.Context, dim int) error {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("store: qdrant collections: %w", err)
	}
	if !exists {
		create := &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
				"dense": {Size: uint64(dim), Distance: qdrant.Distance_Cosine},
			}),
			SparseVectorsConfig: qdrant.NewSparseVectorsConfig(map[string]*qdrant.SparseVectorParams{
				"sparse": {Modifier: qdrant.Modifier_Idf.Enum()},
			}),
		}
		if q.cloud {
			create.HnswConfig = &qdrant.HnswConfigDiff{
				PayloadM: qdrant.PtrOf(uint64(16)),
				M:        qdrant.PtrOf(uint64(0)),
			}
		}
		if err := q.client.CreateCollection(ctx, create); err != nil {
			return fmt.Errorf("store: qdrant create collection: %w", err)
		}
		q.log.Info("created collection", "collection", q.collection, "cloud", q.cloud)
	}
	return q.ensureIndexes(ctx)
}

// ensureIndexes idempotently creates the payload indexes. Re-creating an
// existing index fails server-side, so each call swallows errors.
func (q *Qdrant) ensureIndexes(ctx context.Context) error {
	textParams := &qdrant.PayloadIndexParams{
		IndexParams: &qdrant.PayloadIndexParams_TextIndexParams{
			TextIndexParams: &qdrant.TextIndexParams{
				Tokenizer:   qdrant.TokenizerType_Word,
				Lowercase:   qdrant.PtrOf(true),
				MinTokenLen: qdrant.PtrOf(uint64(2)),
			},
		},
	}
	q.createIndex(ctx, "content", qdrant.FieldType_FieldTypeText, textParams)

	for _, field := range keywordIndexFields {
		q.createIndex(ctx, field, qdrant.FieldType_FieldTypeKeyword, nil)
	}
	for _, field := range rangeIndexFields {
		q.createIndex(ctx, field, qdrant.FieldType_FieldTypeFloat, nil)
	}
	if q.cloud {
		tenantParams := &qdrant.PayloadIndexParams{
			IndexParams: &qdrant.PayloadIndexParams_KeywordIndexParams{
				KeywordIndexParams: &qdrant.KeywordIndexParams{
					IsTenant: qdrant.PtrOf(true),
				},
			},
		}
		q.createIndex(ctx, "user_id", qdrant.FieldType_FieldTypeKeyword, tenantParams)
	} else {
		q.createIndex(ctx, "user_id", qdrant.FieldType_FieldTypeKeyword, nil)
	}
	return nil
}

func (q *Qdrant) createIndex(ctx context.Context, field string, ft qdrant.FieldType, params *qdrant.PayloadIndexParams) {
	_, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName:   q.collection,
		FieldName:        field,
		FieldType:        ft.Enum(),
		FieldIndexParams: params,
	})
	if err != nil {
		q.log.Debug("payload index", "field", field, "err", err)
	}
}

// --- filters ---

func typeCond(kind string) *qdrant.Condition {
	return qdrant.NewMatch("type", kind)
}

// memFilter builds the tenant filter for memory retrieval: owner-only
// without a team, otherwise the private arm OR the team arm.
func memFilter(userID, teamID string) *qdrant.Filter {
	if userID != "" && teamID != "" {
		return &qdrant.Filter{
			Must: []*qdrant.Condition{typeCond(kindMemory)},
			Should: []*qdrant.Condition{
				qdrant.NewFilterAsCondition(&qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("user_id", userID),
						qdrant.NewMatch("visibility", "private"),
					},
				}),
				qdrant.NewFilterAsCondition(&qdrant.Filter{
					Must: []*qdrant.Condition{
						qdrant.NewMatch("team_id", teamID),
						qdrant.NewMatch("visibility", "team"),
					},
				}),
			},
		}
	}
	must := []*qdrant.Condition{typeCond(kindMemory)}
	if userID != "" {
		must = append(must, qdrant.NewMatch("user_id", userID))
	}
	return &qdrant.Filter{Must: must}
}

func userMust(kind, userID string, extra ...*qdrant.Condition) *qdrant.Filter {
	must := []*qdrant.Condition{typeCond(kind), qdrant.NewMatch("user_id", userID)}
	return &qdrant.Filter{Must: append(must, extra...)}
}

// --- scroll helpers ---

func (q *Qdrant) scroll(ctx context.Context, filter *qdrant.Filter, limit int, orderBy string, desc bool) ([]*qdrant.RetrievedPoint, error) {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()

	req := &qdrant.ScrollPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if orderBy != "" {
		dir := qdrant.Direction_Asc
		if desc {
			dir = qdrant.Direction_Desc
		}
		req.OrderBy = &qdrant.OrderBy{Key: orderBy, Direction: dir.Enum()}
	}
	points, err := q.client.Scroll(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("store: qdrant scroll: %w", err)
	}
	return points, nil
}

func (q *Qdrant) findPoint(ctx context.Context, filter *qdrant.Filter) (*qdrant.RetrievedPoint, error) {
	points, err := q.scroll(ctx, filter, 1, "", false)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}
	return points[0], nil
}

func (q *Qdrant) setPayload(ctx context.Context, id *qdrant.PointId, payload map[string]*qdrant.Value) error {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()
	_, err := q.client.SetPayload(ctx, &qdrant.SetPayloadPoints{
		CollectionName: q.collection,
		Payload:        payload,
		PointsSelector: qdrant.NewPointsSelector(id),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("store: qdrant set payload: %w", err)
	}
	return nil
}

func (q *Qdrant) deleteByFilter(ctx context.Context, filter *qdrant.Filter) error {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelectorFilter(filter),
		Wait:           qdrant.PtrOf(true),
	})
	if err != nil {
		return fmt.Errorf("store: qdrant delete: %w", err)
	}
	return nil
}

func (q *Qdrant) upsert(ctx context.Context, id uint64, content string, payload map[string]*qdrant.Value) error {
	dense, err := q.emb.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("store: embed: %w", err)
	}
	sv := q.sparse.Encode(content)

	ctx, cancel := q.opCtx(ctx)
	defer cancel()
	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points: []*qdrant.PointStruct{{
			Id: qdrant.NewIDNum(id),
			Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
				"dense":  qdrant.NewVector(dense...),
				"sparse": qdrant.NewVectorSparse(sv.Indices, sv.Values),
			}),
			Payload: payload,
		}},
	})
	if err != nil {
		return fmt.Errorf("store: qdrant upsert: %w", err)
	}
	return nil
}

// --- memories ---

func (q *Qdrant) InsertMemory(ctx context.Context, userID string, m *Memory) error {
	vis := m.Visibility
	if vis == "" {
		vis = "private"
	}
	created := m.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	accessed := m.LastAccessed
	if accessed.IsZero() {
		accessed = created
	}
	payload := qdrant.NewValueMap(map[string]any{
		"type":               kindMemory,
		"memory_id":          m.ID,
		"content":            m.Content,
		"person":             m.Person,
		"project":            m.Project,
		"user_id":            userID,
		"gate":               m.Gate,
		"confidence":         m.Confidence,
		"created":            epochSeconds(created),
		"last_accessed":      epochSeconds(accessed),
		"access_count":       m.AccessCount,
		"decay_class":        m.DecayClass,
		"pinned":             m.Pinned,
		"sensitivity_reason": m.SensitivityReason,
		"visibility":         vis,
		"team_id":            m.TeamID,
		"created_by":         m.CreatedBy,
	})
	payload["sensitivity"] = sensitivityValue(m.Sensitivity)
	payload["edges"] = edgesValue(m.Edges)
	return q.upsert(ctx, PointID(m.ID), m.Content, payload)
}

func (q *Qdrant) GetMemory(ctx context.Context, userID, teamID, memoryID string) (*Memory, error) {
	filter := memFilter(userID, teamID)
	filter.Must = append(filter.Must, qdrant.NewMatch("memory_id", memoryID))
	pt, err := q.findPoint(ctx, filter)
	if err != nil {
		return nil, err
	}
	return memoryFromPayload(pt.GetPayload()), nil
}

func (q *Qdrant) UpdateMemory(ctx context.Context, userID, memoryID string, upd MemoryUpdate) error {
	pt, err := q.findPoint(ctx, userMust(kindMemory, userID, qdrant.NewMatch("memory_id", memoryID)))
	if err != nil {
		return err
	}

	fields := map[string]any{}
	if upd.Gate != nil {
		fields["gate"] = *upd.Gate
	}
	if upd.DecayClass != nil {
		fields["decay_class"] = *upd.DecayClass
	}
	if upd.Person != nil {
		fields["person"] = *upd.Person
	}
	if upd.Project != nil {
		fields["project"] = *upd.Project
	}
	if upd.Confidence != nil {
		fields["confidence"] = *upd.Confidence
	}
	if upd.Pinned != nil {
		fields["pinned"] = *upd.Pinned
	}

	if upd.Content == nil {
		if len(fields) == 0 {
			return nil
		}
		return q.setPayload(ctx, pt.GetId(), qdrant.NewValueMap(fields))
	}

	// Content changes re-embed: merge the payload and rewrite the whole
	// point so the vectors stay in sync.
	fields["content"] = *upd.Content
	merged := pt.GetPayload()
	for k, v := range qdrant.NewValueMap(fields) {
		merged[k] = v
	}
	return q.upsert(ctx, pt.GetId().GetNum(), *upd.Content, merged)
}

func (q *Qdrant) DeleteMemory(ctx context.Context, userID, memoryID string) error {
	filter := userMust(kindMemory, userID, qdrant.NewMatch("memory_id", memoryID))
	if _, err := q.findPoint(ctx, filter); err != nil {
		return err
	}
	return q.deleteByFilter(ctx, filter)
}

func (q *Qdrant) TouchMemory(ctx context.Context, userID, memoryID string) error {
	pt, err := q.findPoint(ctx, userMust(kindMemory, userID, qdrant.NewMatch("memory_id", memoryID)))
	if err != nil {
		return err
	}
	count := int(valInt(pt.GetPayload()["access_count"])) + 1
	return q.setPayload(ctx, pt.GetId(), qdrant.NewValueMap(map[string]any{
		"last_accessed": epochSeconds(time.Now().UTC()),
		"access_count":  count,
	}))
}

func (q *Qdrant) SetPinned(ctx context.Context, userID, memoryID string, pinned bool) error {
	return q.setMemoryField(ctx, userID, memoryID, map[string]any{"pinned": pinned})
}

func (q *Qdrant) SetConfidence(ctx context.Context, userID, memoryID string, confidence float64) error {
	return q.setMemoryField(ctx, userID, memoryID, map[string]any{"confidence": confidence})
}

func (q *Qdrant) SetSensitivity(ctx context.Context, userID, memoryID, level, reason string) error {
	return q.setMemoryField(ctx, userID, memoryID, map[string]any{
		"sensitivity":        level,
		"sensitivity_reason": reason,
	})
}

func (q *Qdrant) setMemoryField(ctx context.Context, userID, memoryID string, fields map[string]any) error {
	pt, err := q.findPoint(ctx, userMust(kindMemory, userID, qdrant.NewMatch("memory_id", memoryID)))
	if err != nil {
		return err
	}
	return q.setPayload(ctx, pt.GetId(), qdrant.NewValueMap(fields))
}

func (q *Qdrant) ListMemories(ctx context.Context, userID string, opts ListOptions) ([]*Memory, error) {
	extra := []*qdrant.Condition{}
	if opts.Gate != "" {
		extra = append(extra, qdrant.NewMatch("gate", opts.Gate))
	}
	if opts.Person != "" {
		extra = append(extra, qdrant.NewMatch("person", opts.Person))
	}
	if opts.Project != "" {
		extra = append(extra, qdrant.NewMatch("project", opts.Project))
	}
	if opts.Visibility != "" {
		extra = append(extra, qdrant.NewMatch("visibility", opts.Visibility))
	}
	if opts.TeamID != "" {
		extra = append(extra, qdrant.NewMatch("team_id", opts.TeamID))
	}
	if opts.Sensitivity != "" {
		extra = append(extra, qdrant.NewMatch("sensitivity", opts.Sensitivity))
	}
	if opts.Unclassified {
		extra = append(extra, qdrant.NewIsNull("sensitivity"))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	points, err := q.scroll(ctx, userMust(kindMemory, userID, extra...), limit+opts.Offset, "created", true)
	if err != nil {
		return nil, err
	}
	if opts.Offset >= len(points) {
		return nil, nil
	}
	points = points[opts.Offset:]

	out := make([]*Memory, 0, len(points))
	for _, pt := range points {
		out = append(out, memoryFromPayload(pt.GetPayload()))
	}
	return out, nil
}

func (q *Qdrant) CountMemories(ctx context.Context, userID string) (int, error) {
	return q.count(ctx, userMust(kindMemory, userID))
}

func (q *Qdrant) CountByGate(ctx context.Context, userID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, gate := range gateNames {
		n, err := q.count(ctx, userMust(kindMemory, userID, qdrant.NewMatch("gate", gate)))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			counts[gate] = n
		}
	}
	return counts, nil
}

func (q *Qdrant) CountBySensitivity(ctx context.Context, userID string) (map[string]int, error) {
	counts := make(map[string]int)
	for _, level := range sensitivityLevels {
		n, err := q.count(ctx, userMust(kindMemory, userID, qdrant.NewMatch("sensitivity", level)))
		if err != nil {
			return nil, err
		}
		if n > 0 {
			counts[level] = n
		}
	}
	return counts, nil
}

func (q *Qdrant) count(ctx context.Context, filter *qdrant.Filter) (int, error) {
	ctx, cancel := q.opCtx(ctx)
	defer cancel()
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter:         filter,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("store: qdrant count: %w", err)
	}
	return int(n), nil
}

// --- retrieval ---

func (q *Qdrant) Search(ctx context.Context, req SearchRequest) ([]Hit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	prefetch := uint64(max(4*limit, 20))

	dense, err := q.emb.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("store: embed query: %w", err)
	}
	qv := q.sparse.EncodeQuery(req.Query)
	filter := memFilter(req.UserID, req.TeamID)

	ctx, cancel := q.opCtx(ctx)
	defer cancel()
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Prefetch: []*qdrant.PrefetchQuery{
			{
				Query:  qdrant.NewQueryDense(dense),
				Using:  qdrant.PtrOf("dense"),
				Limit:  qdrant.PtrOf(prefetch),
				Filter: filter,
			},
			{
				Query:  qdrant.NewQuerySparse(qv.Indices, qv.Values),
				Using:  qdrant.PtrOf("sparse"),
				Limit:  qdrant.PtrOf(prefetch),
				Filter: filter,
			},
		},
		Query:       qdrant.NewQueryFusion(qdrant.Fusion_RRF),
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("store: qdrant query: %w", err)
	}

	hits := make([]Hit, 0, len(points))
	for _, pt := range points {
		id := valStr(pt.GetPayload()["memory_id"])
		if id == "" {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: pt.GetScore()})
	}
	return hits, nil
}

func (q *Qdrant) TextSearch(ctx context.Context, req SearchRequest) ([]Hit, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}
	filter := memFilter(req.UserID, req.TeamID)
	filter.Must = append(filter.Must, qdrant.NewMatchText("content", req.Query))

	points, err := q.scroll(ctx, filter, limit, "", false)
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(points))
	for _, pt := range points {
		id := valStr(pt.GetPayload()["memory_id"])
		if id == "" {
			continue
		}
		hits = append(hits, Hit{ID: id, Score: 1})
	}
	return hits, nil
}

func (q *Qdrant) FindRecent(ctx context.Context, userID string, query RecentQuery) (string, error) {
	extra := []*qdrant.Condition{}
	if query.Person != "" {
		extra = append(extra, qdrant.NewMatch("person", query.Person))
	}
	if query.Project != "" {
		extra = append(extra, qdrant.NewMatch("project", query.Project))
	}
	if !query.Since.IsZero() {
		extra = append(extra, qdrant.NewRange("created", &qdrant.Range{
			Gte: qdrant.PtrOf(epochSeconds(query.Since)),
		}))
	}

	points, err := q.scroll(ctx, userMust(kindMemory, userID, extra...), 10, "created", true)
	if err != nil {
		return "", err
	}
	for _, pt := range points {
		if id := valStr(pt.GetPayload()["memory_id"]); id != "" && id != query.ExcludeID {
			return id, nil
		}
	}
	return "", nil
}

// --- graph ---

func (q *Qdrant) AddEdge(ctx context.Context, userID, fromID, toID, relation string) error {
	pt, err := q.findPoint(ctx, userMust(kindMemory, userID, qdrant.NewMatch("memory_id", fromID)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	edges := edgesFromValue(pt.GetPayload()["edges"])
	for _, e := range edges {
		if e.To == toID && e.Relation == relation {
			return nil
		}
	}
	edges = append(edges, Edge{To: toID, Relation: relation})
	return q.setPayload(ctx, pt.GetId(), map[string]*qdrant.Value{"edges": edgesValue(edges)})
}

func (q *Qdrant) FindRelated(ctx context.Context, userID, memoryID string, depth int) ([]Related, error) {
	visited := map[string]bool{memoryID: true}
	frontier := []string{memoryID}
	var out []Related

	for d := 1; d <= depth; d++ {
		var next []string
		for _, mid := range frontier {
			pt, err := q.findPoint(ctx, userMust(kindMemory, userID, qdrant.NewMatch("memory_id", mid)))
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					continue
				}
				return nil, err
			}
			for _, e := range edgesFromValue(pt.GetPayload()["edges"]) {
				if e.To == "" || visited[e.To] {
					continue
				}
				visited[e.To] = true
				next = append(next, e.To)
				target, err := q.findPoint(ctx, userMust(kindMemory, userID, qdrant.NewMatch("memory_id", e.To)))
				if err != nil {
					if errors.Is(err, ErrNotFound) {
						continue
					}
					return nil, err
				}
				payload := target.GetPayload()
				out = append(out, Related{
					ID:       e.To,
					Content:  valStr(payload["content"]),
					Gate:     valStr(payload["gate"]),
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

func (q *Qdrant) InsertJournal(ctx context.Context, userID string, e *JournalEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	date := e.Date
	if date == "" {
		date = ts.UTC().Format("2006-01-02")
	}
	payload := qdrant.NewValueMap(map[string]any{
		"type":      kindJournal,
		"user_id":   userID,
		"gate":      e.Gate,
		"content":   e.Content,
		"person":    e.Person,
		"project":   e.Project,
		"timestamp": epochSeconds(ts),
		"date":      date,
	})
	return q.upsert(ctx, PointID(journalKey(userID, ts, e.Content)), e.Content, payload)
}

func (q *Qdrant) ListJournal(ctx context.Context, userID string, limit int) ([]*JournalEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	points, err := q.scroll(ctx, userMust(kindJournal, userID), limit, "timestamp", true)
	if err != nil {
		return nil, err
	}
	return journalFromPoints(points), nil
}

func (q *Qdrant) RecentJournal(ctx context.Context, userID string, days int) ([]*JournalEntry, error) {
	if days <= 0 {
		days = 1
	}
	return q.ListJournal(ctx, userID, days*20)
}

func (q *Qdrant) JournalByDate(ctx context.Context, userID, date string) ([]*JournalEntry, error) {
	points, err := q.scroll(ctx, userMust(kindJournal, userID, qdrant.NewMatch("date", date)), 500, "", false)
	if err != nil {
		return nil, err
	}
	return journalFromPoints(points), nil
}

func (q *Qdrant) StaleJournalDates(ctx context.Context, userID string, maxAgeDays int) ([]string, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -maxAgeDays)
	filter := userMust(kindJournal, userID, qdrant.NewRange("timestamp", &qdrant.Range{
		Lt: qdrant.PtrOf(epochSeconds(cutoff)),
	}))
	points, err := q.scroll(ctx, filter, 1000, "", false)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	for _, pt := range points {
		if d := valStr(pt.GetPayload()["date"]); d != "" {
			set[d] = true
		}
	}
	dates := make([]string, 0, len(set))
	for d := range set {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, nil
}

func (q *Qdrant) DeleteJournalDate(ctx context.Context, userID, date string) error {
	return q.deleteByFilter(ctx, userMust(kindJournal, userID, qdrant.NewMatch("date", date)))
}

func (q *Qdrant) LatestCheckpoint(ctx context.Context, userID string) (*JournalEntry, error) {
	points, err := q.scroll(ctx, userMust(kindJournal, userID, qdrant.NewMatch("gate", "checkpoint")), 1, "timestamp", true)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}
	return journalFromPayload(points[0].GetPayload()), nil
}

func (q *Qdrant) CountJournal(ctx context.Context, userID string) (int, error) {
	return q.count(ctx, userMust(kindJournal, userID))
}

// --- identity ---

func (q *Qdrant) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	pt, err := q.findPoint(ctx, userMust(kindIdentity, userID))
	if err != nil {
		return nil, err
	}
	payload := pt.GetPayload()
	return &Identity{
		Person:      valStr(payload["person"]),
		Project:     valStr(payload["project"]),
		Content:     valStr(payload["content"]),
		LastUpdated: timeFromEpoch(valFloat(payload["last_updated"])),
	}, nil
}

func (q *Qdrant) SetIdentity(ctx context.Context, userID string, card *Identity) error {
	updated := card.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	payload := qdrant.NewValueMap(map[string]any{
		"type":         kindIdentity,
		"user_id":      userID,
		"person":       card.Person,
		"project":      card.Project,
		"content":      card.Content,
		"last_updated": epochSeconds(updated),
	})

	// Reuse an existing card's point so a tenant never accumulates two.
	id := PointID(identityKey(userID))
	if pt, err := q.findPoint(ctx, userMust(kindIdentity, userID)); err == nil {
		id = pt.GetId().GetNum()
	}
	return q.upsert(ctx, id, card.Content, payload)
}

// --- rules ---

func (q *Qdrant) InsertRule(ctx context.Context, userID string, r *Rule) error {
	created := r.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}
	content := renderRule(r.Scope, r.Condition, r.Enforcement)
	payload := qdrant.NewValueMap(map[string]any{
		"type":        kindRule,
		"rule_id":     r.ID,
		"user_id":     userID,
		"scope":       r.Scope,
		"condition":   r.Condition,
		"enforcement": r.Enforcement,
		"created":     epochSeconds(created),
		"content":     content,
	})
	payload["last_triggered"] = nullValue()
	if !r.LastTriggered.IsZero() {
		payload["last_triggered"] = &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: epochSeconds(r.LastTriggered)}}
	}
	return q.upsert(ctx, PointID(ruleKey(userID, r.ID)), content, payload)
}

func (q *Qdrant) GetRule(ctx context.Context, userID, ruleID string) (*Rule, error) {
	pt, err := q.findPoint(ctx, userMust(kindRule, userID, qdrant.NewMatch("rule_id", ruleID)))
	if err != nil {
		return nil, err
	}
	return ruleFromPayload(pt.GetPayload()), nil
}

func (q *Qdrant) ListRules(ctx context.Context, userID string) ([]*Rule, error) {
	points, err := q.scroll(ctx, userMust(kindRule, userID), 100, "created", true)
	if err != nil {
		return nil, err
	}
	out := make([]*Rule, 0, len(points))
	for _, pt := range points {
		out = append(out, ruleFromPayload(pt.GetPayload()))
	}
	return out, nil
}

func (q *Qdrant) UpdateRule(ctx context.Context, userID, ruleID string, upd RuleUpdate) error {
	pt, err := q.findPoint(ctx, userMust(kindRule, userID, qdrant.NewMatch("rule_id", ruleID)))
	if err != nil {
		return err
	}
	rule := ruleFromPayload(pt.GetPayload())
	applyRuleUpdate(rule, upd)
	content := renderRule(rule.Scope, rule.Condition, rule.Enforcement)

	merged := pt.GetPayload()
	for k, v := range qdrant.NewValueMap(map[string]any{
		"scope":       rule.Scope,
		"condition":   rule.Condition,
		"enforcement": rule.Enforcement,
		"content":     content,
	}) {
		merged[k] = v
	}
	return q.upsert(ctx, pt.GetId().GetNum(), content, merged)
}

func (q *Qdrant) DeleteRule(ctx context.Context, userID, ruleID string) error {
	filter := userMust(kindRule, userID, qdrant.NewMatch("rule_id", ruleID))
	if _, err := q.findPoint(ctx, filter); err != nil {
		return err
	}
	return q.deleteByFilter(ctx, filter)
}

func (q *Qdrant) TouchRule(ctx context.Context, userID, ruleID string) error {
	pt, err := q.findPoint(ctx, userMust(kindRule, userID, qdrant.NewMatch("rule_id", ruleID)))
	if err != nil {
		return err
	}
	return q.setPayload(ctx, pt.GetId(), qdrant.NewValueMap(map[string]any{
		"last_triggered": epochSeconds(time.Now().UTC()),
	}))
}

// --- migration ---

func (q *Qdrant) MigrateUser(ctx context.Context, fromID, toID string) (int, error) {
	migrated := 0
	filter := &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("user_id", fromID)}}

	// Rewriting user_id removes each batch from the filter, so plain
	// re-scrolling drains the tenant without offset bookkeeping.
	for {
		points, err := q.scroll(ctx, filter, 100, "", false)
		if err != nil {
			return migrated, err
		}
		if len(points) == 0 {
			return migrated, nil
		}
		ids := make([]*qdrant.PointId, len(points))
		for i, pt := range points {
			ids[i] = pt.GetId()
		}

		opctx, cancel := q.opCtx(ctx)
		_, err = q.client.SetPayload(opctx, &qdrant.SetPayloadPoints{
			CollectionName: q.collection,
			Payload:        qdrant.NewValueMap(map[string]any{"user_id": toID}),
			PointsSelector: qdrant.NewPointsSelector(ids...),
			Wait:           qdrant.PtrOf(true),
		})
		cancel()
		if err != nil {
			return migrated, fmt.Errorf("store: qdrant set payload: %w", err)
		}
		migrated += len(points)
	}
}

// Close releases the gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}

// --- payload codecs ---

func nullValue() *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
}

func sensitivityValue(level string) *qdrant.Value {
	if level == "" {
		return nullValue()
	}
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: level}}
}

func edgesValue(edges []Edge) *qdrant.Value {
	values := make([]*qdrant.Value, len(edges))
	for i, e := range edges {
		values[i] = &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{
			Fields: map[string]*qdrant.Value{
				"to":       {Kind: &qdrant.Value_StringValue{StringValue: e.To}},
				"relation": {Kind: &qdrant.Value_StringValue{StringValue: e.Relation}},
			},
		}}}
	}
	return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}
}

func edgesFromValue(v *qdrant.Value) []Edge {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	edges := make([]Edge, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		fields := item.GetStructValue().GetFields()
		if fields == nil {
			continue
		}
		edges = append(edges, Edge{
			To:       valStr(fields["to"]),
			Relation: valStr(fields["relation"]),
		})
	}
	return edges
}

func valStr(v *qdrant.Value) string {
	return v.GetStringValue()
}

func valFloat(v *qdrant.Value) float64 {
	if v == nil {
		return 0
	}
	if d, ok := v.GetKind().(*qdrant.Value_DoubleValue); ok {
		return d.DoubleValue
	}
	return float64(v.GetIntegerValue())
}

func valInt(v *qdrant.Value) int64 {
	if v == nil {
		return 0
	}
	if d, ok := v.GetKind().(*qdrant.Value_DoubleValue); ok {
		return int64(d.DoubleValue)
	}
	return v.GetIntegerValue()
}

func memoryFromPayload(p map[string]*qdrant.Value) *Memory {
	created := timeFromEpoch(valFloat(p["created"]))
	accessed := timeFromEpoch(valFloat(p["last_accessed"]))
	if accessed.IsZero() {
		accessed = created
	}
	return &Memory{
		ID:                valStr(p["memory_id"]),
		Content:           valStr(p["content"]),
		Gate:              valStr(p["gate"]),
		DecayClass:        valStr(p["decay_class"]),
		Person:            valStr(p["person"]),
		Project:           valStr(p["project"]),
		Confidence:        valFloat(p["confidence"]),
		Created:           created,
		LastAccessed:      accessed,
		AccessCount:       int(valInt(p["access_count"])),
		Pinned:            p["pinned"].GetBoolValue(),
		Sensitivity:       valStr(p["sensitivity"]),
		SensitivityReason: valStr(p["sensitivity_reason"]),
		Visibility:        valStr(p["visibility"]),
		TeamID:            valStr(p["team_id"]),
		CreatedBy:         valStr(p["created_by"]),
		Edges:             edgesFromValue(p["edges"]),
		OwnerID:           valStr(p["user_id"]),
	}
}

func journalFromPayload(p map[string]*qdrant.Value) *JournalEntry {
	return &JournalEntry{
		Timestamp: timeFromEpoch(valFloat(p["timestamp"])),
		Gate:      valStr(p["gate"]),
		Content:   valStr(p["content"]),
		Person:    valStr(p["person"]),
		Project:   valStr(p["project"]),
		Date:      valStr(p["date"]),
	}
}

func journalFromPoints(points []*qdrant.RetrievedPoint) []*JournalEntry {
	out := make([]*JournalEntry, 0, len(points))
	for _, pt := range points {
		out = append(out, journalFromPayload(pt.GetPayload()))
	}
	return out
}

func ruleFromPayload(p map[string]*qdrant.Value) *Rule {
	return &Rule{
		ID:            valStr(p["rule_id"]),
		Scope:         valStr(p["scope"]),
		Condition:     valStr(p["condition"]),
		Enforcement:   valStr(p["enforcement"]),
		Created:       timeFromEpoch(valFloat(p["created"])),
		LastTriggered: timeFromEpoch(valFloat(p["last_triggered"])),
		Content:       valStr(p["content"]),
	}
}
