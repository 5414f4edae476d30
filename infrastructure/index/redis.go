package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/ragmag/ragmag/domain/document"
)

// maxScanResults bounds FT.SEARCH pages when enumerating fragments.
const maxScanResults = 10000

// RedisBackend stores fragments as Redis hashes and searches them with
// Redis vector search (FT.CREATE / FT.SEARCH). Each fragment hash carries
// a `doc` tag field, which is the document→fragment back-reference. All
// writes go straight to Redis, so Persist is a no-op.
type RedisBackend struct {
	client     rueidis.Client
	collection string
	logger     *slog.Logger
}

// RedisConfig holds connection parameters for the Redis backend.
type RedisConfig struct {
	Addr       string
	Password   string
	Collection string
}

// NewRedisBackend connects to Redis and verifies connectivity.
func NewRedisBackend(cfg RedisConfig, logger *slog.Logger) (*RedisBackend, error) {
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		DisableCache: true,
		AlwaysRESP2:  true, // FT.SEARCH result parsing expects RESP2 array format
	})
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	b := &RedisBackend{client: client, collection: cfg.Collection, logger: logger}
	if err := b.ping(context.Background()); err != nil {
		client.Close()
		return nil, err
	}
	return b, nil
}

// RedisOpen returns an OpenFunc connecting to Redis. With fresh the
// collection's index and fragments are dropped before the handle is
// handed out.
func RedisOpen(cfg RedisConfig, logger *slog.Logger) OpenFunc {
	return func(ctx context.Context, fresh bool) (Backend, error) {
		b, err := NewRedisBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
		if fresh {
			if err := b.reset(ctx); err != nil {
				_ = b.Close()
				return nil, err
			}
		}
		return b, nil
	}
}

// newRedisBackendWithClient wires an existing client; used by tests.
func newRedisBackendWithClient(client rueidis.Client, collection string, logger *slog.Logger) *RedisBackend {
	return &RedisBackend{client: client, collection: collection, logger: logger}
}

func (b *RedisBackend) ping(ctx context.Context) error {
	if err := b.client.Do(ctx, b.client.B().Ping().Build()).Error(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (b *RedisBackend) indexName() string {
	return b.collection + ":idx"
}

func (b *RedisBackend) keyPrefix() string {
	return b.collection + ":frag:"
}

func (b *RedisBackend) fragmentKey(fragmentID string) string {
	return b.keyPrefix() + fragmentID
}

// ensureIndex creates the FT index for the given vector dimension.
// "index already exists" is not an error; the dimension is fixed by the
// first insert.
func (b *RedisBackend) ensureIndex(ctx context.Context, dim int) error {
	cmd := b.client.B().Arbitrary("FT.CREATE").Args(
		b.indexName(),
		"ON", "HASH",
		"PREFIX", "1", b.keyPrefix(),
		"SCHEMA",
		"doc", "TAG",
		"page", "NUMERIC",
		"vector", "VECTOR", "HNSW", "6",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
	).Build()

	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return nil
		}
		return fmt.Errorf("create index %s: %w", b.indexName(), err)
	}
	b.logger.Info("created redis vector index",
		slog.String("index", b.indexName()), slog.Int("dim", dim))
	return nil
}

// Insert writes the fragments as hashes in bounded DoMulti batches. A
// failed batch aborts the remaining writes and surfaces the error.
func (b *RedisBackend) Insert(ctx context.Context, fragments []document.Fragment, vectors [][]float64) error {
	if len(fragments) != len(vectors) {
		return fmt.Errorf("insert: %d fragments but %d vectors: %w",
			len(fragments), len(vectors), document.ErrInconsistentIndex)
	}
	if len(fragments) == 0 {
		return document.ErrNoFragments
	}

	if err := b.ensureIndex(ctx, len(vectors[0])); err != nil {
		return err
	}

	for start := 0; start < len(fragments); start += insertBatchSize {
		end := min(start+insertBatchSize, len(fragments))

		cmds := make([]rueidis.Completed, 0, end-start)
		for i := start; i < end; i++ {
			f := fragments[i]
			image, err := json.Marshal(f.Image())
			if err != nil {
				return fmt.Errorf("encode image asset: %w", err)
			}
			cmds = append(cmds, b.client.B().Hset().Key(b.fragmentKey(f.ID())).
				FieldValue().
				FieldValue("doc", f.DocumentID()).
				FieldValue("filename", f.Filename()).
				FieldValue("page", strconv.Itoa(f.PageNumber())).
				FieldValue("text", f.Text()).
				FieldValue("image", string(image)).
				FieldValue("vector", vectorToBytes(vectors[i])).
				Build())
		}

		for i, res := range b.client.DoMulti(ctx, cmds...) {
			if err := res.Error(); err != nil {
				return fmt.Errorf("insert fragment %s: %w", fragments[start+i].ID(), err)
			}
		}
	}
	return nil
}

// DeleteByDocument removes exactly the fragments tagged with the document.
func (b *RedisBackend) DeleteByDocument(ctx context.Context, documentID string) error {
	keys, err := b.keysByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("document %s: %w", documentID, document.ErrNotFound)
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = b.client.B().Del().Key(key).Build()
	}
	for i, res := range b.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("delete fragment %s: %w: %w",
				keys[i], document.ErrInconsistentIndex, err)
		}
	}
	return nil
}

// ReassignDocument rewrites the doc tag of every fragment owned by fromID.
func (b *RedisBackend) ReassignDocument(ctx context.Context, fromID, toID string) error {
	existing, err := b.keysByDocument(ctx, toID)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return fmt.Errorf("document %s already present: %w", toID, document.ErrInconsistentIndex)
	}

	keys, err := b.keysByDocument(ctx, fromID)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("document %s: %w", fromID, document.ErrNotFound)
	}

	cmds := make([]rueidis.Completed, len(keys))
	for i, key := range keys {
		cmds[i] = b.client.B().Hset().Key(key).FieldValue().FieldValue("doc", toID).Build()
	}
	for i, res := range b.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("reassign fragment %s: %w: %w",
				keys[i], document.ErrInconsistentIndex, err)
		}
	}
	return nil
}

// ListDocuments enumerates all fragments and groups them by doc tag, in
// page order. Fragments with no doc tag are skipped.
func (b *RedisBackend) ListDocuments(ctx context.Context) (map[string][]string, error) {
	entries, err := b.searchEntries(ctx, "*", "doc", "page")
	if err != nil {
		return nil, err
	}

	type member struct {
		fragmentID string
		page       int
	}
	grouped := make(map[string][]member)
	for _, e := range entries {
		docID := e.fields["doc"]
		if docID == "" {
			continue
		}
		page, _ := strconv.Atoi(e.fields["page"])
		grouped[docID] = append(grouped[docID], member{
			fragmentID: strings.TrimPrefix(e.key, b.keyPrefix()),
			page:       page,
		})
	}

	out := make(map[string][]string, len(grouped))
	for docID, members := range grouped {
		sort.Slice(members, func(i, j int) bool { return members[i].page < members[j].page })
		ids := make([]string, len(members))
		for i, m := range members {
			ids[i] = m.fragmentID
		}
		out[docID] = ids
	}
	return out, nil
}

// GetFragment fetches one fragment hash.
func (b *RedisBackend) GetFragment(ctx context.Context, fragmentID string) (document.Fragment, error) {
	cmd := b.client.B().Hgetall().Key(b.fragmentKey(fragmentID)).Build()
	fields, err := b.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return document.Fragment{}, fmt.Errorf("get fragment %s: %w", fragmentID, err)
	}
	if len(fields) == 0 {
		return document.Fragment{}, fmt.Errorf("fragment %s: %w", fragmentID, document.ErrNotFound)
	}
	return fragmentFromFields(fragmentID, fields), nil
}

// FragmentsByDocument returns the document's fragments sorted by page.
func (b *RedisBackend) FragmentsByDocument(ctx context.Context, documentID string) ([]document.Fragment, error) {
	entries, err := b.searchEntries(ctx,
		fmt.Sprintf("@doc:{%s}", escapeTag(documentID)),
		"doc", "filename", "page", "text", "image")
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("document %s: %w", documentID, document.ErrNotFound)
	}

	fragments := make([]document.Fragment, len(entries))
	for i, e := range entries {
		fragments[i] = fragmentFromFields(strings.TrimPrefix(e.key, b.keyPrefix()), e.fields)
	}
	sort.Slice(fragments, func(i, j int) bool {
		return fragments[i].PageNumber() < fragments[j].PageNumber()
	})
	return fragments, nil
}

// Search runs a KNN query and maps cosine distance to similarity.
func (b *RedisBackend) Search(ctx context.Context, vector []float64, topK int) ([]document.ScoredFragment, error) {
	cmd := b.client.B().Arbitrary("FT.SEARCH").Args(
		b.indexName(),
		fmt.Sprintf("*=>[KNN %d @vector $BLOB]", topK),
		"RETURN", "6", "doc", "filename", "page", "text", "image", "__vector_score",
		"PARAMS", "2", "BLOB", vectorToBytes(vector),
		"DIALECT", "2",
	).Build()

	raw, err := b.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, nil // nothing inserted yet
		}
		return nil, fmt.Errorf("knn search: %w", err)
	}

	entries := parseSearchReply(raw)
	scored := make([]document.ScoredFragment, 0, len(entries))
	for _, e := range entries {
		score := 0.0
		if s, err := strconv.ParseFloat(e.fields["__vector_score"], 64); err == nil {
			score = max(0, 1.0-s) // cosine distance to similarity, clamped
		}
		scored = append(scored, document.ScoredFragment{
			Fragment: fragmentFromFields(strings.TrimPrefix(e.key, b.keyPrefix()), e.fields),
			Score:    score,
		})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return scored, nil
}

// reset drops the FT index together with its indexed hashes. A missing
// index means an empty collection and is not an error.
func (b *RedisBackend) reset(ctx context.Context) error {
	cmd := b.client.B().Arbitrary("FT.DROPINDEX").Args(b.indexName(), "DD").Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil
		}
		return fmt.Errorf("drop index %s: %w", b.indexName(), err)
	}
	b.logger.Info("dropped redis vector index", slog.String("index", b.indexName()))
	return nil
}

// Persist is a no-op: every mutation writes through to Redis.
func (b *RedisBackend) Persist(context.Context) error { return nil }

// Close shuts down the client.
func (b *RedisBackend) Close() error {
	b.client.Close()
	return nil
}

type searchEntry struct {
	key    string
	fields map[string]string
}

func (b *RedisBackend) keysByDocument(ctx context.Context, documentID string) ([]string, error) {
	entries, err := b.searchEntries(ctx,
		fmt.Sprintf("@doc:{%s}", escapeTag(documentID)), "doc")
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.key
	}
	return keys, nil
}

func (b *RedisBackend) searchEntries(ctx context.Context, query string, fields ...string) ([]searchEntry, error) {
	args := []string{b.indexName(), query}
	if len(fields) > 0 {
		args = append(args, "RETURN", strconv.Itoa(len(fields)))
		args = append(args, fields...)
	}
	args = append(args, "LIMIT", "0", strconv.Itoa(maxScanResults), "DIALECT", "2")

	cmd := b.client.B().Arbitrary("FT.SEARCH").Args(args...).Build()
	raw, err := b.client.Do(ctx, cmd).ToArray()
	if err != nil {
		if isRedisErr(err, "no such index") || isRedisErr(err, "unknown index name") {
			return nil, nil // nothing inserted yet
		}
		return nil, fmt.Errorf("search %s: %w", query, err)
	}
	return parseSearchReply(raw), nil
}

// parseSearchReply decodes the RESP2 FT.SEARCH reply:
// [total, key1, fields1, key2, fields2, ...].
func parseSearchReply(raw []rueidis.RedisMessage) []searchEntry {
	if len(raw) == 0 {
		return nil
	}

	var entries []searchEntry
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		fieldList, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		fields := make(map[string]string, len(fieldList)/2)
		for j := 0; j+1 < len(fieldList); j += 2 {
			name, err := fieldList[j].ToString()
			if err != nil {
				continue
			}
			value, err := fieldList[j+1].ToString()
			if err != nil {
				continue
			}
			fields[name] = value
		}
		entries = append(entries, searchEntry{key: key, fields: fields})
	}
	return entries
}

func fragmentFromFields(fragmentID string, fields map[string]string) document.Fragment {
	page, _ := strconv.Atoi(fields["page"])

	var image document.Asset
	if raw := fields["image"]; raw != "" {
		_ = json.Unmarshal([]byte(raw), &image)
	}

	return document.NewFragmentWithID(
		fragmentID,
		fields["doc"],
		fields["filename"],
		page,
		fields["text"],
		image,
	)
}

// vectorToBytes encodes the vector as little-endian float32 for the
// FT.SEARCH BLOB parameter and hash field.
func vectorToBytes(v []float64) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return string(buf)
}

// isRedisErr checks if err is a Redis server error containing substr
// (case-insensitive).
func isRedisErr(err error, substr string) bool {
	re, ok := rueidis.IsRedisErr(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(re.Error()), strings.ToLower(substr))
}

// escapeTag escapes a value for use inside an FT.SEARCH tag filter.
var tagEscaper = strings.NewReplacer(
	",", "\\,", ".", "\\.", "<", "\\<", ">", "\\>",
	"{", "\\{", "}", "\\}", "\"", "\\\"", "'", "\\'",
	":", "\\:", ";", "\\;", "!", "\\!", "@", "\\@",
	"#", "\\#", "$", "\\$", "%", "\\%", "^", "\\^",
	"&", "\\&", "*", "\\*", "(", "\\(", ")", "\\)",
	"-", "\\-", "+", "\\+", "=", "\\=", "~", "\\~",
	" ", "\\ ",
)

func escapeTag(value string) string {
	return tagEscaper.Replace(value)
}

var _ Backend = (*RedisBackend)(nil)
