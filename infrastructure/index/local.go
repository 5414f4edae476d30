package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ragmag/ragmag/domain/document"
)

// snapshotFilename is the on-disk name of the local index snapshot inside
// the persist directory.
const snapshotFilename = "index.json"

// fragmentRecord is the snapshot shape of one fragment.
type fragmentRecord struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Filename   string         `json:"filename"`
	PageNumber int            `json:"page_number"`
	Text       string         `json:"text"`
	Image      document.Asset `json:"image,omitempty"`
	Vector     []float64      `json:"vector"`
}

// snapshot is the JSON layout written to disk.
type snapshot struct {
	Fragments []fragmentRecord    `json:"fragments"`
	Documents map[string][]string `json:"documents"`
}

// LocalBackend is an in-process index: fragments and vectors live in
// memory and are flushed to a JSON snapshot on Persist. Similarity is
// cosine, computed in memory over all stored vectors.
type LocalBackend struct {
	mu        sync.RWMutex
	dir       string
	fragments map[string]fragmentRecord
	byDoc     map[string][]string
	logger    *slog.Logger
}

// NewLocalBackend creates a LocalBackend persisted under dir, restoring
// the previous snapshot when one exists.
func NewLocalBackend(dir string, logger *slog.Logger) (*LocalBackend, error) {
	b := &LocalBackend{
		dir:       dir,
		fragments: make(map[string]fragmentRecord),
		byDoc:     make(map[string][]string),
		logger:    logger,
	}
	if err := b.restore(); err != nil {
		return nil, err
	}
	return b, nil
}

// LocalOpen returns an OpenFunc for a snapshot-backed local index under
// dir. With fresh any existing snapshot is discarded first.
func LocalOpen(dir string, logger *slog.Logger) OpenFunc {
	return func(ctx context.Context, fresh bool) (Backend, error) {
		if fresh {
			if err := os.Remove(filepath.Join(dir, snapshotFilename)); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("discard index snapshot: %w", err)
			}
		}
		return NewLocalBackend(dir, logger)
	}
}

func (b *LocalBackend) snapshotPath() string {
	return filepath.Join(b.dir, snapshotFilename)
}

func (b *LocalBackend) restore() error {
	data, err := os.ReadFile(b.snapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode index snapshot: %w", err)
	}

	for _, rec := range snap.Fragments {
		b.fragments[rec.ID] = rec
	}
	for docID, ids := range snap.Documents {
		b.byDoc[docID] = ids
	}
	b.logger.Info("restored index snapshot",
		slog.Int("documents", len(b.byDoc)),
		slog.Int("fragments", len(b.fragments)))
	return nil
}

// Insert adds the fragments with their vectors. Fragments are staged in
// bounded batches and become visible in one step at the end, so concurrent
// readers never observe a half-inserted document.
func (b *LocalBackend) Insert(ctx context.Context, fragments []document.Fragment, vectors [][]float64) error {
	if len(fragments) != len(vectors) {
		return fmt.Errorf("insert: %d fragments but %d vectors: %w",
			len(fragments), len(vectors), document.ErrInconsistentIndex)
	}
	if len(fragments) == 0 {
		return document.ErrNoFragments
	}

	staged := make([]fragmentRecord, 0, len(fragments))
	for start := 0; start < len(fragments); start += insertBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+insertBatchSize, len(fragments))
		for i := start; i < end; i++ {
			f := fragments[i]
			staged = append(staged, fragmentRecord{
				ID:         f.ID(),
				DocumentID: f.DocumentID(),
				Filename:   f.Filename(),
				PageNumber: f.PageNumber(),
				Text:       f.Text(),
				Image:      f.Image(),
				Vector:     vectors[i],
			})
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range staged {
		b.fragments[rec.ID] = rec
		b.byDoc[rec.DocumentID] = append(b.byDoc[rec.DocumentID], rec.ID)
	}
	return nil
}

// DeleteByDocument removes exactly the document's fragments.
func (b *LocalBackend) DeleteByDocument(_ context.Context, documentID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, ok := b.byDoc[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, document.ErrNotFound)
	}

	for _, id := range ids {
		if _, ok := b.fragments[id]; !ok {
			return fmt.Errorf("document %s references missing fragment %s: %w",
				documentID, id, document.ErrInconsistentIndex)
		}
	}
	for _, id := range ids {
		delete(b.fragments, id)
	}
	delete(b.byDoc, documentID)
	return nil
}

// ReassignDocument moves ownership of every fragment from one document id
// to another in a single step.
func (b *LocalBackend) ReassignDocument(_ context.Context, fromID, toID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids, ok := b.byDoc[fromID]
	if !ok {
		return fmt.Errorf("document %s: %w", fromID, document.ErrNotFound)
	}
	if _, exists := b.byDoc[toID]; exists {
		return fmt.Errorf("document %s already present: %w", toID, document.ErrInconsistentIndex)
	}

	for _, id := range ids {
		rec := b.fragments[id]
		rec.DocumentID = toID
		b.fragments[id] = rec
	}
	b.byDoc[toID] = ids
	delete(b.byDoc, fromID)
	return nil
}

// ListDocuments returns fragment ids grouped by document.
func (b *LocalBackend) ListDocuments(_ context.Context) (map[string][]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string][]string, len(b.byDoc))
	for docID, ids := range b.byDoc {
		out[docID] = append([]string(nil), ids...)
	}
	return out, nil
}

// GetFragment returns one fragment by id.
func (b *LocalBackend) GetFragment(_ context.Context, fragmentID string) (document.Fragment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.fragments[fragmentID]
	if !ok {
		return document.Fragment{}, fmt.Errorf("fragment %s: %w", fragmentID, document.ErrNotFound)
	}
	return rec.toFragment(), nil
}

// FragmentsByDocument returns the document's fragments in insertion
// (page) order.
func (b *LocalBackend) FragmentsByDocument(_ context.Context, documentID string) ([]document.Fragment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids, ok := b.byDoc[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, document.ErrNotFound)
	}

	fragments := make([]document.Fragment, 0, len(ids))
	for _, id := range ids {
		rec, ok := b.fragments[id]
		if !ok {
			return nil, fmt.Errorf("document %s references missing fragment %s: %w",
				documentID, id, document.ErrInconsistentIndex)
		}
		fragments = append(fragments, rec.toFragment())
	}
	return fragments, nil
}

// Search returns the topK nearest fragments by cosine similarity.
func (b *LocalBackend) Search(_ context.Context, vector []float64, topK int) ([]document.ScoredFragment, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	scored := make([]document.ScoredFragment, 0, len(b.fragments))
	for _, rec := range b.fragments {
		scored = append(scored, document.ScoredFragment{
			Fragment: rec.toFragment(),
			Score:    cosineSimilarity(vector, rec.Vector),
		})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

// Persist writes the snapshot atomically: encode to a temp file in the
// same directory, then rename over the previous snapshot.
func (b *LocalBackend) Persist(_ context.Context) error {
	b.mu.RLock()
	snap := snapshot{
		Fragments: make([]fragmentRecord, 0, len(b.fragments)),
		Documents: make(map[string][]string, len(b.byDoc)),
	}
	for _, rec := range b.fragments {
		snap.Fragments = append(snap.Fragments, rec)
	}
	for docID, ids := range b.byDoc {
		snap.Documents[docID] = append([]string(nil), ids...)
	}
	b.mu.RUnlock()

	sort.Slice(snap.Fragments, func(i, j int) bool { return snap.Fragments[i].ID < snap.Fragments[j].ID })

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode index snapshot: %w", err)
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create persist dir: %w", err)
	}
	tmp, err := os.CreateTemp(b.dir, snapshotFilename+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.snapshotPath()); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Close is a no-op; the snapshot is written by Persist.
func (b *LocalBackend) Close() error { return nil }

func (r fragmentRecord) toFragment() document.Fragment {
	return document.NewFragmentWithID(r.ID, r.DocumentID, r.Filename, r.PageNumber, r.Text, r.Image)
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

var _ Backend = (*LocalBackend)(nil)
