// Package index provides the vector index backends and the manager that
// owns the shared index handle.
package index

import (
	"context"

	"github.com/ragmag/ragmag/domain/document"
)

// insertBatchSize bounds fragments per insert batch. Batches are written in
// order; a failed batch aborts the insert with the partial-write error
// surfaced to the caller.
const insertBatchSize = 64

// Backend stores fragments with their embedding vectors and the
// document→fragment ownership needed to remove or list documents exactly.
type Backend interface {
	// Insert adds a document's fragments with their vectors, in page order.
	// vectors[i] embeds fragments[i]. Visibility is all-or-nothing per call
	// for readers going through the same backend handle.
	Insert(ctx context.Context, fragments []document.Fragment, vectors [][]float64) error

	// DeleteByDocument removes exactly the fragments owned by the document.
	// Unknown ids return document.ErrNotFound. A partial removal returns
	// document.ErrInconsistentIndex.
	DeleteByDocument(ctx context.Context, documentID string) error

	// ReassignDocument atomically moves ownership of every fragment from
	// one document id to another. Used to promote staged fragments when a
	// document is replaced.
	ReassignDocument(ctx context.Context, fromID, toID string) error

	// ListDocuments returns fragment ids grouped by owning document, in
	// page order. Fragments with no resolvable owner are skipped.
	ListDocuments(ctx context.Context) (map[string][]string, error)

	// GetFragment returns one fragment by id.
	GetFragment(ctx context.Context, fragmentID string) (document.Fragment, error)

	// FragmentsByDocument returns the document's fragments in page order.
	// Unknown ids return document.ErrNotFound.
	FragmentsByDocument(ctx context.Context, documentID string) ([]document.Fragment, error)

	// Search returns the topK fragments nearest to the query vector,
	// highest similarity first.
	Search(ctx context.Context, vector []float64, topK int) ([]document.ScoredFragment, error)

	// Persist flushes state to durable storage. Backends that write through
	// on every mutation treat this as a no-op.
	Persist(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
