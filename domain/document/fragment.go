package document

import (
	"fmt"

	"github.com/google/uuid"
)

// Fragment is the unit of retrieval: one page of a document. Every fragment
// has exactly one owning document; DocumentID is a back-reference, not
// ownership, since many fragments share one owner.
type Fragment struct {
	id         string
	documentID string
	filename   string
	pageNumber int
	text       string
	image      Asset
}

// NewFragment creates a Fragment with a generated id.
func NewFragment(documentID, filename string, pageNumber int, text string, image Asset) Fragment {
	return Fragment{
		id:         uuid.NewString(),
		documentID: documentID,
		filename:   filename,
		pageNumber: pageNumber,
		text:       text,
		image:      image,
	}
}

// NewFragmentWithID creates a Fragment with all fields (used by backends
// when restoring from storage).
func NewFragmentWithID(id, documentID, filename string, pageNumber int, text string, image Asset) Fragment {
	return Fragment{
		id:         id,
		documentID: documentID,
		filename:   filename,
		pageNumber: pageNumber,
		text:       text,
		image:      image,
	}
}

// ID returns the unique fragment id.
func (f Fragment) ID() string { return f.id }

// DocumentID returns the owning document id.
func (f Fragment) DocumentID() string { return f.documentID }

// Filename returns the owning document's filename. All fragments of one
// document carry the same filename, so reading it from any one fragment
// is sufficient.
func (f Fragment) Filename() string { return f.filename }

// PageNumber returns the 1-based page number.
func (f Fragment) PageNumber() int { return f.pageNumber }

// Text returns the page text content.
func (f Fragment) Text() string { return f.text }

// Image returns the page image asset. The asset is exclusively owned by
// this fragment and shares its lifetime.
func (f Fragment) Image() Asset { return f.image }

// WithDocumentID returns a copy owned by a different document. Used when
// promoting staged fragments during an update swap.
func (f Fragment) WithDocumentID(id string) Fragment {
	f.documentID = id
	return f
}

// EmbeddingText returns the text submitted to the embedding provider.
// Image payloads and paths are excluded: an inline-encoded image would
// dwarf the page text and poison the vector.
func (f Fragment) EmbeddingText() string {
	return fmt.Sprintf("filename: %s\npage: %d\n\n%s", f.filename, f.pageNumber, f.text)
}

// GenerationText returns the fragment content as presented to the
// generation provider. Unlike EmbeddingText, callers may pair it with the
// resolved image out-of-band.
func (f Fragment) GenerationText() string {
	return f.EmbeddingText()
}

// ScoredFragment is a fragment with its retrieval similarity score.
type ScoredFragment struct {
	Fragment Fragment
	Score    float64
}
