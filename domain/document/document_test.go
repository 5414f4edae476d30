package document

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDocument_CopiesFragmentIDs(t *testing.T) {
	ids := []string{"a", "b", "c"}
	doc := NewDocument("doc-1", "manual.pdf", ids)

	ids[0] = "mutated"
	assert.Equal(t, []string{"a", "b", "c"}, doc.FragmentIDs())
	assert.Equal(t, 3, doc.PageCount())
}

func TestNewFragment_GeneratesUniqueIDs(t *testing.T) {
	f1 := NewFragment("doc-1", "manual.pdf", 1, "first page", Asset{})
	f2 := NewFragment("doc-1", "manual.pdf", 2, "second page", Asset{})

	require.NotEmpty(t, f1.ID())
	assert.NotEqual(t, f1.ID(), f2.ID())
	assert.Equal(t, "doc-1", f1.DocumentID())
}

func TestFragment_WithDocumentID(t *testing.T) {
	f := NewFragment("staging-1", "manual.pdf", 1, "text", Asset{})
	promoted := f.WithDocumentID("doc-1")

	assert.Equal(t, "doc-1", promoted.DocumentID())
	assert.Equal(t, "staging-1", f.DocumentID())
	assert.Equal(t, f.ID(), promoted.ID())
}

func TestFragment_EmbeddingTextExcludesImagePayload(t *testing.T) {
	asset := Asset{
		Kind:   StorageInline,
		Inline: "data:image/jpeg;base64," + strings.Repeat("QUFB", 1000),
	}
	f := NewFragment("doc-1", "manual.pdf", 3, "pump assembly diagram", asset)

	text := f.EmbeddingText()
	assert.Contains(t, text, "pump assembly diagram")
	assert.Contains(t, text, "manual.pdf")
	assert.NotContains(t, text, "base64")
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 100))

	long := strings.Repeat("x", 150)
	got := Preview(long, 100)
	assert.Len(t, []rune(got), 103)
	assert.True(t, strings.HasSuffix(got, "..."))

	// Rune-safe truncation for multibyte text.
	umlauts := strings.Repeat("ü", 120)
	got = Preview(umlauts, 100)
	assert.Equal(t, strings.Repeat("ü", 100)+"...", got)
}

func TestAsset_IsZero(t *testing.T) {
	assert.True(t, Asset{}.IsZero())
	assert.False(t, Asset{Kind: StorageLocal, Location: "/tmp/p.jpg"}.IsZero())
}
