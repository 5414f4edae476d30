package document

// StorageKind identifies how a page image is stored.
type StorageKind string

// StorageKind values.
const (
	StorageLocal  StorageKind = "local"
	StorageObject StorageKind = "object"
	StorageInline StorageKind = "inline"
)

// Asset is the stored or inlined representation of a page image. It is
// exclusively owned by the fragment that references it.
type Asset struct {
	// Kind selects how Location is interpreted.
	Kind StorageKind `json:"kind"`

	// Location is a filesystem path (local), an object URL (object), or
	// empty (inline).
	Location string `json:"location,omitempty"`

	// Inline is a compressed base64 data URI, present for the inline kind
	// and for local stores configured to also embed an encoded copy.
	Inline string `json:"inline,omitempty"`

	// Thumbnail is an optional small base64 preview stored alongside
	// object-storage uploads to avoid a round trip.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// IsZero reports whether the fragment has no image.
func (a Asset) IsZero() bool {
	return a.Location == "" && a.Inline == "" && a.Thumbnail == ""
}
