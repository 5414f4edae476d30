package document

import "errors"

// ErrNotFound indicates an unknown document id. It is surfaced directly to
// the caller and never retried; callers must not treat it as success.
var ErrNotFound = errors.New("document not found")

// ErrNoFragments indicates the parser produced zero fragments. This signals
// a parse failure, not a valid empty document, and is rejected before any
// mutation occurs.
var ErrNoFragments = errors.New("no fragments extracted from document")

// ErrInconsistentIndex indicates a partial insert or delete left the index
// in a state where a document's fragment set no longer matches its
// back-references. It must be surfaced, never swallowed.
var ErrInconsistentIndex = errors.New("index inconsistency detected")
