// Package store defines the document-store contract the chat backend
// persists into, plus its implementations. Documents are addressed by
// collection name and document id; the store supports get-by-id, equality
// queries with ordering and a limit, full upsert, partial update, and delete.
//
// The store is the system of record. It is assumed durable and consistent but
// with non-trivial latency, which is why a cache sits in front of it (see the
// repo package). Implementations must be safe for concurrent use by multiple
// in-flight requests sharing one client handle.
package store

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when no document exists under the given id.
// Callers generally treat it as a normal empty result, not a failure.
var ErrNotFound = errors.New("document not found")

// ErrMalformedRecord indicates a persisted document could not be decoded into
// the requested shape. It is always returned wrapped with collection and id
// context; check with errors.Is.
var ErrMalformedRecord = errors.New("malformed record")

// malformed wraps a decode failure with its document coordinates.
func malformed(collection, id string, err error) error {
	if id == "" {
		return fmt.Errorf("%w in %s: %v", ErrMalformedRecord, collection, err)
	}
	return fmt.Errorf("%w in %s/%s: %v", ErrMalformedRecord, collection, id, err)
}

// Query describes an equality query over one collection.
//
// Field/Equals select documents whose attribute Field equals the value.
// OrderBy names the attribute to sort on (Descending selects direction), and
// Limit caps the number of returned documents (0 means no cap).
type Query struct {
	Field      string
	Equals     string
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is the document-store client contract.
//
// Get decodes the document into out (a non-nil pointer) or returns
// ErrNotFound. Query decodes all matching documents into out, which must be a
// pointer to a slice. Set performs a full replace/upsert, not a merge; Update
// applies a partial attribute-level merge. Delete removes the document and is
// a silent no-op when it does not exist.
type Store interface {
	Get(ctx context.Context, collection, id string, out any) error
	Query(ctx context.Context, collection string, q Query, out any) error
	Set(ctx context.Context, collection, id string, doc any) error
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}
