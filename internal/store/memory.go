// In-memory document store.
//
// MemoryStore keeps documents as raw JSON inside a process-local map. It
// backs unit tests and local development (STORE_DRIVER=memory), where
// standing up DynamoDB would be noise. Encoding through JSON keeps its
// field-name behavior aligned with the struct tags the API uses.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store with process-local state. Safe for concurrent
// use. Data does not survive a restart; never use it where durability
// matters.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]json.RawMessage)}
}

// Get fetches one document by id and decodes it into out.
func (s *MemoryStore) Get(ctx context.Context, collection, id string, out any) error {
	s.mu.RLock()
	raw, ok := s.collections[collection][id]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return malformed(collection, id, err)
	}
	return nil
}

// Query filters the collection on a string attribute, orders by another
// attribute, applies the limit, and decodes the result into out.
func (s *MemoryStore) Query(ctx context.Context, collection string, q Query, out any) error {
	s.mu.RLock()
	docs := make([]map[string]any, 0)
	for id, raw := range s.collections[collection] {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			s.mu.RUnlock()
			return malformed(collection, id, err)
		}
		if v, _ := m[q.Field].(string); v == q.Equals {
			docs = append(docs, m)
		}
	}
	s.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(docs, func(i, j int) bool {
			// Timestamps are RFC 3339 strings, so string order is
			// chronological order.
			a := fmt.Sprint(docs[i][q.OrderBy])
			b := fmt.Sprint(docs[j][q.OrderBy])
			if q.Descending {
				return a > b
			}
			return a < b
		})
	}
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}

	buf, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, out)
}

// Set upserts the full document under id.
func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.collections[collection] == nil {
		s.collections[collection] = make(map[string]json.RawMessage)
	}
	s.collections[collection][id] = raw
	return nil
}

// Update merges fields into an existing document; the document must exist.
func (s *MemoryStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return malformed(collection, id, err)
	}
	for k, v := range fields {
		m[k] = v
	}
	merged, err := json.Marshal(m)
	if err != nil {
		return err
	}
	s.collections[collection][id] = merged
	return nil
}

// Delete removes the document; deleting a missing id succeeds silently.
func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}
