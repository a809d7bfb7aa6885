package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

type testDoc struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

func TestMemoryGetNotFound(t *testing.T) {
	s := NewMemoryStore()
	var doc testDoc
	err := s.Get(context.Background(), "chat", "missing", &doc)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemorySetGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	in := testDoc{ID: "c1", UserID: "u1", Title: "hello", CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	if err := s.Set(context.Background(), "chat", in.ID, in); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var out testDoc
	if err := s.Get(context.Background(), "chat", "c1", &out); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if out != in {
		t.Fatalf("round-trip mismatch: %+v != %+v", out, in)
	}
}

func TestMemorySetIsFullReplace(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Set(ctx, "chat", "c1", map[string]any{"id": "c1", "title": "a", "extra": "x"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(ctx, "chat", "c1", map[string]any{"id": "c1", "title": "b"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var m map[string]any
	if err := s.Get(ctx, "chat", "c1", &m); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, ok := m["extra"]; ok {
		t.Fatal("Set must replace, not merge")
	}
}

func TestMemoryUpdateMergesFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Set(ctx, "chat", "c1", map[string]any{"id": "c1", "title": "a"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Update(ctx, "chat", "c1", map[string]any{"sharePath": "/share/c1"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	var m map[string]any
	if err := s.Get(ctx, "chat", "c1", &m); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m["title"] != "a" || m["sharePath"] != "/share/c1" {
		t.Fatalf("merge lost fields: %v", m)
	}
}

func TestMemoryUpdateMissingDoc(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), "chat", "nope", map[string]any{"title": "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryDeleteIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Set(ctx, "chat", "c1", testDoc{ID: "c1"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, "chat", "c1"); err != nil {
			t.Fatalf("Delete #%d: %v", i+1, err)
		}
	}
	var doc testDoc
	if err := s.Get(ctx, "chat", "c1", &doc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryQueryFilterOrderLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seed := []testDoc{
		{ID: "c1", UserID: "u1", CreatedAt: base},
		{ID: "c2", UserID: "u1", CreatedAt: base.Add(time.Hour)},
		{ID: "c3", UserID: "u1", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "x1", UserID: "u2", CreatedAt: base.Add(3 * time.Hour)},
	}
	for _, d := range seed {
		if err := s.Set(ctx, "chat", d.ID, d); err != nil {
			t.Fatalf("Set %s: %v", d.ID, err)
		}
	}

	var out []testDoc
	err := s.Query(ctx, "chat", Query{
		Field: "userId", Equals: "u1",
		OrderBy: "createdAt", Descending: true,
		Limit: 2,
	}, &out)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 2 || out[0].ID != "c3" || out[1].ID != "c2" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestMemoryQueryNoMatches(t *testing.T) {
	s := NewMemoryStore()
	var out []testDoc
	if err := s.Query(context.Background(), "chat", Query{Field: "userId", Equals: "ghost"}, &out); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected empty result, got %+v", out)
	}
}

func TestMemoryGetMalformedRecord(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	// A document whose shape does not fit the target struct.
	if err := s.Set(ctx, "chat", "bad", map[string]any{"id": 42}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	var doc testDoc
	err := s.Get(ctx, "chat", "bad", &doc)
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("expected ErrMalformedRecord, got %v", err)
	}
}
