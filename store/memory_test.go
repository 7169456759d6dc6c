package store

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStoreSetGetPrevious(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.SetGetPrevious(ctx, "k", "v1", 0)
	if err != ErrNotFound {
		t.Errorf("Expected ErrNotFound for first write, got %v", err)
	}

	prev, err := s.SetGetPrevious(ctx, "k", "v2", 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if prev != "v1" {
		t.Errorf("Expected previous value 'v1', got '%s'", prev)
	}

	current, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if current != "v2" {
		t.Errorf("Expected current value 'v2', got '%s'", current)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if err := s.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := s.Get(ctx, "k"); err != nil {
		t.Errorf("Expected key to exist before expiry, got %v", err)
	}

	s.SetClock(func() time.Time { return now.Add(2 * time.Minute) })

	if _, err := s.Get(ctx, "k"); err != ErrNotFound {
		t.Errorf("Expected ErrNotFound after expiry, got %v", err)
	}
}

func TestMemoryStoreStreamGroupRead(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.EnsureGroup(ctx, "stream:test", "g1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.XAdd(ctx, "stream:test", map[string]string{"n": "x"}, 0); err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
	}

	entries, err := s.ReadGroup(ctx, "stream:test", "g1", "c1", 2, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}

	entries, err = s.ReadGroup(ctx, "stream:test", "g1", "c1", 10, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 remaining entry, got %d", len(entries))
	}

	entries, err = s.ReadGroup(ctx, "stream:test", "g1", "c1", 10, 0)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries after consuming all, got %d", len(entries))
	}

	length, err := s.XLen(ctx, "stream:test")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if length != 3 {
		t.Errorf("Expected stream length 3, got %d", length)
	}
}
