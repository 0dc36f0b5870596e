package memory

import (
	"context"
	"testing"
	"time"
)

func TestSetGet(t *testing.T) {
	s := New(4, time.Minute)
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || string(got) != "v" {
		t.Fatalf("Get=%q,%v,%v", got, ok, err)
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestPerEntryTTL(t *testing.T) {
	s := New(4, time.Hour)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	_ = s.Set(ctx, "short", []byte("a"), time.Second)
	_ = s.Set(ctx, "long", []byte("b"), time.Minute)
	now = now.Add(2 * time.Second)

	if _, ok, _ := s.Get(ctx, "short"); ok {
		t.Fatalf("short entry must have expired")
	}
	if _, ok, _ := s.Get(ctx, "long"); !ok {
		t.Fatalf("long entry must still be present")
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	s := New(2, time.Minute)
	ctx := context.Background()
	_ = s.Set(ctx, "a", []byte("1"), 0)
	_ = s.Set(ctx, "b", []byte("2"), 0)
	_, _, _ = s.Get(ctx, "a")
	_ = s.Set(ctx, "c", []byte("3"), 0)

	if _, ok, _ := s.Get(ctx, "b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if s.Len() != 2 {
		t.Fatalf("len=%d want 2", s.Len())
	}
}

func TestGenerations(t *testing.T) {
	s := New(2, time.Minute)
	ctx := context.Background()
	_ = s.Bump(ctx, "t")
	_ = s.Bump(ctx, "t")
	if g, _ := s.Generation(ctx, "t"); g != 2 {
		t.Fatalf("gen=%d want 2", g)
	}
	if g, _ := s.Generation(ctx, "u"); g != 0 {
		t.Fatalf("gen=%d want 0", g)
	}
}
