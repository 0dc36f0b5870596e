package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/mohammed-shakir/cartodb-adapter/internal/cache/keys"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGet_HappyPathAndMiss(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "k1", []byte("v1"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := rc.Get(ctx, "k1")
	if err != nil || !ok || string(got) != "v1" {
		t.Fatalf("Get k1 = %q,%v,%v", got, ok, err)
	}
	_, ok, err = rc.Get(ctx, "missing")
	if err != nil || ok {
		t.Fatalf("Get missing ok=%v err=%v, want miss without error", ok, err)
	}
}

func TestTTLExpiry(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl-key", []byte("v"), 2*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	mr.FastForward(3 * time.Second)

	if _, ok, err := rc.Get(ctx, "ttl-key"); err != nil || ok {
		t.Fatalf("expected ttl-key to be absent after expiry; ok=%v err=%v", ok, err)
	}
}

func TestGenerationBump(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	gen, err := rc.Generation(ctx, "playgrounds")
	if err != nil || gen != 0 {
		t.Fatalf("initial generation=%d err=%v", gen, err)
	}
	for range 2 {
		if err := rc.Bump(ctx, "playgrounds"); err != nil {
			t.Fatalf("Bump: %v", err)
		}
	}
	gen, err = rc.Generation(ctx, "playgrounds")
	if err != nil || gen != 2 {
		t.Fatalf("generation=%d err=%v want 2", gen, err)
	}
	if v, _ := mr.Get(keys.GenKey("playgrounds")); v != "2" {
		t.Fatalf("raw counter=%q want 2", v)
	}
	if gen, _ := rc.Generation(ctx, "parks"); gen != 0 {
		t.Fatalf("other table generation=%d want 0", gen)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, addr, WithDialTimeout(100*time.Millisecond)); err == nil {
		t.Fatalf("expected ping error against closed server")
	}
}
