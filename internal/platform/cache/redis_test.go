package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedis(rc, 0, zerolog.Nop()), mr
}

func TestRedis_SetGet(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Fatalf("expected miss for absent key")
	}

	c.Set(ctx, "k", "v", 60)
	v, ok := c.Get(ctx, "k")
	if !ok || v != "v" {
		t.Fatalf("expected hit with `v`, got %q ok=%v", v, ok)
	}

	ttl := mr.TTL("k")
	if ttl != 60*time.Second {
		t.Fatalf("expected 60s ttl, got %s", ttl)
	}
}

func TestRedis_EntryExpires(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "k", "v", 1)
	mr.FastForward(2 * time.Second)

	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after ttl elapsed")
	}
}

func TestRedis_Delete(t *testing.T) {
	c, _ := newTestRedis(t)
	ctx := context.Background()

	c.Set(ctx, "a", "1", 60)
	c.Set(ctx, "b", "2", 60)
	c.Delete(ctx, "a", "b")

	if _, ok := c.Get(ctx, "a"); ok {
		t.Fatalf("key a should be deleted")
	}
	if _, ok := c.Get(ctx, "b"); ok {
		t.Fatalf("key b should be deleted")
	}
}

func TestRedis_DeletePatternSpansScanBatches(t *testing.T) {
	c, mr := newTestRedis(t)
	ctx := context.Background()

	// Well past one SCAN batch.
	for i := 0; i < 350; i++ {
		c.Set(ctx, fmt.Sprintf("perm:alice:%d:access", i), "x", 60)
	}
	c.Set(ctx, "perm:bob:1:access", "x", 60)

	c.DeletePattern(ctx, "perm:alice:*")

	for _, k := range mr.Keys() {
		if k != "perm:bob:1:access" {
			t.Fatalf("unexpected surviving key %q", k)
		}
	}
	if !mr.Exists("perm:bob:1:access") {
		t.Fatalf("non-matching key must survive pattern delete")
	}
}

func TestRedis_BackendDownIsAbsorbed(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	c := NewRedis(rc, 100*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	mr.Close()

	// None of these may panic or error out; reads degrade to misses.
	c.Set(ctx, "k", "v", 60)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss when backend is down")
	}
	c.Delete(ctx, "k")
	c.DeletePattern(ctx, "perm:*")
}

func TestNop_AlwaysMisses(t *testing.T) {
	var c Cache = NewNop()
	ctx := context.Background()

	c.Set(ctx, "k", "v", 60)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("nop cache must never hit")
	}
	c.Delete(ctx, "k")
	c.DeletePattern(ctx, "*")
}
