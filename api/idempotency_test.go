package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestDeduper(t *testing.T) *RedisDeduper {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})

	return NewRedisDeduper(client, time.Minute)
}

func TestRedisDeduperAddThenReplay(t *testing.T) {
	deduper := newTestDeduper(t)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !added {
		t.Fatal("expected first add to succeed")
	}

	replayed, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if replayed {
		t.Fatal("expected second add to report duplicate")
	}
}

func TestRedisDeduperRemoveAllowsRetry(t *testing.T) {
	deduper := newTestDeduper(t)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "user", "k1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !added {
		t.Fatal("expected re-add after remove to succeed")
	}
}

func TestRedisDeduperKeysAreUserScoped(t *testing.T) {
	deduper := newTestDeduper(t)
	ctx := context.Background()

	if _, err := deduper.Add(ctx, "alice", "k1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	added, err := deduper.Add(ctx, "bob", "k1")
	if err != nil {
		t.Fatalf("add for second user: %v", err)
	}
	if !added {
		t.Fatal("expected same key under another user to be new")
	}
}
