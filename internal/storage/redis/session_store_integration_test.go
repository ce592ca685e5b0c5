package redis

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const defaultLocalRedisURL = "redis://localhost:6379/15"

func openSessionStoreForIntegrationTest(t *testing.T, opts ...Option) *SessionCartStore {
	t.Helper()

	url := strings.TrimSpace(os.Getenv("SHOP_REDIS_TEST_URL"))
	if url == "" {
		url = defaultLocalRedisURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	opts = append([]Option{WithKeyPrefix("test:" + uuid.NewString() + ":")}, opts...)
	store, err := Open(ctx, url, opts...)
	if err != nil {
		t.Skipf("redis is not available for integration tests: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSessionCartStore_RedisSaveLoadClear(t *testing.T) {
	store := openSessionStoreForIntegrationTest(t)
	ctx := context.Background()

	empty, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("load missing cart: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty cart, got %v", empty)
	}

	if err := store.Save(ctx, "session-1", map[string]int{"1": 2, "7": 1}); err != nil {
		t.Fatalf("save cart: %v", err)
	}
	if err := store.Save(ctx, "session-1", map[string]int{"1": 3}); err != nil {
		t.Fatalf("overwrite cart: %v", err)
	}

	got, err := store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if len(got) != 1 || got["1"] != 3 {
		t.Fatalf("save must replace the whole cart, got %v", got)
	}

	if err := store.Clear(ctx, "session-1"); err != nil {
		t.Fatalf("clear cart: %v", err)
	}
	got, err = store.Load(ctx, "session-1")
	if err != nil {
		t.Fatalf("load cleared cart: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty cart after clear, got %v", got)
	}
}

func TestSessionCartStore_RedisTTL(t *testing.T) {
	store := openSessionStoreForIntegrationTest(t, WithTTL(time.Hour))
	ctx := context.Background()

	if err := store.Save(ctx, "session-ttl", map[string]int{"1": 1}); err != nil {
		t.Fatalf("save cart: %v", err)
	}

	ttl, err := store.client.TTL(ctx, store.key("session-ttl")).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Hour {
		t.Fatalf("unexpected ttl: %v", ttl)
	}
}
