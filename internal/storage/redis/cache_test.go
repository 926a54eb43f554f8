package redis

import (
	"context"
	"os"
	"testing"
	"time"
)

// 需要设置 SUICOPILOT_TEST_REDIS 指向可用的 Redis 实例。
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("SUICOPILOT_TEST_REDIS")
	if addr == "" {
		t.Skip("SUICOPILOT_TEST_REDIS not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cache, err := New(ctx, Config{Address: addr, Prefix: "suicopilot-test:" + t.Name() + ":"})
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	type snapshot struct {
		Network string `json:"network"`
		Balance string `json:"balance"`
	}
	if err := cache.Set(ctx, "wallet", snapshot{Network: "testnet", Balance: "1"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := cache.Set(ctx, "wallet", snapshot{Network: "mainnet", Balance: "2"}, time.Minute); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	var got snapshot
	ok, err := cache.Get(ctx, "wallet", &got)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Network != "mainnet" || got.Balance != "2" {
		t.Fatalf("expected full overwrite, got %+v", got)
	}
	if err := cache.Delete(ctx, "wallet"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := cache.Get(ctx, "wallet", &got); ok {
		t.Fatal("expected miss after delete")
	}
}

func TestNewRequiresAddress(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected empty address to fail")
	}
}
