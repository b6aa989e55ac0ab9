package idempotency

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type fakeStore struct {
	data       map[string]string
	getErr     error
	setNXError error
	lastKey    string
	lastTTL    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	if f.setNXError != nil {
		return false, f.setNXError
	}
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = fmt.Sprint(value)
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "cfa:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func TestRememberThenLookup(t *testing.T) {
	store := newFakeStore()
	cache, err := NewCache(store, 24*time.Hour, nil)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	ctx := context.Background()

	if _, ok := cache.Lookup(ctx, ScopePledgeKey, "k1"); ok {
		t.Fatal("expected miss before remember")
	}
	cache.Remember(ctx, ScopePledgeKey, "k1", "pledge-1")
	cache.Remember(ctx, ScopePledgeKey, "k1", "pledge-2")

	value, ok := cache.Lookup(ctx, ScopePledgeKey, "k1")
	if !ok || value != "pledge-1" {
		t.Fatalf("expected first value to win, got %q ok=%v", value, ok)
	}
	if store.lastKey != "cfa:idempotency:pledge:key:k1" {
		t.Fatalf("unexpected key %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl %v", store.lastTTL)
	}

	cache.Forget(ctx, ScopePledgeKey, "k1")
	if cache.Seen(ctx, ScopePledgeKey, "k1") {
		t.Fatal("expected miss after forget")
	}
}

func TestSeenDefaultsValue(t *testing.T) {
	store := newFakeStore()
	cache, _ := NewCache(store, time.Hour, nil)
	cache.Remember(context.Background(), ScopeWebhook, "evt-1", "")
	if store.data["cfa:idempotency:webhook:evt-1"] != "1" {
		t.Fatalf("expected placeholder value, got %v", store.data)
	}
	if !cache.Seen(context.Background(), ScopeWebhook, "evt-1") {
		t.Fatal("expected webhook to be seen")
	}
}

func TestStoreErrorsDegradeToMiss(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	store.setNXError = errors.New("connection refused")
	cache, _ := NewCache(store, time.Hour, nil)

	cache.Remember(context.Background(), ScopeReconciliation, "pledge.captured:p1", "")
	if cache.Seen(context.Background(), ScopeReconciliation, "pledge.captured:p1") {
		t.Fatal("expected redis failure to read as a miss")
	}
}

func TestDisabledCacheAlwaysMisses(t *testing.T) {
	cache := Disabled()
	cache.Remember(context.Background(), ScopeWebhook, "evt-1", "x")
	if cache.Enabled() || cache.Seen(context.Background(), ScopeWebhook, "evt-1") {
		t.Fatal("disabled cache must never hit")
	}
	var nilCache *Cache
	if nilCache.Seen(context.Background(), ScopeWebhook, "evt-1") {
		t.Fatal("nil cache must never hit")
	}
}

func TestNewCacheRejectsNegativeTTL(t *testing.T) {
	if _, err := NewCache(newFakeStore(), -time.Second, nil); err == nil {
		t.Fatal("expected negative ttl error")
	}
}
