package secrets

import (
	"sync"
	"testing"
	"time"
)

func TestCache_PutAndGet(t *testing.T) {
	cache := NewCache[string](2 * time.Second)
	key := "feed|alphavantage"

	// should miss initially
	if _, ok := cache.Get(key); ok {
		t.Fatal("expected miss on empty cache")
	}

	cache.Put(key, "abc123")

	// immediate hit
	if apiKey, ok := cache.Get(key); !ok {
		t.Fatal("expected cache hit")
	} else if apiKey != "abc123" {
		t.Errorf("expected api key abc123, got %s", apiKey)
	}
}

func TestCache_Expiration(t *testing.T) {
	cache := NewCache[string](100 * time.Millisecond)
	key := "feed|alphavantage"
	cache.Put(key, "abc123")

	time.Sleep(150 * time.Millisecond)

	if _, ok := cache.Get(key); ok {
		t.Fatal("expected expired cache entry")
	}
}

func TestCache_Bust(t *testing.T) {
	cache := NewCache[string](5 * time.Second)
	key := "feed|alphavantage"
	cache.Put(key, "abc123")

	cache.Bust(key)
	if _, ok := cache.Get(key); ok {
		t.Fatal("expected cache miss after bust")
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := NewCache[map[string]string](2 * time.Second)
	key := "feed|alphavantage"

	var wg sync.WaitGroup
	wg.Add(2)

	// Writer
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			cache.Put(key, map[string]string{"api_key": "abc123"})
		}
	}()

	// Reader
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			cache.Get(key)
		}
	}()

	wg.Wait()
}

func TestCache_CleanupExpired(t *testing.T) {
	cache := NewCache[string](100 * time.Millisecond)
	cache.Put("k1", "v1")
	cache.Put("k2", "v2")

	time.Sleep(150 * time.Millisecond)
	cache.cleanupExpired()

	cache.mu.RLock()
	defer cache.mu.RUnlock()
	if len(cache.data) != 0 {
		t.Fatalf("expected cleanup to remove expired entries, %d remain", len(cache.data))
	}
}
