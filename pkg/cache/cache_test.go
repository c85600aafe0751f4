package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

// testBasicOperations tests basic cache operations shared by all strategies.
func testBasicOperations(t *testing.T, cache Cache[string]) {
	if value, exists := cache.Get("key1"); exists {
		t.Errorf("Expected cache miss, got value: %s", value)
	}

	isNew, err := cache.Set("key1", "value1")
	if err != nil {
		t.Fatalf("Unexpected error setting key: %v", err)
	}
	if !isNew {
		t.Error("Expected new entry creation")
	}

	if value, exists := cache.Get("key1"); !exists || value != "value1" {
		t.Errorf("Expected 'value1', got value: %s, exists: %t", value, exists)
	}

	isNew, err = cache.Set("key1", "value1_updated")
	if err != nil {
		t.Fatalf("Unexpected error updating key: %v", err)
	}
	if isNew {
		t.Error("Expected existing entry update")
	}

	if value, exists := cache.Get("key1"); !exists || value != "value1_updated" {
		t.Errorf("Expected 'value1_updated', got value: %s, exists: %t", value, exists)
	}

	deleted, err := cache.Delete("key1")
	if err != nil {
		t.Fatalf("Unexpected error deleting key: %v", err)
	}
	if !deleted {
		t.Error("Expected successful deletion")
	}

	if value, exists := cache.Get("key1"); exists {
		t.Errorf("Expected cache miss after deletion, got value: %s", value)
	}
}

func TestLRUBasicOperations(t *testing.T) {
	c, err := NewLRU[string](10)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	testBasicOperations(t, c)
}

func TestHybridBasicOperations(t *testing.T) {
	c, err := NewHybrid[string](context.Background(), 10, time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	testBasicOperations(t, c)
}

func TestEmptyKeyRejected(t *testing.T) {
	c, err := NewLRU[string](10)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	if _, err := c.Set("", "value"); err == nil {
		t.Error("Expected error for empty key")
	}
	if _, err := c.Delete(""); err == nil {
		t.Error("Expected error for empty key delete")
	}
}

func TestLRUEviction(t *testing.T) {
	c, err := NewLRU[int](3)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Set("c", 3)

	// Touch "a" so "b" becomes least recently used
	c.Get("a")

	_, _ = c.Set("d", 4)

	if _, exists := c.Get("b"); exists {
		t.Error("Expected 'b' to be evicted as least recently used")
	}
	if _, exists := c.Get("a"); !exists {
		t.Error("Expected 'a' to survive eviction")
	}
	if c.Size() != 3 {
		t.Errorf("Expected size 3, got %d", c.Size())
	}
}

func TestHybridTTLExpiry(t *testing.T) {
	c, err := NewHybrid[string](context.Background(), 10, 30*time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, _ = c.Set("key1", "value1")

	if _, exists := c.Get("key1"); !exists {
		t.Error("Expected hit before TTL expiry")
	}

	time.Sleep(50 * time.Millisecond)

	if value, exists := c.Get("key1"); exists {
		t.Errorf("Expected miss after TTL expiry, got %s", value)
	}
}

func TestHybridSetWithTTLOverride(t *testing.T) {
	c, err := NewHybrid[string](context.Background(), 10, time.Hour, time.Hour)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, _ = c.SetWithTTL("short", "v", 30*time.Millisecond)
	_, _ = c.Set("long", "v")

	time.Sleep(50 * time.Millisecond)

	if _, exists := c.Get("short"); exists {
		t.Error("Expected per-entry TTL to expire entry")
	}
	if _, exists := c.Get("long"); !exists {
		t.Error("Expected default-TTL entry to survive")
	}
}

func TestHybridNoSlidingExpiry(t *testing.T) {
	c, err := NewHybrid[string](context.Background(), 10, 60*time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, _ = c.Set("key1", "value1")

	// Repeated reads must not extend the entry's lifetime
	for i := 0; i < 4; i++ {
		time.Sleep(20 * time.Millisecond)
		c.Get("key1")
	}

	if _, exists := c.Get("key1"); exists {
		t.Error("Expected entry to expire despite repeated access")
	}
}

func TestHybridBackgroundCleanup(t *testing.T) {
	c, err := NewHybrid[string](context.Background(), 10, 10*time.Millisecond, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, _ = c.Set("key1", "value1")

	time.Sleep(60 * time.Millisecond)

	// Entry removed by background cleanup without a read touching it
	if c.Size() != 0 {
		t.Errorf("Expected size 0 after cleanup, got %d", c.Size())
	}
}

func TestEvictionCallback(t *testing.T) {
	var mu sync.Mutex
	evicted := make(map[string]int)

	c, err := NewLRU[int](2, WithEvictionCallback[int](func(key string, value int) {
		mu.Lock()
		evicted[key] = value
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, _ = c.Set("a", 1)
	_, _ = c.Set("b", 2)
	_, _ = c.Set("c", 3)

	mu.Lock()
	defer mu.Unlock()
	if evicted["a"] != 1 {
		t.Errorf("Expected eviction callback for 'a', got %v", evicted)
	}
}

func TestStatistics(t *testing.T) {
	c, err := NewLRU[string](10)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	_, _ = c.Set("key1", "value1")
	c.Get("key1")
	c.Get("missing")

	stats := c.Stats()
	if stats.Hits() != 1 {
		t.Errorf("Expected 1 hit, got %d", stats.Hits())
	}
	if stats.Misses() != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses())
	}
	if stats.Sets() != 1 {
		t.Errorf("Expected 1 set, got %d", stats.Sets())
	}
	if ratio := stats.HitRatio(); ratio != 0.5 {
		t.Errorf("Expected hit ratio 0.5, got %f", ratio)
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, err := NewHybrid[int](context.Background(), 100, time.Minute, time.Minute)
	if err != nil {
		t.Fatalf("Unexpected error creating cache: %v", err)
	}
	defer func() { _ = c.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d", j%20)
				_, _ = c.Set(key, n*1000+j)
				c.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if c.Size() > 20 {
		t.Errorf("Expected at most 20 entries, got %d", c.Size())
	}
}

func TestNoopCache(t *testing.T) {
	c := NewNoop[string]()

	if _, err := c.Set("key", "value"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, exists := c.Get("key"); exists {
		t.Error("Expected noop cache to always miss")
	}
	if c.Size() != 0 {
		t.Errorf("Expected size 0, got %d", c.Size())
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"valid default", DefaultConfig(), false},
		{"disabled skips validation", Config{Enabled: false}, false},
		{"lru needs max size", Config{Enabled: true, Strategy: StrategyLRU}, true},
		{"hybrid needs ttl", Config{Enabled: true, Strategy: StrategyHybrid, MaxSize: 10}, true},
		{
			"hybrid needs cleanup interval",
			Config{Enabled: true, Strategy: StrategyHybrid, MaxSize: 10, TTL: time.Minute},
			true,
		},
		{"unknown strategy", Config{Enabled: true, Strategy: "fifo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr = %t", err, tt.wantErr)
			}
		})
	}
}

func TestNewFromConfigDisabled(t *testing.T) {
	c, err := NewFromConfig[string](context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, exists := c.Get("anything"); exists {
		t.Error("Expected disabled cache to always miss")
	}
}
