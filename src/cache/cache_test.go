package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trading-data-viewer/src/logger"
)

func newTestCache(capacity int, ttl time.Duration) *Cache {
	return New(capacity, ttl, logger.NewLogger("ERROR", "cache-test"))
}

func TestGetOrComputeMemoizes(t *testing.T) {
	c := newTestCache(10, 0)

	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return "value", nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrCompute("key", fn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "value" {
			t.Fatalf("got %v", got)
		}
	}
	if calls != 1 {
		t.Errorf("compute ran %d times, want 1", calls)
	}
}

func TestGetOrComputeDoesNotCacheErrors(t *testing.T) {
	c := newTestCache(10, 0)

	calls := 0
	fn := func() (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("boom")
		}
		return "ok", nil
	}

	if _, err := c.GetOrCompute("key", fn); err == nil {
		t.Fatal("expected error on first call")
	}
	got, err := c.GetOrCompute("key", fn)
	if err != nil || got != "ok" {
		t.Fatalf("expected recomputation to succeed, got %v, %v", got, err)
	}
}

func TestSingleFlight(t *testing.T) {
	c := newTestCache(10, 0)

	var computations int32
	release := make(chan struct{})
	fn := func() (interface{}, error) {
		atomic.AddInt32(&computations, 1)
		<-release
		return 42, nil
	}

	var wg sync.WaitGroup
	results := make([]interface{}, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrCompute("shared", fn)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = v
		}(i)
	}

	// Give the goroutines time to pile onto the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := atomic.LoadInt32(&computations); n != 1 {
		t.Errorf("computation ran %d times, want 1", n)
	}
	for i, v := range results {
		if v != 42 {
			t.Errorf("caller %d saw %v, want 42", i, v)
		}
	}
}

func TestLRUEviction(t *testing.T) {
	c := newTestCache(2, 0)

	mustCompute := func(key string, v interface{}) {
		if _, err := c.GetOrCompute(key, func() (interface{}, error) { return v, nil }); err != nil {
			t.Fatalf("compute %s: %v", key, err)
		}
	}

	mustCompute("a", 1)
	time.Sleep(2 * time.Millisecond)
	mustCompute("b", 2)
	time.Sleep(2 * time.Millisecond)

	// Touch "a" so "b" becomes the LRU victim.
	mustCompute("a", 0)
	time.Sleep(2 * time.Millisecond)
	mustCompute("c", 3)

	if c.Len() != 2 {
		t.Fatalf("cache size = %d, want 2", c.Len())
	}

	recomputed := false
	if _, err := c.GetOrCompute("b", func() (interface{}, error) {
		recomputed = true
		return 2, nil
	}); err != nil {
		t.Fatalf("recompute b: %v", err)
	}
	if !recomputed {
		t.Error("expected LRU entry 'b' to have been evicted")
	}
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(10, 20*time.Millisecond)

	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	if _, err := c.GetOrCompute("key", fn); err != nil {
		t.Fatal(err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := c.GetOrCompute("key", fn); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("compute ran %d times, want 2 after expiry", calls)
	}
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(10, 0)

	calls := 0
	fn := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	c.GetOrCompute("key", fn)
	c.Invalidate("key")
	c.GetOrCompute("key", fn)

	if calls != 2 {
		t.Errorf("compute ran %d times, want 2 after invalidation", calls)
	}
}
