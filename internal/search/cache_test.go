package search

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func exerciseCache(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = %v, %v", ok, err)
	}

	if err := c.Set(ctx, "k1", []byte(`{"total":1}`), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok, err := c.Get(ctx, "k1")
	if err != nil || !ok {
		t.Fatalf("Get(k1) = %v, %v", ok, err)
	}
	if !bytes.Equal(got, []byte(`{"total":1}`)) {
		t.Errorf("Get(k1) = %s", got)
	}

	if err := c.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "k1"); ok {
		t.Error("entry survived Flush")
	}
}

func TestMemoryCache(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	exerciseCache(t, c)
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute)
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("x"), 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "short"); ok {
		t.Error("entry should have expired")
	}
}

func TestRedisCache(t *testing.T) {
	c, err := NewRedisCache("redis://localhost:6379/15")
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer c.Close()

	exerciseCache(t, c)
}

type countingObserver struct {
	hits, misses map[string]int
}

func (o *countingObserver) RecordCacheHit(cache string)  { o.hits[cache]++ }
func (o *countingObserver) RecordCacheMiss(cache string) { o.misses[cache]++ }

func TestObservedCache(t *testing.T) {
	obs := &countingObserver{hits: map[string]int{}, misses: map[string]int{}}
	c := NewObservedCache(NewMemoryCache(time.Minute), "memory", obs)

	exerciseCache(t, c)

	if obs.hits["memory"] != 1 {
		t.Errorf("hits = %d, want 1", obs.hits["memory"])
	}
	if obs.misses["memory"] < 2 {
		t.Errorf("misses = %d, want at least 2", obs.misses["memory"])
	}
}
