package webhook

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryStoreFirstThenDuplicate(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	first, err := s.RecordIfNew(ctx, "shopify", "wh-1")
	if err != nil {
		t.Fatalf("RecordIfNew: %v", err)
	}
	if !first {
		t.Fatal("first delivery not reported as new")
	}

	again, err := s.RecordIfNew(ctx, "shopify", "wh-1")
	if err != nil {
		t.Fatalf("RecordIfNew: %v", err)
	}
	if again {
		t.Fatal("duplicate delivery reported as new")
	}
}

func TestMemoryStoreKeysAreProviderScoped(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	if first, _ := s.RecordIfNew(ctx, "shopify", "id-1"); !first {
		t.Fatal("shopify id-1 should be new")
	}
	// The same delivery id under another provider is a distinct delivery.
	if first, _ := s.RecordIfNew(ctx, "stripe", "id-1"); !first {
		t.Fatal("stripe id-1 should be new")
	}
}

func TestMemoryStoreConcurrentReplay(t *testing.T) {
	// N concurrent deliveries of the same event must observe exactly one
	// "first"; everything else is a duplicate.
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	const n = 64
	var firsts atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			first, err := s.RecordIfNew(ctx, "stripe", "evt-race")
			if err != nil {
				t.Errorf("RecordIfNew: %v", err)
				return
			}
			if first {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := firsts.Load(); got != 1 {
		t.Fatalf("expected exactly 1 first, got %d", got)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	ctx := context.Background()

	base := time.Now()
	s.clock = func() time.Time { return base }

	if first, _ := s.RecordIfNew(ctx, "printful", "pf-1"); !first {
		t.Fatal("initial delivery should be new")
	}

	// Within the retention window: duplicate.
	s.clock = func() time.Time { return base.Add(30 * time.Minute) }
	if first, _ := s.RecordIfNew(ctx, "printful", "pf-1"); first {
		t.Fatal("delivery inside retention window reported as new")
	}

	// After expiry the same id is treated as first again.
	s.clock = func() time.Time { return base.Add(2 * time.Hour) }
	if first, _ := s.RecordIfNew(ctx, "printful", "pf-1"); !first {
		t.Fatal("delivery after retention expiry should be new")
	}
}
