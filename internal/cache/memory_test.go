package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemory(capacity int) (*Memory[string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	m := NewMemory[string](capacity)
	m.now = clock.Now
	return m, clock
}

func TestMemory_GetSet(t *testing.T) {
	m, _ := newTestMemory(10)

	if _, ok := m.Get("missing"); ok {
		t.Error("Get(missing) should miss")
	}

	m.Set("a", "alpha", time.Minute)
	got, ok := m.Get("a")
	if !ok || got != "alpha" {
		t.Errorf("Get(a) = %q, %v, want alpha, true", got, ok)
	}

	m.Set("a", "again", time.Minute)
	if got, _ := m.Get("a"); got != "again" {
		t.Errorf("Get(a) after overwrite = %q, want again", got)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}
}

func TestMemory_Expiry(t *testing.T) {
	m, clock := newTestMemory(10)

	m.Set("a", "alpha", time.Minute)
	clock.Advance(59 * time.Second)
	if _, ok := m.Get("a"); !ok {
		t.Error("entry should still be live before its TTL")
	}

	clock.Advance(time.Second)
	if _, ok := m.Get("a"); ok {
		t.Error("entry should expire exactly at its TTL")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry should be removed on read, Len() = %d", m.Len())
	}
}

func TestMemory_NonPositiveTTLIsIgnored(t *testing.T) {
	m, _ := newTestMemory(10)
	m.Set("a", "alpha", 0)
	m.Set("b", "beta", -time.Second)
	if m.Len() != 0 {
		t.Errorf("Len() = %d, want 0", m.Len())
	}
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	m, _ := newTestMemory(3)

	m.Set("a", "1", time.Hour)
	m.Set("b", "2", time.Hour)
	m.Set("c", "3", time.Hour)
	m.Get("a") // a is now most recent
	m.Set("d", "4", time.Hour)

	if _, ok := m.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if _, ok := m.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if m.Len() != 3 {
		t.Errorf("Len() = %d, want 3", m.Len())
	}
}

func TestMemory_DefaultCapacity(t *testing.T) {
	m := NewMemory[int](0)
	if m.Capacity() != DefaultCapacity {
		t.Fatalf("Capacity() = %d, want %d", m.Capacity(), DefaultCapacity)
	}
	for i := 0; i < DefaultCapacity+25; i++ {
		m.Set(fmt.Sprintf("k%d", i), i, time.Hour)
	}
	if m.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", m.Len(), DefaultCapacity)
	}
	if _, ok := m.Get("k0"); ok {
		t.Error("oldest key should be evicted")
	}
}

func TestMemory_DeletePrefixAndClear(t *testing.T) {
	m, _ := newTestMemory(10)
	m.Set("AAPL|info", "x", time.Hour)
	m.Set("AAPL|history:6mo", "x", time.Hour)
	m.Set("MSFT|info", "x", time.Hour)

	if n := m.DeletePrefix("AAPL|"); n != 2 {
		t.Errorf("DeletePrefix() = %d, want 2", n)
	}
	if _, ok := m.Get("MSFT|info"); !ok {
		t.Error("MSFT entry should survive DeletePrefix")
	}

	m.Delete("MSFT|info")
	if m.Len() != 0 {
		t.Errorf("Len() after Delete = %d, want 0", m.Len())
	}

	m.Set("a", "x", time.Hour)
	m.Set("b", "x", time.Hour)
	if n := m.Clear(); n != 2 {
		t.Errorf("Clear() = %d, want 2", n)
	}
	if m.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", m.Len())
	}
}

func TestMemory_PurgeExpired(t *testing.T) {
	m, clock := newTestMemory(10)
	m.Set("short", "x", time.Minute)
	m.Set("long", "x", time.Hour)

	clock.Advance(2 * time.Minute)
	if n := m.PurgeExpired(); n != 1 {
		t.Errorf("PurgeExpired() = %d, want 1", n)
	}
	if _, ok := m.Get("long"); !ok {
		t.Error("long-lived entry should survive purge")
	}
}

func TestMemory_PurgeExpiredKeepsRecency(t *testing.T) {
	m, clock := newTestMemory(2)
	m.Set("a", "1", time.Hour)
	m.Set("b", "2", time.Hour)
	m.Get("a")

	clock.Advance(time.Minute)
	if n := m.PurgeExpired(); n != 0 {
		t.Errorf("PurgeExpired() = %d, want 0", n)
	}

	m.Set("c", "3", time.Hour)
	if _, ok := m.Get("b"); ok {
		t.Error("b should be evicted as least recently used")
	}
	if _, ok := m.Get("a"); !ok {
		t.Error("a should survive, it was read after b was written")
	}
}

func TestMemory_Concurrent(t *testing.T) {
	m := NewMemory[int](50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g*200+i)%80)
				m.Set(key, i, time.Minute)
				m.Get(key)
			}
		}(g)
	}
	wg.Wait()

	if m.Len() > 50 {
		t.Errorf("Len() = %d, exceeds capacity 50", m.Len())
	}
}
