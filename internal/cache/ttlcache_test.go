package cache

import (
	"testing"
	"time"
)

func TestStoreGetSetRoundTrip(t *testing.T) {
	s := NewStore[string](Options[string]{TTL: time.Minute})
	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected miss on empty store")
	}
	s.Set("a", "value-a")
	v, ok := s.Get("a")
	if !ok || v != "value-a" {
		t.Fatalf("got %q, %v, want value-a, true", v, ok)
	}
}

func TestStoreExpiresByTTL(t *testing.T) {
	s := NewStore[int](Options[int]{TTL: 10 * time.Millisecond})
	base := time.UnixMilli(1_000_000)
	s.setAt("k", 7, base)
	if v, ok := s.getAt("k", base.Add(5*time.Millisecond)); !ok || v != 7 {
		t.Fatalf("expected hit before expiry, got %v %v", v, ok)
	}
	if _, ok := s.getAt("k", base.Add(20*time.Millisecond)); ok {
		t.Fatalf("expected miss after expiry")
	}
}

func TestStoreEvictsOldestOnOverflow(t *testing.T) {
	var evicted []string
	s := NewStore[int](Options[int]{
		MaxSize: 2,
		OnEvict: func(key string, _ int) { evicted = append(evicted, key) },
	})
	base := time.UnixMilli(1_000_000)
	s.setAt("a", 1, base)
	s.setAt("b", 2, base.Add(time.Millisecond))
	s.setAt("c", 3, base.Add(2*time.Millisecond))

	if s.Size() != 2 {
		t.Fatalf("expected size bounded to 2, got %d", s.Size())
	}
	if len(evicted) != 1 || evicted[0] != "a" {
		t.Fatalf("expected oldest key 'a' evicted, got %v", evicted)
	}
	if _, ok := s.Get("a"); ok {
		t.Fatalf("expected 'a' evicted")
	}
}

func TestStoreDeleteNotifiesOnEvict(t *testing.T) {
	var evicted string
	s := NewStore[int](Options[int]{OnEvict: func(key string, _ int) { evicted = key }})
	s.Set("k", 1)
	s.Delete("k")
	if evicted != "k" {
		t.Fatalf("expected OnEvict called for delete, got %q", evicted)
	}
	if _, ok := s.Get("k"); ok {
		t.Fatalf("expected miss after delete")
	}
}

func TestStoreClearSkipsOnEvict(t *testing.T) {
	calls := 0
	s := NewStore[int](Options[int]{OnEvict: func(string, int) { calls++ }})
	s.Set("a", 1)
	s.Set("b", 2)
	s.Clear()
	if calls != 0 {
		t.Fatalf("expected Clear to skip OnEvict, got %d calls", calls)
	}
	if s.Size() != 0 {
		t.Fatalf("expected empty store after Clear")
	}
}
