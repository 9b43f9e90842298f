package presence

import (
	"fmt"
	"sync"
	"testing"
)

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	p, displaced, err := r.Register("alice@example.com", "Alice", "c1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if displaced != "" || !p.Online || p.Name != "Alice" {
		t.Fatalf("unexpected presence %+v displaced=%q", p, displaced)
	}
	got, ok := r.Lookup("alice@example.com")
	if !ok || got.Conn != "c1" {
		t.Fatalf("Lookup: %+v %v", got, ok)
	}
	got, ok = r.LookupConn("c1")
	if !ok || got.Identity != "alice@example.com" {
		t.Fatalf("LookupConn: %+v %v", got, ok)
	}
}

func TestRegisterDefaultsNameToIdentity(t *testing.T) {
	r := NewRegistry()
	p, _, err := r.Register("bob@example.com", "  ", "c1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if p.Name != "bob@example.com" {
		t.Fatalf("Name=%q", p.Name)
	}
	if _, _, err := r.Register("", "x", "c2"); err != ErrInvalidArgs {
		t.Fatalf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestReconnectReplacesConnection(t *testing.T) {
	r := NewRegistry()
	_, _, _ = r.Register("alice@example.com", "Alice", "c1")
	_, displaced, err := r.Register("alice@example.com", "Alice", "c2")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if displaced != "c1" {
		t.Fatalf("displaced=%q", displaced)
	}
	if r.Count() != 1 {
		t.Fatalf("expected one presence, got %d", r.Count())
	}
	// the stale socket closing must not evict the fresh one
	if _, ok := r.Unregister("c1"); ok {
		t.Fatalf("stale unregister removed presence")
	}
	if got, ok := r.Lookup("alice@example.com"); !ok || got.Conn != "c2" {
		t.Fatalf("expected c2 to remain, got %+v %v", got, ok)
	}
	p, ok := r.Unregister("c2")
	if !ok || p.Online {
		t.Fatalf("Unregister c2: %+v %v", p, ok)
	}
	if _, ok := r.Lookup("alice@example.com"); ok {
		t.Fatalf("presence should be gone")
	}
}

func TestListSorted(t *testing.T) {
	r := NewRegistry()
	_, _, _ = r.Register("carol@example.com", "Carol", "c3")
	_, _, _ = r.Register("alice@example.com", "Alice", "c1")
	_, _, _ = r.Register("bob@example.com", "Bob", "c2")
	list := r.List()
	if len(list) != 3 || list[0].Identity != "alice@example.com" || list[2].Identity != "carol@example.com" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestConcurrentRegisterSameIdentity(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, _ = r.Register("alice@example.com", "Alice", fmt.Sprintf("c%d", i))
		}(i)
	}
	wg.Wait()
	if r.Count() != 1 {
		t.Fatalf("expected a single presence, got %d", r.Count())
	}
}
