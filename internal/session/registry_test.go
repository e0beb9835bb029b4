package session

import (
	"sync"
	"sync/atomic"
	"testing"
)

// fakeHandle is a minimal Handle for registry tests.
type fakeHandle struct {
	id     string
	kind   Kind
	closes int32
}

func (h *fakeHandle) SessionID() string { return h.id }

func (h *fakeHandle) SessionKind() Kind { return h.kind }

func (h *fakeHandle) Close() error {
	atomic.AddInt32(&h.closes, 1)
	return nil
}

func TestRegistryAddGetRemove(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandle{id: reg.NewID(), kind: KindTerminal}

	reg.Add(h)
	got, ok := reg.Get(h.id)
	if !ok || got != Handle(h) {
		t.Fatalf("expected to get handle back, ok=%v", ok)
	}

	reg.Remove(h.id)
	if _, ok := reg.Get(h.id); ok {
		t.Error("expected handle to be gone after Remove")
	}
	if n := atomic.LoadInt32(&h.closes); n != 1 {
		t.Errorf("expected handle closed once on removal, got %d", n)
	}

	// Remove is idempotent.
	reg.Remove(h.id)
	if n := atomic.LoadInt32(&h.closes); n != 1 {
		t.Errorf("expected second Remove to be a no-op, got %d closes", n)
	}
}

func TestRegistryListByKind(t *testing.T) {
	reg := NewRegistry()
	reg.Add(&fakeHandle{id: reg.NewID(), kind: KindTerminal})
	reg.Add(&fakeHandle{id: reg.NewID(), kind: KindTerminal})
	reg.Add(&fakeHandle{id: reg.NewID(), kind: KindRecording})

	if n := len(reg.List(KindTerminal)); n != 2 {
		t.Errorf("expected 2 terminal sessions, got %d", n)
	}
	if n := len(reg.List(KindRecording)); n != 1 {
		t.Errorf("expected 1 recording session, got %d", n)
	}
	if n := len(reg.List("")); n != 3 {
		t.Errorf("expected 3 sessions total, got %d", n)
	}
}

func TestRegistryNewIDUnique(t *testing.T) {
	reg := NewRegistry()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := reg.NewID()
		if id == "" {
			t.Fatal("expected non-empty id")
		}
		if seen[id] {
			t.Fatalf("id %s minted twice", id)
		}
		seen[id] = true
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := &fakeHandle{id: reg.NewID(), kind: KindTerminal}
			reg.Add(h)
			reg.Get(h.id)
			reg.List(KindTerminal)
			reg.Remove(h.id)
		}()
	}
	wg.Wait()

	if n := reg.Count(); n != 0 {
		t.Errorf("expected empty registry, got %d entries", n)
	}
}
