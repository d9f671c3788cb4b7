package premem

import (
	"testing"

	"github.com/seandai318/coresig/cerr"
)

func testProv() Provenance { return Provenance{File: "premem_test.go", Func: "test", Line: 1} }

// scenario 1 from spec.md §8: slab refcount lifecycle.
func TestAllocRefFreeDoubleFree(t *testing.T) {
	pool := NewPool(false)
	var dtorCalls int
	dtor := func(payload []byte) { dtorCalls++ }

	h, err := pool.Alloc(64, dtor, true, testProv())
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if got := pool.Nrefs(h); got != 1 {
		t.Fatalf("nrefs after alloc = %d, want 1", got)
	}

	if _, err := pool.Ref(h); err != nil {
		t.Fatalf("ref: %v", err)
	}
	if got := pool.Nrefs(h); got != 2 {
		t.Fatalf("nrefs after ref = %d, want 2", got)
	}

	pool.Free(h)
	if got := pool.Nrefs(h); got != 1 {
		t.Fatalf("nrefs after first free = %d, want 1", got)
	}
	if dtorCalls != 0 {
		t.Fatalf("destructor called early")
	}

	pool.Free(h)
	if dtorCalls != 1 {
		t.Fatalf("destructor calls = %d, want 1", dtorCalls)
	}

	// double free: logged, returns nil, refcount stays at 0.
	pool.Free(h)
	if pool.Nrefs(h) != 0 {
		t.Fatalf("double free corrupted refcount")
	}
}

func TestAllocPicksSmallestClass(t *testing.T) {
	pool := NewPool(false)
	h, err := pool.Alloc(10, nil, false, testProv())
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if cap(h.Payload()) != 16 {
		t.Fatalf("cap = %d, want 16 (class C0)", cap(h.Payload()))
	}
}

func TestAllocExhaustion(t *testing.T) {
	pool := NewPool(false)
	pool.classes[0].slots = 2
	var handles []*Handle
	for i := 0; i < 2; i++ {
		h, err := pool.Alloc(8, nil, false, testProv())
		if err != nil {
			t.Fatalf("alloc %d: %v", i, err)
		}
		handles = append(handles, h)
	}
	_, err := pool.Alloc(8, nil, false, testProv())
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
	if cerr.CodeOf(err) != cerr.MemoryAllocFailure {
		t.Fatalf("code = %v, want MemoryAllocFailure", cerr.CodeOf(err))
	}

	pool.Free(handles[0])
	if _, err := pool.Alloc(8, nil, false, testProv()); err != nil {
		t.Fatalf("alloc after free: %v", err)
	}
}

func TestZallocZeroesPayload(t *testing.T) {
	pool := NewPool(false)
	h, err := pool.Dalloc([]byte{1, 2, 3}, nil, false, testProv())
	if err != nil {
		t.Fatalf("dalloc: %v", err)
	}
	pool.Free(h)

	z, err := pool.Zalloc(3, nil, false, testProv())
	if err != nil {
		t.Fatalf("zalloc: %v", err)
	}
	for _, b := range z.Payload() {
		if b != 0 {
			t.Fatalf("zalloc payload not zeroed: %v", z.Payload())
		}
	}
}

func TestReallocInheritsDestructorAndShared(t *testing.T) {
	pool := NewPool(false)
	var called bool
	dtor := func([]byte) { called = true }
	h, err := pool.Dalloc([]byte("hello"), dtor, true, testProv())
	if err != nil {
		t.Fatalf("dalloc: %v", err)
	}
	nh, err := pool.Realloc(h, 10, testProv())
	if err != nil {
		t.Fatalf("realloc: %v", err)
	}
	if string(nh.Payload()[:5]) != "hello" {
		t.Fatalf("realloc payload = %q", nh.Payload())
	}
	pool.Free(nh)
	if !called {
		t.Fatalf("realloc did not inherit destructor")
	}
}

// the free chain is FIFO (spec.md §4.1): the oldest-released slot is
// reused before a more recently released one, matching
// osPreMemory.c's release-to-tail / get-from-head behavior.
func TestFreeChainReusesInFIFOOrder(t *testing.T) {
	pool := NewPool(false)
	a, err := pool.Alloc(8, nil, false, testProv())
	if err != nil {
		t.Fatalf("alloc a: %v", err)
	}
	b, err := pool.Alloc(8, nil, false, testProv())
	if err != nil {
		t.Fatalf("alloc b: %v", err)
	}

	pool.Free(a)
	pool.Free(b)

	got, err := pool.Alloc(8, nil, false, testProv())
	if err != nil {
		t.Fatalf("alloc after frees: %v", err)
	}
	if got != a {
		t.Fatalf("reused handle = %p, want %p (a, released first)", got, a)
	}
}

func TestDebugUsedInfo(t *testing.T) {
	pool := NewPool(true)
	h, err := pool.Alloc(16, nil, false, Provenance{File: "f.go", Func: "g", Line: 42})
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	info := pool.UsedInfo(-1)
	if len(info) != 1 {
		t.Fatalf("used info = %v, want 1 entry", info)
	}
	pool.Free(h)
	if info := pool.UsedInfo(-1); len(info) != 0 {
		t.Fatalf("used info after free = %v, want empty", info)
	}
}
