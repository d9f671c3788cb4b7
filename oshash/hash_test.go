package oshash

import (
	"testing"

	"github.com/seandai318/coresig/premem"
)

// scenario 2 from spec.md §8: hash collision handling in a 4-bucket map.
func TestHashCollisionAndDeleteByKey(t *testing.T) {
	m := Create(4)
	m.AddIntKey(1, "v1")
	m.AddIntKey(5, "v5")
	m.AddIntKey(9, "v9")

	if got := m.LookupByKey(Key{Type: KeyInt, Int: 5}); got != "v5" {
		t.Fatalf("lookup(5) = %v, want v5", got)
	}

	m.DeleteNodeByKey(Key{Type: KeyInt, Int: 5}, nil, DeleteAll)

	if got := m.LookupByKey(Key{Type: KeyInt, Int: 5}); got != nil {
		t.Fatalf("lookup(5) after delete = %v, want nil", got)
	}
	if got := m.LookupByKey(Key{Type: KeyInt, Int: 1}); got != "v1" {
		t.Fatalf("lookup(1) = %v, want v1", got)
	}
	if got := m.LookupByKey(Key{Type: KeyInt, Int: 9}); got != "v9" {
		t.Fatalf("lookup(9) = %v, want v9", got)
	}
}

func TestLookupMissingKeyReturnsNil(t *testing.T) {
	m := Create(8)
	m.AddStrKey("alpha", true, 1)
	if got := m.LookupByKey(Key{Type: KeyStr, Str: "beta", CaseSens: true}); got != nil {
		t.Fatalf("lookup of missing key = %v, want nil", got)
	}
}

func TestCaseInsensitiveStringKey(t *testing.T) {
	m := Create(8)
	m.AddStrKey("Alpha", false, 99)
	if got := m.LookupByKey(Key{Type: KeyStr, Str: "ALPHA"}); got != 99 {
		t.Fatalf("case-insensitive lookup = %v, want 99", got)
	}
}

func TestCreateRoundsToPowerOfTwo(t *testing.T) {
	m := Create(5)
	if m.BucketSize() != 8 {
		t.Fatalf("bucket size = %d, want 8", m.BucketSize())
	}
}

func TestLookupGlobalScansAllBuckets(t *testing.T) {
	m := Create(4)
	m.AddIntKey(1, "a")
	m.AddIntKey(2, "b")
	m.AddIntKey(3, "c")
	count := 0
	for {
		_, _, found := m.LookupGlobal(func(k Key, d any) bool {
			return true
		})
		if !found {
			break
		}
		count++
		if count > 10 {
			t.Fatalf("infinite loop in test")
		}
		// delete the first match so progress is made (predicate inside
		// LookupGlobal is only safe to delete-on-first-match, spec.md §5).
		m.DeleteNodeByKey(Key{Type: KeyInt, Int: uint32(count)}, nil, DeleteAll)
	}
	if count != 3 {
		t.Fatalf("visited %d entries, want 3", count)
	}
}

func TestDeleteNodeFreesSlabOwnedDataUnlessKept(t *testing.T) {
	pool := premem.NewPool(false)
	m := Create(4)

	h1, err := pool.Alloc(16, nil, false, premem.Provenance{})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	n1 := m.AddIntKey(10, h1)

	h2, err := pool.Alloc(16, nil, false, premem.Provenance{})
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	n2 := m.AddIntKey(11, h2)

	m.DeleteNode(n1, pool, DeleteAll)
	if pool.Nrefs(h1) != 0 {
		t.Fatalf("DeleteAll should have freed h1, Nrefs = %d", pool.Nrefs(h1))
	}

	m.DeleteNode(n2, pool, DeleteKeepUserData)
	if pool.Nrefs(h2) != 1 {
		t.Fatalf("DeleteKeepUserData should not free h2, Nrefs = %d", pool.Nrefs(h2))
	}
	pool.Free(h2)
}
