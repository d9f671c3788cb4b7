// Package oshash implements the bucketed, per-bucket-locked hash map
// keyed by integer / string / PL (spec.md §4.2). Key mixing is done with
// github.com/OneOfOne/xxhash in place of the original's hand-rolled
// Bernstein/FNV-style mixer (SPEC_FULL.md §7), and an optional
// github.com/seiflotfy/cuckoofilter membership prefilter short-circuits
// misses across the whole map before any bucket mutex is taken.
package oshash

import (
	"strings"
	"sync"

	"github.com/OneOfOne/xxhash"
	cuckoo "github.com/seiflotfy/cuckoofilter"

	"github.com/seandai318/coresig/oslist"
	"github.com/seandai318/coresig/premem"
)

// KeyType tags which key variant a given entry was stored with, since a
// single bucket may mix key kinds (spec.md §3).
type KeyType int

const (
	KeyInt KeyType = iota
	KeyStr
	KeyPL
)

// Key identifies one hash entry.
type Key struct {
	Type     KeyType
	Int      uint32
	Str      string
	CaseSens bool
}

func (k Key) mix() uint32 {
	switch k.Type {
	case KeyInt:
		return k.Int
	case KeyStr, KeyPL:
		s := k.Str
		if !k.CaseSens {
			s = strings.ToLower(s)
		}
		return xxhash.Checksum32([]byte(s))
	}
	return 0
}

func (k Key) equal(o Key) bool {
	if k.Type != o.Type {
		// ints stored with same numeric key can still collide against a
		// string key in the same bucket; they are simply never equal.
		return false
	}
	switch k.Type {
	case KeyInt:
		return k.Int == o.Int
	default:
		if k.CaseSens || o.CaseSens {
			return k.Str == o.Str
		}
		return strings.EqualFold(k.Str, o.Str)
	}
}

// entry is the payload stored in each bucket's intrusive list node.
type entry struct {
	key  Key
	data any
}

type bucket struct {
	mu   sync.Mutex
	list *oslist.List
}

// Map is the bucketed hash map (spec.md §4.2).
type Map struct {
	buckets []*bucket
	bsize   uint32
	filter  *cuckoo.Filter
	filterMu sync.Mutex
}

// Create rounds bsize up to the next power of two and pre-allocates that
// many buckets, each with its own mutex.
func Create(bsize uint32) *Map {
	n := nextPow2(bsize)
	m := &Map{buckets: make([]*bucket, n), bsize: n, filter: cuckoo.NewFilter(1024)}
	for i := range m.buckets {
		m.buckets[i] = &bucket{list: oslist.New()}
	}
	return m
}

func nextPow2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// BucketSize returns the number of buckets in the map.
func (m *Map) BucketSize() uint32 { return m.bsize }

func (m *Map) bucketFor(k Key) *bucket {
	idx := k.mix() & (m.bsize - 1)
	return m.buckets[idx]
}

// BucketIndex returns the bucket index a given key maps to.
func (m *Map) BucketIndex(k Key) uint32 { return k.mix() & (m.bsize - 1) }

func filterToken(k Key) []byte {
	switch k.Type {
	case KeyInt:
		b := make([]byte, 4)
		b[0], b[1], b[2], b[3] = byte(k.Int>>24), byte(k.Int>>16), byte(k.Int>>8), byte(k.Int)
		return b
	default:
		s := k.Str
		if !k.CaseSens {
			s = strings.ToLower(s)
		}
		return []byte(s)
	}
}

// Add inserts data under key and returns the underlying list node.
func (m *Map) Add(k Key, data any) *oslist.Node {
	b := m.bucketFor(k)
	b.mu.Lock()
	n := b.list.Append(entry{key: k, data: data})
	b.mu.Unlock()

	m.filterMu.Lock()
	m.filter.Insert(filterToken(k))
	m.filterMu.Unlock()
	return n
}

// AddIntKey is a convenience entry point for an integer key.
func (m *Map) AddIntKey(key uint32, data any) *oslist.Node {
	return m.Add(Key{Type: KeyInt, Int: key}, data)
}

// AddStrKey is a convenience entry point for a string key with explicit
// case sensitivity.
func (m *Map) AddStrKey(s string, caseSensitive bool, data any) *oslist.Node {
	return m.Add(Key{Type: KeyStr, Str: s, CaseSens: caseSensitive}, data)
}

// mightContain consults the cuckoofilter prefilter; false is a
// definitive miss, true means "maybe" and the caller must still walk the
// bucket (spec.md/SPEC_FULL.md §7: never changes the definitive answer).
func (m *Map) mightContain(k Key) bool {
	m.filterMu.Lock()
	defer m.filterMu.Unlock()
	return m.filter.Lookup(filterToken(k))
}

// Lookup returns the data stored for key, or nil if absent.
func (m *Map) Lookup(k Key) any {
	if !m.mightContain(k) {
		return nil
	}
	b := m.bucketFor(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.list.LookupForward(func(d any, _ any) bool {
		e := d.(entry)
		return e.key.equal(k)
	}, nil)
	if n == nil {
		return nil
	}
	return n.Data.(entry).data
}

// LookupByKey is an alias of Lookup kept for parity with the original's
// separate entry point name.
func (m *Map) LookupByKey(k Key) any { return m.Lookup(k) }

// DeleteMode controls what DeleteNode/DeleteNodeByKey releases (spec.md
// §4.2). The list node is always unlinked; mode only governs whether the
// entry's slab-owned data is freed through pool. This Go port keeps no
// separate allocation for a key's own storage (unlike the original's
// key-copy buffer), so DeleteKeepHashData and DeleteAll are equivalent
// here: both free the entry's user data, and only DeleteKeepUserData
// leaves it for the caller to release.
type DeleteMode int

const (
	DeleteAll DeleteMode = iota
	DeleteKeepUserData
	DeleteKeepHashData
)

func releaseEntryData(pool *premem.Pool, mode DeleteMode, data any) {
	if mode == DeleteKeepUserData || pool == nil {
		return
	}
	if h, ok := data.(*premem.Handle); ok {
		pool.Free(h)
	}
}

// DeleteNode removes n from its bucket, releasing its data through pool
// per mode (pool may be nil if the entry's data isn't slab-owned).
func (m *Map) DeleteNode(n *oslist.Node, pool *premem.Pool, mode DeleteMode) {
	if n == nil {
		return
	}
	e, ok := n.Data.(entry)
	if !ok {
		return
	}
	b := m.bucketFor(e.key)
	b.mu.Lock()
	b.list.Unlink(n)
	b.mu.Unlock()
	releaseEntryData(pool, mode, e.data)
}

// DeleteNodeByKey finds the first node matching key and deletes it,
// releasing its data through pool per mode, and returns the removed data
// (nil if not found, or if mode freed it through pool).
func (m *Map) DeleteNodeByKey(k Key, pool *premem.Pool, mode DeleteMode) any {
	b := m.bucketFor(k)
	b.mu.Lock()
	n := b.list.LookupForward(func(d any, _ any) bool {
		return d.(entry).key.equal(k)
	}, nil)
	var data any
	if n != nil {
		data = n.Data.(entry).data
		b.list.Unlink(n)
	}
	b.mu.Unlock()
	if n != nil {
		releaseEntryData(pool, mode, data)
		if _, slab := data.(*premem.Handle); slab && pool != nil && mode != DeleteKeepUserData {
			data = nil
		}
	}
	return data
}

// ApplyFunc is the predicate used by LookupGlobal, matching the
// original's osListApply_h shape.
type ApplyFunc func(key Key, data any) bool

// LookupGlobal scans every bucket in index order applying fn, returning
// the first (key,data) for which fn returns true. Locks are taken one
// bucket at a time; the result is not a consistent snapshot across
// concurrent mutation (spec.md §5).
func (m *Map) LookupGlobal(fn ApplyFunc) (Key, any, bool) {
	for _, b := range m.buckets {
		b.mu.Lock()
		n := b.list.LookupForward(func(d any, _ any) bool {
			e := d.(entry)
			return fn(e.key, e.data)
		}, nil)
		var found entry
		if n != nil {
			found = n.Data.(entry)
		}
		b.mu.Unlock()
		if n != nil {
			return found.key, found.data, true
		}
	}
	return Key{}, nil, false
}

// BucketElementsCount returns the number of entries in the bucket that
// key maps to.
func (m *Map) BucketElementsCount(k Key) int {
	b := m.bucketFor(k)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.list.Count()
}

// BucketElementsCountGlobal sums the entry count across every bucket.
func (m *Map) BucketElementsCountGlobal() int {
	total := 0
	for _, b := range m.buckets {
		b.mu.Lock()
		total += b.list.Count()
		b.mu.Unlock()
	}
	return total
}

// Clear unlinks every node in every bucket without freeing entry data.
func (m *Map) Clear() {
	for _, b := range m.buckets {
		b.mu.Lock()
		b.list.Clear()
		b.mu.Unlock()
	}
}

// KeyPLHash computes the same 32-bit key an add/lookup by a raw PL-like
// byte slice would use, exposed for callers that need to pre-compute a
// bucket index (mirrors osHash_getKeyPL).
func KeyPLHash(b []byte, caseSensitive bool) uint32 {
	k := Key{Type: KeyPL, Str: string(b), CaseSens: caseSensitive}
	return k.mix()
}

// ValidSize rounds bsize up to the next power of two, mirroring
// hash_valid_size from the original header.
func ValidSize(bsize uint32) uint32 { return nextPow2(bsize) }
