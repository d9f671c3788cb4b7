// Package premem implements the slab allocator with reference counting
// and destructor dispatch (PreMem, spec.md §4.1): fixed size-class pools
// with a fixed slot limit per class, refcounted handles, and an opt-in
// per-object mutex for shared handles.
//
// Unlike the C original, payloads are plain []byte slices handed back to
// the caller; the header (refcount, destructor, class index, optional
// mutex) lives alongside the slice in a *Handle rather than in a hidden
// prefix, since Go has no pointer arithmetic to recover a header from a
// bare payload pointer.
package premem

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/seandai318/coresig/cerr"
	"github.com/tidwall/buntdb"
)

// Destructor is invoked with a handle's payload when its refcount drops
// to zero. It must not panic; like the C original it logs and returns.
type Destructor func(payload []byte)

// classSizes is the 13 preconfigured size classes C0..C12 from spec.md
// §3, doubling from 16: 16, 32, 64, ... 64 KiB (16<<12).
var classSizes = func() []int {
	sizes := make([]int, 13)
	sz := 16
	for i := range sizes {
		sizes[i] = sz
		sz *= 2
	}
	return sizes
}()

// defaultClassCount is how many slots a class can hold; the pool never
// grows past this.
const defaultClassCount = 4096

// class is one fixed-size-class pool: a free chain of preallocated slots
// plus, in debug mode, a doubly linked used chain for provenance.
type class struct {
	mu        sync.Mutex
	elemSize  int
	free      []*Handle // free chain, FIFO == oldest-released reused first (spec.md §4.1; osPreMemory.c releases to the tail, gets from the head)
	usedHead  *Handle
	usedTail  *Handle
	current   int
	peak      int
	allocSeq  uint64
	slots     int
}

// Handle is a slab object: the user-visible payload plus its hidden
// header (refcount, destructor, class index, optional mutex).
type Handle struct {
	classIdx   int
	payload    []byte
	refcount   uint32
	destructor Destructor
	objMu      *sync.Mutex // non-nil only for shared=true handles
	shared     bool

	// debug-mode provenance and used-chain linkage
	provFile, provFunc string
	provLine           int
	provAllocNum       uint64
	usedPrev, usedNext *Handle
}

// Payload returns the handle's backing byte slice. The slice length is
// the requested size; its capacity is the size class's element size.
func (h *Handle) Payload() []byte { return h.payload }

// SetLen grows or shrinks the visible payload length within the slab's
// fixed capacity; it never reallocates. Callers that need more capacity
// than the class element size must go through Pool.Realloc instead.
func (h *Handle) SetLen(n int) {
	if n <= cap(h.payload) {
		h.payload = h.payload[:n]
	}
}

// Pool is one size-classed slab allocator plus its mutex-slot class and
// debug-mode provenance index. A class's slabs are not carved up front:
// each one is allocated the first time Alloc finds the free chain empty,
// until the class holds its slot limit; past that limit Alloc fails and
// Pool never grows a class.
type Pool struct {
	classes   []*class
	mutexPool []*sync.Mutex // the dedicated mutex-slot class (spec.md §3)
	mutexFree []bool
	mutexMu   sync.Mutex

	debug    bool
	provDB   *buntdb.DB // in-memory index of provenance records, keyed by class+allocation number
	metrics  *poolMetrics
}

type poolMetrics struct {
	current *prometheus.GaugeVec
	peak    *prometheus.GaugeVec
}

// NewPool constructs a Pool with the standard C0..C12 classes, each
// limited to defaultClassCount slots, and a mutex-slot class of
// defaultClassCount mutexes. The mutexes are created here; the size-class
// slabs are created on demand by Alloc.
func NewPool(debug bool) *Pool {
	p := &Pool{debug: debug}
	p.classes = make([]*class, len(classSizes))
	for i, sz := range classSizes {
		p.classes[i] = &class{elemSize: sz, slots: defaultClassCount}
	}
	p.mutexPool = make([]*sync.Mutex, defaultClassCount)
	p.mutexFree = make([]bool, defaultClassCount)
	for i := range p.mutexPool {
		p.mutexPool[i] = &sync.Mutex{}
		p.mutexFree[i] = true
	}
	if debug {
		db, err := buntdb.Open(":memory:")
		if err == nil {
			p.provDB = db
		}
	}
	p.metrics = &poolMetrics{
		current: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coresig", Subsystem: "premem", Name: "class_current",
			Help: "current in-use slots per size class",
		}, []string{"class"}),
		peak: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "coresig", Subsystem: "premem", Name: "class_peak",
			Help: "peak in-use slots per size class",
		}, []string{"class"}),
	}
	return p
}

// classFor returns the index of the smallest class whose element size is
// >= size, or -1 if size exceeds the largest class.
func classFor(size int) int {
	for i, sz := range classSizes {
		if sz >= size {
			return i
		}
	}
	return -1
}

// Alloc picks the smallest class whose element size >= size and returns
// a fresh handle with refcount 1. If shared is true a mutex slot is also
// reserved; if none is available the allocation fails per spec.md §4.1.
func (p *Pool) Alloc(size int, d Destructor, shared bool, prov Provenance) (*Handle, error) {
	idx := classFor(size)
	if idx < 0 {
		return nil, cerr.New(cerr.MemoryAllocFailure, "premem: no class for size %d", size)
	}
	c := p.classes[idx]

	c.mu.Lock()
	var h *Handle
	if n := len(c.free); n > 0 {
		h = c.free[0]
		c.free = c.free[1:]
	}
	if h == nil {
		if c.current >= c.slots {
			c.mu.Unlock()
			return nil, cerr.New(cerr.MemoryAllocFailure, "premem: class %d exhausted", idx)
		}
		h = &Handle{classIdx: idx, payload: make([]byte, size, c.elemSize)}
	} else {
		h.payload = h.payload[:size]
	}
	h.refcount = 1
	h.destructor = d
	h.shared = shared
	c.current++
	if c.current > c.peak {
		c.peak = c.current
	}
	c.allocSeq++
	seq := c.allocSeq
	c.mu.Unlock()

	if shared {
		mu, err := p.acquireMutex()
		if err != nil {
			// payload slab is returned per spec.md §4.1.
			p.releaseToFreeChain(idx, h)
			return nil, err
		}
		h.objMu = mu
	}

	if p.debug {
		h.provFile, h.provFunc, h.provLine, h.provAllocNum = prov.File, prov.Func, prov.Line, seq
		p.trackUsed(idx, h)
	}
	p.syncMetrics(idx)
	return h, nil
}

// Provenance is the short "file:func:line" string the debug allocator
// records at allocation time (spec.md §4.1).
type Provenance struct {
	File string
	Func string
	Line int
}

func (pr Provenance) String() string {
	return fmt.Sprintf("%s:%s:%d", pr.File, pr.Func, pr.Line)
}

// Zalloc is Alloc followed by zeroing the payload.
func (p *Pool) Zalloc(size int, d Destructor, shared bool, prov Provenance) (*Handle, error) {
	h, err := p.Alloc(size, d, shared, prov)
	if err != nil {
		return nil, err
	}
	for i := range h.payload {
		h.payload[i] = 0
	}
	return h, nil
}

// Dalloc is Alloc followed by copying src into the payload.
func (p *Pool) Dalloc(src []byte, d Destructor, shared bool, prov Provenance) (*Handle, error) {
	h, err := p.Alloc(len(src), d, shared, prov)
	if err != nil {
		return nil, err
	}
	copy(h.payload, src)
	return h, nil
}

// Realloc allocates a fresh handle of newSize, copies over the
// overlapping prefix of h's payload, and inherits h's destructor and
// shared flag (spec.md §4.1: "the destructor and the shared? flag are
// inherited from the old header"), then frees the old handle. The new
// handle always comes from the size class matching newSize, so slab
// capacity invariants are preserved rather than growing a Go slice past
// its class's carved capacity.
func (p *Pool) Realloc(h *Handle, newSize int, prov Provenance) (*Handle, error) {
	if h == nil {
		return nil, cerr.New(cerr.NullPointer, "premem: realloc of nil handle")
	}
	nh, err := p.Alloc(newSize, h.destructor, h.shared, prov)
	if err != nil {
		return nil, err
	}
	n := min(len(h.payload), newSize)
	copy(nh.payload[:n], h.payload[:n])
	p.Free(h)
	return nh, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Ref increments h's refcount under its object mutex (if any). It fails
// if the current refcount is already zero.
func (p *Pool) Ref(h *Handle) (*Handle, error) {
	if h == nil {
		return nil, cerr.New(cerr.NullPointer, "premem: ref of nil handle")
	}
	if h.objMu != nil {
		h.objMu.Lock()
		defer h.objMu.Unlock()
	}
	if h.refcount == 0 {
		return nil, cerr.New(cerr.InvalidValue, "premem: ref of freed handle")
	}
	h.refcount++
	return h, nil
}

// Nrefs returns h's current refcount, observed under its object mutex if
// present.
func (p *Pool) Nrefs(h *Handle) uint32 {
	if h == nil {
		return 0
	}
	if h.objMu != nil {
		h.objMu.Lock()
		defer h.objMu.Unlock()
	}
	return h.refcount
}

// Free decrements h's refcount; at zero it invokes the destructor (while
// holding no chain lock) and, unless the destructor re-ref'd the handle,
// returns the mutex slot (if any) and pushes the payload slab back onto
// its class free chain. A double-free (refcount already zero at entry)
// is logged and returns nil without corrupting any chain.
func (p *Pool) Free(h *Handle) *Handle {
	if h == nil {
		return nil
	}
	var mu *sync.Mutex
	if h.objMu != nil {
		mu = h.objMu
		mu.Lock()
	}
	if h.refcount == 0 {
		if mu != nil {
			mu.Unlock()
		}
		doubleFreeLog(h)
		return nil
	}
	h.refcount--
	reachedZero := h.refcount == 0
	if mu != nil {
		mu.Unlock()
	}
	if !reachedZero {
		return nil
	}

	if h.destructor != nil {
		h.destructor(h.payload)
	}

	// the destructor may have re-ref'd the object; if so abandon reclamation.
	if mu != nil {
		mu.Lock()
	}
	abandoned := h.refcount != 0
	if mu != nil {
		mu.Unlock()
	}
	if abandoned {
		return nil
	}

	if h.objMu != nil {
		p.releaseMutex(h.objMu)
		h.objMu = nil
	}
	if p.debug {
		p.untrackUsed(h.classIdx, h)
	}
	p.releaseToFreeChain(h.classIdx, h)
	return nil
}

func doubleFreeLog(h *Handle) {
	// logged via nlog by callers that have a *corectx.Context; premem
	// itself stays dependency-free of corectx to avoid an import cycle
	// (corectx constructs the Pool), so it just fmt's to stdout here.
	fmt.Printf("premem: double-free detected on class %d handle\n", h.classIdx)
}

func (p *Pool) releaseToFreeChain(classIdx int, h *Handle) {
	c := p.classes[classIdx]
	c.mu.Lock()
	c.current--
	c.free = append(c.free, h)
	c.mu.Unlock()
	p.syncMetrics(classIdx)
}

func (p *Pool) acquireMutex() (*sync.Mutex, error) {
	p.mutexMu.Lock()
	defer p.mutexMu.Unlock()
	for i, free := range p.mutexFree {
		if free {
			p.mutexFree[i] = false
			return p.mutexPool[i], nil
		}
	}
	return nil, cerr.New(cerr.MemoryAllocFailure, "premem: mutex-slot class exhausted")
}

func (p *Pool) releaseMutex(mu *sync.Mutex) {
	p.mutexMu.Lock()
	defer p.mutexMu.Unlock()
	for i, m := range p.mutexPool {
		if m == mu {
			p.mutexFree[i] = true
			return
		}
	}
}

func (p *Pool) syncMetrics(classIdx int) {
	c := p.classes[classIdx]
	c.mu.Lock()
	cur, peak := c.current, c.peak
	c.mu.Unlock()
	label := fmt.Sprintf("C%d", classIdx)
	p.metrics.current.WithLabelValues(label).Set(float64(cur))
	p.metrics.peak.WithLabelValues(label).Set(float64(peak))
}

// Collectors exposes the pool's prometheus metrics for registration by
// an embedding service.
func (p *Pool) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.metrics.current, p.metrics.peak}
}

// Count returns, for one size class, the free-chain length when unused
// is true and the current in-use count otherwise; an out-of-range
// classIdx yields 0. Grounded in original_source's
// osPreMem_getCount(idx, isUnusedCount).
func (p *Pool) Count(classIdx int, unused bool) int {
	if classIdx < 0 || classIdx >= len(p.classes) {
		return 0
	}
	c := p.classes[classIdx]
	c.mu.Lock()
	defer c.mu.Unlock()
	if unused {
		return len(c.free)
	}
	return c.current
}

// Stat prints per-class free/used/peak counts (spec.md §4.1).
func (p *Pool) Stat() {
	for i, c := range p.classes {
		c.mu.Lock()
		fmt.Printf("premem: class C%d (elem=%d) free=%d used=%d peak=%d\n",
			i, c.elemSize, len(c.free), c.current, c.peak)
		c.mu.Unlock()
	}
}

func (p *Pool) trackUsed(classIdx int, h *Handle) {
	c := p.classes[classIdx]
	h.usedPrev, h.usedNext = c.usedTail, nil
	if c.usedTail != nil {
		c.usedTail.usedNext = h
	} else {
		c.usedHead = h
	}
	c.usedTail = h
	if p.provDB != nil {
		p.provDB.Update(func(tx *buntdb.Tx) error {
			key := fmt.Sprintf("class:%d:alloc:%d", classIdx, h.provAllocNum)
			_, _, err := tx.Set(key, h.provFile+":"+h.provFunc+":"+fmt.Sprint(h.provLine), nil)
			return err
		})
	}
}

func (p *Pool) untrackUsed(classIdx int, h *Handle) {
	c := p.classes[classIdx]
	if h.usedPrev != nil {
		h.usedPrev.usedNext = h.usedNext
	} else {
		c.usedHead = h.usedNext
	}
	if h.usedNext != nil {
		h.usedNext.usedPrev = h.usedPrev
	} else {
		c.usedTail = h.usedPrev
	}
	h.usedPrev, h.usedNext = nil, nil
	if p.provDB != nil {
		p.provDB.Update(func(tx *buntdb.Tx) error {
			key := fmt.Sprintf("class:%d:alloc:%d", classIdx, h.provAllocNum)
			_, err := tx.Delete(key)
			return err
		})
	}
}

// UsedInfo dumps provenance of all live objects in class idx, or every
// class when idx is -1, via an indexed buntdb range scan over the
// provenance records (spec.md §4.1; SPEC_FULL.md §4.1 additive
// instrumentation over the original's linear used-chain walk).
func (p *Pool) UsedInfo(idx int) []string {
	if !p.debug || p.provDB == nil {
		return nil
	}
	var out []string
	pattern := "class:*"
	if idx >= 0 {
		pattern = fmt.Sprintf("class:%d:*", idx)
	}
	p.provDB.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(pattern, func(key, value string) bool {
			out = append(out, key+" -> "+value)
			return true
		})
	})
	return out
}
