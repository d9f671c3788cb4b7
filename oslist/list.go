// Package oslist implements the doubly linked list used by oshash's
// buckets (spec.md §4.2). Each Append/Prepend/Insert call allocates one
// Node that carries the caller's Data.
package oslist

import "github.com/seandai318/coresig/premem"

// Node is one link in a List. A Node may only ever be linked into one
// List at a time; Owner is that linkage invariant made explicit (the
// original C keeps an "owning-list" back-pointer on every node for the
// same reason).
type Node struct {
	prev, next *Node
	owner      *List
	Data       any
}

// List is an intrusive doubly linked list head.
type List struct {
	head, tail *Node
	count      int
}

// New returns an empty, ready-to-use List.
func New() *List { return &List{} }

// Count returns the number of linked nodes. O(1): maintained
// incrementally rather than walked, unlike the original's O(n) osList_count.
func (l *List) Count() int { return l.count }

// Append links data at the tail and returns the new Node.
func (l *List) Append(data any) *Node {
	n := &Node{Data: data, owner: l}
	if l.tail == nil {
		l.head, l.tail = n, n
	} else {
		n.prev = l.tail
		l.tail.next = n
		l.tail = n
	}
	l.count++
	return n
}

// Prepend links data at the head and returns the new Node.
func (l *List) Prepend(data any) *Node {
	n := &Node{Data: data, owner: l}
	if l.head == nil {
		l.head, l.tail = n, n
	} else {
		n.next = l.head
		l.head.prev = n
		l.head = n
	}
	l.count++
	return n
}

// InsertBefore links data immediately before ref, which must belong to l.
func (l *List) InsertBefore(ref *Node, data any) *Node {
	if ref == nil || ref.owner != l {
		return l.Append(data)
	}
	n := &Node{Data: data, owner: l, prev: ref.prev, next: ref}
	if ref.prev != nil {
		ref.prev.next = n
	} else {
		l.head = n
	}
	ref.prev = n
	l.count++
	return n
}

// InsertAfter links data immediately after ref, which must belong to l.
func (l *List) InsertAfter(ref *Node, data any) *Node {
	if ref == nil || ref.owner != l {
		return l.Prepend(data)
	}
	n := &Node{Data: data, owner: l, prev: ref, next: ref.next}
	if ref.next != nil {
		ref.next.prev = n
	} else {
		l.tail = n
	}
	ref.next = n
	l.count++
	return n
}

// OrderedAppend inserts data at the position dictated by less, keeping
// the list ordered as long as every prior insertion used the same
// comparator.
func (l *List) OrderedAppend(data any, less func(a, b any) bool) *Node {
	for n := l.head; n != nil; n = n.next {
		if less(data, n.Data) {
			return l.InsertBefore(n, data)
		}
	}
	return l.Append(data)
}

// Unlink removes n from its owning list. It is a no-op if n is already
// unlinked or belongs to a different list.
func (l *List) Unlink(n *Node) {
	if n == nil || n.owner != l {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev, n.next, n.owner = nil, nil, nil
	l.count--
}

// ApplyFunc is a predicate applied during Lookup; returning true stops
// the walk and selects the current node.
type ApplyFunc func(data any, arg any) bool

// LookupForward walks head-to-tail and returns the first Node for which
// apply returns true, or nil.
func (l *List) LookupForward(apply ApplyFunc, arg any) *Node {
	for n := l.head; n != nil; n = n.next {
		if apply(n.Data, arg) {
			return n
		}
	}
	return nil
}

// LookupBackward walks tail-to-head and returns the first Node for which
// apply returns true, or nil.
func (l *List) LookupBackward(apply ApplyFunc, arg any) *Node {
	for n := l.tail; n != nil; n = n.prev {
		if apply(n.Data, arg) {
			return n
		}
	}
	return nil
}

// Head returns the first node, or nil if the list is empty.
func (l *List) Head() *Node { return l.head }

// Tail returns the last node, or nil if the list is empty.
func (l *List) Tail() *Node { return l.tail }

// Next returns the node following n within its owning list.
func (n *Node) Next() *Node { return n.next }

// Prev returns the node preceding n within its owning list.
func (n *Node) Prev() *Node { return n.prev }

// Sort performs a stable bubble sort by swapping node Data in place,
// preserving node identity (pointers stay where they are; only the
// payload moves). O(n^2) — the original osList_sort is documented as the
// same trade-off; a production rewrite may switch to merge sort.
func (l *List) Sort(less func(a, b any) bool) {
	for swapped := true; swapped; {
		swapped = false
		for a := l.head; a != nil && a.next != nil; a = a.next {
			if less(a.next.Data, a.Data) {
				a.Data, a.next.Data = a.next.Data, a.Data
				swapped = true
			}
		}
	}
}

// Clear unlinks every node without freeing their Data.
func (l *List) Clear() {
	for n := l.head; n != nil; {
		next := n.next
		n.prev, n.next, n.owner = nil, nil, nil
		n = next
	}
	l.head, l.tail, l.count = nil, nil, 0
}

// Delete unlinks every node and releases Data through the slab allocator
// when it is a slab-owned pointer, mirroring osList_delete's "unlink and
// free" semantics. Data that isn't a *premem.Handle is left untouched;
// so is every node's Data when pool is nil.
func (l *List) Delete(pool *premem.Pool) {
	for n := l.head; n != nil; {
		next := n.next
		if p, ok := n.Data.(*premem.Handle); ok && pool != nil {
			pool.Free(p)
		}
		n.prev, n.next, n.owner = nil, nil, nil
		n = next
	}
	l.head, l.tail, l.count = nil, nil, 0
}

// Plus is ListPlus (spec.md §4.2): stores the first element inline and
// spills the rest into a List, avoiding any allocation when n <= 1.
type Plus struct {
	first    any
	hasFirst bool
	rest     *List
}

// Append adds data to a Plus, using the inline slot first.
func (p *Plus) Append(data any) {
	if !p.hasFirst {
		p.first, p.hasFirst = data, true
		return
	}
	if p.rest == nil {
		p.rest = New()
	}
	p.rest.Append(data)
}

// Count returns the total number of elements held by p.
func (p *Plus) Count() int {
	n := 0
	if p.hasFirst {
		n++
	}
	if p.rest != nil {
		n += p.rest.Count()
	}
	return n
}

// Each calls fn for every element in insertion order.
func (p *Plus) Each(fn func(data any)) {
	if p.hasFirst {
		fn(p.first)
	}
	if p.rest != nil {
		for n := p.rest.Head(); n != nil; n = n.Next() {
			fn(n.Data)
		}
	}
}
