package oslist

import "testing"

func TestAppendPrependOrder(t *testing.T) {
	l := New()
	l.Append(2)
	l.Append(3)
	l.Prepend(1)

	var got []int
	for n := l.Head(); n != nil; n = n.Next() {
		got = append(got, n.Data.(int))
	}
	want := []int{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if l.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", l.Count())
	}
}

func TestUnlinkMiddleNode(t *testing.T) {
	l := New()
	l.Append("a")
	mid := l.Append("b")
	l.Append("c")

	l.Unlink(mid)
	if l.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", l.Count())
	}
	if l.Head().Data != "a" || l.Tail().Data != "c" {
		t.Fatalf("unlink broke head/tail linkage: head=%v tail=%v", l.Head().Data, l.Tail().Data)
	}

	// unlinking an already-unlinked node is a no-op.
	l.Unlink(mid)
	if l.Count() != 2 {
		t.Fatalf("double unlink changed count to %d", l.Count())
	}
}

func TestInsertBeforeAfter(t *testing.T) {
	l := New()
	b := l.Append("b")
	l.InsertBefore(b, "a")
	l.InsertAfter(b, "c")

	var got []string
	for n := l.Head(); n != nil; n = n.Next() {
		got = append(got, n.Data.(string))
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got %v, want [a b c]", got)
	}
}

func TestOrderedAppendKeepsAscending(t *testing.T) {
	l := New()
	less := func(a, b any) bool { return a.(int) < b.(int) }
	for _, v := range []int{5, 1, 4, 2, 3} {
		l.OrderedAppend(v, less)
	}
	var got []int
	for n := l.Head(); n != nil; n = n.Next() {
		got = append(got, n.Data.(int))
	}
	want := []int{1, 2, 3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSortSwapsDataNotIdentity(t *testing.T) {
	l := New()
	a := l.Append(3)
	b := l.Append(1)
	c := l.Append(2)

	l.Sort(func(x, y any) bool { return x.(int) < y.(int) })

	var got []int
	for n := l.Head(); n != nil; n = n.Next() {
		got = append(got, n.Data.(int))
	}
	want := []int{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	// node identities are unchanged; only payload moved.
	if a.Next() != b || b.Next() != c {
		t.Fatalf("Sort mutated node linkage, expected only Data to move")
	}
}

func TestPlusInlinesFirstElement(t *testing.T) {
	var p Plus
	if p.Count() != 0 {
		t.Fatalf("empty Plus.Count() = %d, want 0", p.Count())
	}
	p.Append("x")
	if !p.hasFirst || p.rest != nil {
		t.Fatalf("first Append should use the inline slot, not spill to rest")
	}
	p.Append("y")
	p.Append("z")
	if p.rest == nil || p.rest.Count() != 2 {
		t.Fatalf("subsequent Appends should spill into rest")
	}

	var got []string
	p.Each(func(data any) { got = append(got, data.(string)) })
	want := []string{"x", "y", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestClearUnlinksWithoutFreeing(t *testing.T) {
	l := New()
	l.Append(1)
	l.Append(2)
	l.Clear()
	if l.Count() != 0 || l.Head() != nil || l.Tail() != nil {
		t.Fatalf("Clear left list non-empty")
	}
}
