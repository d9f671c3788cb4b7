package mbuf

import (
	"testing"

	"github.com/seandai318/coresig/premem"
)

func TestWriteReadRoundTrip(t *testing.T) {
	pool := premem.NewPool(false)
	m, err := New(pool, 8)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer m.Close()

	if err := m.WriteStr("hello "); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.WriteU32(42); err != nil {
		t.Fatalf("write u32: %v", err)
	}
	if m.End() != 10 {
		t.Fatalf("end = %d, want 10", m.End())
	}
	var buf [6]byte
	n := m.ReadBuf(buf[:])
	if n != 6 || string(buf[:]) != "hello " {
		t.Fatalf("read = %q", buf[:n])
	}
	v, err := m.ReadU32()
	if err != nil || v != 42 {
		t.Fatalf("read u32 = %d, %v", v, err)
	}
}

// scenario 6 from spec.md §8.
func TestFindMatchCaseInsensitive(t *testing.T) {
	pool := premem.NewPool(false)
	m, err := NewFromBytes(pool, []byte("abcXYZdef"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer m.Close()
	pos, ok := m.FindMatch("xyz")
	if !ok || pos != 3 {
		t.Fatalf("FindMatch = %d,%v want 3,true", pos, ok)
	}
}

func TestWriteGrowsBeyondInitialCapacity(t *testing.T) {
	pool := premem.NewPool(false)
	m, err := New(pool, 4)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer m.Close()
	big := make([]byte, 1000)
	for i := range big {
		big[i] = byte(i)
	}
	if err := m.WriteBuf(big); err != nil {
		t.Fatalf("write: %v", err)
	}
	if m.End() != 1000 {
		t.Fatalf("end = %d, want 1000", m.End())
	}
	for i, b := range m.Raw() {
		if b != byte(i) {
			t.Fatalf("byte %d = %d, want %d", i, b, byte(i))
		}
	}
}

func TestFindValueTrims(t *testing.T) {
	pool := premem.NewPool(false)
	m, err := NewFromBytes(pool, []byte("x<a>  7  </a>y"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer m.Close()
	pl, err := m.FindValue("<a>", "</a>", true)
	if err != nil {
		t.Fatalf("find value: %v", err)
	}
	if pl.String() != "<a>  7  </a>" {
		t.Fatalf("pl = %q", pl.String())
	}
}

func TestPLHelpers(t *testing.T) {
	pl := NewPL([]byte("  Hello  "))
	if got := pl.Trim().String(); got != "Hello" {
		t.Fatalf("trim = %q", got)
	}
	if !NewPL([]byte("ABC")).EqCstr("abc", false) {
		t.Fatalf("case-insensitive compare failed")
	}
	if NewPL([]byte("ABC")).EqCstr("abc", true) {
		t.Fatalf("case-sensitive compare should fail")
	}
	parts := NewPL([]byte("a;b;c")).Split(';')
	if len(parts) != 3 || parts[1].String() != "b" {
		t.Fatalf("split = %v", parts)
	}
	v, err := NewPL([]byte("42")).ToU32(10)
	if err != nil || v != 42 {
		t.Fatalf("ToU32 = %d, %v", v, err)
	}
}
