package mbuf

import (
	"os"
	"strconv"
	"strings"

	"github.com/seandai318/coresig/cerr"
	"github.com/seandai318/coresig/premem"
)

// MBuf is an owned byte buffer with (buf, size, pos, end): writes grow
// end (doubling size on overflow), reads advance pos, remaining =
// end-pos (spec.md §4.3). buf is backed by a premem slab handle so
// AllocRef views can share storage by bumping its refcount.
type MBuf struct {
	pool   *premem.Pool
	handle *premem.Handle
	pos    int
	end    int
}

// New allocates an MBuf with an initial capacity from pool.
func New(pool *premem.Pool, initSize int) (*MBuf, error) {
	if initSize <= 0 {
		initSize = 256
	}
	h, err := pool.Zalloc(initSize, nil, true, premem.Provenance{File: "mbuf.go", Func: "New"})
	if err != nil {
		return nil, err
	}
	return &MBuf{pool: pool, handle: h}, nil
}

// NewFromBytes allocates an MBuf pre-loaded with b as its writable
// content (pos=0, end=len(b)).
func NewFromBytes(pool *premem.Pool, b []byte) (*MBuf, error) {
	m, err := New(pool, len(b))
	if err != nil {
		return nil, err
	}
	if err := m.WriteBuf(b); err != nil {
		return nil, err
	}
	return m, nil
}

// Close releases the MBuf's backing slab handle.
func (m *MBuf) Close() { m.pool.Free(m.handle) }

// Pos returns the read cursor.
func (m *MBuf) Pos() int { return m.pos }

// End returns the write boundary (amount of valid data).
func (m *MBuf) End() int { return m.end }

// SetPos repositions the read cursor; it must stay within [0, end].
func (m *MBuf) SetPos(pos int) error {
	if pos < 0 || pos > m.end {
		return cerr.New(cerr.InvalidValue, "mbuf: SetPos %d out of [0,%d]", pos, m.end)
	}
	m.pos = pos
	return nil
}

// Remaining returns end - pos.
func (m *MBuf) Remaining() int { return m.end - m.pos }

// Raw returns the valid [0,end) region of the buffer. The slice aliases
// MBuf's storage and is invalidated by the next write that reallocates.
func (m *MBuf) Raw() []byte { return m.handle.Payload()[:m.end] }

// ensure grows the backing slab (doubling, per spec.md §4.3) so at least
// extra more bytes can be written past end.
func (m *MBuf) ensure(extra int) error {
	cur := m.handle.Payload()
	if m.end+extra <= cap(cur) {
		if len(cur) < m.end+extra {
			m.handle.SetLen(m.end + extra)
		}
		return nil
	}
	newSize := cap(cur)
	if newSize == 0 {
		newSize = 256
	}
	for newSize < m.end+extra {
		newSize *= 2
	}
	nh, err := m.pool.Realloc(m.handle, newSize, premem.Provenance{File: "mbuf.go", Func: "ensure"})
	if err != nil {
		return err
	}
	m.handle = nh
	m.handle.SetLen(m.end + extra)
	return nil
}

// WriteBuf appends raw bytes, growing end.
func (m *MBuf) WriteBuf(b []byte) error {
	if err := m.ensure(len(b)); err != nil {
		return err
	}
	copy(m.handle.Payload()[m.end:], b)
	m.end += len(b)
	return nil
}

// WriteStr appends s as raw bytes.
func (m *MBuf) WriteStr(s string) error { return m.WriteBuf([]byte(s)) }

// WritePL appends pl's bytes.
func (m *MBuf) WritePL(pl PL) error { return m.WriteBuf(pl.Bytes()) }

// WriteU8 appends one raw byte.
func (m *MBuf) WriteU8(v uint8) error { return m.WriteBuf([]byte{v}) }

// WriteU8Str appends v formatted as a decimal string.
func (m *MBuf) WriteU8Str(v uint8) error { return m.WriteStr(strconv.FormatUint(uint64(v), 10)) }

// WriteU16 appends v as two raw bytes, big-endian.
func (m *MBuf) WriteU16(v uint16) error {
	return m.WriteBuf([]byte{byte(v >> 8), byte(v)})
}

// WriteU16Str appends v formatted as a decimal string.
func (m *MBuf) WriteU16Str(v uint16) error { return m.WriteStr(strconv.FormatUint(uint64(v), 10)) }

// WriteU32 appends v as four raw bytes, big-endian.
func (m *MBuf) WriteU32(v uint32) error {
	return m.WriteBuf([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

// WriteU32Str appends v formatted as a decimal string.
func (m *MBuf) WriteU32Str(v uint32) error { return m.WriteStr(strconv.FormatUint(uint64(v), 10)) }

// WriteU64 appends v as eight raw bytes, big-endian.
func (m *MBuf) WriteU64(v uint64) error {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return m.WriteBuf(b)
}

// WriteU64Str appends v formatted as a decimal string.
func (m *MBuf) WriteU64Str(v uint64) error { return m.WriteStr(strconv.FormatUint(v, 10)) }

// WriteRange appends src[start:stop).
func (m *MBuf) WriteRange(src []byte, start, stop int) error {
	if start < 0 || stop > len(src) || start > stop {
		return cerr.New(cerr.InvalidValue, "mbuf: WriteRange bad bounds [%d,%d) of len %d", start, stop, len(src))
	}
	return m.WriteBuf(src[start:stop])
}

// WriteUntil writes bytes from src starting at pos until pattern is
// found (exclusive), returning the number of bytes written.
func (m *MBuf) WriteUntil(src []byte, pos int, pattern string) (int, error) {
	idx := strings.Index(string(src[pos:]), pattern)
	if idx < 0 {
		return 0, cerr.New(cerr.InvalidValue, "mbuf: pattern %q not found", pattern)
	}
	if err := m.WriteBuf(src[pos : pos+idx]); err != nil {
		return 0, err
	}
	return idx, nil
}

// ReadBuf reads up to len(dst) bytes from pos, advancing pos, and
// returns the number read.
func (m *MBuf) ReadBuf(dst []byte) int {
	n := copy(dst, m.Raw()[m.pos:])
	m.pos += n
	return n
}

// ReadU8 reads one byte at pos and advances.
func (m *MBuf) ReadU8() (uint8, error) {
	if m.Remaining() < 1 {
		return 0, cerr.New(cerr.InvalidValue, "mbuf: ReadU8 past end")
	}
	v := m.Raw()[m.pos]
	m.pos++
	return v, nil
}

// ReadU32 reads four big-endian bytes at pos and advances.
func (m *MBuf) ReadU32() (uint32, error) {
	if m.Remaining() < 4 {
		return 0, cerr.New(cerr.InvalidValue, "mbuf: ReadU32 past end")
	}
	b := m.Raw()[m.pos : m.pos+4]
	m.pos += 4
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// FindMatch performs a case-insensitive substring search starting at
// pos, advancing pos to the match start on success.
func (m *MBuf) FindMatch(pattern string) (int, bool) {
	hay := strings.ToLower(string(m.Raw()[m.pos:m.end]))
	idx := strings.Index(hay, strings.ToLower(pattern))
	if idx < 0 {
		return -1, false
	}
	m.pos += idx
	return m.pos, true
}

// FindValue extracts the inclusive tag1..tag2 slice starting the search
// at pos, optionally trimming outer whitespace.
func (m *MBuf) FindValue(tag1, tag2 string, trim bool) (PL, error) {
	hay := string(m.Raw()[m.pos:m.end])
	start := strings.Index(hay, tag1)
	if start < 0 {
		return PL{}, cerr.New(cerr.InvalidValue, "mbuf: tag1 %q not found", tag1)
	}
	rest := hay[start:]
	endRel := strings.Index(rest[len(tag1):], tag2)
	if endRel < 0 {
		return PL{}, cerr.New(cerr.InvalidValue, "mbuf: tag2 %q not found", tag2)
	}
	full := rest[:len(tag1)+endRel+len(tag2)]
	pl := NewPL([]byte(full))
	if trim {
		pl = pl.Trim()
	}
	return pl, nil
}

// AllocRef creates a new MBuf sharing storage with m (a fresh ref on the
// same slab handle) but with independent pos/end cursors.
func (m *MBuf) AllocRef() (*MBuf, error) {
	h, err := m.pool.Ref(m.handle)
	if err != nil {
		return nil, err
	}
	return &MBuf{pool: m.pool, handle: h, pos: m.pos, end: m.end}, nil
}

// View is a non-owning borrow into an existing MBuf's storage, valid
// only for the lifetime of the referent (spec.md §4.3 / §9:
// AllocRef1/AllocRef2 "deliberate unsafe shortcut" modeled explicitly as
// a borrow rather than as a standalone MBuf value).
type View struct {
	data []byte
	pos  int
}

// AllocRef1 returns a View over m's [0,end) region, independent of m's
// own cursor; callers must not retain it past m's lifetime.
func (m *MBuf) AllocRef1() View {
	return View{data: m.Raw(), pos: 0}
}

// AllocRef2 returns a View starting at m's current pos.
func (m *MBuf) AllocRef2() View {
	return View{data: m.Raw()[m.pos:], pos: 0}
}

// PL borrows the view's remaining bytes as a PL (valid only while the
// referent MBuf is alive).
func (v View) PL() PL { return NewPL(v.data[v.pos:]) }

// ReadFile reads the whole file at path into a new MBuf sized to at least
// the file length plus a null terminator (spec.md §4.3). This does
// synchronous I/O and, per
// spec.md §5, is a convenience not called by the validator itself.
func ReadFile(pool *premem.Pool, path string, initSize int) (*MBuf, error) {
	if len(path) > 160 {
		return nil, cerr.New(cerr.InvalidValue, "mbuf: path exceeds 160 bytes")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, cerr.Wrap(cerr.SystemFailure, err, "mbuf: ReadFile")
	}
	m, err := New(pool, max(initSize, len(data)+1))
	if err != nil {
		return nil, err
	}
	if err := m.WriteBuf(data); err != nil {
		return nil, err
	}
	if err := m.WriteU8(0); err != nil {
		return nil, err
	}
	m.end-- // null terminator is not part of the logical content
	return m, nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
