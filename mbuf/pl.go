// Package mbuf implements PL, the non-owning pointer-length slice, and
// MBuf, the owned read/write byte buffer built on top of it (spec.md
// §4.3).
package mbuf

import (
	"strconv"
	"strings"

	"github.com/seandai318/coresig/cerr"
)

// PL is a non-owning slice borrowing from an MBuf or a slab payload for
// its validity window. It never copies; callers that need to retain a
// value past the borrow's lifetime must copy it themselves (spec.md §9,
// "Pointer-into-MBuf callbacks").
type PL struct {
	p []byte
}

// NewPL wraps b without copying.
func NewPL(b []byte) PL { return PL{p: b} }

// Bytes returns the underlying slice.
func (pl PL) Bytes() []byte { return pl.p }

// String copies the slice out as a string.
func (pl PL) String() string { return string(pl.p) }

// Len returns the slice length.
func (pl PL) Len() int { return len(pl.p) }

// Empty reports whether the slice has zero length.
func (pl PL) Empty() bool { return len(pl.p) == 0 }

// EqCstr compares pl against s, optionally case-sensitively.
func (pl PL) EqCstr(s string, caseSensitive bool) bool {
	if caseSensitive {
		return string(pl.p) == s
	}
	return strings.EqualFold(string(pl.p), s)
}

// EqPL compares pl against other, optionally case-sensitively.
func (pl PL) EqPL(other PL, caseSensitive bool) bool {
	return pl.EqCstr(other.String(), caseSensitive)
}

// TrimTop returns a PL with leading whitespace removed.
func (pl PL) TrimTop() PL {
	return PL{p: []byte(strings.TrimLeft(string(pl.p), " \t\r\n"))}
}

// TrimBottom returns a PL with trailing whitespace removed.
func (pl PL) TrimBottom() PL {
	return PL{p: []byte(strings.TrimRight(string(pl.p), " \t\r\n"))}
}

// Trim removes leading and trailing whitespace independently, matching
// the original's top/bottom-independent trim helpers.
func (pl PL) Trim() PL { return pl.TrimTop().TrimBottom() }

// IndexCstr returns the byte offset of the first case-sensitive or
// case-insensitive occurrence of sub, or -1.
func (pl PL) IndexCstr(sub string, caseSensitive bool) int {
	hay := string(pl.p)
	if !caseSensitive {
		hay = strings.ToLower(hay)
		sub = strings.ToLower(sub)
	}
	return strings.Index(hay, sub)
}

// Split divides pl on every occurrence of delim, scoped to the single
// delimiter case of the original's generic semicolon-parameter parser
// (SPEC_FULL.md §8; the generic parser itself stays out of scope).
func (pl PL) Split(delim byte) []PL {
	parts := strings.Split(string(pl.p), string(delim))
	out := make([]PL, len(parts))
	for i, s := range parts {
		out[i] = NewPL([]byte(s))
	}
	return out
}

// ToU32 parses pl as a decimal or, with base 16, hex unsigned 32-bit
// integer, returning ExtInvalidValue on malformed input.
func (pl PL) ToU32(base int) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(pl.String()), base, 32)
	if err != nil {
		return 0, cerr.Wrap(cerr.ExtInvalidValue, err, "PL.ToU32")
	}
	return uint32(v), nil
}

// ToU64 parses pl as a decimal or, with base 16, hex unsigned 64-bit
// integer, returning ExtInvalidValue on malformed input.
func (pl PL) ToU64(base int) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(pl.String()), base, 64)
	if err != nil {
		return 0, cerr.Wrap(cerr.ExtInvalidValue, err, "PL.ToU64")
	}
	return v, nil
}

// VPL tags whether the underlying slice is owned (to be freed with the
// struct) and whether the VPL value itself is heap allocated, matching
// the original's osVPL_t bookkeeping. In Go terms "owned" only controls
// whether Release does anything; the GC handles the rest.
type VPL struct {
	PL
	owned      bool
	heapAlloc  bool
	released   bool
}

// NewOwnedVPL copies b so the VPL owns an independent buffer.
func NewOwnedVPL(b []byte) *VPL {
	cp := make([]byte, len(b))
	copy(cp, b)
	return &VPL{PL: NewPL(cp), owned: true, heapAlloc: true}
}

// NewBorrowedVPL wraps b without copying; Release is then a no-op.
func NewBorrowedVPL(b []byte) *VPL {
	return &VPL{PL: NewPL(b), owned: false}
}

// Release drops the owned buffer; safe to call multiple times.
func (v *VPL) Release() {
	if v.owned && !v.released {
		v.p = nil
		v.released = true
	}
}
