// Package xmlp implements the streaming XML validator/emitter (spec.md
// §4.6): a stack-based ElemPointer walk against an xsd.Schema tree,
// enforcing occurrence rules, synthesizing defaults, validating facets,
// and handing leaf values to the caller as borrowed views into the
// source buffer rather than copies (spec.md §9 borrow-lifetime
// discipline).
package xmlp

import (
	"strings"

	"github.com/seandai318/coresig/cerr"
)

type tokKind int

const (
	tokOpen tokKind = iota
	tokSelfClose
	tokClose
	tokText
	tokEOF
)

type token struct {
	kind tokKind
	name string
	// textStart/textEnd delimit raw text content within the source
	// buffer (tokText only); kept as offsets, not a copy, so callers can
	// hand out borrowed mbuf.PL views without reallocating.
	textStart, textEnd int
}

// scanner is a forward-only, non-copying lexer over an XML document's
// raw bytes.
type scanner struct {
	src []byte
	pos int
}

func newScanner(src []byte) *scanner { return &scanner{src: src} }

func (s *scanner) skipProlog() {
	for {
		s.skipWS()
		if s.pos+1 < len(s.src) && s.src[s.pos] == '<' &&
			(s.src[s.pos+1] == '?' || s.src[s.pos+1] == '!') {
			end := idx(s.src, s.pos, '>')
			if end < 0 {
				s.pos = len(s.src)
				return
			}
			s.pos = end + 1
			continue
		}
		return
	}
}

func (s *scanner) skipWS() {
	for s.pos < len(s.src) && isWS(s.src[s.pos]) {
		s.pos++
	}
}

func isWS(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func idx(b []byte, from int, c byte) int {
	for i := from; i < len(b); i++ {
		if b[i] == c {
			return i
		}
	}
	return -1
}

func (s *scanner) next() (token, error) {
	if s.pos >= len(s.src) {
		return token{kind: tokEOF}, nil
	}
	if s.src[s.pos] != '<' {
		start := s.pos
		end := idx(s.src, s.pos, '<')
		if end < 0 {
			end = len(s.src)
		}
		s.pos = end
		return token{kind: tokText, textStart: start, textEnd: end}, nil
	}
	if s.pos+1 < len(s.src) && (s.src[s.pos+1] == '!' || s.src[s.pos+1] == '?') {
		end := idx(s.src, s.pos, '>')
		if end < 0 {
			return token{}, cerr.New(cerr.InvalidValue, "xmlp: unterminated directive at offset %d", s.pos)
		}
		s.pos = end + 1
		return s.next()
	}

	closing := false
	p := s.pos + 1
	if p < len(s.src) && s.src[p] == '/' {
		closing = true
		p++
	}
	end := idx(s.src, p, '>')
	if end < 0 {
		return token{}, cerr.New(cerr.InvalidValue, "xmlp: unterminated tag at offset %d", s.pos)
	}
	body := string(s.src[p:end])
	s.pos = end + 1

	selfClose := strings.HasSuffix(body, "/")
	if selfClose {
		body = strings.TrimSuffix(body, "/")
	}
	name := strings.TrimSpace(body)
	if i := strings.IndexAny(name, " \t\r\n"); i >= 0 {
		name = name[:i] // elements in this validator carry no attributes (spec.md Non-goals)
	}

	kind := tokOpen
	switch {
	case closing:
		kind = tokClose
	case selfClose:
		kind = tokSelfClose
	}
	return token{kind: kind, name: baseName(name)}, nil
}

func baseName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func trimSpan(src []byte, start, end int) (int, int) {
	for start < end && isWS(src[start]) {
		start++
	}
	for end > start && isWS(src[end-1]) {
		end--
	}
	return start, end
}
