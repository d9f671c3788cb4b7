package xmlp

import (
	"github.com/seandai318/coresig/cerr"
	"github.com/seandai318/coresig/mbuf"
	"github.com/seandai318/coresig/xsd"
)

// Callback receives one leaf element's (elementName, value, dataType)
// triple as it is encountered (spec.md §4.6 / §8 scenario 4), where
// value is a borrowed view into the original source buffer: the PL is
// only valid for the duration of the call that produced it, same as any
// other mbuf.PL borrow. Elements matched only by an xs:any wildcard are
// skipped and produce no callback.
type Callback func(path string, value mbuf.PL, dataType xsd.XsType) error

// frame is one ElemPointer stack entry: the complex-type context the
// walk is currently inside, plus enough bookkeeping to enforce
// all/sequence/choice occurrence rules and synthesize defaults on close.
type frame struct {
	elemName string // the element name whose complex body this frame walks
	complex  *xsd.ComplexType
	seen     map[string]int // child element name -> occurrence count
	seq      int            // DispSequence cursor into complex.Elements
	choiceOn string         // DispChoice: name of the alternative committed to, "" until first child
	path     string
}

// Validate walks src against schema, calling cb for every leaf element
// value encountered (including synthesized defaults, whose value is the
// schema default text rather than a buffer-borrowed view). It returns
// an error wrapped as cerr.InvalidValue for any schema violation
// (spec.md §7 propagation policy).
func Validate(schema *xsd.Schema, src []byte, cb Callback) error {
	s := newScanner(src)
	s.skipProlog()

	t, err := s.next()
	if err != nil {
		return cerr.AsInvalidValue(err, "xmlp: reading root tag")
	}
	if t.kind != tokOpen && t.kind != tokSelfClose {
		return cerr.New(cerr.InvalidValue, "xmlp: expected root element %q, got none", schema.Root.Name)
	}
	if t.name != schema.Root.Name {
		return cerr.New(cerr.InvalidValue, "xmlp: root element %q does not match schema root %q", t.name, schema.Root.Name)
	}

	root := schema.Root
	if root.IsSimple() {
		return validateSimpleLeaf(s, src, root, t, root.Name, cb)
	}

	fr := newFrame(root.Name, root.Complex, root.Name)
	if t.kind == tokSelfClose {
		return closeFrame(fr, cb)
	}
	if err := walkFrame(s, src, fr, cb); err != nil {
		return err
	}
	return nil
}

func newFrame(elemName string, ct *xsd.ComplexType, path string) *frame {
	return &frame{elemName: elemName, complex: ct, seen: make(map[string]int), path: path}
}

// walkFrame consumes tokens until fr's closing tag, dispatching each
// child open tag and enforcing fr.complex's disposition.
func walkFrame(s *scanner, src []byte, fr *frame, cb Callback) error {
	for {
		t, err := s.next()
		if err != nil {
			return cerr.AsInvalidValue(err, "xmlp: walking element "+fr.elemName)
		}
		switch t.kind {
		case tokEOF:
			return cerr.New(cerr.InvalidValue, "xmlp: unterminated element %q", fr.elemName)
		case tokText:
			continue // mixed content text between child elements is not modeled further
		case tokClose:
			if t.name != fr.elemName {
				return cerr.New(cerr.InvalidValue, "xmlp: mismatched close tag %q inside %q", t.name, fr.elemName)
			}
			return closeFrame(fr, cb)
		case tokOpen, tokSelfClose:
			child, err := resolveChild(fr, t.name)
			if err != nil {
				if fr.complex.Any != nil {
					if t.kind == tokOpen {
						if err := skipSubtree(s, t.name); err != nil {
							return err
						}
					}
					continue
				}
				return err
			}
			if err := enterChild(fr, child.Name); err != nil {
				return err
			}
			childPath := fr.path + "/" + child.Name
			if child.IsSimple() {
				if err := validateSimpleLeaf(s, src, child, t, childPath, cb); err != nil {
					return err
				}
				continue
			}
			childFrame := newFrame(child.Name, child.Complex, childPath)
			if t.kind == tokSelfClose {
				if err := closeFrame(childFrame, cb); err != nil {
					return err
				}
				continue
			}
			if err := walkFrame(s, src, childFrame, cb); err != nil {
				return err
			}
		}
	}
}

// resolveChild finds name among fr.complex's declared children,
// enforcing DispSequence ordering and DispChoice single-alternative
// commitment (spec.md §4.6 / §8 scenario 5: a second, different choice
// branch is rejected).
func resolveChild(fr *frame, name string) (*xsd.Element, error) {
	switch fr.complex.Disp {
	case xsd.DispSequence:
		for fr.seq < len(fr.complex.Elements) {
			cand := fr.complex.Elements[fr.seq]
			if cand.Name == name {
				return cand, nil
			}
			// an element already satisfying its minOccurs may be skipped
			// over to try the next one in sequence.
			if fr.seen[cand.Name] >= cand.Min {
				fr.seq++
				continue
			}
			return nil, cerr.New(cerr.InvalidValue, "xmlp: expected element %q before %q in %q", cand.Name, name, fr.elemName)
		}
		return nil, cerr.New(cerr.InvalidValue, "xmlp: unexpected element %q in %q, sequence exhausted", name, fr.elemName)

	case xsd.DispChoice:
		if fr.choiceOn != "" && fr.choiceOn != name {
			return nil, cerr.New(cerr.InvalidValue, "xmlp: element %q conflicts with already-chosen branch %q in %q", name, fr.choiceOn, fr.elemName)
		}
		for _, cand := range fr.complex.Elements {
			if cand.Name == name {
				return cand, nil
			}
		}
		return nil, cerr.New(cerr.InvalidValue, "xmlp: %q is not a valid choice branch of %q", name, fr.elemName)

	default: // DispAll
		for _, cand := range fr.complex.Elements {
			if cand.Name == name {
				return cand, nil
			}
		}
		return nil, cerr.New(cerr.InvalidValue, "xmlp: %q is not a declared child of %q", name, fr.elemName)
	}
}

func enterChild(fr *frame, name string) error {
	if fr.complex.Disp == xsd.DispChoice && fr.choiceOn == "" {
		fr.choiceOn = name
	}
	fr.seen[name]++
	for _, cand := range fr.complex.Elements {
		if cand.Name == name && cand.Max >= 0 && fr.seen[name] > cand.Max {
			return cerr.New(cerr.InvalidValue, "xmlp: element %q occurs more than maxOccurs=%d in %q", name, cand.Max, fr.elemName)
		}
	}
	return nil
}

// closeFrame enforces minOccurs on every declared child not yet seen
// (synthesizing defaults where declared) before popping the frame
// (spec.md §4.6 default synthesis).
func closeFrame(fr *frame, cb Callback) error {
	if fr.complex.Disp == xsd.DispChoice {
		if fr.choiceOn == "" {
			// no branch taken at all: valid only if every branch is optional.
			for _, cand := range fr.complex.Elements {
				if cand.Min > 0 {
					return cerr.New(cerr.InvalidValue, "xmlp: %q requires one of its choice branches", fr.elemName)
				}
			}
		}
		return nil
	}
	for _, cand := range fr.complex.Elements {
		count := fr.seen[cand.Name]
		if count == 0 && cand.HasDefault {
			if cb != nil {
				if err := cb(fr.path+"/"+cand.Name, mbuf.NewPL([]byte(cand.Default)), cand.LeafType()); err != nil {
					return cerr.AsInvalidValue(err, "xmlp: default callback for "+cand.Name)
				}
			}
			continue
		}
		if count >= cand.Min {
			continue
		}
		return cerr.New(cerr.InvalidValue, "xmlp: element %q occurs %d times, below minOccurs=%d in %q", cand.Name, count, cand.Min, fr.elemName)
	}
	return nil
}

// validateSimpleLeaf reads el's text content (if any), coerces/validates
// it against el's declared XS type and, for simpleType leaves, its
// facets, then invokes cb with a borrowed view of the raw bytes plus
// el's resolved type (spec.md §4.6 / §9).
func validateSimpleLeaf(s *scanner, src []byte, el *xsd.Element, open token, path string, cb Callback) error {
	var start, end int
	if open.kind == tokSelfClose {
		start, end = 0, 0
	} else {
		t, err := s.next()
		if err != nil {
			return cerr.AsInvalidValue(err, "xmlp: reading value of "+el.Name)
		}
		switch t.kind {
		case tokText:
			start, end = trimSpan(src, t.textStart, t.textEnd)
			closeTok, err := s.next()
			if err != nil {
				return cerr.AsInvalidValue(err, "xmlp: reading close tag of "+el.Name)
			}
			if closeTok.kind != tokClose || closeTok.name != el.Name {
				return cerr.New(cerr.InvalidValue, "xmlp: expected close tag for %q", el.Name)
			}
		case tokClose:
			if t.name != el.Name {
				return cerr.New(cerr.InvalidValue, "xmlp: mismatched close tag %q for element %q", t.name, el.Name)
			}
			start, end = 0, 0
		default:
			return cerr.New(cerr.InvalidValue, "xmlp: element %q has non-leaf content", el.Name)
		}
	}

	value := string(src[start:end])
	if value == "" && el.HasDefault {
		value = el.Default
	}
	if el.HasFixed && value != el.Fixed {
		return cerr.New(cerr.InvalidValue, "xmlp: element %q = %q, fixed value requires %q", el.Name, value, el.Fixed)
	}
	switch el.Body {
	case xsd.BodyXsType:
		if err := xsd.CheckXsType(el.DataType, value); err != nil {
			return cerr.AsInvalidValue(err, "xmlp: type violation on "+el.Name)
		}
	case xsd.BodySimpleType:
		if err := xsd.CheckXsType(el.Simple.Base, value); err != nil {
			return cerr.AsInvalidValue(err, "xmlp: type violation on "+el.Name)
		}
		if err := xsd.CheckFacets(el.Simple, value); err != nil {
			return cerr.AsInvalidValue(err, "xmlp: facet violation on "+el.Name)
		}
	}
	if cb != nil {
		if err := cb(path, mbuf.NewPL(src[start:end]), el.LeafType()); err != nil {
			return cerr.AsInvalidValue(err, "xmlp: leaf callback for "+el.Name)
		}
	}
	return nil
}

// skipSubtree discards an unrecognized element matched by an xs:any
// wildcard (spec.md §4.5: processContents lax/skip both skip content,
// since this validator has no named-global-element registry to
// cross-check lax contents against).
func skipSubtree(s *scanner, name string) error {
	depth := 1
	for depth > 0 {
		t, err := s.next()
		if err != nil {
			return cerr.AsInvalidValue(err, "xmlp: skipping wildcard element "+name)
		}
		switch t.kind {
		case tokEOF:
			return cerr.New(cerr.InvalidValue, "xmlp: unterminated wildcard element %q", name)
		case tokOpen:
			depth++
		case tokClose:
			depth--
		}
	}
	return nil
}
