package xsd

import (
	"strconv"
	"strings"

	"github.com/seandai318/coresig/cerr"
	"github.com/seandai318/coresig/nlog"
)

// Parse reads an XSD document from src and returns a linked Schema tree
// ready for xmlp to validate against (spec.md §4.5: "two-pass linking
// and cycle detection").
func Parse(src []byte) (*Schema, error) {
	r := newTagReader(src)
	r.skipProlog()

	t, err := r.next()
	if err != nil {
		return nil, cerr.AsInvalidValue(err, "xsd: reading schema tag")
	}
	if t.kind != tagOpen || baseName(t.name) != "schema" {
		return nil, cerr.New(cerr.InvalidValue, "xsd: expected xs:schema root, got %q", t.name)
	}

	sch := &Schema{
		ComplexTypes: make(map[string]*ComplexType),
		SimpleTypes:  make(map[string]*SimpleType),
	}
	for k, v := range t.attrs {
		if v == "http://www.w3.org/2001/XMLSchema" && (k == "xmlns" || strings.HasPrefix(k, "xmlns:")) {
			sch.XsAlias = strings.TrimPrefix(strings.TrimPrefix(k, "xmlns"), ":")
		}
	}
	for {
		child, err := r.next()
		if err != nil {
			return nil, cerr.AsInvalidValue(err, "xsd: scanning schema body")
		}
		switch {
		case child.kind == tagEOF:
			return nil, cerr.New(cerr.InvalidValue, "xsd: unterminated xs:schema")
		case child.kind == tagClose && baseName(child.name) == "schema":
			goto linked
		case child.kind == tagText:
			continue
		case baseName(child.name) == "element":
			el, err := parseElement(r, child)
			if err != nil {
				return nil, err
			}
			if sch.Root == nil {
				sch.Root = el
			}
		case baseName(child.name) == "complexType":
			name := child.attrs["name"]
			ct, err := parseComplexType(r, name, child.kind == tagSelfClose, child.attrs["mixed"] == "true")
			if err != nil {
				return nil, err
			}
			sch.ComplexTypes[name] = ct
		case baseName(child.name) == "simpleType":
			name := child.attrs["name"]
			st, err := parseSimpleType(r, name, child.kind == tagSelfClose)
			if err != nil {
				return nil, err
			}
			sch.SimpleTypes[name] = st
		default:
			if err := skipElement(r, child); err != nil {
				return nil, err
			}
		}
	}

linked:
	if sch.Root == nil {
		return nil, cerr.New(cerr.InvalidValue, "xsd: schema has no global element")
	}
	visiting := make(map[string]bool)
	if err := linkElement(sch, sch.Root, visiting); err != nil {
		return nil, err
	}
	return sch, nil
}

func baseName(name string) string {
	if i := strings.IndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// skipElement consumes open.name's entire subtree, discarding it; used
// for schema constructs outside this parser's supported surface
// (xs:annotation, xs:import, ...).
func skipElement(r *tagReader, open tag) error {
	if open.kind == tagSelfClose {
		return nil
	}
	depth := 1
	for depth > 0 {
		t, err := r.next()
		if err != nil {
			return cerr.AsInvalidValue(err, "xsd: skipping element")
		}
		switch t.kind {
		case tagEOF:
			return cerr.New(cerr.InvalidValue, "xsd: unterminated element %q", open.name)
		case tagOpen:
			depth++
		case tagSelfClose:
			// no depth change
		case tagClose:
			depth--
		}
	}
	return nil
}

func parseOccurs(attrs map[string]string) (min, max int) {
	min, max = 1, 1
	if v, ok := attrs["minOccurs"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			min = n
		}
	}
	if v, ok := attrs["maxOccurs"]; ok {
		if v == "unbounded" {
			max = -1
		} else if n, err := strconv.Atoi(v); err == nil {
			max = n
		}
	}
	return
}

// parseElement parses one xs:element, starting from its already-read
// open/self-close tag, consuming up to and including its matching close
// tag (if any).
func parseElement(r *tagReader, open tag) (*Element, error) {
	el := &Element{Name: open.attrs["name"]}
	el.Min, el.Max = parseOccurs(open.attrs)
	el.Qualified = open.attrs["form"] == "qualified"
	if v, ok := open.attrs["default"]; ok {
		el.Default, el.HasDefault = v, true
	}
	if v, ok := open.attrs["fixed"]; ok {
		el.Fixed, el.HasFixed = v, true
	}

	if typeName, ok := open.attrs["type"]; ok {
		el.TypeName = typeName
	}

	if open.kind == tagSelfClose {
		return el, nil
	}

	for {
		t, err := r.next()
		if err != nil {
			return nil, cerr.AsInvalidValue(err, "xsd: parsing element "+el.Name)
		}
		switch {
		case t.kind == tagEOF:
			return nil, cerr.New(cerr.InvalidValue, "xsd: unterminated element %q", el.Name)
		case t.kind == tagClose && baseName(t.name) == "element":
			return el, nil
		case t.kind == tagText:
			continue
		case baseName(t.name) == "complexType":
			ct, err := parseComplexType(r, "", t.kind == tagSelfClose, t.attrs["mixed"] == "true")
			if err != nil {
				return nil, err
			}
			el.Body = BodyComplexType
			el.Complex = ct
		case baseName(t.name) == "simpleType":
			st, err := parseSimpleType(r, "", t.kind == tagSelfClose)
			if err != nil {
				return nil, err
			}
			el.Body = BodySimpleType
			el.Simple = st
		default:
			if err := skipElement(r, t); err != nil {
				return nil, err
			}
		}
	}
}

// parseComplexType parses the body of one xs:complexType (spec.md §4.5:
// all/sequence/choice of child elements, plus xs:any). The caller has
// already consumed the opening <xs:complexType ...> tag; selfClosing
// reports whether that tag was self-closing, i.e. has no body to read.
func parseComplexType(r *tagReader, name string, selfClosing bool, mixed bool) (*ComplexType, error) {
	ct := &ComplexType{TypeName: name, Disp: DispSequence, IsMixed: mixed}
	if selfClosing {
		return ct, nil
	}

	open, err := r.next()
	if err != nil {
		return nil, cerr.AsInvalidValue(err, "xsd: parsing complexType "+name)
	}

	for {
		t := open
		if t.kind == tagClose && baseName(t.name) == "complexType" {
			return ct, nil
		}
		if t.kind == tagEOF {
			return nil, cerr.New(cerr.InvalidValue, "xsd: unterminated complexType %q", name)
		}
		if t.kind != tagText {
			switch baseName(t.name) {
			case "all":
				ct.Disp = DispAll
				if err := parseChildElements(r, ct, "all"); err != nil {
					return nil, err
				}
			case "sequence":
				ct.Disp = DispSequence
				if err := parseChildElements(r, ct, "sequence"); err != nil {
					return nil, err
				}
			case "choice":
				ct.Disp = DispChoice
				if err := parseChildElements(r, ct, "choice"); err != nil {
					return nil, err
				}
			default:
				if err := skipElement(r, t); err != nil {
					return nil, err
				}
			}
		}
		open, err = r.next()
		if err != nil {
			return nil, cerr.AsInvalidValue(err, "xsd: parsing complexType "+name)
		}
	}
}

// parseChildElements parses the xs:element / xs:any children of an
// all/sequence/choice container up to its matching close tag.
func parseChildElements(r *tagReader, ct *ComplexType, containerName string) error {
	for {
		t, err := r.next()
		if err != nil {
			return cerr.AsInvalidValue(err, "xsd: parsing "+containerName)
		}
		switch {
		case t.kind == tagEOF:
			return cerr.New(cerr.InvalidValue, "xsd: unterminated %s", containerName)
		case t.kind == tagClose && baseName(t.name) == containerName:
			return nil
		case t.kind == tagText:
			continue
		case baseName(t.name) == "element":
			el, err := parseElement(r, t)
			if err != nil {
				return err
			}
			ct.Elements = append(ct.Elements, el)
		case baseName(t.name) == "any":
			pc := t.attrs["processContents"]
			if pc == "" {
				pc = "strict"
			}
			if pc == "strict" {
				return cerr.New(cerr.InvalidValue, "xsd: xs:any processContents=strict is not supported")
			}
			ns := t.attrs["namespace"]
			if ns == "" {
				ns = "##any"
			}
			ct.Any = &AnyWildcard{Namespace: ns, ProcessContents: pc}
			if t.kind == tagOpen {
				if err := skipElement(r, t); err != nil {
					return err
				}
			}
		default:
			if err := skipElement(r, t); err != nil {
				return err
			}
		}
	}
}

// parseSimpleType parses one xs:simpleType body (spec.md §4.5:
// restriction base set + supported facets; xs:union collapses to
// base=xs:string without decomposing members; no list/substitution).
func parseSimpleType(r *tagReader, name string, selfClosing bool) (*SimpleType, error) {
	st := &SimpleType{TypeName: name}
	if selfClosing {
		return st, nil
	}
	for {
		t, err := r.next()
		if err != nil {
			return nil, cerr.AsInvalidValue(err, "xsd: parsing simpleType "+name)
		}
		switch {
		case t.kind == tagEOF:
			return nil, cerr.New(cerr.InvalidValue, "xsd: unterminated simpleType %q", name)
		case t.kind == tagClose && baseName(t.name) == "simpleType":
			return st, nil
		case t.kind == tagText:
			continue
		case baseName(t.name) == "restriction":
			base, ok := xsBuiltins[t.attrs["base"]]
			if !ok {
				return nil, cerr.New(cerr.InvalidValue, "xsd: simpleType %q restricts unsupported base %q", name, t.attrs["base"])
			}
			st.Base = base
			if t.kind == tagOpen {
				facets, err := parseFacets(r)
				if err != nil {
					return nil, err
				}
				st.Facets = facets
			}
		case baseName(t.name) == "union":
			// a union collapses to base=xs:string without decomposing
			// members (spec.md §4.5); memberTypes and any inline
			// simpleType children are discarded.
			st.Base = XsString
			if t.kind == tagOpen {
				if err := skipElement(r, t); err != nil {
					return nil, err
				}
			}
		default:
			if err := skipElement(r, t); err != nil {
				return nil, err
			}
		}
	}
}

var facetNames = map[string]FacetKind{
	"length":         FacetLength,
	"minLength":      FacetMinLength,
	"maxLength":      FacetMaxLength,
	"pattern":        FacetPattern,
	"enumeration":    FacetEnum,
	"minInclusive":   FacetMinInclusive,
	"maxInclusive":   FacetMaxInclusive,
	"minExclusive":   FacetMinExclusive,
	"maxExclusive":   FacetMaxExclusive,
	"whiteSpace":     FacetWhiteSpace,
	"totalDigits":    FacetTotalDigits,
	"fractionDigits": FacetFractionDigits,
}

func parseFacets(r *tagReader) ([]Facet, error) {
	var facets []Facet
	for {
		t, err := r.next()
		if err != nil {
			return nil, cerr.AsInvalidValue(err, "xsd: parsing restriction facets")
		}
		switch {
		case t.kind == tagEOF:
			return nil, cerr.New(cerr.InvalidValue, "xsd: unterminated xs:restriction")
		case t.kind == tagClose && baseName(t.name) == "restriction":
			return facets, nil
		case t.kind == tagText:
			continue
		default:
			kind, ok := facetNames[baseName(t.name)]
			if !ok {
				if err := skipElement(r, t); err != nil {
					return nil, err
				}
				continue
			}
			val := t.attrs["value"]
			if !supportedFacets[kind] {
				nlog.Debugf(nlog.ModXmlp, "xsd: facet %s=%q is parsed but not enforced", baseName(t.name), val)
			}
			f := Facet{Kind: kind, Str: val}
			if n, err := strconv.ParseFloat(val, 64); err == nil {
				f.Num, f.IsNum = n, true
			}
			facets = append(facets, f)
			if t.kind == tagOpen {
				if err := skipElement(r, t); err != nil {
					return nil, err
				}
			}
		}
	}
}

// linkElement resolves el's TypeName reference against schema's named
// complex/simple types (or a built-in xs: type), recursing into complex
// children. visiting guards against reference cycles between named
// complex types (spec.md §4.5 Non-goals exclude substitution groups, but
// a self-referential named complexType is still possible and must be
// rejected rather than recursing forever).
func linkElement(sch *Schema, el *Element, visiting map[string]bool) error {
	if el.Body == BodyComplexType || el.Body == BodySimpleType || el.Body == BodyAny {
		// inline body already parsed; still need to recurse into it.
	} else if el.TypeName != "" {
		if base, ok := xsBuiltins[el.TypeName]; ok {
			el.Body = BodyXsType
			el.DataType = base
		} else if ct, ok := sch.ComplexTypes[el.TypeName]; ok {
			if visiting[el.TypeName] {
				return cerr.New(cerr.InvalidValue, "xsd: cyclic complexType reference at %q", el.TypeName)
			}
			visiting[el.TypeName] = true
			el.Body = BodyComplexType
			el.Complex = ct
		} else if st, ok := sch.SimpleTypes[el.TypeName]; ok {
			el.Body = BodySimpleType
			el.Simple = st
		} else {
			return cerr.New(cerr.InvalidValue, "xsd: element %q references unknown type %q", el.Name, el.TypeName)
		}
	} else {
		return cerr.New(cerr.InvalidValue, "xsd: element %q has neither a type nor an inline body", el.Name)
	}

	if el.Body == BodyComplexType && el.Complex != nil {
		for _, child := range el.Complex.Elements {
			if err := linkElement(sch, child, visiting); err != nil {
				return err
			}
		}
	}
	if el.TypeName != "" {
		delete(visiting, el.TypeName)
	}
	return nil
}
