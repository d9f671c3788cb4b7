package xsd

import (
	"strconv"

	"github.com/seandai318/coresig/cerr"
)

// CheckFacets applies st's supported facets (spec.md §4.5) to value,
// the raw text a leaf element carried. Unsupported facets (pattern,
// whiteSpace, fractionDigits) are ignored rather than enforced.
func CheckFacets(st *SimpleType, value string) error {
	if st == nil {
		return nil
	}
	var enums []string
	for _, f := range st.Facets {
		if !supportedFacets[f.Kind] {
			continue
		}
		if f.Kind == FacetEnum {
			enums = append(enums, f.Str)
			continue
		}
		if err := checkFacet(f, value); err != nil {
			return err
		}
	}
	if len(enums) > 0 {
		matched := false
		for _, e := range enums {
			if e == value {
				matched = true
				break
			}
		}
		if !matched {
			return cerr.New(cerr.InvalidValue, "value %q is not one of the enumerated values %v", value, enums)
		}
	}
	return nil
}

func checkFacet(f Facet, value string) error {
	switch f.Kind {
	case FacetLength:
		if !f.IsNum || len(value) != int(f.Num) {
			return cerr.New(cerr.InvalidValue, "value %q violates length=%v", value, f.Str)
		}
	case FacetMinLength:
		if !f.IsNum || len(value) < int(f.Num) {
			return cerr.New(cerr.InvalidValue, "value %q violates minLength=%v", value, f.Str)
		}
	case FacetMaxLength:
		if !f.IsNum || len(value) > int(f.Num) {
			return cerr.New(cerr.InvalidValue, "value %q violates maxLength=%v", value, f.Str)
		}
	case FacetMinInclusive, FacetMaxInclusive, FacetMinExclusive, FacetMaxExclusive:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return cerr.New(cerr.InvalidValue, "value %q is not numeric for facet %v", value, f.Kind)
		}
		switch f.Kind {
		case FacetMinInclusive:
			if n < f.Num {
				return cerr.New(cerr.InvalidValue, "value %v violates minInclusive=%v", n, f.Num)
			}
		case FacetMaxInclusive:
			if n > f.Num {
				return cerr.New(cerr.InvalidValue, "value %v violates maxInclusive=%v", n, f.Num)
			}
		case FacetMinExclusive:
			if n <= f.Num {
				return cerr.New(cerr.InvalidValue, "value %v violates minExclusive=%v", n, f.Num)
			}
		case FacetMaxExclusive:
			if n >= f.Num {
				return cerr.New(cerr.InvalidValue, "value %v violates maxExclusive=%v", n, f.Num)
			}
		}
	case FacetTotalDigits:
		digits := 0
		for _, c := range value {
			if c >= '0' && c <= '9' {
				digits++
			}
		}
		if f.IsNum && digits > int(f.Num) {
			return cerr.New(cerr.InvalidValue, "value %q has %d digits, exceeds totalDigits=%v", value, digits, f.Num)
		}
	}
	return nil
}
