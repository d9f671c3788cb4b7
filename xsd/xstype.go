package xsd

import (
	"encoding/base64"
	"strconv"
	"time"

	"github.com/seandai318/coresig/cerr"
)

// String returns the canonical (unprefixed) XSD name for t, e.g. "integer"
// for XsInt, matching the names used in spec.md §8 scenario callbacks.
func (t XsType) String() string {
	switch t {
	case XsBoolean:
		return "boolean"
	case XsUnsignedByte:
		return "unsignedByte"
	case XsShort:
		return "short"
	case XsInt:
		return "integer"
	case XsLong:
		return "long"
	case XsString:
		return "string"
	case XsAnyURI:
		return "anyURI"
	case XsDateTime:
		return "dateTime"
	case XsBase64Binary:
		return "base64Binary"
	default:
		return "any"
	}
}

// LeafType reports the built-in XS type a leaf element's value is
// ultimately checked against: e's own DataType when declared by a bare
// type= reference, or its simple type's restriction base when declared
// via a named/inline xs:simpleType. Non-leaf and xs:any elements report
// XsNone.
func (e *Element) LeafType() XsType {
	switch e.Body {
	case BodyXsType:
		return e.DataType
	case BodySimpleType:
		if e.Simple != nil {
			return e.Simple.Base
		}
	}
	return XsNone
}

// CheckXsType coerces/validates value against t (spec.md §4.6: "coerce
// the captured byte range to its declared type"). It rejects values
// that cannot represent t, without producing a converted Go value —
// callers that need the captured bytes still read them from the
// original PL; this only confirms the bytes are well-formed for t.
func CheckXsType(t XsType, value string) error {
	switch t {
	case XsBoolean:
		switch value {
		case "true", "false", "1", "0":
		default:
			return cerr.New(cerr.InvalidValue, "value %q is not a valid boolean", value)
		}
	case XsUnsignedByte:
		if _, err := strconv.ParseUint(value, 10, 8); err != nil {
			return cerr.New(cerr.InvalidValue, "value %q is not a valid unsignedByte", value)
		}
	case XsShort:
		if _, err := strconv.ParseInt(value, 10, 16); err != nil {
			return cerr.New(cerr.InvalidValue, "value %q is not a valid short", value)
		}
	case XsInt:
		if _, err := strconv.ParseInt(value, 10, 32); err != nil {
			return cerr.New(cerr.InvalidValue, "value %q is not a valid int", value)
		}
	case XsLong:
		if _, err := strconv.ParseInt(value, 10, 64); err != nil {
			return cerr.New(cerr.InvalidValue, "value %q is not a valid long", value)
		}
	case XsDateTime:
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return cerr.New(cerr.InvalidValue, "value %q is not a valid dateTime", value)
		}
	case XsBase64Binary:
		if _, err := base64.StdEncoding.DecodeString(value); err != nil {
			return cerr.New(cerr.InvalidValue, "value %q is not valid base64Binary", value)
		}
	case XsString, XsAnyURI, XsNone:
		// no further constraint: any byte sequence is a valid string/URI,
		// and XsNone carries no declared type to check.
	}
	return nil
}
