package xsd

import "testing"

const sampleSchema = `<?xml version="1.0"?>
<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="request">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="id" type="xs:int"/>
        <xs:element name="name" type="xs:string" minOccurs="0"/>
        <xs:element name="status" minOccurs="0" default="pending">
          <xs:simpleType>
            <xs:restriction base="xs:string">
              <xs:enumeration value="pending"/>
              <xs:enumeration value="done"/>
            </xs:restriction>
          </xs:simpleType>
        </xs:element>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestParseBuildsLinkedSchema(t *testing.T) {
	sch, err := Parse([]byte(sampleSchema))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sch.Root.Name != "request" {
		t.Fatalf("root name = %q, want request", sch.Root.Name)
	}
	if sch.Root.Body != BodyComplexType {
		t.Fatalf("root body = %v, want BodyComplexType", sch.Root.Body)
	}
	if len(sch.Root.Complex.Elements) != 3 {
		t.Fatalf("root has %d children, want 3", len(sch.Root.Complex.Elements))
	}
	idEl := sch.Root.Complex.Elements[0]
	if idEl.Body != BodyXsType || idEl.DataType != XsInt {
		t.Fatalf("id element not linked to xs:int")
	}
	statusEl := sch.Root.Complex.Elements[2]
	if statusEl.Body != BodySimpleType || statusEl.Simple == nil {
		t.Fatalf("status element not linked to inline simpleType")
	}
	if !statusEl.HasDefault || statusEl.Default != "pending" {
		t.Fatalf("status default = %q, %v", statusEl.Default, statusEl.HasDefault)
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	bad := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="r" type="xs:unknownType"/>
</xs:schema>`
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected error for unknown type reference")
	}
}

func TestParseUnionCollapsesToString(t *testing.T) {
	src := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="r">
    <xs:simpleType>
      <xs:union memberTypes="xs:int xs:string"/>
    </xs:simpleType>
  </xs:element>
</xs:schema>`
	sch, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sch.Root.Body != BodySimpleType || sch.Root.Simple == nil {
		t.Fatalf("root not linked to inline simpleType")
	}
	if sch.Root.Simple.Base != XsString {
		t.Fatalf("union base = %v, want XsString", sch.Root.Simple.Base)
	}
}

func TestCheckFacetsEnumeration(t *testing.T) {
	st := &SimpleType{Base: XsString, Facets: []Facet{
		{Kind: FacetEnum, Str: "pending"},
		{Kind: FacetEnum, Str: "done"},
	}}
	if err := CheckFacets(st, "pending"); err != nil {
		t.Fatalf("CheckFacets(pending): %v", err)
	}
	if err := CheckFacets(st, "bogus"); err == nil {
		t.Fatalf("expected error for value outside enumeration")
	}
}
