package xmlp

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/seandai318/coresig/mbuf"
	"github.com/seandai318/coresig/xsd"
)

func TestXmlpSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "xmlp suite")
}

const requestSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="request">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="id" type="xs:int"/>
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

const choiceSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="event">
    <xs:complexType>
      <xs:choice>
        <xs:element name="created" type="xs:string"/>
        <xs:element name="deleted" type="xs:string"/>
      </xs:choice>
    </xs:complexType>
  </xs:element>
</xs:schema>`

// scenario 4 from spec.md §8: happy path with a synthesized default.
var _ = Describe("Validate happy path", func() {
	It("parses required and optional elements, synthesizing the default for an absent optional", func() {
		sch, err := xsd.Parse([]byte(requestSchema))
		Expect(err).NotTo(HaveOccurred())

		seen := map[string]string{}
		types := map[string]xsd.XsType{}
		err = Validate(sch, []byte(`<request><id>42</id></request>`), func(path string, v mbuf.PL, dataType xsd.XsType) error {
			seen[path] = v.String()
			types[path] = dataType
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(seen["request/id"]).To(Equal("42"))
		Expect(types["request/id"]).To(Equal(xsd.XsInt))
		Expect(seen["request/status"]).To(Equal("pending"))
		Expect(types["request/status"]).To(Equal(xsd.XsString))
	})

	It("rejects an enumeration value outside the declared set", func() {
		sch, err := xsd.Parse([]byte(requestSchema))
		Expect(err).NotTo(HaveOccurred())

		err = Validate(sch, []byte(`<request><id>1</id><status>unknown</status></request>`), nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects a bare xs:int leaf whose text is not an integer", func() {
		sch, err := xsd.Parse([]byte(requestSchema))
		Expect(err).NotTo(HaveOccurred())

		err = Validate(sch, []byte(`<request><id>abc</id></request>`), nil)
		Expect(err).To(HaveOccurred())
	})
})

// scenario 5 from spec.md §8: choice rejection when a second, different
// branch appears.
var _ = Describe("Validate choice", func() {
	It("accepts exactly one branch", func() {
		sch, err := xsd.Parse([]byte(choiceSchema))
		Expect(err).NotTo(HaveOccurred())

		var got string
		err = Validate(sch, []byte(`<event><created>now</created></event>`), func(path string, v mbuf.PL, dataType xsd.XsType) error {
			got = v.String()
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal("now"))
	})

	It("rejects a second, conflicting choice branch", func() {
		sch, err := xsd.Parse([]byte(choiceSchema))
		Expect(err).NotTo(HaveOccurred())

		err = Validate(sch, []byte(`<event><created>now</created><deleted>later</deleted></event>`), nil)
		Expect(err).To(HaveOccurred())
	})
})
