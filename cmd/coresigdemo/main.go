// Command coresigdemo exercises premem, timer, xsd and xmlp together: it
// allocates a slab-backed buffer, parses a small XSD schema, validates
// an XML document against it on a timer-driven schedule, and prints
// what it finds. It is the one demonstration binary in scope for this
// module (SPEC_FULL.md §8); production wiring belongs to callers
// importing corectx and the leaf packages directly.
package main

import (
	"flag"
	"os"
	"time"

	"github.com/seandai318/coresig/corectx"
	"github.com/seandai318/coresig/mbuf"
	"github.com/seandai318/coresig/nlog"
	"github.com/seandai318/coresig/timer"
	"github.com/seandai318/coresig/xmlp"
	"github.com/seandai318/coresig/xsd"
)

const demoSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
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

func main() {
	debug := flag.Bool("debug", false, "enable premem provenance tracking")
	doc := flag.String("doc", `<request><id>7</id></request>`, "XML document to validate")
	flag.Parse()

	ctx, err := corectx.Init(corectx.Config{Debug: *debug, LogLevel: nlog.INFO})
	if err != nil {
		nlog.Errorf(nlog.ModAll, "corectx.Init: %v", err)
		os.Exit(1)
	}
	defer ctx.Shutdown()

	buf, err := mbuf.New(ctx.Pool, 64)
	if err != nil {
		nlog.Errorf(nlog.ModMem, "mbuf.New: %v", err)
		os.Exit(1)
	}
	defer buf.Close()
	buf.WriteStr("coresigdemo")

	sch, err := xsd.Parse([]byte(demoSchema))
	if err != nil {
		nlog.Errorf(nlog.ModXmlp, "xsd.Parse: %v", err)
		os.Exit(1)
	}

	w := timer.NewWheel(nil, nil)
	done := make(chan struct{})
	w.StartTimer(100*time.Millisecond, func(uint64, any) {
		defer close(done)
		err := xmlp.Validate(sch, []byte(*doc), func(path string, v mbuf.PL, dataType xsd.XsType) error {
			nlog.Infof(nlog.ModXmlp, "%s = %q (%s)", path, v.String(), dataType)
			return nil
		})
		if err != nil {
			nlog.Errorf(nlog.ModXmlp, "validation failed: %v", err)
			return
		}
		nlog.Infof(nlog.ModXmlp, "validation ok, pool buffer holds %q", buf.Raw())
	})

	stop := ctx.RegisterWheel(w, 1, func(err error) {
		nlog.Errorf(nlog.ModTimer, "wheel stall: %v", err)
	})
	defer stop()

	<-done
}
