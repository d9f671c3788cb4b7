package timer

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestTimerSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "timer suite")
}

// scenario 3 from spec.md §8: callback ordering across overlapping
// timers on a single wheel, driven tick by tick.
var _ = Describe("Wheel ordering", func() {
	It("fires callbacks in expiry order regardless of registration order", func() {
		w, fc := newFakeWheel()

		var order []string
		cbA := func(id uint64, data any) { order = append(order, "cbA:"+data.(string)) }
		cbB := func(id uint64, data any) { order = append(order, "cbB:"+data.(string)) }

		idA1 := w.StartTimer(150*time.Millisecond, cbA, "a")
		idB := w.StartTimer(100*time.Millisecond, cbB, "b")
		idA2 := w.StartTimer(200*time.Millisecond, cbA, "c")
		Expect(idA1).NotTo(BeZero())
		Expect(idB).NotTo(BeZero())
		Expect(idA2).NotTo(BeZero())

		for i := 0; i < 4; i++ {
			fc.advance(TInner)
			Expect(w.ProcessTick()).To(Succeed())
		}

		Expect(order).To(Equal([]string{"cbB:b", "cbA:a", "cbA:c"}))
	})

	It("returns the sentinel id 0 on out-of-range duration", func() {
		w, _ := newFakeWheel()
		Expect(w.StartTimer(-1, func(uint64, any) {}, nil)).To(BeZero())
		Expect(w.StartTimer(MaxTimeoutDuration, func(uint64, any) {}, nil)).To(BeZero())
	})
})
