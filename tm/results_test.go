package tm

import (
	"github.com/caianbenedicto/spitz/wire"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResultQueue", func() {
	It("dequeues in FIFO order", func() {
		q := NewResultQueue()
		q.Push(wire.Result{ID: 1})
		q.Push(wire.Result{ID: 2})
		q.Push(wire.Result{ID: 3})

		for _, want := range []int64{1, 2, 3} {
			r, ok := q.PopFront()
			Expect(ok).To(BeTrue())
			Expect(r.ID).To(Equal(want))
		}
		_, ok := q.PopFront()
		Expect(ok).To(BeFalse())
	})

	It("re-enqueues a failed delivery at the tail", func() {
		q := NewResultQueue()
		q.Push(wire.Result{ID: 1})
		q.Push(wire.Result{ID: 2})

		r, _ := q.PopFront()
		q.Push(r) // redelivery failed; goes to the back

		first, _ := q.PopFront()
		Expect(first.ID).To(Equal(int64(2)))
		second, _ := q.PopFront()
		Expect(second.ID).To(Equal(int64(1)))
	})
})
