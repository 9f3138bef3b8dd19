package tm

import (
	"time"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/wire"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeWorker implements jobWorker without a real job binary, so the pool
// and server can be exercised without cgo/dlopen in the loop.
type fakeWorker struct {
	run func(task []byte) (int64, []byte, error)
}

func (f *fakeWorker) WorkerNew(_ []string) (bridge.Handle, error) { return bridge.Handle{}, nil }
func (f *fakeWorker) WorkerRun(_ bridge.Handle, task []byte) (int64, []byte, error) {
	return f.run(task)
}
func (f *fakeWorker) WorkerFinalize(_ bridge.Handle) {}

var _ = Describe("Pool", func() {
	It("runs a pushed task and delivers its result", func() {
		worker := &fakeWorker{run: func(task []byte) (int64, []byte, error) {
			return 0, append([]byte("echo:"), task...), nil
		}}
		results := NewResultQueue()
		pool := newPool(worker, nil, 2, 0, results)
		defer pool.Stop()

		Expect(pool.Put(1, []byte("hi"))).To(BeTrue())

		Eventually(results.Len, time.Second).Should(Equal(1))
		r, ok := results.PopFront()
		Expect(ok).To(BeTrue())
		Expect(r.ID).To(Equal(int64(1)))
		Expect(r.Status).To(Equal(int64(0)))
		Expect(string(r.Bytes)).To(Equal("echo:hi"))
	})

	It("rejects a Put once the intake channel is full", func() {
		// A single worker, zero overfill: capacity is 1 slot beyond
		// whatever the lone worker is currently executing.
		block := make(chan struct{})
		worker := &fakeWorker{run: func(_ []byte) (int64, []byte, error) {
			<-block
			return 0, []byte("done"), nil
		}}
		results := NewResultQueue()
		pool := newPool(worker, nil, 1, 0, results)
		defer func() { close(block); pool.Stop() }()

		// Consumed by the worker, which then blocks mid-task.
		Expect(pool.Put(1, []byte("a"))).To(BeTrue())
		// Queues behind the in-flight task, filling the one free slot.
		Eventually(func() bool { return pool.Put(2, []byte("b")) }, time.Second).Should(BeTrue())

		Expect(pool.Full()).To(BeTrue())
		Expect(pool.Put(3, []byte("c"))).To(BeFalse())
	})

	It("recovers a panicking worker into StatusModuleError instead of crashing", func() {
		worker := &fakeWorker{run: func(_ []byte) (int64, []byte, error) {
			panic("unexpected ctx")
		}}
		results := NewResultQueue()
		pool := newPool(worker, nil, 1, 0, results)
		defer pool.Stop()

		Expect(pool.Put(5, []byte("boom"))).To(BeTrue())
		Eventually(results.Len, time.Second).Should(Equal(1))
		r, _ := results.PopFront()
		Expect(r.Status).To(Equal(wire.StatusModuleError))

		// The worker goroutine survives the panic and keeps serving tasks.
		Expect(pool.Put(6, []byte("boom again"))).To(BeTrue())
		Eventually(results.Len, time.Second).Should(Equal(1))
	})

	It("maps a missing push to StatusModuleNoAnswer", func() {
		worker := &fakeWorker{run: func(_ []byte) (int64, []byte, error) {
			return 0, nil, bridge.ErrNoAnswer
		}}
		results := NewResultQueue()
		pool := newPool(worker, nil, 1, 0, results)
		defer pool.Stop()

		Expect(pool.Put(9, []byte("x"))).To(BeTrue())
		Eventually(results.Len, time.Second).Should(Equal(1))
		r, _ := results.PopFront()
		Expect(r.Status).To(Equal(wire.StatusModuleNoAnswer))
	})
})
