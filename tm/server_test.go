package tm

import (
	"net"
	"time"

	"github.com/caianbenedicto/spitz/wire"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Server", func() {
	It("accepts a pushed task over msg_send_task and runs it", func() {
		worker := &fakeWorker{run: func(task []byte) (int64, []byte, error) {
			return 0, append([]byte("r:"), task...), nil
		}}
		results := NewResultQueue()
		pool := newPool(worker, nil, 2, 1, results)
		defer pool.Stop()
		server := NewServer(pool, results, time.Second)

		c1, c2 := net.Pipe()
		go server.Handle(c1)
		jm := wire.NewServerEndpoint(c2, "jm", 0)
		defer jm.Close()

		Expect(jm.WriteInt64(int64(wire.MsgSendTask))).To(Succeed())
		resp, err := jm.ReadInt64(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(wire.Opcode(resp)).To(Equal(wire.MsgSendMore))

		Expect(wire.WriteTask(jm, wire.Task{ID: 42, Payload: []byte("hi")})).To(Succeed())

		// Drain whatever prompt the server sends next (another
		// send_more, or send_full once the pool fills) so its push
		// loop doesn't block on a client that stopped talking.
		go func() {
			for {
				if _, err := jm.ReadInt64(time.Second); err != nil {
					return
				}
			}
		}()

		Eventually(results.Len, time.Second).Should(Equal(1))
		r, ok := results.PopFront()
		Expect(ok).To(BeTrue())
		Expect(r.ID).To(Equal(int64(42)))
		Expect(string(r.Bytes)).To(Equal("r:hi"))
	})

	It("drains queued results over msg_read_result", func() {
		results := NewResultQueue()
		results.Push(wire.Result{ID: 7, Status: 0, Bytes: []byte("done")})
		worker := &fakeWorker{run: func(_ []byte) (int64, []byte, error) { return 0, nil, nil }}
		pool := newPool(worker, nil, 1, 0, results)
		defer pool.Stop()
		server := NewServer(pool, results, time.Second)

		c1, c2 := net.Pipe()
		go server.Handle(c1)
		jm := wire.NewServerEndpoint(c2, "jm", 0)
		defer jm.Close()

		Expect(jm.WriteInt64(int64(wire.MsgReadResult))).To(Succeed())

		id, err := jm.ReadInt64(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).To(Equal(int64(7)))

		got, err := wire.ReadResultBody(jm, id, time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got.Bytes)).To(Equal("done"))

		Expect(jm.WriteInt64(int64(wire.MsgReadResult))).To(Succeed())

		empty, err := jm.ReadInt64(time.Second)
		Expect(err).NotTo(HaveOccurred())
		Expect(wire.Opcode(empty)).To(Equal(wire.MsgReadEmpty))
	})

	It("terminates the process on msg_terminate", func() {
		// os.Exit(0) cannot be unit-tested in process, so this spec is
		// skipped and Handle is not invoked here.
		Skip("msg_terminate calls os.Exit(0) and cannot run in-process")
	})
})
