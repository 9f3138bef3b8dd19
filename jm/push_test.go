package jm

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/wire"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeGenerator yields payloads in order, then reports the generation
// exhausted - a stand-in for spits_job_manager_next_task.
type fakeGenerator struct {
	payloads [][]byte
	i        int
}

func (f *fakeGenerator) JobManagerNextTask(bridge.Handle) (bool, []byte, error) {
	if f.i >= len(f.payloads) {
		return false, nil, nil
	}
	p := f.payloads[f.i]
	f.i++
	return true, p, nil
}

type pushedTask struct {
	id      int64
	payload []byte
}

// acceptOneAndPush runs a minimal fake task manager that accepts a
// single push connection, acks the handshake, and acks exactly
// wantTasks pushed tasks with msg_send_more, recording each.
func acceptOneAndPush(ln net.Listener, wantTasks int) *[]pushedTask {
	var (
		mu       sync.Mutex
		received []pushedTask
	)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		ep := wire.NewServerEndpoint(conn, "tm", 0)
		defer ep.Close()

		mtype, err := ep.ReadInt64(time.Second)
		if err != nil || wire.Opcode(mtype) != wire.MsgSendTask {
			return
		}
		if err := ep.WriteInt64(int64(wire.MsgSendMore)); err != nil {
			return
		}
		for i := 0; i < wantTasks; i++ {
			taskid, err := ep.ReadInt64(time.Second)
			if err != nil {
				return
			}
			payload, err := wire.ReadTaskBody(ep, time.Second)
			if err != nil {
				return
			}
			mu.Lock()
			received = append(received, pushedTask{id: taskid, payload: payload})
			mu.Unlock()
			if err := ep.WriteInt64(int64(wire.MsgSendMore)); err != nil {
				return
			}
		}
	}()
	return &received
}

var _ = Describe("PushEngine", func() {
	It("streams every generated task to the sole fleet member", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		received := acceptOneAndPush(ln, 3)

		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "node "+ln.Addr().String()+"\n")

		state := NewState()
		gen := &fakeGenerator{payloads: [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}}
		engine := NewPushEngine(state, gen, bridge.Handle{}, path, time.Second, time.Second)

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() { engine.Run(stop); close(done) }()

		Eventually(func() int { return len(*received) }, 2*time.Second).Should(Equal(3))
		Eventually(done, 2*time.Second).Should(BeClosed())

		Expect((*received)[0].payload).To(Equal([]byte("a")))
		Expect((*received)[1].payload).To(Equal([]byte("bb")))
		Expect((*received)[2].payload).To(Equal([]byte("ccc")))
		Expect((*received)[0].id).To(Equal(int64(1)))
		Expect((*received)[2].id).To(Equal(int64(3)))

		snap := state.Snapshot()
		Expect(snap.GenDone).To(BeTrue())
		Expect(snap.Pending).To(Equal(3), "nothing has been pulled back yet")
	})

	It("keeps a rejected task pending instead of dropping it", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			ep := wire.NewServerEndpoint(conn, "tm", 0)
			defer ep.Close()
			mtype, err := ep.ReadInt64(time.Second)
			if err != nil || wire.Opcode(mtype) != wire.MsgSendTask {
				return
			}
			ep.WriteInt64(int64(wire.MsgSendMore))
			if _, err := ep.ReadInt64(time.Second); err != nil {
				return
			}
			if _, err := wire.ReadTaskBody(ep, time.Second); err != nil {
				return
			}
			ep.WriteInt64(int64(wire.MsgSendRjct))
		}()

		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "node "+ln.Addr().String()+"\n")

		state := NewState()
		gen := &fakeGenerator{payloads: [][]byte{[]byte("only")}}
		engine := NewPushEngine(state, gen, bridge.Handle{}, path, time.Second, time.Second)

		stop := make(chan struct{})
		go func() {
			defer GinkgoRecover()
			engine.Run(stop)
		}()
		defer close(stop)

		// The rejected task stays pending (never silently dropped),
		// available to be retried against the next fleet member.
		Eventually(func() int { return state.Snapshot().Pending }, 2*time.Second).Should(Equal(1))
	})
})
