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

// fakeCommitter counts commit_pit invocations per taskid - a stand-in
// for spits_committer_commit_pit.
type fakeCommitter struct {
	mu    sync.Mutex
	calls map[int64]int
}

func newFakeCommitter() *fakeCommitter { return &fakeCommitter{calls: make(map[int64]int)} }

func (f *fakeCommitter) CommitPit(_ bridge.Handle, result []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[int64(len(result))]++
	return 0, nil
}

var _ = Describe("PullEngine", func() {
	It("commits every pulled result exactly once", func() {
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
			if err != nil || wire.Opcode(mtype) != wire.MsgReadResult {
				return
			}
			for _, r := range []wire.Result{
				{ID: 1, Status: 0, Bytes: []byte("ra")},
				{ID: 2, Status: 0, Bytes: []byte("rbb")},
				{ID: 3, Status: 0, Bytes: []byte("rccc")},
			} {
				if err := wire.WriteResult(ep, r); err != nil {
					return
				}
				ack, err := ep.ReadInt64(time.Second)
				if err != nil || wire.Opcode(ack) != wire.MsgReadResult {
					return
				}
			}
			ep.WriteInt64(int64(wire.MsgReadEmpty))
		}()

		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "node "+ln.Addr().String()+"\n")

		state := NewState()
		state.insertPending(1, []byte("a"))
		state.insertPending(2, []byte("bb"))
		state.insertPending(3, []byte("ccc"))
		state.markGenerationDone()

		committer := newFakeCommitter()
		engine := NewPullEngine(state, committer, bridge.Handle{}, path, time.Second, time.Second)

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() { engine.Run(stop); close(done) }()

		Eventually(done, 2*time.Second).Should(BeClosed())
		Expect(state.Done()).To(BeTrue())

		committer.mu.Lock()
		Expect(committer.calls[2]).To(Equal(1)) // "ra"
		Expect(committer.calls[3]).To(Equal(1)) // "rbb"
		Expect(committer.calls[4]).To(Equal(1)) // "rccc"
		committer.mu.Unlock()
	})

	It("logs a duplicate delivery exactly once but still commits it again", func() {
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
			if err != nil || wire.Opcode(mtype) != wire.MsgReadResult {
				return
			}
			// Sends the same result twice, as if the ack were lost
			// and the TM re-enqueued it.
			for i := 0; i < 2; i++ {
				if err := wire.WriteResult(ep, wire.Result{ID: 7, Status: 0, Bytes: []byte("r")}); err != nil {
					return
				}
				ack, err := ep.ReadInt64(time.Second)
				if err != nil || wire.Opcode(ack) != wire.MsgReadResult {
					return
				}
			}
			ep.WriteInt64(int64(wire.MsgReadEmpty))
		}()

		dir := newTempDir()
		defer os.RemoveAll(dir)
		path := writeNodeFile(dir, "node "+ln.Addr().String()+"\n")

		state := NewState()
		state.insertPending(7, []byte("task"))
		state.markGenerationDone()

		committer := newFakeCommitter()
		engine := NewPullEngine(state, committer, bridge.Handle{}, path, time.Second, time.Second)

		stop := make(chan struct{})
		done := make(chan struct{})
		go func() { engine.Run(stop); close(done) }()

		Eventually(done, 2*time.Second).Should(BeClosed())

		// commit_pit is invoked again on the duplicate, per the pinned
		// "commits again" resolution - not deduplicated.
		committer.mu.Lock()
		Expect(committer.calls[1]).To(Equal(2), "both deliveries of the 1-byte result call commit_pit")
		committer.mu.Unlock()

		snap := state.Snapshot()
		Expect(snap.Completed).To(Equal(1))
		Expect(snap.Pending).To(Equal(0))
	})
})
