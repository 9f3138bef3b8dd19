package tm

import (
	"net"
	"os"
	"time"

	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/wire"
)

// Server dispatches accepted connections to the push or pull handshake.
// Mirrors tm.py's server_callback, split per opcode instead of one long
// function.
type Server struct {
	pool        *Pool
	results     *ResultQueue
	recvTimeout time.Duration
}

func NewServer(pool *Pool, results *ResultQueue, recvTimeout time.Duration) *Server {
	return &Server{pool: pool, results: results, recvTimeout: recvTimeout}
}

// Handle processes one connection to completion and closes it. It never
// returns early on a single read/write failure within the middle of a
// handshake without first closing and logging, matching server_callback's
// outer try/except around the whole exchange.
func (s *Server) Handle(conn net.Conn) {
	addr := conn.RemoteAddr().String()
	nlog.Infof("connected to %s", addr)
	ep := wire.NewServerEndpoint(conn, addr, 0)
	defer func() {
		ep.Close()
		nlog.Infof("connection to %s closed", addr)
	}()

	mtype, err := ep.ReadInt64(s.recvTimeout)
	if err != nil {
		nlog.Warningf("error occurred while reading request from %s: %v", addr, err)
		return
	}

	switch wire.Opcode(mtype) {
	case wire.MsgTerminate:
		nlog.Infof("received a kill signal from %s", addr)
		os.Exit(0)

	case wire.MsgSendTask:
		s.handlePush(ep, addr)

	case wire.MsgReadResult:
		s.handlePull(ep, addr)

	default:
		nlog.Warningf("unknown message '%d' received from %s", mtype, addr)
	}
}

// handlePush is the two-phase pull side of the push handshake: offer
// msg_send_more while the pool has room, accept one task per offer,
// and stop with msg_send_full once it doesn't. Mirrors server_callback's
// "while not tpool.Full()" branch.
func (s *Server) handlePush(ep wire.Endpoint, addr string) {
	for {
		if s.pool.Full() {
			if err := ep.WriteInt64(int64(wire.MsgSendFull)); err != nil {
				nlog.Warningf("error occurred while writing to %s: %v", addr, err)
			}
			return
		}
		if err := ep.WriteInt64(int64(wire.MsgSendMore)); err != nil {
			nlog.Warningf("error occurred while writing to %s: %v", addr, err)
			return
		}

		taskid, err := ep.ReadInt64(s.recvTimeout)
		if err != nil {
			nlog.Warningf("error occurred while reading request from %s: %v", addr, err)
			return
		}
		tasksz, err := ep.ReadInt64(s.recvTimeout)
		if err != nil {
			nlog.Warningf("error occurred while reading request from %s: %v", addr, err)
			return
		}
		payload, err := ep.Read(int(tasksz), s.recvTimeout)
		if err != nil {
			nlog.Warningf("error occurred while reading request from %s: %v", addr, err)
			return
		}
		nlog.Infof("received task %d from %s", taskid, addr)

		if !s.pool.Put(taskid, payload) {
			// Shouldn't happen: Full() was just checked false above.
			nlog.Warningf("rejecting task %d because the pool is full", taskid)
			if err := ep.WriteInt64(int64(wire.MsgSendRjct)); err != nil {
				nlog.Warningf("error occurred while writing to %s: %v", addr, err)
				return
			}
		}
	}
}

// handlePull drains the completion queue, sending each result and
// waiting for a one-int64 ack before sending the next; a failed
// send or an unexpected ack re-enqueues the in-flight result and ends
// the exchange. Mirrors server_callback's "elif mtype == msg_read_result"
// branch.
func (s *Server) handlePull(ep wire.Endpoint, addr string) {
	for {
		r, ok := s.results.PopFront()
		if !ok {
			if err := ep.WriteInt64(int64(wire.MsgReadEmpty)); err != nil {
				nlog.Warningf("error occurred while writing to %s: %v", addr, err)
			}
			return
		}

		if err := wire.WriteResult(ep, r); err != nil {
			nlog.Infof("task %d put back in the queue", r.ID)
			s.results.Push(r)
			nlog.Warningf("error occurred while writing to %s: %v", addr, err)
			return
		}
		nlog.Infof("sent task %d to committer %s", r.ID, addr)

		ans, err := ep.ReadInt64(s.recvTimeout)
		if err != nil || wire.Opcode(ans) != wire.MsgReadResult {
			nlog.Infof("task %d put back in the queue", r.ID)
			s.results.Push(r)
			if err != nil {
				nlog.Warningf("error occurred while reading request from %s: %v", addr, err)
			} else {
				nlog.Warningf("unknown response received from %s while committing task", addr)
			}
			return
		}
	}
}
