package tm

import (
	"sync"

	"github.com/caianbenedicto/spitz/wire"
)

// ResultQueue is the FIFO completion queue workers push onto and the
// pull handshake drains - the Go shape of tm.py's unbounded queue.Queue
// cqueue, guarded by a mutex instead of relying on queue.Queue's
// internal lock since Go has no ready-made blocking FIFO in the
// standard library.
type ResultQueue struct {
	mu    sync.Mutex
	items []wire.Result
}

func NewResultQueue() *ResultQueue { return &ResultQueue{} }

// Push enqueues a completed task's result at the tail. Also used to
// re-enqueue a result the pull handshake failed to deliver, mirroring
// tm.py's server_callback putting (taskid, r, res) back onto cqueue
// after a send failure.
func (q *ResultQueue) Push(r wire.Result) {
	q.mu.Lock()
	q.items = append(q.items, r)
	q.mu.Unlock()
}

// PopFront dequeues the oldest result, mirroring cqueue.get_nowait.
func (q *ResultQueue) PopFront() (wire.Result, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return wire.Result{}, false
	}
	r := q.items[0]
	q.items = q.items[1:]
	return r, true
}

func (q *ResultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
