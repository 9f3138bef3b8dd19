package tm

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/caianbenedicto/spitz/bridge"
	"github.com/caianbenedicto/spitz/cmn/nlog"
	"github.com/caianbenedicto/spitz/spitzstats"
	"github.com/caianbenedicto/spitz/wire"
)

// task is one (taskid, payload) pair queued for a worker.
type task struct {
	id      int64
	payload []byte
}

// jobWorker is the slice of *bridge.Module's API the pool needs to run a
// worker; tests substitute a fake so pool/server behavior can be
// exercised without a real job binary loaded via cgo/dlopen.
type jobWorker interface {
	WorkerNew(argv []string) (bridge.Handle, error)
	WorkerRun(h bridge.Handle, task []byte) (status int64, result []byte, err error)
	WorkerFinalize(h bridge.Handle)
}

// Pool is a fixed-size group of worker goroutines draining a bounded
// intake channel, each backed by its own job-binary worker handle.
// Mirrors libspitz.TaskPool, with max_threads+overfill giving the
// channel its capacity exactly as TaskPool.__init__ sizes its Queue.
type Pool struct {
	tasks    chan task
	results  *ResultQueue
	module   jobWorker
	argv     []string
	nworkers int
	group    *errgroup.Group
	cancel   context.CancelFunc
	stats    *spitzstats.TM
}

// NewPool starts nworkers goroutines, each calling module.WorkerNew(argv)
// once (mirroring TaskPool.runner's single initializer call per thread)
// before entering its work loop. The intake channel holds nworkers+
// overfill tasks before Put starts rejecting, the Go equivalent of
// TaskPool's bounded queue.Queue(maxsize=max_threads+overfill). stats
// is optional - pass none in tests, or the process's *spitzstats.TM in
// tm/run.go to make in-flight/completed/rejected counts observable.
func NewPool(module *bridge.Module, argv []string, nworkers, overfill int, results *ResultQueue, stats ...*spitzstats.TM) *Pool {
	return newPool(module, argv, nworkers, overfill, results, stats...)
}

func newPool(module jobWorker, argv []string, nworkers, overfill int, results *ResultQueue, stats ...*spitzstats.TM) *Pool {
	if nworkers <= 0 {
		nworkers = 1
	}
	if overfill < 0 {
		overfill = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(ctx)

	p := &Pool{
		tasks:    make(chan task, nworkers+overfill),
		results:  results,
		module:   module,
		argv:     argv,
		nworkers: nworkers,
		group:    group,
		cancel:   cancel,
	}
	if len(stats) > 0 {
		p.stats = stats[0]
	}

	for i := 0; i < nworkers; i++ {
		group.Go(func() error {
			p.runWorker(gctx)
			return nil
		})
	}
	return p
}

// runWorker mirrors TaskPool.runner: one spits_worker_new call, then a
// loop pulling tasks and invoking spits_worker_run until the pool stops.
func (p *Pool) runWorker(ctx context.Context) {
	state, err := p.module.WorkerNew(p.argv)
	if err != nil {
		nlog.Errorf("worker initialization failed: %v", err)
		return
	}
	defer p.module.WorkerFinalize(state)

	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.runTask(state, t)
		}
	}
}

func (p *Pool) runTask(state bridge.Handle, t task) {
	nlog.Infof("processing task %d...", t.id)
	status, result, err := p.runWorkerRun(state, t)
	nlog.Infof("task %d processed", t.id)

	switch err {
	case nil:
		p.results.Push(wire.Result{ID: t.id, Status: status, Bytes: result})
	case bridge.ErrNoAnswer:
		nlog.Errorf("task %d did not push any result", t.id)
		p.results.Push(wire.Result{ID: t.id, Status: wire.StatusModuleNoAnswer, Bytes: nil})
	case bridge.ErrDoublePush:
		nlog.Errorf("task %d: context verification failed (pushed more than once)", t.id)
		p.results.Push(wire.Result{ID: t.id, Status: wire.StatusModuleCtxErr, Bytes: result})
	default:
		nlog.Errorf("task %d: worker crashed: %v", t.id, err)
		p.results.Push(wire.Result{ID: t.id, Status: wire.StatusModuleError, Bytes: nil})
	}
	if p.stats != nil {
		p.stats.Completed.Inc()
		p.stats.InFlight.Set(float64(len(p.tasks)))
	}
}

// runWorkerRun calls into the job binary and recovers a panic raised
// anywhere in that call - inside WorkerRun itself or inside the
// push-callback trampoline it invokes through cgo, which panics
// straight back through the C call into this goroutine - so one bad
// task can't take the worker goroutine, and therefore the whole
// process, down with it. Mirrors TaskPool.runner's try/except around
// self.worker(...).
func (p *Pool) runWorkerRun(state bridge.Handle, t task) (status int64, result []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked: %v", r)
		}
	}()
	return p.module.WorkerRun(state, t.payload)
}

// Put enqueues (taskid, payload) without blocking, mirroring
// TaskPool.Put's queue.put_nowait/queue.Full handling. It reports false
// when the intake channel has no free slot.
func (p *Pool) Put(id int64, payload []byte) bool {
	select {
	case p.tasks <- task{id: id, payload: payload}:
		if p.stats != nil {
			p.stats.InFlight.Set(float64(len(p.tasks)))
		}
		return true
	default:
		if p.stats != nil {
			p.stats.Rejected.Inc()
		}
		return false
	}
}

// Full reports whether Put would currently reject a task - an advisory
// check used by the push handshake before asking the job manager for
// more work, mirroring TaskPool.Full.
func (p *Pool) Full() bool { return len(p.tasks) == cap(p.tasks) }

// Stop cancels every worker goroutine and waits for them to exit.
func (p *Pool) Stop() {
	p.cancel()
	_ = p.group.Wait()
}
