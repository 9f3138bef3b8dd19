package bridge

/*
#include "helpers.h"
*/
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
)

// JobManagerNew calls spits_job_manager_new(argv), returning the
// module's opaque job-manager handle.
func (m *Module) JobManagerNew(argv []string) (Handle, error) {
	a := newCArgv(argv)
	defer a.free()
	ptr := C.call_new(m.fnJobManagerNew, C.int(len(argv)), a.argv)
	if ptr == nil {
		return Handle{}, errors.New("spits_job_manager_new returned NULL")
	}
	return Handle{ptr: ptr}, nil
}

// JobManagerNextTask calls spits_job_manager_next_task(user_data). A
// zero return value means the generation is exhausted; task is nil in
// that case.
func (m *Module) JobManagerNextTask(h Handle) (more bool, task []byte, err error) {
	if !h.valid() {
		return false, nil, errors.New("invalid job-manager handle")
	}
	var ctask unsafe.Pointer
	var ctasksz C.longlong
	r := C.call_next_task(m.fnJobManagerNext, h.ptr, (*unsafe.Pointer)(unsafe.Pointer(&ctask)), (*C.longlong)(unsafe.Pointer(&ctasksz)))
	if r == 0 {
		return false, nil, nil
	}
	if ctask != nil && ctasksz > 0 {
		task = C.GoBytes(ctask, C.int(ctasksz))
	}
	return true, task, nil
}

// JobManagerFinalize calls the optional spits_job_manager_finalize hook.
func (m *Module) JobManagerFinalize(h Handle) {
	if m.fnJobManagerFinal != nil && h.valid() {
		C.call_finalize(m.fnJobManagerFinal, h.ptr)
	}
}

// WorkerNew calls spits_worker_new(argv), returning the module's opaque
// worker-state handle. One handle is created per task-pool worker
// goroutine and reused across tasks.
func (m *Module) WorkerNew(argv []string) (Handle, error) {
	a := newCArgv(argv)
	defer a.free()
	ptr := C.call_new(m.fnWorkerNew, C.int(len(argv)), a.argv)
	if ptr == nil {
		return Handle{}, errors.New("spits_worker_new returned NULL")
	}
	return Handle{ptr: ptr}, nil
}

// WorkerRun calls spits_worker_run(user_data, task, tasksz, pusher, ctx)
// and returns the module's raw status alongside whatever bytes the
// pusher callback was handed. err is ErrNoAnswer or ErrDoublePush if the
// single-push contract was violated; status is still the module's
// return value in that case, for logging.
func (m *Module) WorkerRun(h Handle, task []byte) (status int64, result []byte, err error) {
	if !h.valid() {
		return 0, nil, errors.New("invalid worker handle")
	}
	var ctaskPtr unsafe.Pointer
	if len(task) > 0 {
		ctaskPtr = C.CBytes(task)
		defer C.free(ctaskPtr)
	}
	st, res, perr := withPushState(func(ctx unsafe.Pointer) int64 {
		return int64(C.call_worker_run(m.fnWorkerRun, h.ptr, ctaskPtr, C.longlong(len(task)), ctx))
	})
	return st, res, perr
}

// WorkerFinalize calls the optional spits_worker_finalize hook.
func (m *Module) WorkerFinalize(h Handle) {
	if m.fnWorkerFinal != nil && h.valid() {
		C.call_finalize(m.fnWorkerFinal, h.ptr)
	}
}

// CommitterNew calls spits_committer_new(argv).
func (m *Module) CommitterNew(argv []string) (Handle, error) {
	a := newCArgv(argv)
	defer a.free()
	ptr := C.call_new(m.fnCommitterNew, C.int(len(argv)), a.argv)
	if ptr == nil {
		return Handle{}, errors.New("spits_committer_new returned NULL")
	}
	return Handle{ptr: ptr}, nil
}

// CommitPit calls spits_committer_commit_pit(user_data, result, ressz),
// committing one completed task's result. A non-zero return is a
// committer-reported failure for that specific task, not a framework error.
func (m *Module) CommitPit(h Handle, result []byte) (int64, error) {
	if !h.valid() {
		return 0, errors.New("invalid committer handle")
	}
	var ptr unsafe.Pointer
	if len(result) > 0 {
		ptr = C.CBytes(result)
		defer C.free(ptr)
	}
	r := C.call_commit_pit(m.fnCommitterPit, h.ptr, ptr, C.longlong(len(result)))
	return int64(r), nil
}

// CommitJob calls spits_committer_commit_job(user_data, pusher, ctx),
// producing the final job result once every task has been committed.
func (m *Module) CommitJob(h Handle) (status int64, result []byte, err error) {
	if !h.valid() {
		return 0, nil, errors.New("invalid committer handle")
	}
	return withPushState(func(ctx unsafe.Pointer) int64 {
		return int64(C.call_commit_job(m.fnCommitterJob, h.ptr, ctx))
	})
}

// CommitterFinalize calls the optional spits_committer_finalize hook.
func (m *Module) CommitterFinalize(h Handle) {
	if m.fnCommitterFinal != nil && h.valid() {
		C.call_finalize(m.fnCommitterFinal, h.ptr)
	}
}

// HasMain reports whether the module exports the optional spits_main
// entry point, which takes over argument parsing and role dispatch
// itself instead of letting the framework drive job-manager/worker/
// committer construction directly.
func (m *Module) HasMain() bool { return m.fnMain != nil }

// Main wraps run the way JobBinary.spits_main/jm.py's run_wrapper do: if
// the module has no spits_main, run is called directly with argv. If it
// does, spits_main(argc, argv, runner) is called instead, and the
// module decides when (and with what argv) to invoke the runner, which
// calls back into run and hands its result to the module through the
// runner's own data/size out-parameters. Either way, run's own return
// values - not spits_main's C-level int return, which the module may
// use for its own purposes and which this framework discards, exactly
// as jm.py's main() never reads past `r = job.spits_main(...)` - are
// what Main reports back to the caller.
func (m *Module) Main(argv []string, run func(argv []string) (status int64, result []byte, err error)) (status int64, result []byte, err error) {
	if !m.HasMain() {
		return run(argv)
	}

	runnerMu.Lock()
	defer runnerMu.Unlock()

	prev := currentMainRunner
	currentMainRunner = func(argv []string) (int64, []byte) {
		status, result, err = run(argv)
		return status, result
	}
	defer func() { currentMainRunner = prev }()

	a := newCArgv(argv)
	defer a.free()
	C.call_main(m.fnMain, C.int(len(argv)), a.argv)

	return status, result, err
}
