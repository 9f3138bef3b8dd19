// Package bridge loads a job binary - a shared object exposing the
// spits_* C ABI - and calls into it. It is the Go equivalent of
// libspitz.JobBinary's ctypes.CDLL binding: where Python resolves symbols
// at call time through ctypes, this package resolves them once at Load
// time through dlopen/dlsym and invokes them through small cgo
// trampolines.
/*
 * Copyright (c) 2015, Caian Benedicto <caian@ggaunicamp.com>
 */
package bridge

/*
#cgo LDFLAGS: -ldl
#include <stdlib.h>
#include "helpers.h"
*/
import "C"

import (
	"path/filepath"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Handle is an opaque user_data pointer returned by one of the module's
// *_new functions. It must be passed back into the matching *_finalize
// (or the next_task/run/commit_pit/commit_job call it belongs to) and
// nowhere else; it does not outlive the Module that created it.
type Handle struct{ ptr unsafe.Pointer }

func (h Handle) valid() bool { return h.ptr != nil }

// Module is a loaded job binary. It is safe for concurrent use by
// multiple goroutines: dlsym'd function pointers are read-only after
// Load, and each call site resolves its own callback correlation state.
type Module struct {
	path string
	dl   unsafe.Pointer

	fnMain            unsafe.Pointer // optional
	fnJobManagerNew   unsafe.Pointer
	fnJobManagerNext  unsafe.Pointer
	fnJobManagerFinal unsafe.Pointer // optional
	fnWorkerNew       unsafe.Pointer
	fnWorkerRun       unsafe.Pointer
	fnWorkerFinal     unsafe.Pointer // optional
	fnCommitterNew    unsafe.Pointer
	fnCommitterPit    unsafe.Pointer
	fnCommitterJob    unsafe.Pointer
	fnCommitterFinal  unsafe.Pointer // optional
}

// Load resolves filename to an absolute, symlink-free path (mirroring
// JobBinary.py's os.path.realpath) and dlopens it, then resolves the
// mandatory spits_* entry points. Optional entry points (the *_finalize
// hooks and spits_main) are left nil when absent, exactly as ctypes'
// hasattr() checks did.
func Load(filename string) (*Module, error) {
	resolved, err := filepath.Abs(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve job binary path %q", filename)
	}
	resolved, err = filepath.EvalSymlinks(resolved)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve job binary path %q", filename)
	}

	cpath := C.CString(resolved)
	defer C.free(unsafe.Pointer(cpath))

	dl := C.spitz_dlopen(cpath)
	if dl == nil {
		return nil, errors.Errorf("dlopen %s: %s", resolved, C.GoString(C.spitz_dlerror()))
	}

	m := &Module{path: resolved, dl: dl}
	m.fnMain = m.sym("spits_main")
	m.fnJobManagerNew = m.sym("spits_job_manager_new")
	m.fnJobManagerNext = m.sym("spits_job_manager_next_task")
	m.fnJobManagerFinal = m.sym("spits_job_manager_finalize")
	m.fnWorkerNew = m.sym("spits_worker_new")
	m.fnWorkerRun = m.sym("spits_worker_run")
	m.fnWorkerFinal = m.sym("spits_worker_finalize")
	m.fnCommitterNew = m.sym("spits_committer_new")
	m.fnCommitterPit = m.sym("spits_committer_commit_pit")
	m.fnCommitterJob = m.sym("spits_committer_commit_job")
	m.fnCommitterFinal = m.sym("spits_committer_finalize")

	missing := map[string]unsafe.Pointer{
		"spits_job_manager_new":       m.fnJobManagerNew,
		"spits_job_manager_next_task": m.fnJobManagerNext,
		"spits_worker_new":            m.fnWorkerNew,
		"spits_worker_run":            m.fnWorkerRun,
		"spits_committer_new":         m.fnCommitterNew,
		"spits_committer_commit_pit":  m.fnCommitterPit,
		"spits_committer_commit_job":  m.fnCommitterJob,
	}
	for name, fn := range missing {
		if fn == nil {
			return nil, errors.Errorf("job binary %s does not export %s", resolved, name)
		}
	}
	return m, nil
}

func (m *Module) sym(name string) unsafe.Pointer {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	return C.spitz_dlsym(m.dl, cname)
}

// Path returns the resolved (realpath'd) filename the module was loaded from.
func (m *Module) Path() string { return m.path }

//
// argv marshalling
//

type cArgv struct {
	argv **C.char
	ptrs []*C.char
}

func newCArgv(argv []string) *cArgv {
	a := &cArgv{ptrs: make([]*C.char, len(argv))}
	for i, s := range argv {
		a.ptrs[i] = C.CString(s)
	}
	if len(a.ptrs) > 0 {
		a.argv = (**C.char)(unsafe.Pointer(&a.ptrs[0]))
	}
	return a
}

func (a *cArgv) free() {
	for _, p := range a.ptrs {
		C.free(unsafe.Pointer(p))
	}
}

//
// push-callback correlation
//
// spits_worker_run and spits_committer_commit_job both take a pusher
// callback and an opaque ctx pointer that the job binary must hand back
// unchanged exactly once. cgo forbids exporting closures as C function
// pointers, so goPusherTrampoline is the single package-level export;
// runtime/cgo.Handle correlates each concurrent call with its own
// pushState without requiring a global lock around the C call itself.
//

type pushState struct {
	mu     sync.Mutex
	called int
	result []byte
}

//export goPusherTrampoline
func goPusherTrampoline(res unsafe.Pointer, ressz C.longlong, ctx unsafe.Pointer) {
	h := cgo.Handle(uintptr(ctx))
	v := h.Value()
	st, ok := v.(*pushState)
	if !ok || st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.called++
	if ressz > 0 && res != nil {
		st.result = C.GoBytes(res, C.int(ressz))
	} else {
		st.result = nil
	}
}

//
// spits_main/runner correlation
//
// call_main hardcodes goRunnerTrampoline as the runner it hands to
// spits_main, the same way call_worker_run hardcodes goPusherTrampoline
// - cgo can't export a closure as a C function pointer, so there is
// exactly one of these at the package level. Unlike the pusher
// callback, spits_main's own C signature carries no ctx the runner
// could thread a correlation handle through, so runnerMu serializes
// Module.Main calls and currentMainRunner holds the one active
// callback; the cgo call into spits_main is synchronous on the calling
// goroutine, so the trampoline always observes the runner its own
// Module.Main installed.
//

var (
	runnerMu          sync.Mutex
	currentMainRunner func(argv []string) (status int64, result []byte)
)

//export goRunnerTrampoline
func goRunnerTrampoline(argc C.int, argv **C.char, data *unsafe.Pointer, size *C.longlong) C.int {
	n := int(argc)
	var goArgv []string
	if n > 0 {
		ptrs := (*[1 << 28]*C.char)(unsafe.Pointer(argv))[:n:n]
		goArgv = make([]string, n)
		for i, p := range ptrs {
			goArgv[i] = C.GoString(p)
		}
	}

	runner := currentMainRunner
	if runner == nil {
		*data, *size = nil, 0
		return 0
	}

	status, result := runner(goArgv)
	if len(result) > 0 {
		// Handed to the module's own spits_main, which decides how long
		// it needs this buffer; matching JobBinary.spits_main's ctypes
		// array, nothing here frees it. Main is called at most once per
		// job, so the leak is bounded.
		*data = C.CBytes(result)
		*size = C.longlong(len(result))
	} else {
		*data, *size = nil, 0
	}
	return C.int(status)
}

func withPushState(fn func(ctx unsafe.Pointer) int64) (status int64, result []byte, err error) {
	st := &pushState{}
	h := cgo.NewHandle(st)
	defer h.Delete()

	status = fn(unsafe.Pointer(uintptr(h)))

	st.mu.Lock()
	defer st.mu.Unlock()
	switch {
	case st.called == 0:
		return status, nil, ErrNoAnswer
	case st.called > 1:
		return status, st.result, ErrDoublePush
	default:
		return status, st.result, nil
	}
}
