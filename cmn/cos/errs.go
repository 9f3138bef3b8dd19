// Package cos provides common low-level types and utilities shared by the
// job manager, the task manager, and the job-binary bridge.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"sync"
	ratomic "sync/atomic"
	"syscall"

	"github.com/caianbenedicto/spitz/cmn/debug"
	"github.com/caianbenedicto/spitz/cmn/nlog"
)

type (
	// ErrTimeout fires when a read deadline elapses before the requested
	// number of bytes has arrived.
	ErrTimeout struct {
		op string
	}
	// ErrPeerClosed fires when the peer shuts down its side of the
	// connection mid-frame (recv returns zero bytes).
	ErrPeerClosed struct {
		op string
	}
	// ErrProtoViolation fires on an unexpected opcode or a mismatched ack.
	ErrProtoViolation struct {
		want, got int64
	}
	// ErrPoolFull describes a non-blocking enqueue onto a bounded intake
	// queue that has no free slot. tm.Pool.Put reports that case as a
	// false return and does not use this type.
	ErrPoolFull struct{}

	// Errs collects up to a small cap of distinct errors, e.g. while
	// re-parsing a multi-line node list.
	Errs struct {
		errs []error
		cnt  int64
		mu   sync.Mutex
	}
)

const maxErrs = 4

func NewErrTimeout(op string) *ErrTimeout         { return &ErrTimeout{op} }
func (e *ErrTimeout) Error() string               { return e.op + ": i/o timeout" }
func (*ErrTimeout) Timeout() bool                 { return true }

func NewErrPeerClosed(op string) *ErrPeerClosed { return &ErrPeerClosed{op} }
func (e *ErrPeerClosed) Error() string          { return e.op + ": connection closed by peer" }

func NewErrProtoViolation(want, got int64) *ErrProtoViolation { return &ErrProtoViolation{want, got} }
func (e *ErrProtoViolation) Error() string {
	return fmt.Sprintf("protocol violation: expected opcode 0x%x, got 0x%x", e.want, e.got)
}

func (*ErrPoolFull) Error() string { return "task pool is full" }

func IsErrTimeout(err error) bool {
	var e *ErrTimeout
	return errors.As(err, &e)
}

func IsErrPeerClosed(err error) bool {
	var e *ErrPeerClosed
	return errors.As(err, &e)
}

//
// Errs
//

func (e *Errs) Add(err error) {
	debug.Assert(err != nil)
	e.mu.Lock()
	for _, added := range e.errs {
		if added.Error() == err.Error() {
			e.mu.Unlock()
			return
		}
	}
	if len(e.errs) < maxErrs {
		e.errs = append(e.errs, err)
		ratomic.StoreInt64(&e.cnt, int64(len(e.errs)))
	}
	e.mu.Unlock()
}

func (e *Errs) Cnt() int { return int(ratomic.LoadInt64(&e.cnt)) }

func (e *Errs) Error() (s string) {
	cnt := e.Cnt()
	if cnt == 0 {
		return
	}
	e.mu.Lock()
	err := e.errs[0]
	e.mu.Unlock()
	if cnt > 1 {
		return fmt.Sprintf("%v (and %d more error%s)", err, cnt-1, Plural(cnt-1))
	}
	return err.Error()
}

//
// is-syscall helpers - classify a failure as retriable vs. fatal; of
// these, only IsErrTooManyFiles has a caller (the listener's accept loop)
//

func UnwrapSyscallErr(err error) error {
	if syscallErr, ok := err.(*os.SyscallError); ok {
		return syscallErr.Unwrap()
	}
	return nil
}

func IsErrConnectionRefused(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) bool   { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) bool        { return errors.Is(err, syscall.EPIPE) }

func IsRetriableConnErr(err error) bool {
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err)
}

// IsErrTooManyFiles reports whether accept(2) failed because the process
// is out of file descriptors. The accept loop logs this case with its own
// message and then applies the same fixed back-off as any other failure.
func IsErrTooManyFiles(err error) bool {
	return errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE)
}

func isErrDNSLookup(err error) bool {
	_, ok := err.(*net.DNSError)
	return ok
}

func IsEOF(err error) bool {
	return err != nil && (errors.Is(err, os.ErrClosed) || isErrDNSLookup(err))
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

//
// abnormal termination - mirrors jm.py's / tm.py's abort(): log a fatal
// message and exit(1)
//

const fatalPrefix = "FATAL ERROR: "

func Exitf(f string, a ...any) {
	_exit(fmt.Sprintf(fatalPrefix+f, a...))
}

// +log
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(true)
	}
	_exit(msg)
}

func _exit(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
