// Package tm implements the task manager: a network listener that
// accepts connections from job managers and dispatches each one to the
// push or pull handshake, backed by a bounded pool of task-pool workers
// running a loaded job binary.
/*
 * Copyright (c) 2015-2024, Caian Benedicto <caian@ggaunicamp.com>
 */
package tm

import (
	"context"
	"errors"
	"net"
	"os"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/caianbenedicto/spitz/cmn/cos"
	"github.com/caianbenedicto/spitz/cmn/nlog"
)

// acceptBackoff is how long the accept loop pauses after any accept
// failure before retrying, mirroring Listener.py's `time.sleep(10)`
// after a caught exception. A var, not a const, so tests can shrink it.
var acceptBackoff = 10 * time.Second

// Listen opens a TCP (port > 0) or UNIX-domain (port <= 0) listening
// socket at address, marking it SO_REUSEADDR (and SO_REUSEPORT where the
// platform honors it) the way Listener.py's Start does, so a task
// manager restarted right after a crash can rebind immediately instead
// of hitting "address already in use". Mirrors libspitz.Listener.Start.
func Listen(address string, port int) (net.Listener, error) {
	network, target := "tcp", net.JoinHostPort(address, strconv.Itoa(port))
	if port <= 0 {
		network, target = "unix", address
		removeStaleSocket(target)
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if sockErr == nil {
					// best-effort: not honored on every platform/kernel, a
					// failure here is not fatal to binding the socket.
					_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(context.Background(), network, target)
	if err != nil {
		return nil, err
	}
	nlog.Infof("listening on %s %s", network, target)
	return ln, nil
}

// removeStaleSocket unlinks a leftover UNIX-domain socket file from a
// previous run, matching Listener.py's best-effort os.unlink before bind.
func removeStaleSocket(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		nlog.Infof("removing stale socket %s: %v", path, err)
	}
}

// Accept runs the accept loop, handing every accepted connection to
// handle in its own goroutine. A closed listener ends the loop cleanly;
// every other accept failure - EMFILE/ENFILE included - is logged and
// throttled with a fixed back-off before retrying, mirroring
// Listener.py's catch-log-sleep-retry accept loop: nothing short of the
// listener closing is allowed to end it.
func Accept(ln net.Listener, handle func(net.Conn)) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if cos.IsErrTooManyFiles(err) {
				nlog.Warningf("accept: too many open files, backing off: %v", err)
			} else {
				nlog.Warningf("accept failed, backing off: %v", err)
			}
			time.Sleep(acceptBackoff)
			continue
		}
		go handle(conn)
	}
}
