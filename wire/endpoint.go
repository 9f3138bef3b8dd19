package wire

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caianbenedicto/spitz/cmn/cos"
	"github.com/pkg/errors"
)

// Endpoint is a length-prefixed, big-endian binary stream: a TCP or
// UNIX-domain socket, chosen by port (port <= 0 selects UDS at address).
// Mirrors libspitz.Endpoint / SimpleEndpoint / ClientEndpoint.
type Endpoint interface {
	Open(connTimeout time.Duration) error
	Read(n int, readTimeout time.Duration) ([]byte, error)
	Write(b []byte) error
	ReadInt64(readTimeout time.Duration) (int64, error)
	WriteInt64(v int64) error
	Close() error

	Address() string
	Port() int
}

// DialEndpoint is an Endpoint that actively dials out; the job manager
// uses one per task-manager fleet entry.
type DialEndpoint struct {
	address string
	port    int
	conn    net.Conn
}

func NewDialEndpoint(address string, port int) *DialEndpoint {
	return &DialEndpoint{address: address, port: port}
}

func (e *DialEndpoint) Address() string { return e.address }
func (e *DialEndpoint) Port() int       { return e.port }

func (e *DialEndpoint) Open(connTimeout time.Duration) error {
	if e.conn != nil {
		return nil
	}
	var (
		network, target string
	)
	if e.port <= 0 {
		network, target = "unix", e.address
	} else {
		network, target = "tcp", net.JoinHostPort(e.address, strconv.Itoa(e.port))
	}
	d := net.Dialer{Timeout: connTimeout}
	conn, err := d.Dial(network, target)
	if err != nil {
		return errors.Wrapf(err, "dial %s %s", network, target)
	}
	e.conn = conn
	return nil
}

func (e *DialEndpoint) Close() error {
	if e.conn == nil {
		return nil
	}
	err := e.conn.Close()
	e.conn = nil
	return err
}

func (e *DialEndpoint) Read(n int, readTimeout time.Duration) ([]byte, error) {
	return readFull(e.conn, n, readTimeout)
}

func (e *DialEndpoint) Write(b []byte) error {
	return writeAll(e.conn, b)
}

func (e *DialEndpoint) ReadInt64(readTimeout time.Duration) (int64, error) {
	return readInt64(e.conn, readTimeout)
}

func (e *DialEndpoint) WriteInt64(v int64) error {
	return writeInt64(e.conn, v)
}

// ServerEndpoint wraps an already-accepted connection; its Open is a
// no-op. Mirrors libspitz.ClientEndpoint.
type ServerEndpoint struct {
	address string
	port    int
	conn    net.Conn
}

func NewServerEndpoint(conn net.Conn, address string, port int) *ServerEndpoint {
	return &ServerEndpoint{conn: conn, address: address, port: port}
}

func (e *ServerEndpoint) Address() string                     { return e.address }
func (e *ServerEndpoint) Port() int                            { return e.port }
func (*ServerEndpoint) Open(_ time.Duration) error             { return nil }
func (e *ServerEndpoint) Close() error                         { return e.conn.Close() }
func (e *ServerEndpoint) Read(n int, t time.Duration) ([]byte, error) { return readFull(e.conn, n, t) }
func (e *ServerEndpoint) Write(b []byte) error                 { return writeAll(e.conn, b) }
func (e *ServerEndpoint) ReadInt64(t time.Duration) (int64, error) { return readInt64(e.conn, t) }
func (e *ServerEndpoint) WriteInt64(v int64) error             { return writeInt64(e.conn, v) }

//
// shared low-level helpers
//

// readFull loops on conn.Read, coalescing partial reads, until exactly n
// bytes have been received or the deadline elapses. Mirrors
// libspitz.messaging.recv's select()+recv() loop.
func readFull(conn net.Conn, n int, timeout time.Duration) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if timeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, errors.Wrap(err, "set read deadline")
		}
		defer conn.SetReadDeadline(time.Time{})
	}
	buf := make([]byte, n)
	read := 0
	for read < n {
		k, err := conn.Read(buf[read:])
		read += k
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return nil, cos.NewErrTimeout("read")
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil, cos.NewErrPeerClosed("read")
			}
			return nil, errors.Wrap(err, "read")
		}
		if k == 0 {
			return nil, cos.NewErrPeerClosed("read")
		}
	}
	return buf, nil
}

func writeAll(conn net.Conn, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	_, err := conn.Write(b)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
			return cos.NewErrPeerClosed("write")
		}
		return errors.Wrap(err, "write")
	}
	return nil
}

func readInt64(conn net.Conn, timeout time.Duration) (int64, error) {
	b, err := readFull(conn, 8, timeout)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func writeInt64(conn net.Conn, v int64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return writeAll(conn, b[:])
}

