package tm

import (
	"errors"
	"net"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// fakeListener lets a test drive Accept's failure-handling branches
// without binding a real socket.
type fakeListener struct {
	accept func(n int) (net.Conn, error)
	n      int32
}

func (f *fakeListener) Accept() (net.Conn, error) {
	n := int(atomic.AddInt32(&f.n, 1))
	return f.accept(n)
}
func (f *fakeListener) Close() error { return nil }
func (f *fakeListener) Addr() net.Addr {
	return &net.TCPAddr{}
}

var _ = Describe("Accept", func() {
	var savedBackoff time.Duration

	BeforeEach(func() {
		savedBackoff = acceptBackoff
		acceptBackoff = time.Millisecond
	})
	AfterEach(func() {
		acceptBackoff = savedBackoff
	})

	It("backs off and retries on an ordinary accept error instead of returning it", func() {
		c1, c2 := net.Pipe()
		defer c2.Close()
		ln := &fakeListener{accept: func(n int) (net.Conn, error) {
			switch n {
			case 1:
				return nil, errors.New("connection reset by peer")
			case 2:
				return c1, nil
			default:
				return nil, net.ErrClosed
			}
		}}

		handled := make(chan net.Conn, 1)
		done := make(chan error, 1)
		go func() { done <- Accept(ln, func(c net.Conn) { handled <- c }) }()

		Eventually(handled, time.Second).Should(Receive(Equal(c1)))
		// The first accept failed with a non-EMFILE, non-closed error, yet
		// the loop kept going (backed off and retried) instead of
		// returning that error straight out of Accept.
		Eventually(done, time.Second).Should(Receive(BeNil()))
	})

	It("ends the loop cleanly once the listener is closed", func() {
		ln := &fakeListener{accept: func(n int) (net.Conn, error) {
			return nil, net.ErrClosed
		}}
		err := Accept(ln, func(net.Conn) {})
		Expect(err).NotTo(HaveOccurred())
	})
})
