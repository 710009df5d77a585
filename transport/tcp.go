// Package transport hosts the bundled server-side transports. The gateway
// itself never touches sockets; everything here exists to feed it.
package transport

import (
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bifrost-web/bifrost/config"
)

type deadlined interface {
	SetDeadline(t time.Time) error
}

// TCP accepts connections and hands each one to a callback on its own
// goroutine. When the listener supports deadlines the accept call is
// interrupted periodically so Stop can be noticed without closing the
// socket from under active clients; TLS listeners don't, so for them Stop
// closes the socket to unblock the loop.
type TCP struct {
	l    net.Listener
	wg   sync.WaitGroup
	stop atomic.Bool
}

func NewTCP(l net.Listener) *TCP {
	return &TCP{l: l}
}

func Bind(addr string) (*TCP, error) {
	tcpaddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}

	sock, err := net.ListenTCP("tcp", tcpaddr)
	if err != nil {
		return nil, err
	}

	return NewTCP(sock), nil
}

func (t *TCP) Listen(cfg config.NET, cb func(conn net.Conn)) error {
	interruptable, _ := t.l.(deadlined)

	for !t.stop.Load() {
		if interruptable != nil {
			if err := interruptable.SetDeadline(time.Now().Add(cfg.AcceptLoopInterruptPeriod)); err != nil {
				return err
			}
		}

		conn, err := t.l.Accept()
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}

			if t.stop.Load() && errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		t.wg.Add(1)
		go func(conn net.Conn) {
			cb(conn)
			_ = conn.Close()
			t.wg.Done()
		}(conn)
	}

	return nil
}

// Stop makes the accept loop return. Already accepted connections keep
// being served.
func (t *TCP) Stop() {
	t.stop.Store(true)
	if _, ok := t.l.(deadlined); !ok {
		_ = t.l.Close()
	}
}

// Close tears the listening socket down.
func (t *TCP) Close() {
	_ = t.l.Close()
}

// Wait blocks until every accepted connection has been served to the end.
func (t *TCP) Wait() {
	t.wg.Wait()
}

func (t *TCP) Addr() net.Addr {
	return t.l.Addr()
}
