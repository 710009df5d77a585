// Package bifrost carries synchronous web applications over an
// asynchronous message-based boundary. The protocol gateway translates
// connection scopes and receive/send message streams into plain request and
// response values, so application code never sees the event loop it runs
// under. A development HTTP/1.1 transport is bundled for running without a
// fronting server.
package bifrost

import (
	"context"
	"errors"
	"log"
	"net"
	"sync/atomic"

	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/http"
	"github.com/bifrost-web/bifrost/http/status"
	"github.com/bifrost-web/bifrost/internal/protocol/gateway"
	"github.com/bifrost-web/bifrost/transport"
	"github.com/bifrost-web/bifrost/transport/http1"
)

// Handler is the synchronous application callable: one request in, one
// response out. It runs on a dedicated worker goroutine per request.
type Handler = gateway.Handler

// Middleware wraps a handler. The chain is composed exactly once when Serve
// starts and stays immutable afterwards.
type Middleware func(Handler) Handler

// ListenerFactory lets a listener be built differently than net.Listen,
// mainly for TLS.
type ListenerFactory func(network, addr string) (net.Listener, error)

type listenerSpec struct {
	addr    string
	factory ListenerFactory
}

type hooks struct {
	onStart func()
	onStop  func()
}

// App ties the gateway, the bundled transport and the listeners together.
type App struct {
	addr       string
	cfg        *config.Config
	listeners  []listenerSpec
	middleware []Middleware
	hooks      hooks
	errCh      chan error
}

// New returns an application serving on addr once Serve is called.
func New(addr string) *App {
	return &App{
		addr:  addr,
		cfg:   config.Default(),
		errCh: make(chan error),
	}
}

// Tune replaces the default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg

	return a
}

// Use appends middleware. The calls must all happen before Serve; the
// chain is frozen at startup.
func (a *App) Use(middleware ...Middleware) *App {
	a.middleware = append(a.middleware, middleware...)

	return a
}

// NotifyOnStart calls the callback once all the listeners are up. It isn't
// strongly guaranteed they accept connections at that exact moment yet.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.onStart = cb

	return a
}

// NotifyOnStop calls the callback when the application is fully down and
// no client is being served anymore.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.onStop = cb

	return a
}

// Listen adds one more address to serve on, optionally through a custom
// listener factory.
func (a *App) Listen(addr string, optionalFactory ...ListenerFactory) *App {
	factory := ListenerFactory(net.Listen)
	if len(optionalFactory) > 0 && optionalFactory[0] != nil {
		factory = optionalFactory[0]
	}

	a.listeners = append(a.listeners, listenerSpec{addr: addr, factory: factory})

	return a
}

// TLS adds an encrypted listener.
func (a *App) TLS(addr string, factory ListenerFactory) *App {
	return a.Listen(addr, factory)
}

// HTTPS adds a TLS listener using the given certificate pair.
func (a *App) HTTPS(addr, cert, key string) *App {
	return a.TLS(addr, tlsListener(cert, key))
}

// AutoHTTPS adds a TLS listener obtaining certificates through ACME, or a
// self-signed one when the address is local and ACME can't possibly work.
func (a *App) AutoHTTPS(addr string, domains ...string) *App {
	if isLocalAddr(addr) {
		cert, key, err := selfSignedCert()
		if err != nil {
			log.Printf("WARNING: AutoHTTPS(%s): can't generate a self-signed certificate: %s. Disabling TLS", addr, err)

			return a
		}

		return a.HTTPS(addr, cert, key)
	}

	return a.TLS(addr, autoTLSListener(domains...))
}

// Serve composes the middleware chain, binds every listener and blocks
// until Stop, GracefulStop or a listener failure.
func (a *App) Serve(handler Handler) error {
	if handler == nil {
		handler = func(request *http.Request) *http.Response {
			return request.Respond().Error(status.ErrNotFound)
		}
	}

	for i := len(a.middleware) - 1; i >= 0; i-- {
		handler = a.middleware[i](handler)
	}

	a.Listen(a.addr)
	servers, err := a.bind()
	if err != nil {
		return err
	}

	return a.run(servers, gateway.New(a.cfg, handler))
}

func (a *App) bind() ([]*transport.TCP, error) {
	servers := make([]*transport.TCP, 0, len(a.listeners))

	for _, spec := range a.listeners {
		sock, err := spec.factory("tcp", spec.addr)
		if err != nil {
			for _, server := range servers {
				server.Close()
			}

			return nil, err
		}

		servers = append(servers, transport.NewTCP(sock))
	}

	return servers, nil
}

func (a *App) run(servers []*transport.TCP, g *gateway.Gateway) error {
	ctx := context.Background()
	var failSilently atomic.Bool

	for _, server := range servers {
		go func(server *transport.TCP) {
			err := server.Listen(a.cfg.NET, func(conn net.Conn) {
				if err := http1.Serve(ctx, a.cfg, conn, g); err != nil {
					log.Printf("%s: %s", conn.RemoteAddr(), err)
				}
			})

			if failSilently.Swap(true) {
				return
			}

			a.errCh <- err
		}(server)
	}

	callIfSet(a.hooks.onStart)
	err := <-a.errCh

	for _, server := range servers {
		server.Stop()
	}

	if errors.Is(err, status.ErrGracefulShutdown) {
		// stop accepting new clients, serve the old ones to the end
		for _, server := range servers {
			server.Wait()
		}
	}

	for _, server := range servers {
		server.Close()
	}

	callIfSet(a.hooks.onStop)

	return err
}

// GracefulStop stops accepting new connections and lets the active ones
// finish. The call itself doesn't block.
func (a *App) GracefulStop() {
	a.errCh <- status.ErrGracefulShutdown
}

// Stop brings the whole application down immediately. The call itself
// doesn't block.
func (a *App) Stop() {
	a.errCh <- status.ErrShutdown
}

func isLocalAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}

	return false
}

func callIfSet(cb func()) {
	if cb != nil {
		cb()
	}
}
