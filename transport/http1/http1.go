// Package http1 is a development-grade HTTP/1.1 transport. It parses
// requests off a TCP connection into connection scopes, feeds them through a
// gateway and serializes the response messages back onto the wire. It exists
// so an application can be poked with curl without a fronting server; it is
// not meant to face the open internet.
package http1

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"strconv"

	"github.com/bifrost-web/bifrost/asgi"
	"github.com/bifrost-web/bifrost/config"
	"github.com/bifrost-web/bifrost/internal/lazystream"
	"github.com/bifrost-web/bifrost/internal/protocol/gateway"
	"github.com/bifrost-web/bifrost/internal/tcp"
	"github.com/indigo-web/chunkedbody"
)

// Serve drives a single connection until the peer leaves, asks to close, or
// breaks the protocol. Requests on the same connection are served strictly
// in order.
func Serve(ctx context.Context, cfg *config.Config, conn net.Conn, g *gateway.Gateway) error {
	client := tcp.NewClient(conn, cfg.NET.ReadTimeout, make([]byte, cfg.NET.ReadBufferSize))
	parser := chunkedbody.NewParser(chunkedbody.DefaultSettings())
	scheme := "http"
	if _, ok := conn.(*tls.Conn); ok {
		scheme = "https"
	}

	peer, local := toAddr(client.Remote()), toAddr(conn.LocalAddr())

	for {
		// each request gets a fresh stream so the pushback accounting
		// doesn't accumulate across a long keep-alive session
		stream := lazystream.New(lazystream.SourceFunc(client.Read))
		head, err := parseHead(stream, scheme, peer, local)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			_ = client.Write([]byte("HTTP/1.1 400 Bad Request\r\ncontent-length: 0\r\nconnection: close\r\n\r\n"))

			return nil
		}

		body := newBodyReader(stream, parser, head)
		writer := newSerializer(client, head.keepAlive)

		if err := g.Serve(ctx, head.scope, body.receive, writer.send); err != nil {
			return err
		}

		if !writer.completed() || !head.keepAlive || !body.drain() {
			return nil
		}

		client.Unread(stream.Detach())
	}
}

func toAddr(addr net.Addr) asgi.Addr {
	if addr == nil {
		return asgi.Addr{}
	}

	host, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return asgi.Addr{Host: addr.String()}
	}

	port, _ := strconv.Atoi(portStr)

	return asgi.Addr{Host: host, Port: port}
}
